package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpx-stock-lab/internal/adjustment"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFiles_Defaults(t *testing.T) {
	cfg, err := LoadFiles("", "")
	require.NoError(t, err)

	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
	assert.Equal(t, 20, cfg.Search.MaxEvals)
	assert.Equal(t, 3, cfg.Search.Folds)
	assert.Equal(t, adjustment.DefaultOptions(), cfg.AdjustmentOptions())
}

func TestLoadFiles_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "config.yaml", `
columns:
  alignment: date
  missing: drop
pipeline:
  workers: 2
  hurst_column: Open
server:
  read_timeout: 5s
`)
	t.Setenv("JPX_PIPELINE_WORKERS", "8")
	t.Setenv("JPX_COLUMNS_PRICES", "Open,Close")

	cfg, err := LoadFiles(path, "")
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Pipeline.Workers, "env overrides yaml")
	assert.Equal(t, "Open", cfg.Pipeline.HurstColumn, "yaml overrides default")
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"Open", "Close"}, cfg.Columns.Prices)

	opts := cfg.AdjustmentOptions()
	assert.Equal(t, adjustment.AlignByDate, opts.Alignment)
	assert.Equal(t, adjustment.MissingDrop, opts.Missing)
}

func TestLoadFiles_EnvFile(t *testing.T) {
	envFile := writeFile(t, ".env", "JPX_SEARCH_SEED=7\n")
	t.Cleanup(func() { os.Unsetenv("JPX_SEARCH_SEED") })

	cfg, err := LoadFiles("", envFile)
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Search.Seed)
}

func TestLoadFiles_MissingEnvFileIgnored(t *testing.T) {
	_, err := LoadFiles("", filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

func TestLoadFiles_Validation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "bad alignment", yaml: "columns:\n  alignment: nearest\n"},
		{name: "bad missing policy", yaml: "columns:\n  missing: interpolate\n"},
		{name: "zero workers", yaml: "pipeline:\n  workers: 0\n"},
		{name: "sql without dsn", yaml: "storage:\n  backend: sql\n"},
		{name: "bad start date", yaml: "pipeline:\n  start_date: 2021/01/04\n"},
		{name: "one fold", yaml: "search:\n  folds: 1\n"},
		{name: "bad log level", yaml: "logging:\n  level: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFiles(writeFile(t, "config.yaml", tt.yaml), "")
			assert.Error(t, err)
		})
	}
}

func TestDateRange(t *testing.T) {
	cfg := Default()
	cfg.Pipeline.StartDate = "2021-01-04"

	start, end, err := cfg.DateRange()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC), start)
	assert.True(t, end.IsZero())
}
