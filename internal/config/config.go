// Package config loads application settings from a YAML file, an optional
// .env file and JPX_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"jpx-stock-lab/internal/adjustment"
	"jpx-stock-lab/internal/logging"
)

// EnvPrefix prefixes every environment override, e.g. JPX_PIPELINE_WORKERS.
const EnvPrefix = "JPX"

// Storage backends.
const (
	BackendMemory = "memory"
	BackendSQL    = "sql"
)

// Config represents the complete application configuration.
type Config struct {
	Columns  ColumnsConfig  `yaml:"columns" envconfig:"COLUMNS"`
	Pipeline PipelineConfig `yaml:"pipeline" envconfig:"PIPELINE"`
	Storage  StorageConfig  `yaml:"storage" envconfig:"STORAGE"`
	Server   ServerConfig   `yaml:"server" envconfig:"SERVER"`
	Search   SearchConfig   `yaml:"search" envconfig:"SEARCH"`
	Dataset  DatasetConfig  `yaml:"dataset" envconfig:"DATASET"`
	Logging  logging.Config `yaml:"logging" envconfig:"LOGGING"`
}

// ColumnsConfig names the panel columns and the per-security alignment policy.
type ColumnsConfig struct {
	Code             string   `yaml:"code" envconfig:"CODE" validate:"required"`
	Date             string   `yaml:"date" envconfig:"DATE" validate:"required"`
	Volume           string   `yaml:"volume" envconfig:"VOLUME" validate:"required"`
	AdjustmentFactor string   `yaml:"adjustment_factor" envconfig:"ADJUSTMENT_FACTOR" validate:"required"`
	Prices           []string `yaml:"prices" envconfig:"PRICES" validate:"required,min=1,dive,required"`
	Alignment        string   `yaml:"alignment" envconfig:"ALIGNMENT" validate:"oneof=positional date"`
	Missing          string   `yaml:"missing" envconfig:"MISSING" validate:"oneof=ffill drop error"`
}

// PipelineConfig controls the adjust-and-analyze run.
type PipelineConfig struct {
	Workers     int    `yaml:"workers" envconfig:"WORKERS" validate:"min=1,max=256"`
	HurstColumn string `yaml:"hurst_column" envconfig:"HURST_COLUMN" validate:"required"`
	TimeDim     int    `yaml:"time_dim" envconfig:"TIME_DIM" validate:"min=1"`
	OutputDim   int    `yaml:"output_dim" envconfig:"OUTPUT_DIM" validate:"min=0"`
	StartDate   string `yaml:"start_date" envconfig:"START_DATE" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string `yaml:"end_date" envconfig:"END_DATE" validate:"omitempty,datetime=2006-01-02"`
	ReportDir   string `yaml:"report_dir" envconfig:"REPORT_DIR"`
}

// StorageConfig selects the backend and its connection strings.
type StorageConfig struct {
	Backend          string `yaml:"backend" envconfig:"BACKEND" validate:"oneof=memory sql"`
	PostgresDSN      string `yaml:"postgres_dsn" envconfig:"POSTGRES_DSN" validate:"required_if=Backend sql"`
	ClickhouseDSN    string `yaml:"clickhouse_dsn" envconfig:"CLICKHOUSE_DSN" validate:"required_if=Backend sql"`
	PostgresMaxConns int32  `yaml:"postgres_max_conns" envconfig:"POSTGRES_MAX_CONNS" validate:"min=0"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr" envconfig:"ADDR" validate:"required"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" envconfig:"MAX_BODY_BYTES" validate:"min=0"`
}

// SearchConfig controls hyperparameter search.
type SearchConfig struct {
	Family   string `yaml:"family" envconfig:"FAMILY" validate:"required"`
	MaxEvals int    `yaml:"max_evals" envconfig:"MAX_EVALS" validate:"min=1"`
	Folds    int    `yaml:"folds" envconfig:"FOLDS" validate:"min=2"`
	Seed     int64  `yaml:"seed" envconfig:"SEED"`
	Workers  int    `yaml:"workers" envconfig:"WORKERS" validate:"min=1"`
	Code     string `yaml:"code" envconfig:"CODE"`
}

// DatasetConfig locates the competition archive. URL overrides the download
// address derived from Competition.
type DatasetConfig struct {
	Competition string `yaml:"competition" envconfig:"COMPETITION" validate:"required"`
	URL         string `yaml:"url" envconfig:"URL" validate:"omitempty,url"`
	Dir         string `yaml:"dir" envconfig:"DIR" validate:"required"`
	Username    string `yaml:"username" envconfig:"USERNAME"`
	Key         string `yaml:"key" envconfig:"KEY"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Columns: ColumnsConfig{
			Code:             adjustment.DefaultCodeColumn,
			Date:             adjustment.DefaultDateColumn,
			Volume:           adjustment.DefaultVolumeColumn,
			AdjustmentFactor: adjustment.DefaultAdjustmentFactorColumn,
			Prices:           adjustment.DefaultPriceColumns(),
			Alignment:        string(adjustment.AlignPositional),
			Missing:          string(adjustment.MissingForwardFill),
		},
		Pipeline: PipelineConfig{
			Workers:     4,
			HurstColumn: "Close",
			TimeDim:     5,
			OutputDim:   1,
			ReportDir:   "reports",
		},
		Storage: StorageConfig{
			Backend: BackendMemory,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodyBytes:    32 << 20,
		},
		Search: SearchConfig{
			Family:   "logistic",
			MaxEvals: 20,
			Folds:    3,
			Seed:     42,
			Workers:  3,
		},
		Dataset: DatasetConfig{
			Competition: "jpx-tokyo-stock-exchange-prediction",
			Dir:         "jpx",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path (skipped when empty), then .env from the working
// directory, then JPX_* variables, and validates the result.
func Load(path string) (*Config, error) {
	return LoadFiles(path, ".env")
}

// LoadFiles is Load with an explicit env file. A missing env file is ignored;
// variables already set in the process win over the file.
func LoadFiles(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// AdjustmentOptions converts the column section for the adjustment package.
func (c *Config) AdjustmentOptions() adjustment.Options {
	return adjustment.Options{
		CodeColumn:             c.Columns.Code,
		DateColumn:             c.Columns.Date,
		VolumeColumn:           c.Columns.Volume,
		AdjustmentFactorColumn: c.Columns.AdjustmentFactor,
		PriceColumns:           append([]string(nil), c.Columns.Prices...),
		Alignment:              adjustment.Alignment(c.Columns.Alignment),
		Missing:                adjustment.MissingPolicy(c.Columns.Missing),
	}
}

// DateRange parses the optional pipeline window. Zero times mean unbounded.
func (c *Config) DateRange() (start, end time.Time, err error) {
	if c.Pipeline.StartDate != "" {
		if start, err = time.Parse(time.DateOnly, c.Pipeline.StartDate); err != nil {
			return start, end, fmt.Errorf("parse start date: %w", err)
		}
	}
	if c.Pipeline.EndDate != "" {
		if end, err = time.Parse(time.DateOnly, c.Pipeline.EndDate); err != nil {
			return start, end, fmt.Errorf("parse end date: %w", err)
		}
	}
	return start, end, nil
}
