package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jpx-stock-lab/internal/app"
	"jpx-stock-lab/internal/config"
	"jpx-stock-lab/internal/domain"
	"jpx-stock-lab/internal/observability"
	"jpx-stock-lab/internal/pipeline"
	"jpx-stock-lab/internal/reporting"
	"jpx-stock-lab/internal/storage/memory"
)

const testDays = 60

func day(i int) time.Time {
	return time.Date(2021, time.March, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

func walk(code string, seed int64, start float64) []*domain.StockPrice {
	rng := rand.New(rand.NewSource(seed))
	out := make([]*domain.StockPrice, testDays)
	px := start
	for i := range out {
		px += rng.NormFloat64()
		out[i] = &domain.StockPrice{
			RowID:            day(i).Format("20060102") + "_" + code,
			Date:             day(i),
			SecuritiesCode:   code,
			Open:             px,
			High:             px + 1,
			Low:              px - 1,
			Close:            px,
			Volume:           1000,
			AdjustmentFactor: 1,
		}
	}
	return out
}

type testEnv struct {
	server *Server
	http   *httptest.Server
	stores *app.Stores
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	stores := &app.Stores{
		Prices:   memory.NewStockPriceStore(),
		Adjusted: memory.NewAdjustedPriceStore(),
		Features: memory.NewSeriesFeatureStore(),
		Trials:   memory.NewSearchTrialStore(),
	}
	var records []*domain.StockPrice
	records = append(records, walk("1301", 1, 200)...)
	records = append(records, walk("1332", 2, 500)...)
	records = append(records, walk("1333", 3, 300)...)
	require.NoError(t, stores.Prices.InsertBulk(context.Background(), records))

	cfg := config.Default()
	cfg.Pipeline.ReportDir = t.TempDir()
	cfg.Search.MaxEvals = 2
	cfg.Search.Folds = 2
	cfg.Search.Workers = 1

	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	srv := NewServer(stores, &cfg, zerolog.Nop(), metrics)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})
	return &testEnv{server: srv, http: ts, stores: stores}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.http.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (e *testEnv) runPipeline(t *testing.T, body any) map[string]any {
	t.Helper()
	resp, out := e.do(t, http.MethodPost, "/api/pipeline/runs", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", out)
	return out
}

func TestListSecurities(t *testing.T) {
	env := newTestEnv(t)
	resp, out := env.do(t, http.MethodGet, "/api/securities", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, []any{"1301", "1332", "1333"}, out["securities"])
}

func TestGetPrices(t *testing.T) {
	env := newTestEnv(t)

	resp, out := env.do(t, http.MethodGet, "/api/securities/1301/prices?start=2021-03-02&end=2021-03-04", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["prices"], 3)

	resp, _ = env.do(t, http.MethodGet, "/api/securities/9999/prices", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/securities/1301/prices?start=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPipelineRunAndSeries(t *testing.T) {
	env := newTestEnv(t)

	out := env.runPipeline(t, map[string]any{"write_report": true})
	assert.Equal(t, float64(3), out["succeeded"])
	assert.Equal(t, float64(0), out["failed"])
	assert.Equal(t, float64(3*testDays), out["rows_adjusted"])
	assert.Equal(t, true, out["checks_passed"])
	require.Len(t, out["securities"], 3)

	runID, _ := out["run_id"].(string)
	require.NotEmpty(t, runID)
	_, err := os.Stat(filepath.Join(env.server.cfg.Pipeline.ReportDir, runID, reporting.ReportFile))
	assert.NoError(t, err)

	resp, adj := env.do(t, http.MethodGet, "/api/securities/1332/adjusted?end=2021-03-10", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, adj["points"], 10)

	resp, feats := env.do(t, http.MethodGet, "/api/securities/1332/features", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, feats["features"], 1)

	resp, hurst := env.do(t, http.MethodGet, "/api/securities/1332/hurst", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(testDays), hurst["observations"])
	assert.NotNil(t, hurst["hurst_exponent"])

	resp, fr := env.do(t, http.MethodGet, "/api/securities/1332/frame?time_dim=3&output_dim=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"x0", "x1", "x2", "target0", "target1"}, fr["columns"])
	assert.Len(t, fr["rows"], testDays-5+1)
}

func TestPipelineRun_Validation(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/pipeline/runs", map[string]any{"start": "03/01/2021"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/pipeline/runs", map[string]any{"hurst_column": "Target"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/pipeline/runs", map[string]any{"start": "2030-01-01"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPipelineRun_Busy(t *testing.T) {
	env := newTestEnv(t)
	env.server.runMu.Lock()
	defer env.server.runMu.Unlock()

	resp, out := env.do(t, http.MethodPost, "/api/pipeline/runs", map[string]any{})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, out["error"], "already in progress")
}

func TestHurst_NoAdjustedSeries(t *testing.T) {
	env := newTestEnv(t)
	resp, _ := env.do(t, http.MethodGet, "/api/securities/1301/hurst", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.runPipeline(t, map[string]any{})
	resp, _ = env.do(t, http.MethodGet, "/api/securities/1301/hurst?column=Target", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSearchRun(t *testing.T) {
	env := newTestEnv(t)
	env.runPipeline(t, map[string]any{})

	resp, out := env.do(t, http.MethodPost, "/api/search/runs", map[string]any{
		"family":   "logistic",
		"codes":    []string{"1301", "1332", "1333"},
		"time_dim": 4,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "body: %v", out)
	assert.Equal(t, float64(2), out["trials"])
	assert.Equal(t, float64(3*(testDays-4)), out["rows"])
	require.NotNil(t, out["best"])

	runID := out["run_id"].(string)
	resp, trials := env.do(t, http.MethodGet, "/api/search/runs/"+runID+"/trials", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, trials["trials"], 2)

	resp, best := env.do(t, http.MethodGet, "/api/search/runs/"+runID+"/best", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", best["status"])
}

func TestSearchRun_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.runPipeline(t, map[string]any{})

	resp, out := env.do(t, http.MethodPost, "/api/search/runs", map[string]any{
		"family": "randomforest",
		"codes":  []string{"1301"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["error"], "unknown classifier type")

	resp, _ = env.do(t, http.MethodPost, "/api/search/runs", map[string]any{"family": "logistic"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/search/runs/missing/trials", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/search/runs/missing/best", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProgressStream(t *testing.T) {
	env := newTestEnv(t)

	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws/pipeline"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.server.Hub().Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	env.runPipeline(t, map[string]any{"codes": []string{"1301", "1332"}})

	var events []pipeline.Event
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var e pipeline.Event
		require.NoError(t, conn.ReadJSON(&e))
		events = append(events, e)
		if e.Type == pipeline.EventFinished {
			break
		}
	}

	require.Len(t, events, 4)
	assert.Equal(t, pipeline.EventStarted, events[0].Type)
	assert.Equal(t, 2, events[0].Total)
	assert.Equal(t, 2, events[3].Done)
}
