package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/busyness-collector/internal/config"
	"github.com/busyness-collector/internal/metrics"
	"github.com/busyness-collector/internal/pool"
	"github.com/busyness-collector/internal/snapshot"
	"github.com/busyness-collector/internal/storage"
	"github.com/busyness-collector/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPool struct{ stats pool.Stats }

func (p staticPool) Stats() pool.Stats { return p.stats }

type fakeRuns struct {
	queued    bool
	running   bool
	scheduled bool
}

func (r *fakeRuns) Trigger() bool {
	if r.queued {
		return false
	}
	r.queued = true
	return true
}

func (r *fakeRuns) Running() bool   { return r.running }
func (r *fakeRuns) Scheduled() bool { return r.scheduled }

func testServer(t *testing.T, mutate func(*config.Config)) (*Server, *snapshot.Manager, *fakeRuns) {
	t.Helper()
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	snap := snapshot.NewManager(storage.NoopStorage{})
	runs := &fakeRuns{scheduled: true}
	s := NewServer(cfg, snap, metrics.NewCollectorWith("test", prometheus.NewRegistry()),
		staticPool{stats: pool.Stats{RawCandidates: 120, ValidatedProxies: 4, Served: 9}}, runs)
	return s, snap, runs
}

func do(s *Server, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(s, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestReportBeforeAndAfterRun(t *testing.T) {
	s, snap, _ := testServer(t, nil)

	rec := do(s, http.MethodGet, "/report", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	snap.Update(&types.Run{
		ID:         "run-1",
		FinishedAt: now,
		Report: &types.Report{
			Timestamp:         now,
			TotalLocations:    1,
			SuccessfulScrapes: 0,
			Results:           []types.Record{{LocationID: "a", Name: "A", Area: "Control", Status: "no_data"}},
		},
	})
	snap.Close()

	rec = do(s, http.MethodGet, "/report", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", rec.Header().Get("X-Run-Id"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "2024-03-01T12:00:00Z", body["timestamp"])
	assert.EqualValues(t, 1, body["total_locations"])
	assert.Len(t, body["results"], 1)
}

func TestStat(t *testing.T) {
	s, _, _ := testServer(t, nil)

	rec := do(s, http.MethodGet, "/stat", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Pool    pool.Stats `json:"pool"`
		Running bool       `json:"running"`
		Runs    int64      `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 120, body.Pool.RawCandidates)
	assert.Equal(t, 4, body.Pool.ValidatedProxies)
	assert.Equal(t, int64(9), body.Pool.Served)
	assert.False(t, body.Running)
	assert.Equal(t, int64(0), body.Runs)
}

func TestRefresh(t *testing.T) {
	s, _, runs := testServer(t, nil)

	rec := do(s, http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, runs.queued)

	rec = do(s, http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRefreshWithoutLoop(t *testing.T) {
	s, _, runs := testServer(t, nil)
	runs.scheduled = false

	rec := do(s, http.MethodPost, "/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "no scheduled loop")
	assert.False(t, runs.queued)
}

func TestAPIKeyAuth(t *testing.T) {
	t.Setenv("TEST_BUSYNESS_KEY", "s3cret")
	s, _, _ := testServer(t, func(cfg *config.Config) {
		cfg.API.EnableAPIKeyAuth = true
		cfg.API.APIKeyEnv = "TEST_BUSYNESS_KEY"
	})

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/stat", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/stat", map[string]string{"X-Api-Key": "wrong"}).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/stat", map[string]string{"X-Api-Key": "s3cret"}).Code)
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/stat?key=s3cret", nil).Code)

	// health stays public
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", nil).Code)
}

func TestIPRateLimit(t *testing.T) {
	s, _, _ := testServer(t, func(cfg *config.Config) {
		cfg.API.EnableIPRateLimit = true
		cfg.API.RateLimitPerMinute = 1
	})

	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/stat", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(s, http.MethodGet, "/stat", nil).Code)
}

func TestIPLimiterBurstFloor(t *testing.T) {
	l := newIPLimiter(5)
	assert.True(t, l.forIP("1.2.3.4").Allow())
	assert.Same(t, l.forIP("1.2.3.4"), l.forIP("1.2.3.4"))
	assert.NotSame(t, l.forIP("1.2.3.4"), l.forIP("5.6.7.8"))
}
