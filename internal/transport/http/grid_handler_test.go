package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondmap/internal/grid"
	"bondmap/internal/pipeline"
	"bondmap/internal/store"
)

type stubService struct {
	snapshot *grid.Snapshot
	snapErr  error
	result   *pipeline.RunResult
	runErr   error
	runCalls int
}

func (s *stubService) Run(ctx context.Context) (*pipeline.RunResult, error) {
	s.runCalls++
	if s.runErr != nil {
		return nil, s.runErr
	}
	return s.result, nil
}

func (s *stubService) Snapshot(ctx context.Context) (*grid.Snapshot, error) {
	if s.snapErr != nil {
		return nil, s.snapErr
	}
	return s.snapshot, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, svc *stubService) *httptest.Server {
	t.Helper()
	handler := NewGridHandler(svc, testLogger())
	router := NewRouter(handler, testLogger(), prometheus.NewRegistry(), RouterOptions{
		RefreshRPS:   100,
		RefreshBurst: 100,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func sampleSnapshot() *grid.Snapshot {
	return &grid.Snapshot{
		ComputedAt: time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
		Cells: []grid.Cell{
			{
				Rating: "AAA", Tenor: grid.Tenor1to3, TenorLabel: "1-3y",
				MedianDepth: 80, MedianSpread: 10, TotalVolume: 25_000_000,
				InstrumentCount: 2, LastVWAP: 101.5, Color: grid.ColorGreen,
			},
		},
		Thresholds: grid.Thresholds{DepthP25: 20, DepthP75: 40, MedianSpread: 30},
		Summary:    grid.Summary{ActiveInstruments: 2, MeanDepth: 55, TotalVolume: 25_000_000},
	}
}

func TestGetGridReturnsSnapshot(t *testing.T) {
	srv := newTestServer(t, &stubService{snapshot: sampleSnapshot()})

	resp, err := http.Get(srv.URL + "/api/grid")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap grid.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Len(t, snap.Cells, 1)
	assert.Equal(t, "AAA", snap.Cells[0].Rating)
	assert.Equal(t, grid.ColorGreen, snap.Cells[0].Color)
	assert.Equal(t, 20.0, snap.Thresholds.DepthP25)
}

func TestGetGridNoBatchReturns404(t *testing.T) {
	srv := newTestServer(t, &stubService{snapErr: store.ErrNoBatch})

	resp, err := http.Get(srv.URL + "/api/grid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var payload struct {
		Success bool `json:"success"`
		Error   struct {
			ErrorCode string `json:"error_code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.False(t, payload.Success)
	assert.Equal(t, "NO_DATA", payload.Error.ErrorCode)
}

func TestGetGridSnapshotFailureReturns500(t *testing.T) {
	srv := newTestServer(t, &stubService{snapErr: errors.New("corrupt batch")})

	resp, err := http.Get(srv.URL + "/api/grid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetSummary(t *testing.T) {
	srv := newTestServer(t, &stubService{snapshot: sampleSnapshot()})

	resp, err := http.Get(srv.URL + "/api/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary SummaryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.CellCount)
	assert.Equal(t, "2026-03-02T16:00:00Z", summary.ComputedAt)
	assert.Equal(t, 2, summary.Summary.ActiveInstruments)
}

func TestRefreshRunsPipeline(t *testing.T) {
	svc := &stubService{result: &pipeline.RunResult{RunID: "run-1", Records: 42}}
	srv := newTestServer(t, svc)

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, svc.runCalls)

	var result pipeline.RunResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, 42, result.Records)
}

func TestRefreshFailureReturns500(t *testing.T) {
	srv := newTestServer(t, &stubService{runErr: errors.New("trade log unreadable")})

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var payload struct {
		Error struct {
			ErrorCode string `json:"error_code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.Equal(t, "RUN_FAILED", payload.Error.ErrorCode)
}

func TestRefreshRateLimited(t *testing.T) {
	svc := &stubService{result: &pipeline.RunResult{RunID: "run-1"}}
	handler := NewGridHandler(svc, testLogger())
	router := NewRouter(handler, testLogger(), prometheus.NewRegistry(), RouterOptions{
		RefreshRPS:   0.001,
		RefreshBurst: 1,
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	first, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	first.Body.Close()
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	require.NoError(t, err)
	second.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, 1, svc.runCalls)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRequestIDHeaderOnResponses(t *testing.T) {
	srv := newTestServer(t, &stubService{snapshot: sampleSnapshot()})

	resp, err := http.Get(srv.URL + "/api/grid")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}
