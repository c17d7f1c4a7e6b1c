package health_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/notify-worker/internal/health"
	"github.com/example/notify-worker/internal/worker"
)

type stubStats struct {
	healthy bool
	recent  []worker.JobRecord
}

func (s *stubStats) Healthy() bool              { return s.healthy }
func (s *stubStats) Recent() []worker.JobRecord { return s.recent }

func TestHealthWhileAccepting(t *testing.T) {
	srv := health.NewServer(&stubStats{healthy: true}, zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Contains(t, body, "uptime")
	assert.Contains(t, body, "memory")
}

func TestHealthOnceClosing(t *testing.T) {
	srv := health.NewServer(&stubStats{healthy: false}, zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body["status"])
}

func TestMetricsReturnsRecentRecords(t *testing.T) {
	stats := &stubStats{healthy: true, recent: []worker.JobRecord{
		{JobID: "j1", Channel: "email", Success: true, ProcessingMS: 12, CompletedAt: time.Now().UTC()},
		{JobID: "j2", Channel: "sms", Success: false, Error: "gateway down", CompletedAt: time.Now().UTC()},
	}}
	srv := health.NewServer(stats, zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var records []worker.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "j1", records[0].JobID)
	assert.Equal(t, "gateway down", records[1].Error)
}

func TestMetricsEmpty(t *testing.T) {
	srv := health.NewServer(&stubStats{healthy: true}, zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
