package service

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsSnapshotAggregates(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodPost, "/api/check-in", http.StatusCreated, 20*time.Millisecond)
	m.ObserveHTTPRequest(http.MethodGet, "/api/session/active", http.StatusOK, 10*time.Millisecond)
	m.ObserveCheckIn("http", "recorded", true)
	m.ObserveCheckIn("socket", "DEVICE_MISMATCH", false)
	m.ObserveSync(true)
	m.ObserveSync(false)
	m.SocketConnected(2)
	m.SocketConnected(-1)

	snap := m.Snapshot()
	assert.Equal(t, uint64(2), snap.RequestsTotal)
	assert.InDelta(t, 15.0, snap.AverageRequestDurationMs, 0.001)
	assert.Equal(t, uint64(1), snap.CheckInsAccepted)
	assert.Equal(t, uint64(1), snap.CheckInsRejected)
	assert.Equal(t, uint64(1), snap.SyncSynced)
	assert.Equal(t, uint64(1), snap.SyncFailed)
	assert.Equal(t, int64(1), snap.SocketClients)
}

func TestMetricsHandlerExposesCollectors(t *testing.T) {
	m := NewMetricsService()
	m.ObserveCheckIn("http", "recorded", true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `attendance_check_ins_total{outcome="recorded",transport="http"} 1`))
}

func TestNilMetricsServiceIsSafe(t *testing.T) {
	var m *MetricsService
	m.ObserveCheckIn("http", "recorded", true)
	m.ObserveSync(true)
	m.SocketConnected(1)
	assert.Zero(t, m.Snapshot().RequestsTotal)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
