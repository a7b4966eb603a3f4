package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	checkIns        *prometheus.CounterVec
	syncTasks       *prometheus.CounterVec
	socketClients   prometheus.Gauge

	requestCount         uint64
	requestDurationTotal uint64
	checkInAccepted      uint64
	checkInRejected      uint64
	syncSynced           uint64
	syncFailed           uint64
	socketClientCount    int64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	checkIns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_check_ins_total",
		Help: "Check-in claims by transport and outcome code",
	}, []string{"transport", "outcome"})

	syncTasks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "attendance_sync_tasks_total",
		Help: "Sync tasks processed by result",
	}, []string{"result"})

	socketClients := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "attendance_socket_clients",
		Help: "Connected push channel clients",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, checkIns, syncTasks, socketClients, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		checkIns:        checkIns,
		syncTasks:       syncTasks,
		socketClients:   socketClients,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
}

// ObserveCheckIn counts a check-in by transport and outcome code.
func (m *MetricsService) ObserveCheckIn(transport, outcome string, accepted bool) {
	if m == nil {
		return
	}
	m.checkIns.WithLabelValues(transport, outcome).Inc()
	if accepted {
		atomic.AddUint64(&m.checkInAccepted, 1)
	} else {
		atomic.AddUint64(&m.checkInRejected, 1)
	}
}

// ObserveSync counts a processed sync task.
func (m *MetricsService) ObserveSync(synced bool) {
	if m == nil {
		return
	}
	if synced {
		m.syncTasks.WithLabelValues(string(models.SyncStatusSynced)).Inc()
		atomic.AddUint64(&m.syncSynced, 1)
		return
	}
	m.syncTasks.WithLabelValues(string(models.SyncStatusFailed)).Inc()
	atomic.AddUint64(&m.syncFailed, 1)
}

// SocketConnected adjusts the connected client gauge by delta.
func (m *MetricsService) SocketConnected(delta int) {
	if m == nil {
		return
	}
	current := atomic.AddInt64(&m.socketClientCount, int64(delta))
	m.socketClients.Set(float64(current))
}

// Snapshot returns aggregated metrics suitable for the readiness endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CheckInsAccepted:         atomic.LoadUint64(&m.checkInAccepted),
		CheckInsRejected:         atomic.LoadUint64(&m.checkInRejected),
		SyncSynced:               atomic.LoadUint64(&m.syncSynced),
		SyncFailed:               atomic.LoadUint64(&m.syncFailed),
		SocketClients:            atomic.LoadInt64(&m.socketClientCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
