package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

type pinger interface {
	PingContext(ctx context.Context) error
}

type metricsSnapshotter interface {
	Snapshot() models.SystemMetrics
	Handler() http.Handler
}

// HealthHandler exposes liveness, readiness and metrics endpoints.
type HealthHandler struct {
	service string
	db      pinger
	metrics metricsSnapshotter
	now     func() time.Time
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(service string, db pinger, metrics metricsSnapshotter) *HealthHandler {
	return &HealthHandler{service: service, db: db, metrics: metrics, now: time.Now}
}

// Health godoc
// @Summary Liveness probe
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   h.service,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// Ready reports whether the database answers, along with runtime counters.
func (h *HealthHandler) Ready(c *gin.Context) {
	body := gin.H{"service": h.service}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			body["status"] = "unavailable"
			body["database"] = err.Error()
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	body["status"] = "ready"
	body["database"] = "ok"
	c.JSON(http.StatusOK, body)
}

// Prometheus serves the Prometheus metrics endpoint.
func (h *HealthHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
