package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/pkg/response"
)

type syncStatusReader interface {
	Status(ctx context.Context) (*dto.SyncStatus, error)
}

type auditReader interface {
	Recent(ctx context.Context, limit int) ([]models.AuditLog, error)
}

// OpsHandler exposes operational views for the lecturer: sync queue and audit trail.
type OpsHandler struct {
	sync  syncStatusReader
	audit auditReader
}

// NewOpsHandler constructs OpsHandler.
func NewOpsHandler(sync syncStatusReader, audit auditReader) *OpsHandler {
	return &OpsHandler{sync: sync, audit: audit}
}

// SyncStatus godoc
// @Summary Sync queue status
// @Tags Operations
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /sync/status [get]
func (h *OpsHandler) SyncStatus(c *gin.Context) {
	status, err := h.sync.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// AuditLogs godoc
// @Summary Recent audit entries
// @Tags Operations
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum entries"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *OpsHandler) AuditLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	logs, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil)
}
