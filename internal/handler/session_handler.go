package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/middleware"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
	"github.com/noah-isme/lan-attendance-api/pkg/response"
)

type sessionService interface {
	Start(ctx context.Context, req models.StartSessionRequest) (*models.Session, error)
	End(ctx context.Context, req models.EndSessionRequest) (*models.Session, error)
	Active(ctx context.Context, courseCode string) (*dto.ActiveSession, error)
	QR(ctx context.Context, courseCode string) (*dto.SessionQR, error)
	History(ctx context.Context, filter models.SessionHistoryFilter) ([]models.SessionSummary, error)
}

// SessionHandler exposes the lecturer session lifecycle.
type SessionHandler struct {
	sessions sessionService
}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler(sessions sessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Start godoc
// @Summary Start a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.StartSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /session/start [post]
func (h *SessionHandler) Start(c *gin.Context) {
	var req models.StartSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.sessions.Start(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, session.ID)
	response.Created(c, session, response.Message("session started"))
}

// End godoc
// @Summary End a session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.EndSessionRequest true "Session id or course code"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /session/end [post]
func (h *SessionHandler) End(c *gin.Context) {
	var req models.EndSessionRequest
	if !bindJSON(c, &req, "invalid session payload") {
		return
	}
	session, err := h.sessions.End(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, session.ID)
	response.JSON(c, http.StatusOK, session, nil, response.Message("session ended"))
}

// Active godoc
// @Summary Active session
// @Tags Sessions
// @Produce json
// @Param course_code query string false "Course code"
// @Success 200 {object} response.Envelope
// @Router /session/active [get]
func (h *SessionHandler) Active(c *gin.Context) {
	active, err := h.sessions.Active(c.Request.Context(), strings.TrimSpace(c.Query("course_code")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, active, nil)
}

// QR godoc
// @Summary Active session QR code
// @Tags Sessions
// @Produce json
// @Produce png
// @Security BearerAuth
// @Param course_code query string false "Course code"
// @Param format query string false "json (default) or png"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /session/qr [get]
func (h *SessionHandler) QR(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "png" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be json or png"))
		return
	}
	qr, err := h.sessions.QR(c.Request.Context(), strings.TrimSpace(c.Query("course_code")))
	if err != nil {
		response.Error(c, err)
		return
	}
	if format == "png" {
		c.Header("Cache-Control", "no-store")
		c.Data(http.StatusOK, "image/png", qr.PNG)
		return
	}
	response.JSON(c, http.StatusOK, qr, nil)
}

// History godoc
// @Summary Session history
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param course_code query string false "Course code"
// @Param limit query int false "Maximum sessions"
// @Success 200 {object} response.Envelope
// @Router /sessions/history [get]
func (h *SessionHandler) History(c *gin.Context) {
	filter := models.SessionHistoryFilter{CourseCode: strings.TrimSpace(c.Query("course_code"))}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}
	sessions, err := h.sessions.History(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}
