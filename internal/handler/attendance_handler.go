package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/middleware"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/repository"
	"github.com/noah-isme/lan-attendance-api/internal/service"
	"github.com/noah-isme/lan-attendance-api/pkg/response"
)

type attendanceService interface {
	ForSession(ctx context.Context, sessionID string) (*dto.SessionAttendance, error)
	Override(ctx context.Context, req models.OverrideRequest) (*dto.OverrideResult, error)
	Export(ctx context.Context, sessionID, format string) (*service.ExportFile, error)
}

// AttendanceHandler exposes the attendance ledger to lecturers.
type AttendanceHandler struct {
	attendance attendanceService
}

// NewAttendanceHandler constructs AttendanceHandler.
func NewAttendanceHandler(attendance attendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance}
}

// ForSession godoc
// @Summary Attendance for a session
// @Tags Attendance
// @Produce json
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/{id} [get]
func (h *AttendanceHandler) ForSession(c *gin.Context) {
	sheet, err := h.attendance.ForSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sheet, nil)
}

// Override godoc
// @Summary Override a student's attendance
// @Description Creating a record answers 201; updates, removals and no-ops answer 200.
// @Tags Attendance
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.OverrideRequest true "Override payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/override [post]
func (h *AttendanceHandler) Override(c *gin.Context) {
	var req models.OverrideRequest
	if !bindJSON(c, &req, "invalid override payload") {
		return
	}
	result, err := h.attendance.Override(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, req.SessionID+"/"+req.StudentID)
	if result.Outcome == string(repository.OverrideCreated) {
		response.Created(c, result, response.Message(result.Message))
		return
	}
	response.JSON(c, http.StatusOK, result, nil, response.Message(result.Message))
}

// Export godoc
// @Summary Export session attendance
// @Tags Attendance
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param id path string true "Session ID"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /attendance/{id}/export [get]
func (h *AttendanceHandler) Export(c *gin.Context) {
	file, err := h.attendance.Export(c.Request.Context(), c.Param("id"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}
