package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/middleware"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, req models.EnrollRequest) (*dto.EnrollResult, error)
	Rebind(ctx context.Context, req models.RebindRequest, actor *models.JWTClaims) (*models.Student, error)
	Status(ctx context.Context, studentID string) (*dto.EnrollmentStatus, error)
}

// EnrollmentHandler exposes device enrollment endpoints.
type EnrollmentHandler struct {
	enrollments enrollmentService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments enrollmentService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments}
}

// Enroll godoc
// @Summary Enroll a device
// @Description Binds a device to a student identifier. Repeating the same pair returns 200.
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body models.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enroll [post]
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	var req models.EnrollRequest
	if !bindJSON(c, &req, "invalid enrollment payload") {
		return
	}
	result, err := h.enrollments.Enroll(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Created {
		response.Created(c, result.Student, response.Message("enrollment successful"))
		return
	}
	response.JSON(c, http.StatusOK, result.Student, nil, response.Message("already enrolled"))
}

// Rebind godoc
// @Summary Re-enroll on a new device
// @Tags Enrollment
// @Accept json
// @Produce json
// @Param payload body models.RebindRequest true "Rebind payload"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /re-enroll [post]
func (h *EnrollmentHandler) Rebind(c *gin.Context) {
	var req models.RebindRequest
	if !bindJSON(c, &req, "invalid re-enrollment payload") {
		return
	}
	student, err := h.enrollments.Rebind(c.Request.Context(), req, middleware.Claims(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResource(c, student.StudentID)
	response.JSON(c, http.StatusOK, student, nil, response.Message("device updated"))
}

// Status godoc
// @Summary Enrollment status
// @Tags Enrollment
// @Produce json
// @Param id path string true "Student identifier"
// @Success 200 {object} response.Envelope
// @Router /enrollment/status/{id} [get]
func (h *EnrollmentHandler) Status(c *gin.Context) {
	status, err := h.enrollments.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}
