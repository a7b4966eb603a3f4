package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/service"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
	"github.com/noah-isme/lan-attendance-api/pkg/response"
)

type checkInService interface {
	CheckIn(ctx context.Context, req models.CheckInRequest, transport string) (*dto.CheckInResult, error)
}

// CheckInHandler accepts student attendance claims over HTTP.
type CheckInHandler struct {
	checkIns checkInService
}

// NewCheckInHandler constructs CheckInHandler.
func NewCheckInHandler(checkIns checkInService) *CheckInHandler {
	return &CheckInHandler{checkIns: checkIns}
}

// CheckIn godoc
// @Summary Check in to the active session
// @Description A repeated claim answers 409 with the stored record in data.
// @Tags Attendance
// @Accept json
// @Produce json
// @Param payload body models.CheckInRequest true "Check-in payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /check-in [post]
func (h *CheckInHandler) CheckIn(c *gin.Context) {
	var req models.CheckInRequest
	if !bindJSON(c, &req, "invalid check-in payload") {
		return
	}
	result, err := h.checkIns.CheckIn(c.Request.Context(), req, service.TransportHTTP)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result.Outcome == dto.CheckInAlreadyCheckedIn {
		response.ErrorWithData(c, appErrors.Clone(appErrors.ErrAlreadyCheckedIn, result.Message), result)
		return
	}
	response.Created(c, result, response.Message(result.Message))
}
