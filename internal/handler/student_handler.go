package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/pkg/response"
)

type studentDirectory interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error)
	Lookup(ctx context.Context, studentID string) (*models.Student, error)
	SetActive(ctx context.Context, studentID string, active bool) (*models.Student, error)
}

type studentLedger interface {
	ForStudent(ctx context.Context, studentID string) (*dto.StudentAttendance, error)
}

// StudentHandler exposes the student directory.
type StudentHandler struct {
	students studentDirectory
	ledger   studentLedger
}

// NewStudentHandler constructs StudentHandler.
func NewStudentHandler(students studentDirectory, ledger studentLedger) *StudentHandler {
	return &StudentHandler{students: students, ledger: ledger}
}

// List godoc
// @Summary List students
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by identifier or name"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
func (h *StudentHandler) List(c *gin.Context) {
	var filter models.StudentFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if active := c.Query("active"); active != "" {
		if active == "true" {
			v := true
			filter.Active = &v
		} else if active == "false" {
			v := false
			filter.Active = &v
		}
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.PageSize = size
	}

	students, pagination, err := h.students.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// Get godoc
// @Summary Get student detail
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
func (h *StudentHandler) Get(c *gin.Context) {
	student, err := h.students.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, student, nil)
}

// Attendance godoc
// @Summary Attendance history for a student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/attendance [get]
func (h *StudentHandler) Attendance(c *gin.Context) {
	history, err := h.ledger.ForStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, history, nil)
}

// Deactivate godoc
// @Summary Deactivate a student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/deactivate [post]
func (h *StudentHandler) Deactivate(c *gin.Context) {
	h.setActive(c, false)
}

// Reactivate godoc
// @Summary Reactivate a student
// @Tags Students
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student identifier"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id}/reactivate [post]
func (h *StudentHandler) Reactivate(c *gin.Context) {
	h.setActive(c, true)
}

func (h *StudentHandler) setActive(c *gin.Context, active bool) {
	student, err := h.students.SetActive(c.Request.Context(), c.Param("id"), active)
	if err != nil {
		response.Error(c, err)
		return
	}
	message := "student deactivated"
	if active {
		message = "student reactivated"
	}
	response.JSON(c, http.StatusOK, student, nil, response.Message(message))
}
