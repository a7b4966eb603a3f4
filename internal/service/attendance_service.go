package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
	"github.com/noah-isme/lan-attendance-api/pkg/export"
)

type attendanceLedgerRepository interface {
	ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceDetail, error)
	Override(ctx context.Context, studentID, sessionID string, status models.AttendanceStatus, at time.Time) (*models.AttendanceRecord, repository.OverrideOutcome, error)
}

type ledgerSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	CountAttendance(ctx context.Context, sessionID string) (int, error)
}

type ledgerStudentReader interface {
	FindByStudentID(ctx context.Context, studentID string) (*models.Student, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// Export formats.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

// ExportFile is a rendered attendance sheet.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// AttendanceService exposes the attendance ledger: per-session and per-student
// views, lecturer overrides and exports.
type AttendanceService struct {
	attendance attendanceLedgerRepository
	sessions   ledgerSessionReader
	students   ledgerStudentReader
	notifier   Notifier
	validator  *validator.Validate
	logger     *zap.Logger
	renderers  map[string]datasetRenderer
	now        func() time.Time
}

// NewAttendanceService constructs the attendance service.
func NewAttendanceService(attendance attendanceLedgerRepository, sessions ledgerSessionReader, students ledgerStudentReader, notifier Notifier, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	svc := &AttendanceService{
		attendance: attendance,
		sessions:   sessions,
		students:   students,
		notifier:   notifier,
		validator:  validate,
		logger:     logger,
		renderers: map[string]datasetRenderer{
			ExportFormatCSV: export.NewCSVExporter(),
			ExportFormatPDF: export.NewPDFExporter(),
		},
		now: time.Now,
	}
	svc.validator.RegisterValidation("override_status", func(fl validator.FieldLevel) bool {
		return models.AttendanceStatus(strings.ToLower(fl.Field().String())).ValidOverride()
	})
	return svc
}

// ForSession returns a session's records in check-in order with counts.
func (s *AttendanceService) ForSession(ctx context.Context, sessionID string) (*dto.SessionAttendance, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, err := s.attendance.ListBySession(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceDetail{}
	}
	return &dto.SessionAttendance{
		Session:          *session,
		Attendance:       records,
		AttendanceCounts: models.CountAttendance(records),
	}, nil
}

// ForStudent returns a student's records newest first with counts.
func (s *AttendanceService) ForStudent(ctx context.Context, studentID string) (*dto.StudentAttendance, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	records, err := s.attendance.ListByStudent(ctx, student.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceDetail{}
	}
	return &dto.StudentAttendance{
		Student:          *student,
		Attendance:       records,
		AttendanceCounts: models.CountAttendance(records),
	}, nil
}

// Override applies a lecturer correction without any device or token checks.
// Absent removes the record; other statuses update or create it.
func (s *AttendanceService) Override(ctx context.Context, req models.OverrideRequest) (*dto.OverrideResult, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.Status = models.AttendanceStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student_id, session_id and a status of present, late, flagged or absent are required")
	}

	student, err := s.loadStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	record, outcome, err := s.attendance.Override(ctx, student.ID, session.ID, req.Status, s.now().UTC())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to override attendance")
	}

	result := &dto.OverrideResult{Outcome: string(outcome)}
	switch outcome {
	case repository.OverrideCreated:
		result.Message = "attendance created"
	case repository.OverrideUpdated:
		result.Message = "attendance updated"
	case repository.OverrideRemoved:
		result.Message = "attendance removed"
	default:
		result.Message = "no attendance to remove"
	}
	if record != nil {
		result.Attendance = detailOf(record, student, session)
	}

	s.logger.Info("attendance overridden",
		zap.String("student_id", student.StudentID),
		zap.String("session_id", session.ID),
		zap.String("status", string(req.Status)),
		zap.String("outcome", string(outcome)),
	)

	if outcome != repository.OverrideNoop {
		s.publish(ctx, "override_"+string(outcome), result.Attendance, session)
	}
	return result, nil
}

// Export renders a session's attendance sheet as csv or pdf.
func (s *AttendanceService) Export(ctx context.Context, sessionID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}

	sheet, err := s.ForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	data := export.Dataset{
		Title:    fmt.Sprintf("%s attendance", sheet.Session.CourseCode),
		Subtitle: fmt.Sprintf("Started %s, %d present, %d late, %d flagged", sheet.Session.StartTime.UTC().Format("2006-01-02 15:04 MST"), sheet.Present, sheet.Late, sheet.Flagged),
		Headers:  []string{"Student ID", "Name", "Status", "Checked In"},
		Rows:     make([][]string, 0, len(sheet.Attendance)),
	}
	for _, r := range sheet.Attendance {
		data.Rows = append(data.Rows, []string{r.StudentMatric, r.StudentName, string(r.Status), r.Timestamp.UTC().Format(time.RFC3339)})
	}

	payload, err := renderer.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return &ExportFile{
		Filename:    fmt.Sprintf("attendance_%s_%s.%s", sheet.Session.CourseCode, sheet.Session.StartTime.UTC().Format("20060102_1504"), format),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func (s *AttendanceService) publish(ctx context.Context, action string, detail *models.AttendanceDetail, session *models.Session) {
	s.notifier.Publish(TopicDashboard, EventAttendanceUpdate, dto.AttendanceUpdate{
		Action:     action,
		Attendance: detail,
		Session:    session,
	})
	count, err := s.sessions.CountAttendance(ctx, session.ID)
	if err != nil {
		s.logger.Warn("failed to count session attendance", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	s.notifier.Publish(SessionTopic(session.SessionToken), EventSessionAttendanceCount, dto.SessionAttendanceCount{
		SessionID: session.ID,
		Count:     count,
	})
}

func (s *AttendanceService) loadSession(ctx context.Context, id string) (*models.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_id is required")
	}
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *AttendanceService) loadStudent(ctx context.Context, studentID string) (*models.Student, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	student, err := s.students.FindByStudentID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}
