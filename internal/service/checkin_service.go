package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
)

// Transports reaching the check-in pipeline.
const (
	TransportHTTP   = "http"
	TransportSocket = "socket"
)

// AttendanceActionCheckIn labels dashboard updates produced by the pipeline.
const AttendanceActionCheckIn = "check_in"

type checkInSessionReader interface {
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	CountAttendance(ctx context.Context, sessionID string) (int, error)
}

type checkInStudentReader interface {
	FindByStudentID(ctx context.Context, studentID string) (*models.Student, error)
}

type checkInAttendanceStore interface {
	FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.AttendanceRecord, error)
	CreateForActiveSession(ctx context.Context, record *models.AttendanceRecord) error
}

type checkInObserver interface {
	ObserveCheckIn(transport, outcome string, accepted bool)
}

// CheckInConfig tunes status computation.
type CheckInConfig struct {
	LateThreshold time.Duration
}

// CheckInService runs the ordered check-in validation pipeline shared by every transport.
type CheckInService struct {
	sessions   checkInSessionReader
	students   checkInStudentReader
	attendance checkInAttendanceStore
	notifier   Notifier
	metrics    checkInObserver
	validator  *validator.Validate
	logger     *zap.Logger
	config     CheckInConfig
	now        func() time.Time
}

// NewCheckInService constructs a CheckInService.
func NewCheckInService(sessions checkInSessionReader, students checkInStudentReader, attendance checkInAttendanceStore, notifier Notifier, metrics checkInObserver, validate *validator.Validate, logger *zap.Logger, config CheckInConfig) *CheckInService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if config.LateThreshold < 0 {
		config.LateThreshold = 15 * time.Minute
	}
	return &CheckInService{
		sessions:   sessions,
		students:   students,
		attendance: attendance,
		notifier:   notifier,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// CheckIn validates a claim and records it. A repeated claim for the same
// session is not an error: the result carries the stored record with
// CheckInAlreadyCheckedIn.
func (s *CheckInService) CheckIn(ctx context.Context, req models.CheckInRequest, transport string) (*dto.CheckInResult, error) {
	result, err := s.checkIn(ctx, req)
	s.observe(transport, result, err)
	return result, err
}

func (s *CheckInService) checkIn(ctx context.Context, req models.CheckInRequest) (*dto.CheckInResult, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.DeviceUUID = strings.TrimSpace(req.DeviceUUID)
	req.SessionToken = strings.TrimSpace(req.SessionToken)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student_id, device_uuid, and session_token are required")
	}

	session, err := s.sessions.FindByToken(ctx, req.SessionToken)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve session")
	}
	if !session.Active {
		return nil, appErrors.Clone(appErrors.ErrSessionClosed, "")
	}

	student, err := s.students.FindByStudentID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve student")
	}
	if !student.BoundTo(req.DeviceUUID) {
		s.logger.Warn("check-in device mismatch",
			zap.String("student_id", student.StudentID),
			zap.String("session_id", session.ID),
		)
		return nil, appErrors.Clone(appErrors.ErrDeviceMismatch, "")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrAccountDeactivated, "")
	}

	existing, err := s.attendance.FindByStudentAndSession(ctx, student.ID, session.ID)
	if err == nil {
		return s.alreadyCheckedIn(existing, student, session), nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing attendance")
	}

	now := s.now().UTC()
	record := &models.AttendanceRecord{
		ID:        uuid.NewString(),
		StudentID: student.ID,
		SessionID: session.ID,
		Timestamp: now,
		Status:    s.statusAt(session, now),
	}
	if err := s.attendance.CreateForActiveSession(ctx, record); err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionInactive):
			return nil, appErrors.Clone(appErrors.ErrSessionClosed, "")
		case errors.Is(err, repository.ErrAttendanceExists):
			winner, findErr := s.attendance.FindByStudentAndSession(ctx, student.ID, session.ID)
			if findErr != nil {
				return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance")
			}
			return s.alreadyCheckedIn(winner, student, session), nil
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
		}
	}

	detail := detailOf(record, student, session)
	s.logger.Info("attendance recorded",
		zap.String("student_id", student.StudentID),
		zap.String("session_id", session.ID),
		zap.String("status", string(record.Status)),
	)
	s.publish(ctx, detail, session)

	return &dto.CheckInResult{
		Outcome:    dto.CheckInRecorded,
		Message:    "attendance marked as " + string(record.Status),
		Attendance: detail,
		Session:    session,
	}, nil
}

// statusAt marks a claim late once strictly more than the threshold has passed since start.
func (s *CheckInService) statusAt(session *models.Session, at time.Time) models.AttendanceStatus {
	if at.Sub(session.StartTime) > s.config.LateThreshold {
		return models.AttendanceStatusLate
	}
	return models.AttendanceStatusPresent
}

func (s *CheckInService) alreadyCheckedIn(record *models.AttendanceRecord, student *models.Student, session *models.Session) *dto.CheckInResult {
	return &dto.CheckInResult{
		Outcome:    dto.CheckInAlreadyCheckedIn,
		Message:    appErrors.ErrAlreadyCheckedIn.Message,
		Attendance: detailOf(record, student, session),
		Session:    session,
	}
}

// publish runs after commit. Failures only cost observers an update.
func (s *CheckInService) publish(ctx context.Context, detail *models.AttendanceDetail, session *models.Session) {
	s.notifier.Publish(TopicDashboard, EventAttendanceUpdate, dto.AttendanceUpdate{
		Action:     AttendanceActionCheckIn,
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

func (s *CheckInService) observe(transport string, result *dto.CheckInResult, err error) {
	if s.metrics == nil {
		return
	}
	if err != nil {
		s.metrics.ObserveCheckIn(transport, appErrors.FromError(err).Code, false)
		return
	}
	s.metrics.ObserveCheckIn(transport, string(result.Outcome), result.Outcome == dto.CheckInRecorded)
}

func detailOf(record *models.AttendanceRecord, student *models.Student, session *models.Session) *models.AttendanceDetail {
	return &models.AttendanceDetail{
		AttendanceRecord: *record,
		StudentMatric:    student.StudentID,
		StudentName:      student.Name,
		CourseCode:       session.CourseCode,
	}
}
