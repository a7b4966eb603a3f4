package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
	"github.com/noah-isme/lan-attendance-api/pkg/qr"
)

const tokenIssueAttempts = 3

type sessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id string) (*models.Session, error)
	FindByToken(ctx context.Context, token string) (*models.Session, error)
	FindActive(ctx context.Context, courseCode string) (*models.Session, error)
	End(ctx context.Context, id string, at time.Time) error
	CountAttendance(ctx context.Context, sessionID string) (int, error)
	History(ctx context.Context, filter models.SessionHistoryFilter) ([]models.SessionSummary, error)
}

// SessionConfig tunes token issuance.
type SessionConfig struct {
	TokenBytes int
}

// SessionService owns the session registry.
type SessionService struct {
	repo      sessionRepository
	validator *validator.Validate
	logger    *zap.Logger
	notifier  Notifier
	config    SessionConfig
	now       func() time.Time
	newToken  func(n int) (string, error)
	renderQR  func(content string, size int) ([]byte, error)
}

// NewSessionService constructs a SessionService.
func NewSessionService(repo sessionRepository, notifier Notifier, validate *validator.Validate, logger *zap.Logger, config SessionConfig) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if config.TokenBytes < 16 {
		config.TokenBytes = 32
	}
	return &SessionService{
		repo:      repo,
		validator: validate,
		logger:    logger,
		notifier:  notifier,
		config:    config,
		now:       time.Now,
		newToken:  generateSessionToken,
		renderQR:  qr.Render,
	}
}

// Start opens a session for the course with a fresh unguessable token.
func (s *SessionService) Start(ctx context.Context, req models.StartSessionRequest) (*models.Session, error) {
	req.CourseCode = strings.TrimSpace(req.CourseCode)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "course_code is required")
	}

	if _, err := s.repo.FindActive(ctx, req.CourseCode); err == nil {
		return nil, appErrors.Clone(appErrors.ErrSessionAlreadyActive, "")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check active session")
	}

	var lastErr error
	for attempt := 0; attempt < tokenIssueAttempts; attempt++ {
		token, err := s.newToken(s.config.TokenBytes)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate session token")
		}
		session := &models.Session{
			CourseCode:   req.CourseCode,
			SessionToken: token,
			StartTime:    s.now().UTC(),
			Active:       true,
		}
		err = s.repo.Create(ctx, session)
		switch {
		case err == nil:
			s.logger.Info("session started", zap.String("session_id", session.ID), zap.String("course_code", session.CourseCode))
			s.notifier.Publish(TopicBroadcast, EventSessionUpdate, dto.SessionUpdate{Action: dto.SessionActionStarted, Session: session})
			return session, nil
		case errors.Is(err, repository.ErrCourseActive):
			return nil, appErrors.Clone(appErrors.ErrSessionAlreadyActive, "")
		case errors.Is(err, repository.ErrTokenTaken):
			lastErr = err
			continue
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to start session")
		}
	}
	return nil, appErrors.Wrap(lastErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue a unique session token")
}

// End closes the session selected by id, or the active session of a course.
func (s *SessionService) End(ctx context.Context, req models.EndSessionRequest) (*models.Session, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	req.CourseCode = strings.TrimSpace(req.CourseCode)
	if req.SessionID == "" && req.CourseCode == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session_id or course_code is required")
	}

	var (
		session *models.Session
		err     error
	)
	if req.SessionID != "" {
		session, err = s.repo.FindByID(ctx, req.SessionID)
	} else {
		session, err = s.repo.FindActive(ctx, req.CourseCode)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if !session.Active {
		return nil, appErrors.Clone(appErrors.ErrAlreadyEnded, "")
	}

	at := s.now().UTC()
	if err := s.repo.End(ctx, session.ID, at); err != nil {
		if errors.Is(err, repository.ErrSessionInactive) {
			return nil, appErrors.Clone(appErrors.ErrAlreadyEnded, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to end session")
	}
	session.Active = false
	session.EndTime = &at

	s.logger.Info("session ended", zap.String("session_id", session.ID), zap.String("course_code", session.CourseCode))
	s.notifier.Publish(TopicBroadcast, EventSessionUpdate, dto.SessionUpdate{Action: dto.SessionActionEnded, Session: session})
	return session, nil
}

// Active returns the open session for the course, or the latest open session
// when courseCode is empty. No open session is not an error.
func (s *SessionService) Active(ctx context.Context, courseCode string) (*dto.ActiveSession, error) {
	session, err := s.repo.FindActive(ctx, strings.TrimSpace(courseCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &dto.ActiveSession{Active: false}, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	count, err := s.repo.CountAttendance(ctx, session.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count attendance")
	}
	return &dto.ActiveSession{Active: true, Session: &models.SessionSummary{Session: *session, AttendanceCount: count}}, nil
}

// QR renders the active session token as a QR image.
func (s *SessionService) QR(ctx context.Context, courseCode string) (*dto.SessionQR, error) {
	session, err := s.repo.FindActive(ctx, strings.TrimSpace(courseCode))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no active session")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load active session")
	}
	png, err := s.renderQR(session.SessionToken, qr.DefaultSize)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render qr code")
	}
	return &dto.SessionQR{
		SessionToken: session.SessionToken,
		CourseCode:   session.CourseCode,
		QRCode:       qr.DataURI(png),
		PNG:          png,
	}, nil
}

// History lists past and current sessions newest first.
func (s *SessionService) History(ctx context.Context, filter models.SessionHistoryFilter) ([]models.SessionSummary, error) {
	filter.CourseCode = strings.TrimSpace(filter.CourseCode)
	sessions, err := s.repo.History(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session history")
	}
	return sessions, nil
}

// generateSessionToken returns n random bytes encoded URL-safe without padding.
func generateSessionToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
