package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

const sessionColumns = `id, course_code, session_token, start_time, end_time, is_active`

// SessionRepository manages attendance sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs a SessionRepository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts an active session. The partial unique index on active
// course codes turns a concurrent start into ErrCourseActive.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartTime.IsZero() {
		session.StartTime = time.Now().UTC()
	}
	const query = `INSERT INTO sessions (id, course_code, session_token, start_time, end_time, is_active)
        VALUES (:id, :course_code, :session_token, :start_time, :end_time, :is_active)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", classifyConstraint(err))
	}
	return nil
}

// FindByID fetches a session by primary key.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	var session models.Session
	query := r.db.Rebind("SELECT " + sessionColumns + " FROM sessions WHERE id = ?")
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindByToken resolves the session a check-in token belongs to.
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*models.Session, error) {
	var session models.Session
	query := r.db.Rebind("SELECT " + sessionColumns + " FROM sessions WHERE session_token = ?")
	if err := r.db.GetContext(ctx, &session, query, token); err != nil {
		return nil, err
	}
	return &session, nil
}

// FindActive returns the active session for courseCode, or the most recently
// started active session when courseCode is empty.
func (r *SessionRepository) FindActive(ctx context.Context, courseCode string) (*models.Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions WHERE is_active = ?"
	args := []interface{}{true}
	if courseCode != "" {
		query += " AND course_code = ?"
		args = append(args, courseCode)
	}
	query += " ORDER BY start_time DESC LIMIT 1"

	var session models.Session
	if err := r.db.GetContext(ctx, &session, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	return &session, nil
}

// End closes an active session. Returns ErrSessionInactive when it was already closed.
func (r *SessionRepository) End(ctx context.Context, id string, at time.Time) error {
	query := r.db.Rebind(`UPDATE sessions SET is_active = ?, end_time = ? WHERE id = ? AND is_active = ?`)
	res, err := r.db.ExecContext(ctx, query, false, at, id, true)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session rows affected: %w", err)
	}
	if n == 0 {
		return ErrSessionInactive
	}
	return nil
}

// CountAttendance returns the number of records stored for a session.
func (r *SessionRepository) CountAttendance(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, r.db.Rebind("SELECT COUNT(*) FROM attendance WHERE session_id = ?"), sessionID); err != nil {
		return 0, fmt.Errorf("count session attendance: %w", err)
	}
	return count, nil
}

// History lists sessions newest first with their attendance counts.
func (r *SessionRepository) History(ctx context.Context, filter models.SessionHistoryFilter) ([]models.SessionSummary, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	query := `SELECT s.id, s.course_code, s.session_token, s.start_time, s.end_time, s.is_active,
        (SELECT COUNT(*) FROM attendance a WHERE a.session_id = s.id) AS attendance_count
        FROM sessions s`
	args := []interface{}{}
	if filter.CourseCode != "" {
		query += " WHERE s.course_code = ?"
		args = append(args, filter.CourseCode)
	}
	query += fmt.Sprintf(" ORDER BY s.start_time DESC LIMIT %d", limit)

	var sessions []models.SessionSummary
	if err := r.db.SelectContext(ctx, &sessions, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list session history: %w", err)
	}
	return sessions, nil
}
