package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

const attendanceDetailSelect = `SELECT a.id, a.student_id, a.session_id, a.timestamp, a.status,
        st.student_id AS student_matric, st.name AS student_name, se.course_code
        FROM attendance a
        JOIN students st ON st.id = a.student_id
        JOIN sessions se ON se.id = a.session_id`

// OverrideOutcome reports what an administrative override did to the ledger.
type OverrideOutcome string

const (
	OverrideCreated OverrideOutcome = "created"
	OverrideUpdated OverrideOutcome = "updated"
	OverrideRemoved OverrideOutcome = "removed"
	OverrideNoop    OverrideOutcome = "unchanged"
)

// AttendanceRepository persists attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs an AttendanceRepository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

// lockSuffix returns a row lock clause where the driver supports one. SQLite
// write transactions already hold the database lock.
func (r *AttendanceRepository) lockSuffix(mode string) string {
	if r.db.DriverName() == "postgres" {
		return " FOR " + mode
	}
	return ""
}

// FindByStudentAndSession returns the record for the pair or sql.ErrNoRows.
func (r *AttendanceRepository) FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.AttendanceRecord, error) {
	var record models.AttendanceRecord
	query := r.db.Rebind(`SELECT id, student_id, session_id, timestamp, status FROM attendance WHERE student_id = ? AND session_id = ?`)
	if err := r.db.GetContext(ctx, &record, query, studentID, sessionID); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindDetail returns one record joined with student and course context.
func (r *AttendanceRepository) FindDetail(ctx context.Context, id string) (*models.AttendanceDetail, error) {
	var detail models.AttendanceDetail
	if err := r.db.GetContext(ctx, &detail, r.db.Rebind(attendanceDetailSelect+" WHERE a.id = ?"), id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateForActiveSession inserts a check-in record and its sync task in one
// transaction. It fails with ErrSessionInactive if the session closed after
// validation and ErrAttendanceExists if the pair is already recorded.
func (r *AttendanceRepository) CreateForActiveSession(ctx context.Context, record *models.AttendanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	return withTx(ctx, r.db, "record attendance", func(tx *sqlx.Tx) error {
		var active bool
		query := tx.Rebind("SELECT is_active FROM sessions WHERE id = ?" + r.lockSuffix("SHARE"))
		if err := tx.GetContext(ctx, &active, query, record.SessionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrSessionInactive
			}
			return fmt.Errorf("lock session: %w", err)
		}
		if !active {
			return ErrSessionInactive
		}
		if err := insertAttendance(ctx, tx, record); err != nil {
			return err
		}
		return insertSyncTask(ctx, tx, models.NewSyncTask(models.SyncTableAttendance, record.ID, models.SyncOperationUpsert, record.Timestamp))
	})
}

// Override applies a lecturer correction for the pair. Absent deletes the
// record, any other status updates or creates it.
func (r *AttendanceRepository) Override(ctx context.Context, studentID, sessionID string, status models.AttendanceStatus, at time.Time) (*models.AttendanceRecord, OverrideOutcome, error) {
	var (
		result  *models.AttendanceRecord
		outcome OverrideOutcome
	)
	err := withTx(ctx, r.db, "override attendance", func(tx *sqlx.Tx) error {
		var existing models.AttendanceRecord
		query := tx.Rebind(`SELECT id, student_id, session_id, timestamp, status FROM attendance WHERE student_id = ? AND session_id = ?` + r.lockSuffix("UPDATE"))
		err := tx.GetContext(ctx, &existing, query, studentID, sessionID)
		found := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load attendance for override: %w", err)
		}

		switch {
		case status == models.AttendanceStatusAbsent && !found:
			outcome = OverrideNoop
			return nil
		case status == models.AttendanceStatusAbsent:
			if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM attendance WHERE id = ?`), existing.ID); err != nil {
				return fmt.Errorf("delete attendance: %w", err)
			}
			outcome = OverrideRemoved
			result = &existing
			return insertSyncTask(ctx, tx, models.NewSyncTask(models.SyncTableAttendance, existing.ID, models.SyncOperationDelete, at))
		case found:
			if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE attendance SET status = ? WHERE id = ?`), status, existing.ID); err != nil {
				return fmt.Errorf("update attendance status: %w", err)
			}
			existing.Status = status
			outcome = OverrideUpdated
			result = &existing
			return insertSyncTask(ctx, tx, models.NewSyncTask(models.SyncTableAttendance, existing.ID, models.SyncOperationUpsert, at))
		default:
			record := &models.AttendanceRecord{
				ID:        uuid.NewString(),
				StudentID: studentID,
				SessionID: sessionID,
				Timestamp: at,
				Status:    status,
			}
			if err := insertAttendance(ctx, tx, record); err != nil {
				return err
			}
			outcome = OverrideCreated
			result = record
			return insertSyncTask(ctx, tx, models.NewSyncTask(models.SyncTableAttendance, record.ID, models.SyncOperationUpsert, at))
		}
	})
	if err != nil {
		return nil, "", err
	}
	return result, outcome, nil
}

// ListBySession returns a session's records in check-in order.
func (r *AttendanceRepository) ListBySession(ctx context.Context, sessionID string) ([]models.AttendanceDetail, error) {
	var records []models.AttendanceDetail
	query := r.db.Rebind(attendanceDetailSelect + " WHERE a.session_id = ? ORDER BY a.timestamp ASC")
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list session attendance: %w", err)
	}
	return records, nil
}

// ListByStudent returns a student's records newest first.
func (r *AttendanceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.AttendanceDetail, error) {
	var records []models.AttendanceDetail
	query := r.db.Rebind(attendanceDetailSelect + " WHERE a.student_id = ? ORDER BY a.timestamp DESC")
	if err := r.db.SelectContext(ctx, &records, query, studentID); err != nil {
		return nil, fmt.Errorf("list student attendance: %w", err)
	}
	return records, nil
}

func insertAttendance(ctx context.Context, tx *sqlx.Tx, record *models.AttendanceRecord) error {
	const query = `INSERT INTO attendance (id, student_id, session_id, timestamp, status)
        VALUES (:id, :student_id, :session_id, :timestamp, :status)`
	if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("insert attendance: %w", classifyConstraint(err))
	}
	return nil
}
