package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Storage level conflicts surfaced to services. They wrap the driver error.
var (
	ErrStudentIDTaken   = errors.New("student id already enrolled")
	ErrDeviceTaken      = errors.New("device already bound to a student")
	ErrTokenTaken       = errors.New("session token already issued")
	ErrCourseActive     = errors.New("course already has an active session")
	ErrAttendanceExists = errors.New("attendance already recorded for student and session")
	ErrSessionInactive  = errors.New("session is not active")
)

// Postgres reports the constraint name, SQLite the offending columns.
var constraintErrors = map[string]error{
	"students_student_id_key":        ErrStudentIDTaken,
	"students_device_uuid_key":       ErrDeviceTaken,
	"sessions_session_token_key":     ErrTokenTaken,
	"sessions_active_course_idx":     ErrCourseActive,
	"attendance_student_session_key": ErrAttendanceExists,

	"students.student_id":                         ErrStudentIDTaken,
	"students.device_uuid":                        ErrDeviceTaken,
	"sessions.session_token":                      ErrTokenTaken,
	"sessions.course_code":                        ErrCourseActive,
	"attendance.student_id, attendance.session_id": ErrAttendanceExists,
}

const sqliteUniquePrefix = "UNIQUE constraint failed: "

// classifyConstraint maps unique violations onto the sentinels above.
func classifyConstraint(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code.Name() != "unique_violation" {
			return err
		}
		if sentinel, ok := constraintErrors[pqErr.Constraint]; ok {
			return fmt.Errorf("%w: %v", sentinel, err)
		}
		return err
	}
	msg := err.Error()
	if idx := strings.Index(msg, sqliteUniquePrefix); idx >= 0 {
		columns := strings.TrimSpace(msg[idx+len(sqliteUniquePrefix):])
		if sentinel, ok := constraintErrors[columns]; ok {
			return fmt.Errorf("%w: %v", sentinel, err)
		}
	}
	return err
}

// withTx runs fn inside a transaction and rolls back unless it commits.
func withTx(ctx context.Context, db *sqlx.DB, name string, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	commit := false
	defer func() {
		if !commit {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	commit = true
	return nil
}

// expectAffected turns a zero-row write into sql.ErrNoRows.
func expectAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
