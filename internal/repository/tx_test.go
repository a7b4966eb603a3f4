package repository

import (
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestClassifyConstraintPostgres(t *testing.T) {
	err := classifyConstraint(&pq.Error{Code: "23505", Constraint: "students_device_uuid_key"})
	assert.True(t, errors.Is(err, ErrDeviceTaken))

	err = classifyConstraint(&pq.Error{Code: "23505", Constraint: "sessions_active_course_idx"})
	assert.True(t, errors.Is(err, ErrCourseActive))

	other := &pq.Error{Code: "23503", Constraint: "attendance_student_id_fkey"}
	assert.Equal(t, error(other), classifyConstraint(other))
}

func TestClassifyConstraintSQLite(t *testing.T) {
	err := classifyConstraint(errors.New("UNIQUE constraint failed: attendance.student_id, attendance.session_id"))
	assert.True(t, errors.Is(err, ErrAttendanceExists))

	err = classifyConstraint(errors.New("UNIQUE constraint failed: students.student_id"))
	assert.True(t, errors.Is(err, ErrStudentIDTaken))

	plain := errors.New("database is locked")
	assert.Equal(t, plain, classifyConstraint(plain))
	assert.Nil(t, classifyConstraint(nil))
}
