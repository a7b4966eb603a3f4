package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

var (
	attendanceRowColumns = []string{"id", "student_id", "session_id", "timestamp", "status"}
	detailRowColumns     = []string{"id", "student_id", "session_id", "timestamp", "status", "student_matric", "student_name", "course_code"}
)

func TestAttendanceRepositoryCreateForActiveSession(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT is_active FROM sessions WHERE id = \?`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectExec("INSERT INTO attendance").
		WithArgs(sqlmock.AnyArg(), "stu-1", "sess-1", now, models.AttendanceStatusPresent).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sync_queue").
		WithArgs(sqlmock.AnyArg(), models.SyncTableAttendance, sqlmock.AnyArg(), models.SyncOperationUpsert, models.SyncStatusPending, 0, nil, nil, now, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record := &models.AttendanceRecord{StudentID: "stu-1", SessionID: "sess-1", Timestamp: now, Status: models.AttendanceStatusPresent}
	require.NoError(t, repo.CreateForActiveSession(context.Background(), record))
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateClosedSession(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT is_active FROM sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(false))
	mock.ExpectRollback()

	err := repo.CreateForActiveSession(context.Background(), &models.AttendanceRecord{StudentID: "stu-1", SessionID: "sess-1", Timestamp: time.Now().UTC(), Status: models.AttendanceStatusLate})
	assert.ErrorIs(t, err, ErrSessionInactive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryCreateDuplicatePair(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT is_active FROM sessions`).
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(true))
	mock.ExpectExec("INSERT INTO attendance").
		WillReturnError(errors.New("UNIQUE constraint failed: attendance.student_id, attendance.session_id"))
	mock.ExpectRollback()

	err := repo.CreateForActiveSession(context.Background(), &models.AttendanceRecord{StudentID: "stu-1", SessionID: "sess-1", Timestamp: time.Now().UTC(), Status: models.AttendanceStatusPresent})
	assert.ErrorIs(t, err, ErrAttendanceExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryOverrideAbsentRemovesRecord(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	ts := time.Now().UTC().Add(-time.Minute)
	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, student_id, session_id, timestamp, status FROM attendance WHERE student_id = \? AND session_id = \?`).
		WithArgs("stu-1", "sess-1").
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns).AddRow("att-1", "stu-1", "sess-1", ts, "present"))
	mock.ExpectExec(`DELETE FROM attendance WHERE id = \?`).
		WithArgs("att-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sync_queue").
		WithArgs(sqlmock.AnyArg(), models.SyncTableAttendance, "att-1", models.SyncOperationDelete, models.SyncStatusPending, 0, nil, nil, at, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record, outcome, err := repo.Override(context.Background(), "stu-1", "sess-1", models.AttendanceStatusAbsent, at)
	require.NoError(t, err)
	assert.Equal(t, OverrideRemoved, outcome)
	assert.Equal(t, "att-1", record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryOverrideAbsentWithoutRecord(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM attendance WHERE student_id = \? AND session_id = \?`).
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns))
	mock.ExpectCommit()

	record, outcome, err := repo.Override(context.Background(), "stu-1", "sess-1", models.AttendanceStatusAbsent, time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, record)
	assert.Equal(t, OverrideNoop, outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryOverrideUpdatesStatus(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM attendance WHERE student_id = \? AND session_id = \?`).
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns).AddRow("att-1", "stu-1", "sess-1", time.Now().UTC(), "late"))
	mock.ExpectExec(`UPDATE attendance SET status = \? WHERE id = \?`).
		WithArgs(models.AttendanceStatusFlagged, "att-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sync_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record, outcome, err := repo.Override(context.Background(), "stu-1", "sess-1", models.AttendanceStatusFlagged, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, OverrideUpdated, outcome)
	assert.Equal(t, models.AttendanceStatusFlagged, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryOverrideCreatesRecord(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM attendance WHERE student_id = \? AND session_id = \?`).
		WillReturnRows(sqlmock.NewRows(attendanceRowColumns))
	mock.ExpectExec("INSERT INTO attendance").
		WithArgs(sqlmock.AnyArg(), "stu-1", "sess-1", at, models.AttendanceStatusPresent).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sync_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record, outcome, err := repo.Override(context.Background(), "stu-1", "sess-1", models.AttendanceStatusPresent, at)
	require.NoError(t, err)
	assert.Equal(t, OverrideCreated, outcome)
	assert.Equal(t, at, record.Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListBySession(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`JOIN sessions se ON se.id = a.session_id WHERE a.session_id = \? ORDER BY a.timestamp ASC`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows(detailRowColumns).
			AddRow("att-1", "stu-1", "sess-1", now, "present", "CSC/2023/001", "Ada", "CSC301").
			AddRow("att-2", "stu-2", "sess-1", now.Add(time.Minute), "late", "CSC/2023/002", "Bola", "CSC301"))

	records, err := repo.ListBySession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "CSC/2023/001", records[0].StudentMatric)
	counts := models.CountAttendance(records)
	assert.Equal(t, 1, counts.Present)
	assert.Equal(t, 1, counts.Late)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryListByStudentNewestFirst(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	mock.ExpectQuery(`WHERE a.student_id = \? ORDER BY a.timestamp DESC`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows(detailRowColumns))

	records, err := repo.ListByStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}
