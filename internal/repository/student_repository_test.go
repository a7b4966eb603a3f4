package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

var studentRowColumns = []string{"id", "student_id", "name", "device_uuid", "pin_hash", "is_active", "enrolled_at", "updated_at"}

func TestStudentRepositoryFindByStudentID(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, student_id, name, device_uuid, pin_hash, is_active, enrolled_at, updated_at FROM students WHERE student_id = \?`).
		WithArgs("CSC/2023/001").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow("uuid-1", "CSC/2023/001", "Ada", "dev-1", nil, true, now, now))

	student, err := repo.FindByStudentID(context.Background(), "CSC/2023/001")
	require.NoError(t, err)
	assert.Equal(t, "Ada", student.Name)
	assert.True(t, student.BoundTo("dev-1"))
	assert.False(t, student.HasPIN())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByDeviceMissing(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(`FROM students WHERE device_uuid = \?`).
		WithArgs("dev-x").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByDevice(context.Background(), "dev-x")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestStudentRepositoryList(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	now := time.Now().UTC()
	active := true
	mock.ExpectQuery(`FROM students WHERE 1=1 AND is_active = \? AND \(LOWER\(name\) LIKE \? OR LOWER\(student_id\) LIKE \?\) ORDER BY student_id ASC LIMIT 10 OFFSET 10`).
		WithArgs(true, "%ada%", "%ada%").
		WillReturnRows(sqlmock.NewRows(studentRowColumns).AddRow("uuid-1", "CSC/2023/001", "Ada", nil, nil, true, now, now))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM students WHERE 1=1 AND is_active`).
		WithArgs(true, "%ada%", "%ada%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	students, total, err := repo.List(context.Background(), models.StudentFilter{Search: "Ada", Active: &active, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Nil(t, students[0].DeviceUUID)
	assert.Equal(t, 11, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateEnqueuesSync(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").
		WithArgs(sqlmock.AnyArg(), "CSC/2023/001", "Ada", sqlmock.AnyArg(), sqlmock.AnyArg(), true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO sync_queue").
		WithArgs(sqlmock.AnyArg(), models.SyncTableStudents, sqlmock.AnyArg(), models.SyncOperationUpsert, models.SyncStatusPending, 0, nil, nil, sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	device := "dev-1"
	student := &models.Student{StudentID: "CSC/2023/001", Name: "Ada", DeviceUUID: &device, Active: true}
	require.NoError(t, repo.Create(context.Background(), student))
	assert.NotEmpty(t, student.ID)
	assert.False(t, student.EnrolledAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryCreateDuplicateDeviceRollsBack(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO students").
		WillReturnError(errors.New("UNIQUE constraint failed: students.device_uuid"))
	mock.ExpectRollback()

	device := "dev-1"
	err := repo.Create(context.Background(), &models.Student{StudentID: "S2", Name: "Other", DeviceUUID: &device, Active: true})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDeviceTaken))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryUpdateDevice(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	at := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE students SET device_uuid = \?, updated_at = \? WHERE id = \?`).
		WithArgs("dev-2", at, "uuid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO sync_queue").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.UpdateDevice(context.Background(), "uuid-1", "dev-2", at))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositorySetActiveUnknown(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE students SET is_active = \?`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.SetActive(context.Background(), "missing", false, time.Now().UTC())
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}
