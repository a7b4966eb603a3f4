package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
)

type mockStudentRepo struct {
	byMatric   map[string]*models.Student
	createErr  error
	updateErr  error
	created    []*models.Student
	rebinds    map[string]string
	activeSets map[string]bool
}

func newMockStudentRepo(students ...*models.Student) *mockStudentRepo {
	repo := &mockStudentRepo{
		byMatric:   make(map[string]*models.Student),
		rebinds:    make(map[string]string),
		activeSets: make(map[string]bool),
	}
	for _, s := range students {
		repo.byMatric[s.StudentID] = s
	}
	return repo
}

func (m *mockStudentRepo) FindByStudentID(ctx context.Context, studentID string) (*models.Student, error) {
	if s, ok := m.byMatric[studentID]; ok {
		clone := *s
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) FindByDevice(ctx context.Context, device string) (*models.Student, error) {
	for _, s := range m.byMatric {
		if s.BoundTo(device) {
			clone := *s
			return &clone, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	out := make([]models.Student, 0, len(m.byMatric))
	for _, s := range m.byMatric {
		out = append(out, *s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.createErr != nil {
		return m.createErr
	}
	student.ID = "uuid-" + student.StudentID
	m.created = append(m.created, student)
	m.byMatric[student.StudentID] = student
	return nil
}

func (m *mockStudentRepo) UpdateDevice(ctx context.Context, id, device string, at time.Time) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.rebinds[id] = device
	for _, s := range m.byMatric {
		if s.ID == id {
			d := device
			s.DeviceUUID = &d
		}
	}
	return nil
}

func (m *mockStudentRepo) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	m.activeSets[id] = active
	for _, s := range m.byMatric {
		if s.ID == id {
			s.Active = active
		}
	}
	return nil
}

func strPtr(s string) *string { return &s }

func enrolledStudent(matric, device string) *models.Student {
	return &models.Student{ID: "uuid-" + matric, StudentID: matric, Name: "Ada " + matric, DeviceUUID: strPtr(device), Active: true}
}

func newEnrollmentService(repo *mockStudentRepo) *EnrollmentService {
	return NewEnrollmentService(repo, validator.New(), zap.NewNop())
}

func TestEnrollCreatesStudent(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newEnrollmentService(repo)

	res, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: " CSC/2023/001 ", Name: "Ada", DeviceUUID: "dev-1"})
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, "CSC/2023/001", res.Student.StudentID)
	assert.True(t, res.Student.BoundTo("dev-1"))
	assert.True(t, res.Student.Active)
	assert.Nil(t, res.Student.PinHash)
	require.Len(t, repo.created, 1)
}

func TestEnrollHashesPIN(t *testing.T) {
	repo := newMockStudentRepo()
	svc := newEnrollmentService(repo)

	res, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "S1", Name: "Ada", DeviceUUID: "dev-1", PIN: "4321"})
	require.NoError(t, err)
	require.True(t, res.Student.HasPIN())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(*res.Student.PinHash), []byte("4321")))
}

func TestEnrollValidation(t *testing.T) {
	svc := newEnrollmentService(newMockStudentRepo())

	_, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "S1", Name: "  ", DeviceUUID: "dev-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestEnrollSameDeviceIsIdempotent(t *testing.T) {
	repo := newMockStudentRepo(enrolledStudent("S1", "dev-1"))
	svc := newEnrollmentService(repo)

	res, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "S1", Name: "Ada", DeviceUUID: "dev-1"})
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Empty(t, repo.created)
}

func TestEnrollDifferentDeviceConflicts(t *testing.T) {
	repo := newMockStudentRepo(enrolledStudent("S1", "dev-1"))
	svc := newEnrollmentService(repo)

	_, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "S1", Name: "Ada", DeviceUUID: "dev-2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDeviceConflict))
	assert.Equal(t, 409, appErrors.FromError(err).Status)
}

func TestEnrollDeviceOwnedByAnotherStudent(t *testing.T) {
	repo := newMockStudentRepo(enrolledStudent("S1", "dev-1"))
	svc := newEnrollmentService(repo)

	_, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "S2", Name: "Bob", DeviceUUID: "dev-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateDevice))
}

func TestEnrollMapsRepositoryConstraintErrors(t *testing.T) {
	repo := newMockStudentRepo()
	repo.createErr = repository.ErrDeviceTaken
	svc := newEnrollmentService(repo)

	_, err := svc.Enroll(context.Background(), models.EnrollRequest{StudentID: "S2", Name: "Bob", DeviceUUID: "dev-9"})
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateDevice))
}

func TestRebindRequiresPIN(t *testing.T) {
	student := enrolledStudent("S1", "dev-1")
	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	require.NoError(t, err)
	student.PinHash = strPtr(string(hash))
	repo := newMockStudentRepo(student)
	svc := newEnrollmentService(repo)

	_, err = svc.Rebind(context.Background(), models.RebindRequest{StudentID: "S1", NewDeviceUUID: "dev-2", PIN: "0000"}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	updated, err := svc.Rebind(context.Background(), models.RebindRequest{StudentID: "S1", NewDeviceUUID: "dev-2", PIN: "1234"}, nil)
	require.NoError(t, err)
	assert.True(t, updated.BoundTo("dev-2"))
	assert.Equal(t, "dev-2", repo.rebinds[student.ID])
}

func TestRebindByLecturerSkipsPIN(t *testing.T) {
	student := enrolledStudent("S1", "dev-1")
	student.PinHash = strPtr("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinva")
	repo := newMockStudentRepo(student)
	svc := newEnrollmentService(repo)

	actor := &models.JWTClaims{UserID: models.LecturerSubject, Role: models.RoleLecturer}
	updated, err := svc.Rebind(context.Background(), models.RebindRequest{StudentID: "S1", NewDeviceUUID: "dev-2"}, actor)
	require.NoError(t, err)
	assert.True(t, updated.BoundTo("dev-2"))
}

func TestRebindRejectsDeviceOfAnotherStudent(t *testing.T) {
	repo := newMockStudentRepo(enrolledStudent("S1", "dev-1"), enrolledStudent("S2", "dev-2"))
	svc := newEnrollmentService(repo)

	_, err := svc.Rebind(context.Background(), models.RebindRequest{StudentID: "S1", NewDeviceUUID: "dev-2"}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicateDevice))
	assert.Empty(t, repo.rebinds)
}

func TestRebindUnknownStudent(t *testing.T) {
	svc := newEnrollmentService(newMockStudentRepo())

	_, err := svc.Rebind(context.Background(), models.RebindRequest{StudentID: "nope", NewDeviceUUID: "dev-2"}, nil)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestStatusReportsUnknownAsNotEnrolled(t *testing.T) {
	svc := newEnrollmentService(newMockStudentRepo(enrolledStudent("S1", "dev-1")))

	status, err := svc.Status(context.Background(), "S9")
	require.NoError(t, err)
	assert.False(t, status.Enrolled)

	status, err = svc.Status(context.Background(), "S1")
	require.NoError(t, err)
	assert.True(t, status.Enrolled)
	assert.Equal(t, "S1", status.Student.StudentID)
}

func TestSetActiveTogglesFlag(t *testing.T) {
	repo := newMockStudentRepo(enrolledStudent("S1", "dev-1"))
	svc := newEnrollmentService(repo)

	student, err := svc.SetActive(context.Background(), "S1", false)
	require.NoError(t, err)
	assert.False(t, student.Active)
	assert.Equal(t, false, repo.activeSets["uuid-S1"])
}

func TestListDefaultsPagination(t *testing.T) {
	svc := newEnrollmentService(newMockStudentRepo(enrolledStudent("S1", "dev-1")))

	students, pagination, err := svc.List(context.Background(), models.StudentFilter{})
	require.NoError(t, err)
	assert.Len(t, students, 1)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 50, pagination.PageSize)
	assert.Equal(t, 1, pagination.TotalCount)
}
