package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/lan-attendance-api/internal/dto"
	"github.com/noah-isme/lan-attendance-api/internal/models"
	"github.com/noah-isme/lan-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/lan-attendance-api/pkg/errors"
)

type studentRepository interface {
	FindByStudentID(ctx context.Context, studentID string) (*models.Student, error)
	FindByDevice(ctx context.Context, device string) (*models.Student, error)
	List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error)
	Create(ctx context.Context, student *models.Student) error
	UpdateDevice(ctx context.Context, id, device string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
}

// EnrollmentService owns the identity store: enrollment, device rebinding and lookups.
type EnrollmentService struct {
	repo      studentRepository
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEnrollmentService constructs an EnrollmentService.
func NewEnrollmentService(repo studentRepository, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// Enroll binds a device to a student identifier. Re-enrolling the same pair is
// idempotent and reports Created=false.
func (s *EnrollmentService) Enroll(ctx context.Context, req models.EnrollRequest) (*dto.EnrollResult, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.Name = strings.TrimSpace(req.Name)
	req.DeviceUUID = strings.TrimSpace(req.DeviceUUID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student_id, name, and device_uuid are required")
	}

	existing, err := s.repo.FindByStudentID(ctx, req.StudentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if existing != nil {
		return s.matchExisting(existing, req.DeviceUUID)
	}

	owner, err := s.repo.FindByDevice(ctx, req.DeviceUUID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check device binding")
	}
	if owner != nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicateDevice, "")
	}

	device := req.DeviceUUID
	student := &models.Student{
		StudentID:  req.StudentID,
		Name:       req.Name,
		DeviceUUID: &device,
		Active:     true,
		EnrolledAt: s.now().UTC(),
	}
	if req.PIN != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.PIN), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash pin")
		}
		hashed := string(hash)
		student.PinHash = &hashed
	}

	if err := s.repo.Create(ctx, student); err != nil {
		switch {
		case errors.Is(err, repository.ErrDeviceTaken):
			return nil, appErrors.Clone(appErrors.ErrDuplicateDevice, "")
		case errors.Is(err, repository.ErrStudentIDTaken):
			// Lost a race with a concurrent enrollment of the same identifier.
			winner, findErr := s.repo.FindByStudentID(ctx, req.StudentID)
			if findErr != nil {
				return nil, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
			}
			return s.matchExisting(winner, req.DeviceUUID)
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll student")
		}
	}

	s.logger.Info("student enrolled", zap.String("student_id", student.StudentID))
	return &dto.EnrollResult{Student: student, Created: true}, nil
}

func (s *EnrollmentService) matchExisting(existing *models.Student, device string) (*dto.EnrollResult, error) {
	if existing.BoundTo(device) {
		return &dto.EnrollResult{Student: existing, Created: false}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrDeviceConflict, "")
}

// Rebind moves a student onto a new device. The change applies immediately.
// When the student has a PIN it must be supplied unless a lecturer performs the rebind.
func (s *EnrollmentService) Rebind(ctx context.Context, req models.RebindRequest, actor *models.JWTClaims) (*models.Student, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	req.NewDeviceUUID = strings.TrimSpace(req.NewDeviceUUID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student_id and new_device_uuid are required")
	}

	student, err := s.Lookup(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	byLecturer := actor != nil && actor.Role == models.RoleLecturer
	if student.HasPIN() && !byLecturer {
		if bcrypt.CompareHashAndPassword([]byte(*student.PinHash), []byte(req.PIN)) != nil {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid pin")
		}
	}

	if student.BoundTo(req.NewDeviceUUID) {
		return student, nil
	}

	owner, err := s.repo.FindByDevice(ctx, req.NewDeviceUUID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check device binding")
	}
	if owner != nil && owner.ID != student.ID {
		return nil, appErrors.Clone(appErrors.ErrDuplicateDevice, "")
	}

	now := s.now().UTC()
	if err := s.repo.UpdateDevice(ctx, student.ID, req.NewDeviceUUID, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrDeviceTaken):
			return nil, appErrors.Clone(appErrors.ErrDuplicateDevice, "")
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rebind device")
		}
	}

	previous := ""
	if student.DeviceUUID != nil {
		previous = *student.DeviceUUID
	}
	s.logger.Warn("student device rebound",
		zap.String("student_id", student.StudentID),
		zap.String("previous_device", previous),
		zap.String("new_device", req.NewDeviceUUID),
		zap.Bool("by_lecturer", byLecturer),
	)

	device := req.NewDeviceUUID
	student.DeviceUUID = &device
	student.UpdatedAt = now
	return student, nil
}

// Lookup returns the student with the given identifier.
func (s *EnrollmentService) Lookup(ctx context.Context, studentID string) (*models.Student, error) {
	studentID = strings.TrimSpace(studentID)
	if studentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "student_id is required")
	}
	student, err := s.repo.FindByStudentID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Status reports whether the identifier is enrolled. Unknown identifiers are not an error.
func (s *EnrollmentService) Status(ctx context.Context, studentID string) (*dto.EnrollmentStatus, error) {
	student, err := s.Lookup(ctx, studentID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return &dto.EnrollmentStatus{Enrolled: false}, nil
		}
		return nil, err
	}
	return &dto.EnrollmentStatus{Enrolled: true, Student: student}, nil
}

// List returns students with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, *models.Pagination, error) {
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	return students, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// SetActive deactivates or reactivates a student. Students are never deleted.
func (s *EnrollmentService) SetActive(ctx context.Context, studentID string, active bool) (*models.Student, error) {
	student, err := s.Lookup(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if student.Active == active {
		return student, nil
	}
	now := s.now().UTC()
	if err := s.repo.SetActive(ctx, student.ID, active, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	student.Active = active
	student.UpdatedAt = now
	s.logger.Info("student active flag changed", zap.String("student_id", student.StudentID), zap.Bool("active", active))
	return student, nil
}
