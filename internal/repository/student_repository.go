package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

const studentColumns = `id, student_id, name, device_uuid, pin_hash, is_active, enrolled_at, updated_at`

// StudentRepository manages persistence for enrolled identities.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByStudentID fetches a student by external identifier.
func (r *StudentRepository) FindByStudentID(ctx context.Context, studentID string) (*models.Student, error) {
	return r.findOne(ctx, "student_id", studentID)
}

// FindByID fetches a student by primary key.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return r.findOne(ctx, "id", id)
}

// FindByDevice fetches the student currently bound to device.
func (r *StudentRepository) FindByDevice(ctx context.Context, device string) (*models.Student, error) {
	return r.findOne(ctx, "device_uuid", device)
}

func (r *StudentRepository) findOne(ctx context.Context, column, value string) (*models.Student, error) {
	query := r.db.Rebind(fmt.Sprintf("SELECT %s FROM students WHERE %s = ?", studentColumns, column))
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, value); err != nil {
		return nil, err
	}
	return &student, nil
}

// List returns students matching the filter ordered by identifier.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	conditions := []string{"1=1"}
	args := []interface{}{}
	if filter.Active != nil {
		conditions = append(conditions, "is_active = ?")
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, "(LOWER(name) LIKE ? OR LOWER(student_id) LIKE ?)")
		term := "%" + strings.ToLower(filter.Search) + "%"
		args = append(args, term, term)
	}
	where := strings.Join(conditions, " AND ")

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := r.db.Rebind(fmt.Sprintf("SELECT %s FROM students WHERE %s ORDER BY student_id ASC LIMIT %d OFFSET %d", studentColumns, where, size, offset))
	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, r.db.Rebind("SELECT COUNT(*) FROM students WHERE "+where), args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// Create inserts a new student and queues it for sync in one transaction.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if student.EnrolledAt.IsZero() {
		student.EnrolledAt = now
	}
	student.UpdatedAt = student.EnrolledAt

	return withTx(ctx, r.db, "enroll student", func(tx *sqlx.Tx) error {
		const query = `INSERT INTO students (id, student_id, name, device_uuid, pin_hash, is_active, enrolled_at, updated_at)
        VALUES (:id, :student_id, :name, :device_uuid, :pin_hash, :is_active, :enrolled_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, query, student); err != nil {
			return fmt.Errorf("create student: %w", classifyConstraint(err))
		}
		return insertSyncTask(ctx, tx, models.NewSyncTask(models.SyncTableStudents, student.ID, models.SyncOperationUpsert, student.EnrolledAt))
	})
}

// UpdateDevice replaces the bound device and queues the change for sync.
func (r *StudentRepository) UpdateDevice(ctx context.Context, id, device string, at time.Time) error {
	return withTx(ctx, r.db, "rebind device", func(tx *sqlx.Tx) error {
		query := tx.Rebind(`UPDATE students SET device_uuid = ?, updated_at = ? WHERE id = ?`)
		res, err := tx.ExecContext(ctx, query, device, at, id)
		if err != nil {
			return fmt.Errorf("update student device: %w", classifyConstraint(err))
		}
		if err := expectAffected(res, "update student device"); err != nil {
			return err
		}
		return insertSyncTask(ctx, tx, models.NewSyncTask(models.SyncTableStudents, id, models.SyncOperationUpsert, at))
	})
}

// SetActive flips the active flag and queues the change for sync.
func (r *StudentRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	return withTx(ctx, r.db, "set student active", func(tx *sqlx.Tx) error {
		query := tx.Rebind(`UPDATE students SET is_active = ?, updated_at = ? WHERE id = ?`)
		res, err := tx.ExecContext(ctx, query, active, at, id)
		if err != nil {
			return fmt.Errorf("update student active: %w", err)
		}
		if err := expectAffected(res, "update student active"); err != nil {
			return err
		}
		return insertSyncTask(ctx, tx, models.NewSyncTask(models.SyncTableStudents, id, models.SyncOperationUpsert, at))
	})
}
