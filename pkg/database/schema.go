package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Constraint names are matched by the repository layer to map storage
// conflicts onto domain errors, keep them in sync.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id VARCHAR(36) PRIMARY KEY,
		student_id VARCHAR(50) NOT NULL,
		name VARCHAR(100) NOT NULL,
		device_uuid VARCHAR(100) NULL,
		pin_hash VARCHAR(128) NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		enrolled_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		CONSTRAINT students_student_id_key UNIQUE (student_id),
		CONSTRAINT students_device_uuid_key UNIQUE (device_uuid)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id VARCHAR(36) PRIMARY KEY,
		course_code VARCHAR(20) NOT NULL,
		session_token VARCHAR(128) NOT NULL,
		start_time TIMESTAMP NOT NULL,
		end_time TIMESTAMP NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		CONSTRAINT sessions_session_token_key UNIQUE (session_token)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS sessions_active_course_idx ON sessions (course_code) WHERE is_active`,
	`CREATE INDEX IF NOT EXISTS sessions_course_start_idx ON sessions (course_code, start_time)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id VARCHAR(36) PRIMARY KEY,
		student_id VARCHAR(36) NOT NULL REFERENCES students (id),
		session_id VARCHAR(36) NOT NULL REFERENCES sessions (id),
		timestamp TIMESTAMP NOT NULL,
		status VARCHAR(20) NOT NULL,
		CONSTRAINT attendance_student_session_key UNIQUE (student_id, session_id)
	)`,
	`CREATE INDEX IF NOT EXISTS attendance_session_idx ON attendance (session_id)`,
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id VARCHAR(36) PRIMARY KEY,
		table_name VARCHAR(50) NOT NULL,
		record_id VARCHAR(36) NOT NULL,
		operation VARCHAR(10) NOT NULL,
		status VARCHAR(20) NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL,
		next_retry_at TIMESTAMP NULL,
		created_at TIMESTAMP NOT NULL,
		synced_at TIMESTAMP NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sync_queue_status_idx ON sync_queue (status, next_retry_at)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id VARCHAR(36) PRIMARY KEY,
		actor VARCHAR(100) NOT NULL,
		action VARCHAR(50) NOT NULL,
		resource VARCHAR(50) NOT NULL,
		resource_id VARCHAR(100) NULL,
		detail TEXT NULL,
		ip_address VARCHAR(64) NOT NULL,
		user_agent VARCHAR(255) NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
}

// Migrate creates the attendance schema when missing. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
