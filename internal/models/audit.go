package models

import "time"

// Audit actions recorded for lecturer mutations.
const (
	AuditActionLogin        = "LOGIN"
	AuditActionSessionStart = "SESSION_START"
	AuditActionSessionEnd   = "SESSION_END"
	AuditActionOverride     = "ATTENDANCE_OVERRIDE"
	AuditActionRebind       = "DEVICE_REBIND"
	AuditActionDeactivate   = "STUDENT_DEACTIVATE"
	AuditActionReactivate   = "STUDENT_REACTIVATE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	Actor      string    `db:"actor" json:"actor"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Detail     *string   `db:"detail" json:"detail,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
