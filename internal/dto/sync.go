package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/lan-attendance-api/internal/models"
)

// SyncPayload is the signed body describing one committed mutation.
type SyncPayload struct {
	TaskID    string               `json:"task_id"`
	Table     string               `json:"table"`
	RecordID  string               `json:"record_id"`
	Operation models.SyncOperation `json:"operation"`
	Record    interface{}          `json:"record,omitempty"`
}

// SyncEnvelope carries a payload with its HMAC signature to the sync target.
type SyncEnvelope struct {
	Payload   json.RawMessage `json:"payload"`
	IssuedAt  time.Time       `json:"issued_at"`
	Signature string          `json:"signature"`
}

// SyncStatus reports the drain worker state.
type SyncStatus struct {
	Enabled   bool             `json:"enabled"`
	Target    string           `json:"target,omitempty"`
	Stats     models.SyncStats `json:"stats"`
	InFlight  int              `json:"in_flight"`
	LastRunAt *time.Time       `json:"last_run_at,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}
