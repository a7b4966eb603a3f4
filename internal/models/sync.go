package models

import "time"

// SyncStatus tracks propagation of a local mutation to the external store.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending"
	SyncStatusSynced  SyncStatus = "synced"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncOperation describes the mutation being propagated.
type SyncOperation string

const (
	SyncOperationUpsert SyncOperation = "upsert"
	SyncOperationDelete SyncOperation = "delete"
)

// Tables carrying cloud relevant rows.
const (
	SyncTableStudents   = "students"
	SyncTableAttendance = "attendance"
)

// SyncTask references one committed mutation awaiting propagation.
type SyncTask struct {
	ID          string        `db:"id" json:"id"`
	TableName   string        `db:"table_name" json:"table_name"`
	RecordID    string        `db:"record_id" json:"record_id"`
	Operation   SyncOperation `db:"operation" json:"operation"`
	Status      SyncStatus    `db:"status" json:"status"`
	Attempts    int           `db:"attempts" json:"attempts"`
	LastError   *string       `db:"last_error" json:"last_error,omitempty"`
	NextRetryAt *time.Time    `db:"next_retry_at" json:"next_retry_at,omitempty"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
	SyncedAt    *time.Time    `db:"synced_at" json:"synced_at,omitempty"`
}

// NewSyncTask builds a pending task for the given row.
func NewSyncTask(table, recordID string, op SyncOperation, now time.Time) *SyncTask {
	return &SyncTask{
		TableName: table,
		RecordID:  recordID,
		Operation: op,
		Status:    SyncStatusPending,
		CreatedAt: now,
	}
}

// SyncStats summarises the queue by status.
type SyncStats struct {
	Pending int `json:"pending"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}
