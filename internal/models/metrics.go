package models

import "time"

// SystemMetrics represents process level counters captured from instrumentation.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CheckInsAccepted         uint64    `json:"check_ins_accepted"`
	CheckInsRejected         uint64    `json:"check_ins_rejected"`
	SyncSynced               uint64    `json:"sync_synced"`
	SyncFailed               uint64    `json:"sync_failed"`
	SocketClients            int64     `json:"socket_clients"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
