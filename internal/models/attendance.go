package models

import "time"

// AttendanceStatus is the stored outcome of a check-in. Absence is the lack of a record.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "present"
	AttendanceStatusLate    AttendanceStatus = "late"
	AttendanceStatusFlagged AttendanceStatus = "flagged"
	// AttendanceStatusAbsent is only accepted as an override target and is never persisted.
	AttendanceStatusAbsent AttendanceStatus = "absent"
)

// Valid returns true when the status can be stored on a record.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusLate, AttendanceStatusFlagged:
		return true
	default:
		return false
	}
}

// ValidOverride returns true when the status is an accepted override target.
func (s AttendanceStatus) ValidOverride() bool {
	return s.Valid() || s == AttendanceStatusAbsent
}

// AttendanceRecord is one accepted claim for a (student, session) pair.
type AttendanceRecord struct {
	ID        string           `db:"id" json:"id"`
	StudentID string           `db:"student_id" json:"student_id"`
	SessionID string           `db:"session_id" json:"session_id"`
	Timestamp time.Time        `db:"timestamp" json:"timestamp"`
	Status    AttendanceStatus `db:"status" json:"status"`
}

// AttendanceDetail joins a record with student and course context for display.
type AttendanceDetail struct {
	AttendanceRecord
	StudentMatric string `db:"student_matric" json:"student_matric"`
	StudentName   string `db:"student_name" json:"student_name"`
	CourseCode    string `db:"course_code" json:"course_code"`
}

// AttendanceCounts aggregates records per status.
type AttendanceCounts struct {
	Total   int `json:"total"`
	Present int `json:"total_present"`
	Late    int `json:"total_late"`
	Flagged int `json:"total_flagged"`
}

// CountAttendance tallies statuses over the given records.
func CountAttendance(records []AttendanceDetail) AttendanceCounts {
	counts := AttendanceCounts{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case AttendanceStatusPresent:
			counts.Present++
		case AttendanceStatusLate:
			counts.Late++
		case AttendanceStatusFlagged:
			counts.Flagged++
		}
	}
	return counts
}

// CheckInRequest is a student's claim, identical across HTTP and the push channel.
type CheckInRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	DeviceUUID   string `json:"device_uuid" validate:"required"`
	SessionToken string `json:"session_token" validate:"required"`
}

// OverrideRequest is a lecturer correction that bypasses the check-in pipeline.
type OverrideRequest struct {
	StudentID string           `json:"student_id" validate:"required"`
	SessionID string           `json:"session_id" validate:"required"`
	Status    AttendanceStatus `json:"status" validate:"required,override_status"`
}
