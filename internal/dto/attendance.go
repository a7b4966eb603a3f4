package dto

import "github.com/noah-isme/lan-attendance-api/internal/models"

// CheckInOutcome distinguishes a new record from a repeated claim.
type CheckInOutcome string

const (
	CheckInRecorded         CheckInOutcome = "recorded"
	CheckInAlreadyCheckedIn CheckInOutcome = "already_checked_in"
)

// CheckInResult is returned by the check-in pipeline to every transport.
type CheckInResult struct {
	Outcome    CheckInOutcome           `json:"outcome"`
	Message    string                   `json:"message"`
	Attendance *models.AttendanceDetail `json:"attendance"`
	Session    *models.Session          `json:"session,omitempty"`
}

// SessionAttendance is the ledger view of one session.
type SessionAttendance struct {
	Session    models.Session            `json:"session"`
	Attendance []models.AttendanceDetail `json:"attendance"`
	models.AttendanceCounts
}

// StudentAttendance is the ledger view of one student.
type StudentAttendance struct {
	Student    models.Student            `json:"student"`
	Attendance []models.AttendanceDetail `json:"attendance"`
	models.AttendanceCounts
}

// OverrideResult reports the effect of a lecturer override.
type OverrideResult struct {
	Outcome    string                   `json:"outcome"`
	Message    string                   `json:"message"`
	Attendance *models.AttendanceDetail `json:"attendance,omitempty"`
}

// AttendanceUpdate is pushed to the dashboard topic.
type AttendanceUpdate struct {
	Action     string                   `json:"action"`
	Attendance *models.AttendanceDetail `json:"attendance"`
	Session    *models.Session          `json:"session"`
}

// SessionAttendanceCount is pushed to a session topic.
type SessionAttendanceCount struct {
	SessionID string `json:"session_id"`
	Count     int    `json:"count"`
}
