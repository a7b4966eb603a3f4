package models

import "time"

// Session is one attendance window for a course. The token is the check-in credential.
type Session struct {
	ID           string     `db:"id" json:"id"`
	CourseCode   string     `db:"course_code" json:"course_code"`
	SessionToken string     `db:"session_token" json:"session_token"`
	StartTime    time.Time  `db:"start_time" json:"start_time"`
	EndTime      *time.Time `db:"end_time" json:"end_time,omitempty"`
	Active       bool       `db:"is_active" json:"is_active"`
}

// SessionSummary adds the live attendance count to a session.
type SessionSummary struct {
	Session
	AttendanceCount int `db:"attendance_count" json:"attendance_count"`
}

// StartSessionRequest opens a session for a course.
type StartSessionRequest struct {
	CourseCode string `json:"course_code" validate:"required,max=20"`
}

// EndSessionRequest selects the session to close by id or by active course.
type EndSessionRequest struct {
	SessionID  string `json:"session_id,omitempty"`
	CourseCode string `json:"course_code,omitempty" validate:"max=20"`
}

// SessionHistoryFilter narrows the session history listing.
type SessionHistoryFilter struct {
	CourseCode string
	Limit      int
}
