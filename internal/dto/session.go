package dto

import "github.com/noah-isme/lan-attendance-api/internal/models"

// ActiveSession answers the active session lookup. Session is nil when none is open.
type ActiveSession struct {
	Active  bool                   `json:"active"`
	Session *models.SessionSummary `json:"session"`
}

// SessionQR carries the check-in token and its rendered QR image.
type SessionQR struct {
	SessionToken string `json:"session_token"`
	CourseCode   string `json:"course_code"`
	QRCode       string `json:"qr_code"`
	PNG          []byte `json:"-"`
}

// SessionUpdate is broadcast to every client when a session opens or closes.
type SessionUpdate struct {
	Action  string          `json:"action"`
	Session *models.Session `json:"session"`
}

// Session lifecycle actions.
const (
	SessionActionStarted = "started"
	SessionActionEnded   = "ended"
)
