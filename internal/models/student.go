package models

import "time"

// Student is an enrolled identity bound to at most one device.
type Student struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Name       string    `db:"name" json:"name"`
	DeviceUUID *string   `db:"device_uuid" json:"device_uuid,omitempty"`
	PinHash    *string   `db:"pin_hash" json:"-"`
	Active     bool      `db:"is_active" json:"is_active"`
	EnrolledAt time.Time `db:"enrolled_at" json:"enrolled_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// BoundTo reports whether the student's bound device equals device exactly.
func (s *Student) BoundTo(device string) bool {
	return s.DeviceUUID != nil && *s.DeviceUUID == device
}

// HasPIN reports whether a PIN hash is stored.
func (s *Student) HasPIN() bool {
	return s.PinHash != nil && *s.PinHash != ""
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search   string
	Active   *bool
	Page     int
	PageSize int
}

// EnrollRequest binds a device to a new or existing student identifier.
type EnrollRequest struct {
	StudentID  string `json:"student_id" validate:"required,max=50"`
	Name       string `json:"name" validate:"required,max=100"`
	DeviceUUID string `json:"device_uuid" validate:"required,max=100"`
	PIN        string `json:"pin,omitempty" validate:"omitempty,min=4,max=12"`
}

// RebindRequest moves an enrolled student onto a new device.
type RebindRequest struct {
	StudentID     string `json:"student_id" validate:"required,max=50"`
	NewDeviceUUID string `json:"new_device_uuid" validate:"required,max=100"`
	PIN           string `json:"pin,omitempty"`
}
