package dto

import "github.com/noah-isme/lan-attendance-api/internal/models"

// EnrollResult reports whether enrollment created the student or matched an existing binding.
type EnrollResult struct {
	Student *models.Student `json:"student"`
	Created bool            `json:"created"`
}

// EnrollmentStatus answers whether an identifier is enrolled.
type EnrollmentStatus struct {
	Enrolled bool            `json:"enrolled"`
	Student  *models.Student `json:"student,omitempty"`
}
