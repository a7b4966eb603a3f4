package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so clones match their sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid credentials")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrTooManyRequests    = New("TOO_MANY_REQUESTS", http.StatusTooManyRequests, "too many requests")
)

// Attendance domain errors. Status codes are part of the public contract.
var (
	ErrInvalidToken         = New("INVALID_TOKEN", http.StatusNotFound, "invalid session token")
	ErrSessionClosed        = New("SESSION_CLOSED", http.StatusForbidden, "session has ended")
	ErrNotEnrolled          = New("NOT_ENROLLED", http.StatusNotFound, "student not enrolled, please enroll first")
	ErrDeviceMismatch       = New("DEVICE_MISMATCH", http.StatusForbidden, "device mismatch, this device is not registered to your account")
	ErrAccountDeactivated   = New("ACCOUNT_DEACTIVATED", http.StatusForbidden, "student account is deactivated")
	ErrAlreadyCheckedIn     = New("ALREADY_CHECKED_IN", http.StatusConflict, "already checked in for this session")
	ErrDeviceConflict       = New("DEVICE_CONFLICT", http.StatusConflict, "student already enrolled with a different device, use re-enrollment")
	ErrDuplicateDevice      = New("DUPLICATE_DEVICE", http.StatusConflict, "device is already registered to another student")
	ErrSessionAlreadyActive = New("SESSION_ALREADY_ACTIVE", http.StatusConflict, "an active session already exists for this course")
	ErrAlreadyEnded         = New("ALREADY_ENDED", http.StatusBadRequest, "session has already ended")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}
