// Package errdefs defines the error taxonomy shared by the capture session,
// the identity registry and the vision adapters. Callers match with errors.Is
// and errors.As; the HTTP layer maps each class to a status code.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrDetectorUnavailable means the face detector could not be constructed. Fatal at startup.
	ErrDetectorUnavailable = errors.New("face detector unavailable")
	// ErrRecognizerUnavailable means the recognizer could not be constructed. Fatal at startup.
	ErrRecognizerUnavailable = errors.New("face recognizer unavailable")
	// ErrCameraUnavailable means the video device is busy or missing.
	ErrCameraUnavailable = errors.New("camera unavailable")
	// ErrModelEmpty is returned when verification is requested before anything was trained.
	ErrModelEmpty = errors.New("recognition model is empty")
	// ErrBusy is returned when a session is started while another one is active.
	ErrBusy = errors.New("a capture session is already active")
	// ErrNotActive is returned when a frame is submitted while the session is idle.
	ErrNotActive = errors.New("no active capture session")
	// ErrFrameFault wraps faults raised while processing a single frame.
	ErrFrameFault = errors.New("frame processing failed")
)

// ValidationError reports bad user input, e.g. a blank name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NewValidation creates a ValidationError.
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports an operation on an unknown identity.
type NotFoundError struct {
	ID int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("identity %d not found", e.ID)
}

// NewNotFound creates a NotFoundError.
func NewNotFound(id int) error {
	return &NotFoundError{ID: id}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
