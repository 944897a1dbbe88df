package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a booking cannot be found
	ErrJobNotFound = errors.New("job not found")

	// ErrTranslatorNotFound is returned when a translator id or email is unknown
	ErrTranslatorNotFound = errors.New("translator not found")

	// ErrCustomerNotFound is returned when the owning customer is unknown
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrNoActiveAssignment is returned when a status requires an active
	// assignment and none exists
	ErrNoActiveAssignment = errors.New("no active assignment for job")

	// ErrActiveAssignmentExists is returned when a second active assignment
	// would be created for a job
	ErrActiveAssignmentExists = errors.New("job already has an active assignment")

	// ErrInvalidEvent is returned for notification payloads that cannot be decoded
	ErrInvalidEvent = errors.New("invalid notification event")
)

// TranslatorCancelRefusal is shown when a translator tries to cancel inside the window
const TranslatorCancelRefusal = "You can not cancel a booking within 24 hours of the start time. Please call customer support to cancel this booking."

// ValidationError reports a missing or malformed field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError reports a request that lost a race or falls outside an
// allowed window. No state was mutated.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflictError creates a ConflictError
func NewConflictError(message string) error {
	return &ConflictError{Message: message}
}

// ErrBookingTaken is the conflict returned to the loser of an accept race
var ErrBookingTaken = &ConflictError{Message: "booking already taken"}

// RetryableError wraps transient errors that should trigger a requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
