package scheduling

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds. Every error returned by the scheduling services matches exactly
// one of these with errors.Is.
var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrGateway    = errors.New("gateway failure")
)

// ValidationError is returned before any store or notifier call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Entity string
	ID     uuid.UUID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError means the request was valid but the current state forbids it,
// e.g. the slot was already booked or the appointment is already completed.
type ConflictError struct {
	Entity string
	ID     uuid.UUID
	Reason string
}

func (e *ConflictError) Error() string {
	if e.ID == uuid.Nil {
		return fmt.Sprintf("%s conflict: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("%s %s conflict: %s", e.Entity, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// GatewayError wraps a failed or timed out persistence/notification call.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// asGatewayError leaves kind errors untouched and wraps anything else.
func asGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) || errors.Is(err, ErrGateway) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

// Outcome classifies err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "gateway"
	}
}
