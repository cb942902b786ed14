package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to clients. Wrap them with fmt.Errorf("%w: ...") to add detail.
var (
	ErrAuth          = fmt.Errorf("authentication failed")
	ErrValidation    = fmt.Errorf("validation failed")
	ErrAuthorization = fmt.Errorf("not allowed")
	ErrNotFound      = fmt.Errorf("not found")
)

var (
	ErrWorkerPanic         = fmt.Errorf("worker panic")
	ErrEmptyWords          = fmt.Errorf("no words have been found")
	ErrSlowConsumer        = fmt.Errorf("connection buffer is full")
	ErrConnectionClosed    = fmt.Errorf("connection is closed")
	ErrOrchestratorStopped = fmt.Errorf("orchestrator is not running")
	ErrInvalidRole         = fmt.Errorf("unknown role")
)

type Code string

const (
	CodeAuth       Code = "auth"
	CodeValidation Code = "validation"
	CodeForbidden  Code = "forbidden"
	CodeNotFound   Code = "not_found"
	CodeInternal   Code = "internal"
)

// CodeOf maps an error chain onto the code sent in "error" events.
func CodeOf(err error) Code {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuth):
		return CodeAuth
	case errors.Is(err, ErrValidation):
		return CodeValidation
	case errors.Is(err, ErrAuthorization):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// Validation wraps ErrValidation with a reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with a reason.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Forbidden wraps ErrAuthorization with a reason.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrAuthorization, fmt.Sprintf(format, args...))
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
