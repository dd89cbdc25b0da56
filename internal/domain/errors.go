package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a session id or join code resolves to nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionFinished is returned when joining a session that has already ended.
	ErrSessionFinished = errors.New("session already finished")
	// ErrNotHost is returned when a non-host caller attempts a host-only operation.
	// Transports log it and stay silent toward the caller.
	ErrNotHost = errors.New("caller is not the session host")
	// ErrNoQuestions is returned when a session would start with an empty question list.
	ErrNoQuestions = errors.New("session has no questions")
)

// ValidationError reports malformed user input (empty nickname, out-of-range
// question count). Its message is safe to surface to the caller.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Validationf builds a ValidationError for the given field.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
