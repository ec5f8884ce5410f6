// Package errs defines the error kinds shared by every bounded context.
//
// Each error surfaced by the core matches exactly one kind through errors.Is:
// validation failures are rejected before any mutation, not-found and conflict
// errors carry a specific message, and persistence errors mean the whole unit
// of work was rolled back and may be retried.
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrPersistence = errors.New("persistence error")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// New returns an error with the given message that matches kind.
func New(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func Validation(format string, args ...any) error {
	return New(ErrValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) error {
	return New(ErrNotFound, fmt.Sprintf(format, args...))
}

func Conflict(format string, args ...any) error {
	return New(ErrConflict, fmt.Sprintf(format, args...))
}

// Persistence wraps a storage failure. Errors that already carry a kind are
// returned unchanged so a conflict detected by the store stays a conflict.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if Kind(err) != nil {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Kind reports which kind sentinel err matches, or nil.
func Kind(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrConflict, ErrPersistence} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Code is a short upper-case label for err's kind, used as a status text in
// logs and spans.
func Code(err error) string {
	switch Kind(err) {
	case ErrValidation:
		return "VALIDATION_FAILED"
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrConflict:
		return "CONFLICT"
	case ErrPersistence:
		return "PERSISTENCE_FAILED"
	default:
		return "INTERNAL"
	}
}
