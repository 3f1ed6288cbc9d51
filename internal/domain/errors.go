// Package domain holds the error taxonomy and identity rules shared by the
// catalog and cart packages.
package domain

import (
	"github.com/go-faster/errors"
)

// Error kinds. Every error surfaced by a service wraps exactly one of these,
// so callers classify failures with errors.Is.
var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrPersistence     = errors.New("persistence failure")
)

// kindError is a human-readable error that classifies as one of the kinds
// above.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// NewError returns an error with message msg that matches kind under
// errors.Is.
func NewError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

// InputError reports a rejected field value.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + " " + e.Reason
}

// Is reports InputError as ErrInvalidInput.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// Invalid is shorthand for &InputError{Field: field, Reason: reason}.
func Invalid(field, reason string) error {
	return &InputError{Field: field, Reason: reason}
}

var kinds = []error{ErrInvalidIdentity, ErrInvalidInput, ErrNotFound, ErrConflict, ErrPersistence}

// KindOf returns the kind err classifies as, or nil for unclassified errors.
func KindOf(err error) error {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
