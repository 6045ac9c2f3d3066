package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced to callers.
type ErrorKind string

const (
	// KindConfiguration covers unknown cell lines, unknown drug classes and
	// missing treatment fields. Rejected before any step runs.
	KindConfiguration ErrorKind = "configuration"

	// KindNotFound is a configuration error for a lookup that has no entry.
	KindNotFound ErrorKind = "not_found"

	// KindInvalidParameter covers out-of-range numeric inputs.
	KindInvalidParameter ErrorKind = "invalid_parameter"

	// KindDivergence is fatal to a run: a state value left [0,1] or became non-finite.
	KindDivergence ErrorKind = "divergence"
)

// Error is the error type returned by validation, lookups and the engine.
type Error struct {
	Kind    ErrorKind
	Field   string // offending request field, if any
	Message string
	Err     error
}

// Sentinels for errors.Is. A not_found error also matches ErrConfiguration.
var (
	ErrConfiguration    = &Error{Kind: KindConfiguration}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrInvalidParameter = &Error{Kind: KindInvalidParameter}
	ErrDivergence       = &Error{Kind: KindDivergence}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind) + " error"
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s (field %s)", msg, e.Field)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinel errors by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Field != "" || t.Message != "" {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindConfiguration && e.Kind == KindNotFound
}

// NewConfigurationError returns a configuration error for field.
func NewConfigurationError(field, msg string) *Error {
	return &Error{Kind: KindConfiguration, Field: field, Message: msg}
}

// NewNotFoundError returns a not_found error for field.
func NewNotFoundError(field, msg string) *Error {
	return &Error{Kind: KindNotFound, Field: field, Message: msg}
}

// NewInvalidParameterError returns an invalid_parameter error for field.
func NewInvalidParameterError(field, msg string) *Error {
	return &Error{Kind: KindInvalidParameter, Field: field, Message: msg}
}

// NewDivergenceError returns a divergence error naming the diverged quantity.
func NewDivergenceError(field, msg string) *Error {
	return &Error{Kind: KindDivergence, Field: field, Message: msg}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FieldOf returns the offending field recorded in err's chain, or "".
func FieldOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
