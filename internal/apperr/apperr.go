// Package apperr defines the error kinds shared by the execution core.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for the boundary layer.
type Kind string

const (
	KindValidation      Kind = "VALIDATION"
	KindInvalidInterval Kind = "INVALID_INTERVAL"
	KindState           Kind = "STATE"
	KindConflict        Kind = "CONFLICT"
	KindNotFound        Kind = "NOT_FOUND"
	KindTimeout         Kind = "TIMEOUT"
	KindCanceled        Kind = "CANCELED"
	KindInternal        Kind = "INTERNAL"
)

// Error is a classified error carrying the offending fields and entity ids.
type Error struct {
	Kind      Kind
	Message   string
	Fields    []string
	EntityIDs []string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(strings.ToLower(string(e.Kind)))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (fields: %s)", strings.Join(e.Fields, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// WithIDs attaches entity ids and returns the same error.
func (e *Error) WithIDs(ids ...string) *Error {
	e.EntityIDs = append(e.EntityIDs, ids...)
	return e
}

func newf(kind Kind, fields []string, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Fields: fields}
}

// Validation reports malformed or missing input on the given field.
func Validation(field, format string, args ...any) *Error {
	return newf(KindValidation, fieldList(field), format, args...)
}

// InvalidInterval reports a temporal ordering violation between two fields.
func InvalidInterval(startField, endField, format string, args ...any) *Error {
	return newf(KindInvalidInterval, fieldList(startField, endField), format, args...)
}

// State reports an operation that the current lifecycle state does not permit.
func State(format string, args ...any) *Error {
	return newf(KindState, nil, format, args...)
}

// Conflict reports a concurrent-invariant violation.
func Conflict(format string, args ...any) *Error {
	return newf(KindConflict, nil, format, args...)
}

// NotFound reports a missing entity.
func NotFound(entity, id string) *Error {
	return (&Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", entity, id)}).WithIDs(id)
}

// Internal wraps an unexpected failure.
func Internal(err error, format string, args ...any) *Error {
	e := newf(KindInternal, nil, format, args...)
	e.Err = err
	return e
}

func fieldList(fields ...string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is of the given kind. InvalidInterval errors are also
// Validation errors.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	k := KindOf(err)
	if k == kind {
		return true
	}
	return kind == KindValidation && k == KindInvalidInterval
}

// FromContext converts a collaborator error into a Timeout or Canceled error when
// it stems from the context, and returns it unchanged otherwise.
func FromContext(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Message: op + " exceeded its deadline", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindCanceled, Message: op + " was canceled", Err: err}
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return Internal(err, "%s failed", op)
}
