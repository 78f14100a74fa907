package execution

import (
	"errors"

	"mes-execution-backend/internal/apperr"
)

// Boundary codes are the HTTP status times 100 plus a discriminator.
const (
	CodeValidation      = 40001
	CodeInvalidInterval = 40002
	CodeNotFound        = 40401
	CodeConflict        = 40901
	CodeState           = 40902
	CodeCanceled        = 49901
	CodeInternal        = 50001
	CodeTimeout         = 50401
)

var codes = map[apperr.Kind]int{
	apperr.KindValidation:      CodeValidation,
	apperr.KindInvalidInterval: CodeInvalidInterval,
	apperr.KindNotFound:        CodeNotFound,
	apperr.KindConflict:        CodeConflict,
	apperr.KindState:           CodeState,
	apperr.KindCanceled:        CodeCanceled,
	apperr.KindTimeout:         CodeTimeout,
	apperr.KindInternal:        CodeInternal,
}

// Error is the error every facade call returns.
type Error struct {
	Code      int         `json:"code"`
	Kind      apperr.Kind `json:"kind"`
	Message   string      `json:"message"`
	Fields    []string    `json:"fields,omitempty"`
	EntityIDs []string    `json:"ids,omitempty"`
	cause     error
}

func (e *Error) Error() string { return e.cause.Error() }

func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status the code belongs to. Canceled requests map to
// 499.
func (e *Error) Status() int { return e.Code / 100 }

// Retryable reports whether the caller may retry, after refetching for a
// Conflict.
func (e *Error) Retryable() bool {
	return e.Kind == apperr.KindConflict || e.Kind == apperr.KindTimeout
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	var boundary *Error
	if errors.As(err, &boundary) {
		return boundary
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(err, "unexpected failure")
	}
	code, ok := codes[ae.Kind]
	if !ok {
		code = CodeInternal
	}
	message := ae.Message
	if ae.Kind == apperr.KindInternal {
		message = "internal error"
	}
	return &Error{
		Code:      code,
		Kind:      ae.Kind,
		Message:   message,
		Fields:    ae.Fields,
		EntityIDs: ae.EntityIDs,
		cause:     err,
	}
}
