package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindConflict     Kind = "conflict"
	KindAlreadyTaken Kind = "already_taken"
	KindExpired      Kind = "expired"
	KindUnauthorized Kind = "unauthorized"
	KindNotFound     Kind = "not_found"
	KindStorage      Kind = "storage"
	KindInternal     Kind = "internal"
)

// AppError represents an application error
type AppError struct {
	Kind    Kind   `json:"error"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status.
func (e *AppError) StatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict, KindAlreadyTaken, KindExpired:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether repeating the whole operation is safe and may succeed.
func (e *AppError) Retryable() bool {
	return e.Kind == KindStorage
}

func New(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func Validation(message string) *AppError {
	return New(KindValidation, message, nil)
}

func Validationf(format string, args ...interface{}) *AppError {
	return New(KindValidation, fmt.Sprintf(format, args...), nil)
}

func Conflict(message string) *AppError {
	return New(KindConflict, message, nil)
}

func AlreadyTaken(slotID string) *AppError {
	return New(KindAlreadyTaken, fmt.Sprintf("slot %s is no longer available", slotID), nil)
}

func Expired(slotID string) *AppError {
	return New(KindExpired, fmt.Sprintf("slot %s has already started", slotID), nil)
}

func NotFound(resource, id string) *AppError {
	return New(KindNotFound, fmt.Sprintf("%s %s not found", resource, id), nil)
}

func Unauthorized(err error) *AppError {
	return New(KindUnauthorized, "unauthorized", err)
}

func Storage(op string, err error) *AppError {
	return New(KindStorage, fmt.Sprintf("storage failure during %s", op), err)
}

func Internal(err error) *AppError {
	return New(KindInternal, "internal server error", err)
}

// KindOf returns the kind of the first AppError in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Kind == kind
}

// As is a convenience for callers that import this package as "errors".
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}
