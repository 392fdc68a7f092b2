// Package apperr defines the error taxonomy shared by all domain services.
// Handlers translate these into the API envelope; nothing else about an
// internal failure (query text, stack) ever crosses the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for HTTP mapping and logging.
type Kind int

const (
	KindValidation Kind = iota // malformed or missing input, field-level
	KindNotFound               // no entity at key
	KindConflict               // uniqueness or state-machine violation
	KindAuth                   // bad credentials, expired or missing token
	KindForbidden              // authenticated but not allowed (consent gate)
	KindStorage                // transaction or connectivity failure
)

// Error is a typed application error. Fields carries per-field validation
// messages when Kind is KindValidation.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Validation returns a field-level validation error.
func Validation(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// Validationf returns a single-field validation error.
func Validationf(field, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindValidation,
		Message: "validation failed",
		Fields:  map[string]string{field: fmt.Sprintf(format, args...)},
	}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Message: resource + " not found"}
}

func Conflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

// Storage wraps a database error. The cause is logged, never serialized.
func Storage(op string, cause error) *Error {
	return &Error{Kind: KindStorage, Message: op + " failed", cause: cause}
}

// KindOf extracts the Kind from err, defaulting to KindStorage for
// unclassified errors so that raw failures never leak as 4xx.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindStorage
}

// FieldsOf returns the validation field map, or nil.
func FieldsOf(err error) map[string]string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Fields
	}
	return nil
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsConflict reports whether err is a conflict error.
func IsConflict(err error) bool { return KindOf(err) == KindConflict }
