// Package apierr defines the typed error taxonomy shared by every adapter and
// service in IoTFlow. Adapters return *Error instead of bare errors so the
// HTTP and MQTT ingresses can map failures to the right status/behavior
// without string-matching error text.
package apierr

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy buckets used across the
// system. HTTP status mapping lives in internal/httpserver, not here, so this
// package stays free of net/http.
type Kind string

const (
	KindValidation      Kind = "ValidationError"
	KindAuthRequired    Kind = "AuthRequired"
	KindAuthFailed      Kind = "AuthFailed"
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindRateLimited     Kind = "RateLimited"
	KindPartialWrite    Kind = "PartialWrite"
	KindStoreUnavailable Kind = "StoreUnavailable"
	KindInternal        Kind = "Internal"
)

// Error is the typed error every adapter/service boundary returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// ExistingID is set on KindConflict for device-name collisions so the
	// caller can render {error, existing_id} per the registration contract.
	ExistingID int64
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func Validation(format string, args ...any) *Error {
	return New(KindValidation, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, fmt.Sprintf(format, args...))
}

func AuthFailed(format string, args ...any) *Error {
	return New(KindAuthFailed, fmt.Sprintf(format, args...))
}

func AuthRequired(format string, args ...any) *Error {
	return New(KindAuthRequired, fmt.Sprintf(format, args...))
}

func Conflict(existingID int64, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...), ExistingID: existingID}
}

func RateLimited(format string, args ...any) *Error {
	return New(KindRateLimited, fmt.Sprintf(format, args...))
}

func StoreUnavailable(cause error) *Error {
	return Wrap(KindStoreUnavailable, "upstream store unavailable", cause)
}

func Internal(cause error) *Error {
	return Wrap(KindInternal, "internal error", cause)
}

// As extracts an *Error from err, returning (nil, false) if err is not one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
