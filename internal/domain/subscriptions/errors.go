package subscriptions

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeAuthRequired          Code = "AUTH_REQUIRED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeValidation            Code = "VALIDATION_ERROR"
	CodeDuplicateSubscription Code = "DUPLICATE_SUBSCRIPTION"
	CodeInvalidDate           Code = "INVALID_DATE"
	CodeInvalidStatus         Code = "INVALID_STATUS"
	CodeNotPaused             Code = "NOT_PAUSED"
	CodeNotCancelling         Code = "NOT_CANCELLING"
	CodeOperationFailed       Code = "OPERATION_FAILED"
)

// Store sentinels. Every Store implementation must return these (wrapped or
// not) so the engine can classify failures.
var (
	ErrNotFound      = errors.New("subscription not found")
	ErrConflict      = errors.New("subscription was modified concurrently")
	ErrDuplicateLive = errors.New("tenant already has a live subscription")
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the failure half of every lifecycle operation. Err holds the
// underlying cause for logging and is never shown to callers.
type Error struct {
	Code        Code
	Message     string
	FieldErrors []FieldError
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Expected reports whether the failure is a normal outcome the caller can act
// on, as opposed to an infrastructure fault.
func (e *Error) Expected() bool {
	return e.Code != CodeOperationFailed
}

func newError(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func errAuthRequired() *Error {
	return newError(CodeAuthRequired, "Authentication required")
}

func errNotFound() *Error {
	return newError(CodeNotFound, "Subscription not found")
}

// errUnauthorized never says which check failed.
func errUnauthorized() *Error {
	return newError(CodeUnauthorized, "You are not allowed to manage this subscription")
}

func errValidation(fields []FieldError) *Error {
	return &Error{Code: CodeValidation, Message: "Invalid input", FieldErrors: fields}
}

func errOperationFailed(cause error) *Error {
	msg := "Operation failed, please try again later"
	if errors.Is(cause, ErrConflict) {
		msg = "Subscription was changed by another request, please retry"
	}
	return &Error{Code: CodeOperationFailed, Message: msg, Err: cause}
}

// CodeOf extracts the result code from err; unknown errors are infrastructure
// failures.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeOperationFailed
}

// AuthRequired is returned to callers that presented no usable identity.
func AuthRequired() error { return errAuthRequired() }
