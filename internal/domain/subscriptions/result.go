package subscriptions

import "errors"

// Result is the tagged response every operation is shaped into.
type Result struct {
	Success     bool         `json:"success"`
	Data        any          `json:"data,omitempty"`
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	Code        Code         `json:"code,omitempty"`
	FieldErrors []FieldError `json:"fieldErrors,omitempty"`
}

func OK(data any, message string) Result {
	return Result{Success: true, Data: data, Message: message}
}

// Fail shapes err for the caller. Unknown errors collapse to a generic
// OPERATION_FAILED so internal text never leaks.
func Fail(err error) Result {
	var e *Error
	if !errors.As(err, &e) {
		e = errOperationFailed(err)
	}
	return Result{
		Success:     false,
		Error:       e.Message,
		Code:        e.Code,
		FieldErrors: e.FieldErrors,
	}
}
