// internal/backend/errors.go
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// ErrorCode classifies a failed directive.
type ErrorCode string

const (
	// -- Caller errors, raised before any side effect --
	ErrParameter         ErrorCode = "PARAMETER_ERROR"
	ErrCapability        ErrorCode = "CAPABILITY_ERROR"
	ErrUnsupportedAction ErrorCode = "UNSUPPORTED_ACTION"

	// -- Backend state --
	ErrNotReady       ErrorCode = "NOT_READY"
	ErrNotInitialized ErrorCode = "NOT_INITIALIZED"

	// -- Execution --
	ErrInteraction   ErrorCode = "INTERACTION_ERROR"
	ErrTimeout       ErrorCode = "TIMEOUT_ERROR"
	ErrTransport     ErrorCode = "TRANSPORT_ERROR"
	ErrExecutorPanic ErrorCode = "EXECUTOR_PANIC"
)

// Error is a classified directive failure. Message is what the model sees.
type Error struct {
	Code    ErrorCode
	Action  schemas.ActionKind
	Message string
	Err     error
}

// NewError creates a classified error.
func NewError(code ErrorCode, action schemas.ActionKind, message string, err error) *Error {
	return &Error{Code: code, Action: action, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Response converts the error into the response the model receives.
func (e *Error) Response() *schemas.ActionResponse {
	detail := ""
	if e.Err != nil {
		detail = e.Err.Error()
	}
	return schemas.Failure(e.Message, detail)
}

// CodeOf returns the code of a classified error, ErrTimeout for deadline
// errors and ErrInteraction for anything else.
func CodeOf(err error) ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return ErrInteraction
}

// ResponseFor converts any error into an error response.
func ResponseFor(action schemas.ActionKind, err error) *schemas.ActionResponse {
	var be *Error
	if errors.As(err, &be) {
		return be.Response()
	}
	return NewError(CodeOf(err), action, fmt.Sprintf("Failed to execute %s", action), err).Response()
}

// Interaction wraps an error raised while performing an interaction.
func Interaction(action schemas.ActionKind, message string, err error) *Error {
	return NewError(ErrInteraction, action, message, err)
}

// Transport wraps a failure to reach the backend at all.
func Transport(action schemas.ActionKind, message string, err error) *Error {
	return NewError(ErrTransport, action, message, err)
}
