// internal/router/errors.go
package router

import (
	"errors"
	"fmt"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
)

var (
	// ErrUnknownSource is returned for a directive naming a backend that does not exist.
	ErrUnknownSource = errors.New("unknown backend source")
	// ErrBrowserNotLaunched is returned for a browser directive that arrives
	// before any launch and names no target to launch automatically.
	ErrBrowserNotLaunched = errors.New("browser has not been launched")
	// ErrBackendNotOpen is returned when state is requested from a backend
	// that has no open session.
	ErrBackendNotOpen = errors.New("backend has no open session")
)

// Kind separates the failures that abort the turn from everything else,
// which is reported in-band as an error response.
type Kind string

const (
	KindRouting        Kind = "routing"
	KindNotInitialized Kind = "not_initialized"
)

// Error is a failure that escapes the router instead of becoming a response.
type Error struct {
	Kind   Kind
	Code   backend.ErrorCode
	Source schemas.BackendSource
	Action schemas.ActionKind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("router %s error (source=%q, action=%q): %v", e.Kind, e.Source, e.Action, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func unknownSource(d schemas.ActionDirective) *Error {
	return &Error{
		Kind:   KindRouting,
		Code:   backend.ErrParameter,
		Source: d.Source,
		Action: d.Action,
		Err:    ErrUnknownSource,
	}
}

func notLaunched(d schemas.ActionDirective) *Error {
	return &Error{
		Kind:   KindNotInitialized,
		Code:   backend.ErrNotInitialized,
		Source: schemas.SourceBrowser,
		Action: d.Action,
		Err:    ErrBrowserNotLaunched,
	}
}

func capabilityError(source schemas.BackendSource, action schemas.ActionKind) *backend.Error {
	return backend.NewError(backend.ErrCapability, action,
		fmt.Sprintf("Action %s is not supported by the %s backend", action, source), nil)
}

func parameterError(action schemas.ActionKind, err error) *backend.Error {
	return backend.NewError(backend.ErrParameter, action,
		fmt.Sprintf("Invalid parameters for %s: %v", action, err), err)
}
