// internal/backend/backend.go
package backend

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/stability"
)

// PNGDataURIPrefix prefixes base64 PNG screenshots in responses.
const PNGDataURIPrefix = "data:image/png;base64,"

// Request is a directive after validation. Adapters never see malformed input:
// Coordinate and Direction are set when the action needs them, and URL is the
// normalized launch target.
type Request struct {
	Directive  schemas.ActionDirective
	Coordinate *schemas.Coordinate
	Direction  schemas.ScrollDirection
	URL        string
}

// Action is shorthand for the directive's action.
func (r Request) Action() schemas.ActionKind {
	return r.Directive.Action
}

// State is a snapshot of the surface, used to confirm actions.
type State struct {
	Screenshot string
	URL        string
}

// Backend is implemented by each surface the model can drive.
type Backend interface {
	Source() schemas.BackendSource
	// ExecuteAction performs exactly one interaction and always returns a response.
	ExecuteAction(ctx context.Context, req Request) *schemas.ActionResponse
	// CaptureState returns the current screenshot and URL.
	CaptureState(ctx context.Context) (State, error)
	// Close releases the session. It is safe to call more than once.
	Close(ctx context.Context) error
}

// Annotator enriches a confirming screenshot with detected UI elements.
type Annotator interface {
	Annotate(ctx context.Context, screenshot string) (*schemas.OmniParserResult, error)
}

// SettleHook observes every completed stability wait.
type SettleHook func(source schemas.BackendSource, res stability.Result)

// Handler executes one action kind.
type Handler func(ctx context.Context, req Request) (*schemas.ActionResponse, error)

// HandlerTable maps actions to their handlers.
type HandlerTable map[schemas.ActionKind]Handler

// Dispatch runs the handler registered for req's action. Unknown actions,
// handler errors and panics all become error responses; nothing escapes.
func Dispatch(ctx context.Context, logger *zap.Logger, handlers HandlerTable, req Request) (resp *schemas.ActionResponse) {
	action := req.Action()
	handler, ok := handlers[action]
	if !ok {
		err := NewError(ErrUnsupportedAction, action, fmt.Sprintf("Unsupported action: %s", action), nil)
		return err.Response()
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic during action execution.",
				zap.String("action", string(action)),
				zap.Any("panic_value", r),
				zap.String("stack", string(debug.Stack())))
			resp = NewError(ErrExecutorPanic, action, fmt.Sprintf("Action %s failed unexpectedly", action), fmt.Errorf("panic: %v", r)).Response()
		}
	}()

	resp, err := handler(ctx, req)
	if err != nil {
		logger.Warn("Action failed.", zap.String("action", string(action)), zap.Error(err))
		return ResponseFor(action, err)
	}
	if resp == nil {
		return schemas.Success(fmt.Sprintf("%s completed", action), "")
	}
	return resp
}

// Annotate attaches an element-detection result to a successful response that
// carries a screenshot. Detection is best-effort; failures are only logged.
func Annotate(ctx context.Context, logger *zap.Logger, annotator Annotator, resp *schemas.ActionResponse) {
	if annotator == nil || resp == nil || !resp.Succeeded() || resp.Screenshot == "" {
		return
	}
	result, err := annotator.Annotate(ctx, resp.Screenshot)
	if err != nil {
		logger.Warn("Element detection failed, returning bare screenshot.", zap.Error(err))
		return
	}
	if !result.Empty() {
		resp.OmniParserResult = result
	}
}
