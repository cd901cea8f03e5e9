// File: internal/service/runtime.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/omniparser"
	"github.com/xkilldash9x/pilot/internal/protocol"
)

// ErrNoDirective is returned by Consume when the stream carried no directive.
var ErrNoDirective = errors.New("turn contained no directive")

// Executor runs one directive. *router.Router implements it.
type Executor interface {
	Execute(ctx context.Context, d schemas.ActionDirective) (*schemas.ActionResponse, error)
}

// TurnResult is the outcome of one model turn.
type TurnResult struct {
	Parts     []schemas.MessagePart    `json:"parts"`
	Directive *schemas.ActionDirective `json:"directive,omitempty"`
	Response  *schemas.ActionResponse  `json:"response,omitempty"`
	// Markup is the perform_action_result block fed back to the model.
	Markup string `json:"markup,omitempty"`
	// Ignored counts directives after the first, which are never executed.
	Ignored int `json:"ignored,omitempty"`
}

// Runtime executes model turns. Turns are serialized: a directive never
// starts while another is in flight.
type Runtime struct {
	executor  Executor
	viewports map[schemas.BackendSource]schemas.Viewport
	logger    *zap.Logger

	mu sync.Mutex
	// annotations holds the latest element map per backend, so a directive
	// can name a marker instead of a coordinate.
	annotations map[schemas.BackendSource]*schemas.OmniParserResult
}

// NewRuntime creates a runtime over executor. viewports are used to turn
// element markers into coordinates.
func NewRuntime(executor Executor, viewports map[schemas.BackendSource]schemas.Viewport, logger *zap.Logger) *Runtime {
	return &Runtime{
		executor:    executor,
		viewports:   viewports,
		logger:      logger.Named("runtime"),
		annotations: make(map[schemas.BackendSource]*schemas.OmniParserResult),
	}
}

// HandleText runs the first directive in text, if any. The returned error is
// reserved for failures that abort the turn; per-action failures are in
// Response.
func (r *Runtime) HandleText(ctx context.Context, text string) (*TurnResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result := &TurnResult{Parts: protocol.Parse(text)}
	d, ok := protocol.ExtractAction(text)
	if !ok {
		return result, nil
	}
	if n := protocol.CountActions(text); n > 1 {
		result.Ignored = n - 1
		r.logger.Warn("Turn carried several directives; only the first runs.", zap.Int("ignored", result.Ignored))
	}
	if err := r.execute(ctx, d, result); err != nil {
		return result, err
	}
	return result, nil
}

// Consume reads a streamed turn. The first complete directive runs as soon as
// it has arrived and nothing opened before it is still unclosed, exactly once;
// directives in later chunks are ignored. The stream is drained until closed,
// and a directive that only settles at the end of the stream runs then.
func (r *Runtime) Consume(ctx context.Context, chunks <-chan string) (*TurnResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		buf      strings.Builder
		result   = &TurnResult{}
		executed bool
		execErr  error
	)
	for {
		select {
		case <-ctx.Done():
			result.Parts = protocol.Parse(buf.String())
			return result, ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				text := buf.String()
				result.Parts = protocol.Parse(text)
				if !executed {
					d, found := protocol.ExtractAction(text)
					if !found {
						return result, ErrNoDirective
					}
					execErr = r.execute(ctx, d, result)
				}
				result.Ignored = max(protocol.CountActions(text)-1, 0)
				return result, execErr
			}
			buf.WriteString(chunk)
			if executed {
				continue
			}
			if d, found := protocol.ExtractSettledAction(buf.String()); found {
				executed = true
				execErr = r.execute(ctx, d, result)
			}
		}
	}
}

func (r *Runtime) execute(ctx context.Context, d *schemas.ActionDirective, result *TurnResult) error {
	directive := r.resolveMarker(*d)
	result.Directive = &directive

	resp, err := r.executor.Execute(ctx, directive)
	if err != nil {
		r.logger.Error("Directive aborted the turn.", zap.String("action", string(directive.Action)), zap.Error(err))
		return err
	}
	result.Response = resp

	markup, err := protocol.RenderActionResult(resp)
	if err != nil {
		return fmt.Errorf("failed to render action result: %w", err)
	}
	result.Markup = markup

	if !resp.OmniParserResult.Empty() {
		r.annotations[directive.EffectiveSource()] = resp.OmniParserResult
	}
	return nil
}

// resolveMarker fills in the coordinate of a directive that only names an
// element marker from the latest annotated screenshot.
func (r *Runtime) resolveMarker(d schemas.ActionDirective) schemas.ActionDirective {
	if d.Coordinate != "" || strings.TrimSpace(d.MarkerNumber) == "" {
		return d
	}
	source := d.EffectiveSource()
	c, ok := omniparser.ElementCenter(r.annotations[source], d.MarkerNumber, r.viewports[source])
	if !ok {
		r.logger.Debug("Marker not found in latest annotations.", zap.String("marker", d.MarkerNumber))
		return d
	}
	d.Coordinate = fmt.Sprintf("%d,%d", c.X, c.Y)
	r.logger.Debug("Resolved marker to coordinate.", zap.String("marker", d.MarkerNumber), zap.String("coordinate", d.Coordinate))
	return d
}
