// internal/router/router.go
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/notify"
)

// Factory opens a backend session.
type Factory func(ctx context.Context) (backend.Backend, error)

// ActionObserver is told about every directive that reached a backend.
type ActionObserver interface {
	ObserveAction(source schemas.BackendSource, action schemas.ActionKind, status schemas.ActionStatus, elapsed time.Duration)
}

// BackendState describes a backend slot for health reporting.
type BackendState string

const (
	StateDisabled BackendState = "disabled"
	StatePending  BackendState = "pending"
	StateReady    BackendState = "ready"
	StateFailed   BackendState = "failed"
)

// slot is one row of the dispatch table. mu is held for the whole of a
// directive, so a backend never runs two directives at once.
type slot struct {
	source   schemas.BackendSource
	viewport schemas.Viewport
	factory  Factory
	// lazy slots are opened by launch only; the others are opened by Start
	// and retried on demand.
	lazy bool

	mu      sync.Mutex
	backend backend.Backend
	state   atomic.Value
}

func (s *slot) setState(state BackendState) { s.state.Store(state) }

func (s *slot) State() BackendState {
	if v, ok := s.state.Load().(BackendState); ok {
		return v
	}
	return StateDisabled
}

// Option customizes a Router.
type Option func(*Router)

// WithBrowser registers the browser factory. The browser is opened by the
// first launch directive.
func WithBrowser(factory Factory, viewport schemas.Viewport) Option {
	return func(r *Router) { r.register(schemas.SourceBrowser, factory, viewport, true) }
}

// WithDesktop registers the desktop factory. The desktop is opened by Start.
func WithDesktop(factory Factory, viewport schemas.Viewport) Option {
	return func(r *Router) { r.register(schemas.SourceDesktop, factory, viewport, false) }
}

// WithObserver reports executed directives, typically to metrics.
func WithObserver(o ActionObserver) Option {
	return func(r *Router) { r.observer = o }
}

// WithPublisher broadcasts errors raised before a backend could take over.
func WithPublisher(p notify.Publisher) Option {
	return func(r *Router) { r.publisher = p }
}

// Router maps directives onto backends. It enforces which actions each
// backend accepts, validates parameters, and owns backend lifecycles.
type Router struct {
	logger    *zap.Logger
	table     map[schemas.BackendSource]*slot
	observer  ActionObserver
	publisher notify.Publisher
}

// New creates a router. Both backends have a slot; one without a factory
// reports itself disabled.
func New(logger *zap.Logger, opts ...Option) *Router {
	r := &Router{
		logger: logger.Named("router"),
		table:  make(map[schemas.BackendSource]*slot, 2),
	}
	r.register(schemas.SourceBrowser, nil, schemas.Viewport{}, true)
	r.register(schemas.SourceDesktop, nil, schemas.Viewport{}, false)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) register(source schemas.BackendSource, factory Factory, viewport schemas.Viewport, lazy bool) {
	s := &slot{source: source, factory: factory, viewport: viewport, lazy: lazy}
	if factory == nil {
		s.setState(StateDisabled)
	} else {
		s.setState(StatePending)
	}
	r.table[source] = s
}

// Start opens every eagerly initialized backend. A failure is returned but
// not final: the next directive for that backend tries again.
func (r *Router) Start(ctx context.Context) error {
	var errs []error
	for _, s := range r.table {
		if s.lazy || s.factory == nil {
			continue
		}
		s.mu.Lock()
		if s.backend == nil {
			if err := r.open(ctx, s); err != nil {
				errs = append(errs, err)
			}
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Execute runs one directive. Every per-action failure comes back as an
// error response; the returned error is reserved for an unknown source and
// for a browser directive that arrives before any launch.
func (r *Router) Execute(ctx context.Context, d schemas.ActionDirective) (*schemas.ActionResponse, error) {
	source := d.EffectiveSource()
	s, ok := r.table[source]
	if !ok {
		r.logger.Error("Directive names an unknown backend.", zap.String("source", string(d.Source)))
		return nil, unknownSource(d)
	}
	logger := r.logger.With(zap.String("source", string(source)), zap.String("action", string(d.Action)))

	if !Known(d.Action) {
		return r.reject(logger, s, d.Action,
			backend.NewError(backend.ErrUnsupportedAction, d.Action, fmt.Sprintf("Unsupported action: %s", d.Action), nil)), nil
	}
	if !Supports(source, d.Action) {
		return r.reject(logger, s, d.Action, capabilityError(source, d.Action)), nil
	}
	req, err := buildRequest(d, s.viewport)
	if err != nil {
		return r.reject(logger, s, d.Action, err), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, resp, err := r.acquire(ctx, logger, s, req)
	if err != nil || resp != nil {
		return resp, err
	}
	resp = r.run(ctx, s, b, req)

	if d.Action == schemas.ActionClose && resp.Succeeded() {
		s.backend = nil
		s.setState(StatePending)
		logger.Info("Browser session closed by directive.")
	}
	return resp, nil
}

// acquire returns the slot's backend, opening it if the directive allows.
// Exactly one of the results is set.
func (r *Router) acquire(ctx context.Context, logger *zap.Logger, s *slot, req backend.Request) (backend.Backend, *schemas.ActionResponse, error) {
	if s.backend != nil {
		return s.backend, nil, nil
	}
	action := req.Action()
	if s.factory == nil {
		return nil, r.notReady(ctx, logger, s, action, fmt.Sprintf("The %s backend is not configured", s.source), nil), nil
	}

	if !s.lazy {
		if err := r.open(ctx, s); err != nil {
			return nil, r.notReady(ctx, logger, s, action, fmt.Sprintf("The %s backend is not ready", s.source), err), nil
		}
		return s.backend, nil, nil
	}

	switch action {
	case schemas.ActionLaunch:
		if err := r.open(ctx, s); err != nil {
			return nil, r.notReady(ctx, logger, s, action, "Failed to start the browser", err), nil
		}
		return s.backend, nil, nil
	case schemas.ActionClose:
		return nil, schemas.Success("Browser is not running", ""), nil
	}

	target := autoLaunchTarget(req.Directive)
	if target == "" {
		logger.Warn("Browser directive received before launch.")
		return nil, nil, notLaunched(req.Directive)
	}
	launch, err := buildRequest(schemas.ActionDirective{
		Action: schemas.ActionLaunch,
		Source: schemas.SourceBrowser,
		URL:    target,
	}, s.viewport)
	if err != nil {
		return nil, nil, notLaunched(req.Directive)
	}

	logger.Info("Launching browser implicitly.", zap.String("url", launch.URL))
	if err := r.open(ctx, s); err != nil {
		return nil, r.notReady(ctx, logger, s, action, "Failed to start the browser", err), nil
	}
	if resp := r.run(ctx, s, s.backend, launch); !resp.Succeeded() {
		return nil, resp, nil
	}
	return s.backend, nil, nil
}

func (r *Router) open(ctx context.Context, s *slot) error {
	b, err := s.factory(ctx)
	if err != nil {
		s.setState(StateFailed)
		r.logger.Warn("Backend failed to start.", zap.String("source", string(s.source)), zap.Error(err))
		return fmt.Errorf("failed to start %s backend: %w", s.source, err)
	}
	s.backend = b
	s.setState(StateReady)
	r.logger.Info("Backend ready.", zap.String("source", string(s.source)))
	return nil
}

func (r *Router) run(ctx context.Context, s *slot, b backend.Backend, req backend.Request) *schemas.ActionResponse {
	start := time.Now()
	resp := b.ExecuteAction(ctx, req)
	if resp == nil {
		resp = backend.NewError(backend.ErrInteraction, req.Action(), fmt.Sprintf("Failed to execute %s", req.Action()), nil).Response()
	}
	r.observe(s.source, req.Action(), resp.Status, time.Since(start))
	return resp
}

// reject answers a directive that never reached a backend.
func (r *Router) reject(logger *zap.Logger, s *slot, action schemas.ActionKind, err error) *schemas.ActionResponse {
	logger.Info("Directive rejected.", zap.Error(err))
	r.observe(s.source, action, schemas.StatusError, 0)
	return backend.ResponseFor(action, err)
}

func (r *Router) notReady(ctx context.Context, logger *zap.Logger, s *slot, action schemas.ActionKind, message string, err error) *schemas.ActionResponse {
	resp := r.reject(logger, s, action, backend.NewError(backend.ErrNotReady, action, message, err))
	if r.publisher != nil {
		payload := schemas.ActionErrorPayload{Action: action, Message: resp.Message}
		if pubErr := r.publisher.Publish(ctx, s.source, schemas.NotifyActionError, payload); pubErr != nil {
			logger.Debug("Notification dropped.", zap.Error(pubErr))
		}
	}
	return resp
}

func (r *Router) observe(source schemas.BackendSource, action schemas.ActionKind, status schemas.ActionStatus, elapsed time.Duration) {
	if r.observer != nil {
		r.observer.ObserveAction(source, action, status, elapsed)
	}
}

// Capture snapshots an open backend. It waits for a directive in flight on
// that backend, so the snapshot reflects its outcome. Capture never opens a
// backend.
func (r *Router) Capture(ctx context.Context, source schemas.BackendSource) (backend.State, error) {
	s, ok := r.table[source]
	if !ok {
		return backend.State{}, &Error{Kind: KindRouting, Code: backend.ErrParameter, Source: source, Err: ErrUnknownSource}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return backend.State{}, &Error{Kind: KindNotInitialized, Code: backend.ErrNotInitialized, Source: source, Err: ErrBackendNotOpen}
	}
	state, err := s.backend.CaptureState(ctx)
	if err != nil {
		return backend.State{}, fmt.Errorf("failed to capture %s state: %w", source, err)
	}
	return state, nil
}

// States reports every backend slot, for health checks. It never waits on a
// running directive.
func (r *Router) States() map[schemas.BackendSource]BackendState {
	states := make(map[schemas.BackendSource]BackendState, len(r.table))
	for source, s := range r.table {
		states[source] = s.State()
	}
	return states
}

// Close shuts every open backend down, waiting for in-flight directives.
func (r *Router) Close(ctx context.Context) error {
	var errs []error
	for _, s := range r.table {
		s.mu.Lock()
		if s.backend != nil {
			if err := s.backend.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("failed to close %s backend: %w", s.source, err))
			}
			s.backend = nil
			if s.factory != nil {
				s.setState(StatePending)
			}
		}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}
