// internal/backend/desktop/adapter.go
package desktop

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/stability"
)

// Option customizes an Adapter.
type Option func(*Adapter)

// WithAnnotator attaches element detection to confirming screenshots.
func WithAnnotator(a backend.Annotator) Option {
	return func(ad *Adapter) { ad.annotator = a }
}

// WithSettleHook observes every settle wait.
func WithSettleHook(h backend.SettleHook) Option {
	return func(ad *Adapter) { ad.onSettle = h }
}

// WithClock replaces the clock used for URL cache ages.
func WithClock(now func() time.Time) Option {
	return func(ad *Adapter) { ad.now = now }
}

// withTiming replaces the inter-command sleeper and the settle monitor.
func withTiming(sleep func(context.Context, time.Duration) error, monitor func(time.Duration) stability.Monitor) Option {
	return func(ad *Adapter) {
		ad.sleep = sleep
		ad.monitor = monitor
	}
}

// raceMonitor races nothing against the delay: the desktop has no readiness
// signal to offer.
func raceMonitor(d time.Duration) stability.Monitor {
	return stability.RaceMonitor{Fallback: d}
}

// Adapter drives a virtual desktop inside a container with xdotool. There is
// no DOM: every wait after an action is a fixed, configurable settle delay,
// which is an approximation rather than a completion signal.
type Adapter struct {
	runner    CommandRunner
	inspector Inspector
	closer    io.Closer
	cfg       config.DesktopConfig
	logger    *zap.Logger
	publisher notify.Publisher
	annotator backend.Annotator
	onSettle  backend.SettleHook
	handlers  backend.HandlerTable

	sleep   func(context.Context, time.Duration) error
	monitor func(time.Duration) stability.Monitor
	now     func() time.Time

	urls        *urlCache
	extractions singleflight.Group
}

var _ backend.Backend = (*Adapter)(nil)

// New builds an adapter over runner. Commands are serialized per container.
func New(runner CommandRunner, inspector Inspector, cfg config.DesktopConfig, logger *zap.Logger, publisher notify.Publisher, opts ...Option) *Adapter {
	a := &Adapter{
		runner:    newSequentialRunner(cfg.Container, runner),
		inspector: inspector,
		cfg:       cfg,
		logger:    logger.Named("desktop_adapter").With(zap.String("container", cfg.Container)),
		publisher: publisher,
		sleep:     stability.Sleep,
		monitor:   raceMonitor,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.urls = newURLCache(cfg.URLCacheTTL, a.now)
	a.handlers = backend.HandlerTable{
		schemas.ActionClick:       a.click,
		schemas.ActionDoubleClick: a.doubleClick,
		schemas.ActionType:        a.typeText,
		schemas.ActionKeyPress:    a.keyPress,
		schemas.ActionScroll:      a.scroll,
		schemas.ActionScrollUp:    a.scroll,
		schemas.ActionScrollDown:  a.scroll,
		schemas.ActionGetURL:      a.getURL,
	}
	return a
}

// Connect creates a Docker-backed adapter and checks that the container is
// running.
func Connect(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger, publisher notify.Publisher, opts ...Option) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cli, err := NewDockerClient(cfg)
	if err != nil {
		return nil, err
	}
	runner := newDockerRunner(cli, cfg, logger)
	running, err := runner.ContainerRunning(ctx)
	if err != nil {
		cli.Close()
		return nil, err
	}
	if !running {
		cli.Close()
		return nil, fmt.Errorf("desktop container %s is not running", cfg.Container)
	}
	a := New(runner, runner, cfg, logger, publisher, opts...)
	a.closer = cli
	a.logger.Info("Desktop backend connected.")
	return a, nil
}

// Source implements backend.Backend.
func (a *Adapter) Source() schemas.BackendSource { return schemas.SourceDesktop }

// ExecuteAction implements backend.Backend. Every supported action first
// checks that the target application is running.
func (a *Adapter) ExecuteAction(ctx context.Context, req backend.Request) *schemas.ActionResponse {
	// A dispatched command is not abandoned when the caller gives up.
	ctx = context.WithoutCancel(ctx)

	var resp *schemas.ActionResponse
	if _, supported := a.handlers[req.Action()]; supported {
		if err := a.ensureReady(ctx, req.Action()); err != nil {
			resp = backend.ResponseFor(req.Action(), err)
		}
	}
	if resp == nil {
		resp = backend.Dispatch(ctx, a.logger, a.handlers, req)
	}

	if resp.Succeeded() {
		backend.Annotate(ctx, a.logger, a.annotator, resp)
		a.publish(ctx, schemas.NotifyActionPerformed, schemas.ActionPerformedPayload{
			Action:     req.Action(),
			Coordinate: req.Coordinate,
			Message:    resp.Message,
		})
		return resp
	}
	a.publish(ctx, schemas.NotifyActionError, schemas.ActionErrorPayload{
		Action:  req.Action(),
		Message: resp.Message,
		URL:     a.urls.peek(a.cfg.Container),
	})
	return resp
}

// ensureReady verifies the target process is alive. When the check itself
// cannot run it asks the engine whether the container is up, to tell a
// stopped container from a transport fault.
func (a *Adapter) ensureReady(ctx context.Context, action schemas.ActionKind) error {
	_, err := a.runner.Run(ctx, processCheckCmd(a.cfg.TargetProcess)...)
	if err == nil {
		return nil
	}
	var execErr *ExecError
	if errors.As(err, &execErr) && execErr.ExitCode == 1 {
		return backend.NewError(backend.ErrNotReady, action,
			fmt.Sprintf("%s is not running in the desktop container", a.cfg.TargetProcess), nil)
	}
	if a.inspector != nil {
		running, inspectErr := a.inspector.ContainerRunning(ctx)
		if inspectErr == nil && !running {
			return backend.NewError(backend.ErrNotReady, action,
				fmt.Sprintf("Desktop container %s is not running", a.cfg.Container), err)
		}
	}
	return backend.Transport(action, "Failed to reach the desktop container", err)
}

// CaptureState implements backend.Backend.
func (a *Adapter) CaptureState(ctx context.Context) (backend.State, error) {
	shot, err := a.screenshot(ctx)
	if err != nil {
		return backend.State{}, err
	}
	return backend.State{Screenshot: shot, URL: a.currentURL(ctx)}, nil
}

// Close releases the engine client. The container keeps running.
func (a *Adapter) Close(context.Context) error {
	if a.closer == nil {
		return nil
	}
	closer := a.closer
	a.closer = nil
	return closer.Close()
}

// -- Shared steps --

// exec runs cmd, classifying failures for the action.
func (a *Adapter) exec(ctx context.Context, action schemas.ActionKind, cmd []string) (string, error) {
	out, err := a.runner.Run(ctx, cmd...)
	if err == nil {
		return out, nil
	}
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return "", backend.NewError(backend.ErrTransport, action,
			fmt.Sprintf("Desktop command failed: %s", strings.TrimSpace(execErr.Stderr)), err)
	}
	return "", backend.Transport(action, "Failed to reach the desktop container", err)
}

func (a *Adapter) screenshot(ctx context.Context) (string, error) {
	out, err := a.runner.Run(ctx, screenshotCmd()...)
	if err != nil {
		return "", fmt.Errorf("failed to capture desktop screenshot: %w", err)
	}
	return backend.PNGDataURIPrefix + strings.TrimSpace(out), nil
}

// settle waits a named fixed delay.
func (a *Adapter) settle(ctx context.Context, d time.Duration) {
	res, err := a.monitor(d).Wait(ctx)
	if err != nil {
		a.logger.Debug("Settle wait interrupted.", zap.Error(err))
		return
	}
	if a.onSettle != nil {
		a.onSettle(schemas.SourceDesktop, res)
	}
}

// confirm settles, then captures the confirming screenshot.
func (a *Adapter) confirm(ctx context.Context, action schemas.ActionKind, message string, settle time.Duration) (*schemas.ActionResponse, error) {
	a.settle(ctx, settle)
	shot, err := a.screenshot(ctx)
	if err != nil {
		return nil, backend.Transport(action, "Action completed but the screenshot failed", err)
	}
	return schemas.Success(message, shot), nil
}

func (a *Adapter) publish(ctx context.Context, kind schemas.NotificationKind, payload any) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(ctx, schemas.SourceDesktop, kind, payload); err != nil {
		a.logger.Debug("Notification dropped.", zap.String("kind", string(kind)), zap.Error(err))
	}
}
