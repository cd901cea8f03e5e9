// internal/backend/browser/adapter.go
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/notify"
	"github.com/xkilldash9x/pilot/internal/stability"
)

// MsgNoElement is returned when nothing is under a requested coordinate.
const MsgNoElement = "No element found at specified coordinates"

// Settings groups the configuration sections the adapter reads.
type Settings struct {
	Browser   config.BrowserConfig
	Loading   config.LoadingConfig
	Stability config.StabilityConfig
}

// Option customizes an Adapter.
type Option func(*Adapter)

// WithAnnotator attaches element detection to confirming screenshots.
func WithAnnotator(a backend.Annotator) Option {
	return func(ad *Adapter) { ad.annotator = a }
}

// WithSettleHook observes every stability wait.
func WithSettleHook(h backend.SettleHook) Option {
	return func(ad *Adapter) { ad.onSettle = h }
}

// withSleep replaces the settle-delay sleeper.
func withSleep(sleep func(context.Context, time.Duration) error) Option {
	return func(ad *Adapter) { ad.sleep = sleep }
}

// session is the live state of one browser tab. It is owned by the Adapter
// and only touched under its mutex.
type session struct {
	lastURL   string
	lastFocus *schemas.Coordinate
	lastHover *schemas.Coordinate
	closed    bool
}

// Adapter executes directives against a chromedp page.
type Adapter struct {
	page      Page
	settings  Settings
	logger    *zap.Logger
	publisher notify.Publisher
	annotator backend.Annotator
	onSettle  backend.SettleHook
	sleep     func(context.Context, time.Duration) error
	monitor   stability.Monitor
	handlers  backend.HandlerTable

	mu      sync.Mutex
	session session
	poller  *loadingPoller
}

var _ backend.Backend = (*Adapter)(nil)

// New wraps an open page.
func New(page Page, settings Settings, logger *zap.Logger, publisher notify.Publisher, opts ...Option) *Adapter {
	a := &Adapter{
		page:      page,
		settings:  settings,
		logger:    logger.Named("browser_adapter"),
		publisher: publisher,
		sleep:     stability.Sleep,
		// Pages settle when document height and node count stop changing.
		monitor: stability.ConvergenceMonitor{
			Sample: page.ContentSize,
			Options: stability.ConvergenceOptions{
				Interval:      settings.Stability.Interval,
				StableSamples: settings.Stability.StableSamples,
				Timeout:       settings.Stability.Timeout,
			},
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.poller = newLoadingPoller(a)
	a.handlers = backend.HandlerTable{
		schemas.ActionLaunch:        a.launch,
		schemas.ActionClick:         a.click,
		schemas.ActionType:          a.typeText,
		schemas.ActionKeyPress:      a.keyPress,
		schemas.ActionScrollUp:      a.scroll,
		schemas.ActionScrollDown:    a.scroll,
		schemas.ActionScroll:        a.scroll,
		schemas.ActionBack:          a.back,
		schemas.ActionHover:         a.hover,
		schemas.ActionGetURL:        a.getURL,
		schemas.ActionDetectLoading: a.detectLoading,
		schemas.ActionSubmitForm:    a.submitForm,
		schemas.ActionClose:         a.closeAction,
	}
	return a
}

// Launch starts a browser per settings and wraps its first tab.
func Launch(ctx context.Context, settings Settings, logger *zap.Logger, publisher notify.Publisher, opts ...Option) (*Adapter, error) {
	page, err := NewChromePage(ctx, settings.Browser, logger)
	if err != nil {
		return nil, err
	}
	return New(page, settings, logger, publisher, opts...), nil
}

// Source implements backend.Backend.
func (a *Adapter) Source() schemas.BackendSource { return schemas.SourceBrowser }

// ExecuteAction implements backend.Backend. Once dispatched, the interaction
// runs on a context detached from the caller, bounded only by the configured
// action timeout.
func (a *Adapter) ExecuteAction(ctx context.Context, req backend.Request) *schemas.ActionResponse {
	a.mu.Lock()
	closed := a.session.closed
	a.mu.Unlock()
	if closed {
		resp := backend.NewError(backend.ErrNotInitialized, req.Action(), "Browser session is closed; launch it again", nil).Response()
		a.publishError(ctx, req.Action(), resp.Message)
		return resp
	}

	actionCtx := Detach(ctx)
	if timeout := a.settings.Browser.ActionTimeout; timeout > 0 {
		var cancel context.CancelFunc
		actionCtx, cancel = context.WithTimeout(actionCtx, timeout)
		defer cancel()
	}

	a.logger.Debug("Executing action.", zap.String("action", string(req.Action())))
	resp := backend.Dispatch(actionCtx, a.logger, a.handlers, req)
	if resp.Succeeded() {
		backend.Annotate(actionCtx, a.logger, a.annotator, resp)
	} else {
		a.publishError(ctx, req.Action(), resp.Message)
	}
	return resp
}

// CaptureState implements backend.Backend.
func (a *Adapter) CaptureState(ctx context.Context) (backend.State, error) {
	shot, err := a.screenshot(ctx)
	if err != nil {
		return backend.State{}, err
	}
	url, err := a.page.URL(ctx)
	if err != nil {
		return backend.State{}, fmt.Errorf("failed to read page url: %w", err)
	}
	return backend.State{Screenshot: shot, URL: url}, nil
}

// Close stops any loading poll and closes the page.
func (a *Adapter) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.session.closed {
		a.mu.Unlock()
		return nil
	}
	a.session.closed = true
	a.mu.Unlock()

	a.poller.stop()
	return a.page.Close(ctx)
}

// LastURL is the most recent URL the adapter observed.
func (a *Adapter) LastURL() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session.lastURL
}

// -- Shared steps --

func (a *Adapter) screenshot(ctx context.Context) (string, error) {
	png, err := a.page.Screenshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to capture screenshot: %w", err)
	}
	return backend.PNGDataURIPrefix + base64.StdEncoding.EncodeToString(png), nil
}

// settle waits for the document to stop changing. Running out of time is
// logged and otherwise treated as stable.
func (a *Adapter) settle(ctx context.Context) {
	res, err := a.monitor.Wait(ctx)
	if err != nil {
		a.logger.Debug("Stability wait interrupted.", zap.Error(err))
		return
	}
	if res.Uncertain() {
		a.logger.Warn("Page did not stabilize before timeout; continuing.",
			zap.Duration("elapsed", res.Elapsed), zap.Int("samples", res.Samples))
	}
	if a.onSettle != nil {
		a.onSettle(schemas.SourceBrowser, res)
	}
}

// confirm optionally waits for stability, then captures the confirming
// screenshot and announces the action.
func (a *Adapter) confirm(ctx context.Context, req backend.Request, message string, settle bool) (*schemas.ActionResponse, error) {
	if settle {
		a.settle(ctx)
	}
	shot, err := a.screenshot(ctx)
	if err != nil {
		return nil, backend.Interaction(req.Action(), "Action completed but the screenshot failed", err)
	}
	a.publish(ctx, schemas.NotifyActionPerformed, schemas.ActionPerformedPayload{
		Action:     req.Action(),
		Coordinate: req.Coordinate,
		Message:    message,
	})
	return schemas.Success(message, shot), nil
}

// clickAt clicks the point while racing a bounded navigation wait. It reports
// whether the click navigated; if so the new URL has been broadcast.
func (a *Adapter) clickAt(ctx context.Context, req backend.Request, at schemas.Coordinate, count int) (bool, error) {
	return a.withNavigation(ctx, func(ctx context.Context) error {
		if err := a.page.Click(ctx, at, count); err != nil {
			return backend.Interaction(req.Action(), "Failed to click at specified coordinates", err)
		}
		return nil
	})
}

// withNavigation runs fn and then waits up to the navigation window for a
// main-frame navigation it caused.
func (a *Adapter) withNavigation(ctx context.Context, fn func(context.Context) error) (bool, error) {
	navigated, stop := a.page.ExpectNavigation(ctx)
	defer stop()

	if err := fn(ctx); err != nil {
		return false, err
	}

	wait := a.settings.Browser.NavigationWait
	if wait <= 0 {
		return false, nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-navigated:
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, nil
	}

	url, err := a.page.URL(ctx)
	if err != nil {
		a.logger.Warn("Navigation detected but the new URL could not be read.", zap.Error(err))
		return true, nil
	}
	a.rememberURL(ctx, url)
	return true, nil
}

// rememberURL records url and broadcasts a change when it differs.
func (a *Adapter) rememberURL(ctx context.Context, url string) {
	a.mu.Lock()
	changed := a.session.lastURL != url
	a.session.lastURL = url
	a.mu.Unlock()
	if changed {
		a.publish(ctx, schemas.NotifyURLChange, schemas.URLChangePayload{URL: url})
	}
}

func (a *Adapter) publish(ctx context.Context, kind schemas.NotificationKind, payload any) {
	if a.publisher == nil {
		return
	}
	if err := a.publisher.Publish(Detach(ctx), schemas.SourceBrowser, kind, payload); err != nil {
		a.logger.Debug("Notification dropped.", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (a *Adapter) publishError(ctx context.Context, action schemas.ActionKind, message string) {
	a.publish(ctx, schemas.NotifyActionError, schemas.ActionErrorPayload{
		Action:  action,
		Message: message,
		URL:     a.LastURL(),
	})
}
