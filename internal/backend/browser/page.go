// internal/backend/browser/page.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Element describes the DOM element found at a point.
type Element struct {
	Found      bool    `json:"found"`
	Tag        string  `json:"tag"`
	Editable   bool    `json:"editable"`
	Focusable  bool    `json:"focusable"`
	InViewport bool    `json:"inViewport"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// LoadingProbe is one evaluation of the loading heuristic.
type LoadingProbe struct {
	IsLoading bool     `json:"isLoading"`
	Progress  *float64 `json:"progress"`
}

// State converts the probe into the notification payload.
func (p LoadingProbe) State() schemas.LoadingState {
	return schemas.LoadingState{IsLoading: p.IsLoading, ProgressPercent: p.Progress}
}

// Page is the slice of a browser tab the adapter drives. Every call is
// bounded by ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	NavigateBack(ctx context.Context) error
	URL(ctx context.Context) (string, error)

	// ElementAt returns the element under the viewport point, or nil.
	ElementAt(ctx context.Context, at schemas.Coordinate) (*Element, error)
	// ActiveElement returns the focused element, or nil when focus is on the body.
	ActiveElement(ctx context.Context) (*Element, error)
	ScrollIntoView(ctx context.Context, at schemas.Coordinate) error
	Focus(ctx context.Context, at schemas.Coordinate) (bool, error)

	Click(ctx context.Context, at schemas.Coordinate, count int) error
	MoveMouse(ctx context.Context, at schemas.Coordinate) error
	Wheel(ctx context.Context, at schemas.Coordinate, deltaY float64) error
	PressKey(ctx context.Context, keys string, modifiers ...input.Modifier) error

	ContentSize(ctx context.Context) (int64, error)
	ProbeLoading(ctx context.Context, selectors []string) (LoadingProbe, error)
	// SubmitForm returns how the form was submitted, or "" if none matched.
	SubmitForm(ctx context.Context, selectors []string) (string, error)

	Screenshot(ctx context.Context) ([]byte, error)

	// ExpectNavigation arms a listener for the next main-frame navigation. The
	// returned channel closes once that navigation has loaded. stop releases
	// the listener and must always be called.
	ExpectNavigation(ctx context.Context) (navigated <-chan struct{}, stop func())

	Close(ctx context.Context) error
}

// chromePage drives one chromedp tab.
type chromePage struct {
	ctx         context.Context // tab context carrying the CDP target
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger
	remote      bool
	closed      atomic.Bool

	// runActions points at chromedp.Run; tests may replace it.
	runActions func(ctx context.Context, actions ...chromedp.Action) error
}

var _ Page = (*chromePage)(nil)

// NewChromePage starts (or attaches to) a browser and opens one tab sized to
// the configured viewport. The session outlives ctx; ctx only bounds startup.
func NewChromePage(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (Page, error) {
	logger = logger.Named("chrome")

	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.RemoteURL != "" {
		logger.Info("Attaching to remote browser.", zap.String("remote_url", cfg.RemoteURL))
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	} else {
		opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		opts = append(opts,
			chromedp.Flag("headless", cfg.Headless),
			chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
		)
		if cfg.IgnoreTLSErrors {
			opts = append(opts, chromedp.IgnoreCertErrors)
		}
		if cfg.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
		}
		for _, arg := range cfg.Args {
			name, value := splitFlag(arg)
			opts = append(opts, chromedp.Flag(name, value))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	sugar := logger.Sugar()
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	p := &chromePage{
		ctx:         tabCtx,
		cancel:      tabCancel,
		allocCancel: allocCancel,
		logger:      logger,
		remote:      cfg.RemoteURL != "",
		runActions:  chromedp.Run,
	}

	// The first Run on a fresh context launches the browser.
	startCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()
	err := p.runActions(startCtx, chromedp.EmulateViewport(int64(cfg.Viewport.Width), int64(cfg.Viewport.Height)))
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}
	logger.Info("Browser session started.",
		zap.Int("viewport_width", cfg.Viewport.Width),
		zap.Int("viewport_height", cfg.Viewport.Height))
	return p, nil
}

// splitFlag turns "--name=value" or "name" into a chromedp flag.
func splitFlag(arg string) (string, any) {
	arg = strings.TrimLeft(arg, "-")
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}

// run executes actions on the tab, bounded by both the session and ctx.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if p.closed.Load() {
		return errSessionClosed
	}
	opCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	err := p.runActions(opCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ctx.Err(), err)
	}
	return err
}

var errSessionClosed = errors.New("browser session is closed")

func (p *chromePage) evaluate(ctx context.Context, script string, res any) error {
	return p.run(ctx, chromedp.Evaluate(script, res))
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromePage) NavigateBack(ctx context.Context) error {
	return p.run(ctx, chromedp.NavigateBack())
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, chromedp.Location(&url))
	return url, err
}

func (p *chromePage) element(ctx context.Context, script string) (*Element, error) {
	var el Element
	if err := p.evaluate(ctx, script, &el); err != nil {
		return nil, err
	}
	if !el.Found {
		return nil, nil
	}
	return &el, nil
}

func (p *chromePage) ElementAt(ctx context.Context, at schemas.Coordinate) (*Element, error) {
	return p.element(ctx, pointScript(elementAtScript, at.X, at.Y))
}

func (p *chromePage) ActiveElement(ctx context.Context) (*Element, error) {
	return p.element(ctx, activeElementScript)
}

func (p *chromePage) ScrollIntoView(ctx context.Context, at schemas.Coordinate) error {
	var ok bool
	return p.evaluate(ctx, pointScript(scrollIntoViewScript, at.X, at.Y), &ok)
}

func (p *chromePage) Focus(ctx context.Context, at schemas.Coordinate) (bool, error) {
	var focused bool
	err := p.evaluate(ctx, pointScript(focusScript, at.X, at.Y), &focused)
	return focused, err
}

// Click dispatches a native press/release pair at the point, count times.
func (p *chromePage) Click(ctx context.Context, at schemas.Coordinate, count int) error {
	x, y := float64(at.X), float64(at.Y)
	actions := []chromedp.Action{input.DispatchMouseEvent(input.MouseMoved, x, y)}
	for i := 1; i <= count; i++ {
		actions = append(actions,
			input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(int64(i)),
			input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(int64(i)),
		)
	}
	return p.run(ctx, actions...)
}

func (p *chromePage) MoveMouse(ctx context.Context, at schemas.Coordinate) error {
	return p.run(ctx, input.DispatchMouseEvent(input.MouseMoved, float64(at.X), float64(at.Y)))
}

func (p *chromePage) Wheel(ctx context.Context, at schemas.Coordinate, deltaY float64) error {
	return p.run(ctx, input.DispatchMouseEvent(input.MouseWheel, float64(at.X), float64(at.Y)).
		WithDeltaX(0).
		WithDeltaY(deltaY))
}

func (p *chromePage) PressKey(ctx context.Context, keys string, modifiers ...input.Modifier) error {
	if len(modifiers) == 0 {
		return p.run(ctx, chromedp.KeyEvent(keys))
	}
	return p.run(ctx, chromedp.KeyEvent(keys, chromedp.KeyModifiers(modifiers...)))
}

func (p *chromePage) ContentSize(ctx context.Context) (int64, error) {
	var dims [2]int64
	if err := p.evaluate(ctx, contentSizeScript, &dims); err != nil {
		return 0, err
	}
	return dims[0]<<32 | dims[1], nil
}

func (p *chromePage) ProbeLoading(ctx context.Context, selectors []string) (LoadingProbe, error) {
	var probe LoadingProbe
	arg, err := json.Marshal(selectors)
	if err != nil {
		return probe, err
	}
	err = p.evaluate(ctx, fmt.Sprintf(loadingScript, arg), &probe)
	return probe, err
}

func (p *chromePage) SubmitForm(ctx context.Context, selectors []string) (string, error) {
	if selectors == nil {
		selectors = []string{}
	}
	arg, err := json.Marshal(selectors)
	if err != nil {
		return "", err
	}
	var method string
	err = p.evaluate(ctx, fmt.Sprintf(submitFormScript, arg), &method)
	return method, err
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := p.run(ctx, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

func (p *chromePage) ExpectNavigation(ctx context.Context) (<-chan struct{}, func()) {
	if p.closed.Load() {
		return nil, func() {}
	}
	done := make(chan struct{})
	listenCtx, cancel := CombineContext(p.ctx, ctx)

	var (
		navigated atomic.Bool
		once      sync.Once
	)
	chromedp.ListenTarget(listenCtx, func(ev any) {
		switch e := ev.(type) {
		case *page.EventFrameNavigated:
			if e.Frame != nil && e.Frame.ParentID == "" {
				navigated.Store(true)
			}
		case *page.EventLoadEventFired:
			if navigated.Load() {
				once.Do(func() { close(done) })
			}
		}
	})
	return done, cancel
}

// Close shuts the tab and, for a locally spawned browser, the process. A
// remote browser is left running.
func (p *chromePage) Close(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if !p.remote {
		err = chromedp.Cancel(p.ctx)
	}
	p.cancel()
	p.allocCancel()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close browser session: %w", err)
	}
	p.logger.Info("Browser session closed.")
	return nil
}
