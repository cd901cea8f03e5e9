// internal/backend/browser/actions.go
package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
)

// elementAt resolves the element under the request's coordinate and fails
// with MsgNoElement when there is none.
func (a *Adapter) elementAt(ctx context.Context, req backend.Request) (*Element, error) {
	if req.Coordinate == nil {
		return nil, backend.NewError(backend.ErrParameter, req.Action(), "Coordinate is required", nil)
	}
	el, err := a.page.ElementAt(ctx, *req.Coordinate)
	if err != nil {
		return nil, backend.Interaction(req.Action(), "Failed to inspect the page at specified coordinates", err)
	}
	if el == nil {
		return nil, backend.Interaction(req.Action(), MsgNoElement, nil)
	}
	return el, nil
}

func (a *Adapter) launch(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	navCtx := ctx
	if timeout := a.settings.Browser.NavigationTimeout; timeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := a.page.Navigate(navCtx, req.URL); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return nil, backend.NewError(backend.ErrTimeout, req.Action(),
				fmt.Sprintf("Navigation to %s timed out", req.URL), err)
		}
		return nil, backend.Interaction(req.Action(), fmt.Sprintf("Failed to launch browser at %s", req.URL), err)
	}

	url, err := a.page.URL(ctx)
	if err != nil || url == "" {
		url = req.URL
	}
	a.rememberURL(ctx, url)
	return a.confirm(ctx, req, fmt.Sprintf("Launched browser at %s", url), true)
}

func (a *Adapter) click(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	el, err := a.elementAt(ctx, req)
	if err != nil {
		return nil, err
	}
	at := *req.Coordinate

	if !el.InViewport {
		if err := a.page.ScrollIntoView(ctx, at); err != nil {
			a.logger.Debug("Scroll into view failed; clicking anyway.", zap.Error(err))
		} else if err := a.sleep(ctx, a.settings.Browser.ScrollIntoViewDelay); err != nil {
			return nil, err
		}
	}

	navigated, err := a.clickAt(ctx, req, at, 1)
	if err != nil {
		return nil, err
	}

	if el.Editable {
		a.mu.Lock()
		a.session.lastFocus = &at
		a.mu.Unlock()
		a.publish(ctx, schemas.NotifyInputFocused, schemas.InputFocusedPayload{Coordinate: at, Tag: el.Tag})
	}

	message := fmt.Sprintf("Clicked at (%d, %d)", at.X, at.Y)
	if navigated {
		message += fmt.Sprintf("; navigated to %s", a.LastURL())
	}
	// A completed navigation already implies a settled document.
	return a.confirm(ctx, req, message, !navigated)
}

// typeText focuses the target and emits the text one keystroke at a time so
// per-key handlers fire.
func (a *Adapter) typeText(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	if req.Coordinate != nil {
		el, err := a.elementAt(ctx, req)
		if err != nil {
			return nil, err
		}
		at := *req.Coordinate
		focused := false
		if el.Focusable {
			if focused, err = a.page.Focus(ctx, at); err != nil {
				a.logger.Debug("Direct focus failed; falling back to click.", zap.Error(err))
			}
		}
		if !focused {
			if err := a.page.Click(ctx, at, 1); err != nil {
				return nil, backend.Interaction(req.Action(), "Failed to focus the element at specified coordinates", err)
			}
		}
		if err := a.sleep(ctx, a.settings.Browser.FocusDelay); err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.session.lastFocus = &at
		a.mu.Unlock()
	} else if err := a.refocus(ctx, req); err != nil {
		return nil, err
	}

	for _, r := range req.Directive.Text {
		if err := a.page.PressKey(ctx, string(r)); err != nil {
			return nil, backend.Interaction(req.Action(), "Failed while typing text", err)
		}
		if err := a.sleep(ctx, a.settings.Browser.KeystrokeDelay); err != nil {
			return nil, err
		}
	}
	return a.confirm(ctx, req, fmt.Sprintf("Typed %d characters", len([]rune(req.Directive.Text))), true)
}

// refocus restores focus to the last focused field when nothing holds focus.
func (a *Adapter) refocus(ctx context.Context, req backend.Request) error {
	a.mu.Lock()
	last := a.session.lastFocus
	a.mu.Unlock()
	if last == nil {
		return nil
	}
	active, err := a.page.ActiveElement(ctx)
	if err != nil || active != nil {
		return nil
	}
	a.logger.Debug("Restoring focus to last focused field.", zap.Int("x", last.X), zap.Int("y", last.Y))
	if err := a.page.Click(ctx, *last, 1); err != nil {
		return backend.Interaction(req.Action(), "Failed to restore focus to the last focused field", err)
	}
	return a.sleep(ctx, a.settings.Browser.FocusDelay)
}

func (a *Adapter) keyPress(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	keys, modifiers, err := resolveKey(req.Directive.Key, a.settings.Browser.Platform)
	if err != nil {
		return nil, backend.NewError(backend.ErrParameter, req.Action(), fmt.Sprintf("Unsupported key: %s", req.Directive.Key), err)
	}

	if req.Coordinate != nil {
		active, err := a.page.ActiveElement(ctx)
		if err == nil && active == nil {
			if err := a.page.Click(ctx, *req.Coordinate, 1); err != nil {
				return nil, backend.Interaction(req.Action(), "Failed to focus before key press", err)
			}
			if err := a.sleep(ctx, a.settings.Browser.FocusDelay); err != nil {
				return nil, err
			}
		}
	}

	// Enter in a form, among others, can navigate.
	navigated, err := a.withNavigation(ctx, func(ctx context.Context) error {
		if err := a.page.PressKey(ctx, keys, modifiers...); err != nil {
			return backend.Interaction(req.Action(), fmt.Sprintf("Failed to press %s", req.Directive.Key), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a.confirm(ctx, req, fmt.Sprintf("Pressed %s", req.Directive.Key), !navigated)
}

func (a *Adapter) scroll(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	direction := req.Direction
	switch req.Action() {
	case schemas.ActionScrollUp:
		direction = schemas.ScrollUp
	case schemas.ActionScrollDown:
		direction = schemas.ScrollDown
	}
	delta := a.settings.Browser.ScrollDelta
	if direction == schemas.ScrollUp {
		delta = -delta
	}

	if err := a.page.Wheel(ctx, a.settings.Browser.Viewport.Center(), delta); err != nil {
		return nil, backend.Interaction(req.Action(), fmt.Sprintf("Failed to scroll %s", direction), err)
	}
	if err := a.sleep(ctx, a.settings.Browser.ScrollSettleDelay); err != nil {
		return nil, err
	}
	return a.confirm(ctx, req, fmt.Sprintf("Scrolled %s", direction), false)
}

func (a *Adapter) back(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	if err := a.page.NavigateBack(ctx); err != nil {
		return nil, backend.Interaction(req.Action(), "Failed to navigate back", err)
	}
	url, err := a.page.URL(ctx)
	if err != nil {
		return nil, backend.Interaction(req.Action(), "Navigated back but the new URL could not be read", err)
	}

	// Always announce, even when history lands on the same URL.
	a.mu.Lock()
	a.session.lastURL = url
	a.mu.Unlock()
	a.publish(ctx, schemas.NotifyURLChange, schemas.URLChangePayload{URL: url})

	return a.confirm(ctx, req, fmt.Sprintf("Navigated back to %s", url), true)
}

func (a *Adapter) hover(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	if _, err := a.elementAt(ctx, req); err != nil {
		return nil, err
	}
	at := *req.Coordinate
	if err := a.page.MoveMouse(ctx, at); err != nil {
		return nil, backend.Interaction(req.Action(), "Failed to move the pointer", err)
	}
	a.mu.Lock()
	a.session.lastHover = &at
	a.mu.Unlock()
	return a.confirm(ctx, req, fmt.Sprintf("Hovered at (%d, %d)", at.X, at.Y), false)
}

func (a *Adapter) getURL(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	url, err := a.page.URL(ctx)
	if err != nil {
		return nil, backend.Interaction(req.Action(), "Failed to read the current URL", err)
	}
	a.rememberURL(ctx, url)
	return a.confirm(ctx, req, url, false)
}

func (a *Adapter) detectLoading(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	probe := a.poller.start(ctx, a.loadingSelectors(req.Directive.Selectors))
	message := "No loading indicators detected; page is ready"
	if probe.IsLoading {
		message = "Loading indicators detected; monitoring until the page is ready"
		if probe.Progress != nil {
			message = fmt.Sprintf("Loading in progress (%.0f%%); monitoring until the page is ready", *probe.Progress)
		}
	}
	return a.confirm(ctx, req, message, false)
}

func (a *Adapter) loadingSelectors(requested []string) []string {
	if len(requested) > 0 {
		return requested
	}
	if len(a.settings.Loading.Selectors) > 0 {
		return a.settings.Loading.Selectors
	}
	return defaultLoadingSelectors()
}

func (a *Adapter) submitForm(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	var method string
	navigated, err := a.withNavigation(ctx, func(ctx context.Context) error {
		var err error
		method, err = a.page.SubmitForm(ctx, req.Directive.Selectors)
		if err != nil {
			return backend.Interaction(req.Action(), "Failed to submit the form", err)
		}
		if method == "" {
			return backend.Interaction(req.Action(), "No form found to submit", nil)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Post-submit loading is often AJAX-driven and invisible to the
	// navigation wait, so detection always runs.
	probe := a.poller.start(ctx, a.loadingSelectors(nil))

	message := fmt.Sprintf("Submitted form (%s)", method)
	if navigated {
		message += fmt.Sprintf("; navigated to %s", a.LastURL())
	}
	if probe.IsLoading {
		message += "; waiting for loading to finish"
	}
	return a.confirm(ctx, req, message, !navigated)
}

// closeAction ends the session. The next launch starts a new one.
func (a *Adapter) closeAction(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	if err := a.Close(ctx); err != nil {
		return nil, backend.Interaction(req.Action(), "Failed to close the browser", err)
	}
	a.publish(ctx, schemas.NotifyActionPerformed, schemas.ActionPerformedPayload{Action: req.Action(), Message: "Browser closed"})
	return schemas.Success("Browser closed", ""), nil
}
