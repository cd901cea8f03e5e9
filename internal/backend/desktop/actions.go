// internal/backend/desktop/actions.go
package desktop

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
)

func requireCoordinate(req backend.Request) (schemas.Coordinate, error) {
	if req.Coordinate == nil {
		return schemas.Coordinate{}, backend.NewError(backend.ErrParameter, req.Action(), "Coordinate is required", nil)
	}
	return *req.Coordinate, nil
}

func (a *Adapter) click(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	at, err := requireCoordinate(req)
	if err != nil {
		return nil, err
	}
	if _, err := a.exec(ctx, req.Action(), clickCmd(at)); err != nil {
		return nil, err
	}
	return a.confirm(ctx, req.Action(), fmt.Sprintf("Clicked at (%d, %d)", at.X, at.Y), a.cfg.ClickSettleDelay)
}

func (a *Adapter) doubleClick(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	at, err := requireCoordinate(req)
	if err != nil {
		return nil, err
	}
	if _, err := a.exec(ctx, req.Action(), doubleClickCmd(at, a.cfg.DoubleClickDelay)); err != nil {
		return nil, err
	}
	return a.confirm(ctx, req.Action(), fmt.Sprintf("Double-clicked at (%d, %d)", at.X, at.Y), a.cfg.ClickSettleDelay)
}

func (a *Adapter) typeText(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	if req.Coordinate != nil {
		if _, err := a.exec(ctx, req.Action(), clickCmd(*req.Coordinate)); err != nil {
			return nil, err
		}
		if err := a.sleep(ctx, a.cfg.InputSettleDelay); err != nil {
			return nil, err
		}
	}
	if _, err := a.exec(ctx, req.Action(), typeCmd(req.Directive.Text, a.cfg.TypeDelay)); err != nil {
		return nil, err
	}
	return a.confirm(ctx, req.Action(), fmt.Sprintf("Typed %d characters", len([]rune(req.Directive.Text))), a.cfg.InputSettleDelay)
}

func (a *Adapter) keyPress(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	keysym, err := translateKey(req.Directive.Key)
	if err != nil {
		return nil, backend.NewError(backend.ErrParameter, req.Action(), fmt.Sprintf("Unsupported key: %s", req.Directive.Key), err)
	}
	if req.Coordinate != nil {
		if _, err := a.exec(ctx, req.Action(), clickCmd(*req.Coordinate)); err != nil {
			return nil, err
		}
		if err := a.sleep(ctx, a.cfg.InputSettleDelay); err != nil {
			return nil, err
		}
	}
	if _, err := a.exec(ctx, req.Action(), keyCmd(keysym)); err != nil {
		return nil, err
	}
	return a.confirm(ctx, req.Action(), fmt.Sprintf("Pressed %s", req.Directive.Key), a.cfg.InputSettleDelay)
}

// scroll issues a few discrete wheel clicks, then gives content time to load.
func (a *Adapter) scroll(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	direction := req.Direction
	switch req.Action() {
	case schemas.ActionScrollUp:
		direction = schemas.ScrollUp
	case schemas.ActionScrollDown:
		direction = schemas.ScrollDown
	}

	clicks := a.cfg.ScrollClicks
	if clicks <= 0 {
		clicks = 1
	}
	for i := 0; i < clicks; i++ {
		if i > 0 {
			if err := a.sleep(ctx, a.cfg.ScrollClickDelay); err != nil {
				return nil, err
			}
		}
		if _, err := a.exec(ctx, req.Action(), wheelCmd(direction)); err != nil {
			return nil, err
		}
	}
	return a.confirm(ctx, req.Action(), fmt.Sprintf("Scrolled %s", direction), a.cfg.ScrollContentDelay)
}

func (a *Adapter) getURL(ctx context.Context, req backend.Request) (*schemas.ActionResponse, error) {
	url := a.currentURL(ctx)
	shot, err := a.screenshot(ctx)
	if err != nil {
		return nil, backend.Transport(req.Action(), "Failed to capture desktop screenshot", err)
	}
	return schemas.Success(url, shot), nil
}
