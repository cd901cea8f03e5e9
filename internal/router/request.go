// internal/router/request.go
package router

import (
	"strings"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/backend"
	"github.com/xkilldash9x/pilot/internal/validation"
)

// buildRequest validates d against the backend's viewport. Only the fields an
// action consumes are checked; a coordinate is required where the action
// cannot run without one and parsed wherever one is given.
func buildRequest(d schemas.ActionDirective, viewport schemas.Viewport) (backend.Request, error) {
	req := backend.Request{Directive: d}

	switch d.Action {
	case schemas.ActionClick, schemas.ActionDoubleClick, schemas.ActionHover:
		if err := parseCoordinate(&req, viewport, true); err != nil {
			return req, err
		}
	case schemas.ActionType:
		if err := validation.RequireText(d.Text); err != nil {
			return req, parameterError(d.Action, err)
		}
		if err := parseCoordinate(&req, viewport, false); err != nil {
			return req, err
		}
	case schemas.ActionKeyPress:
		if err := validation.RequireKey(d.Key); err != nil {
			return req, parameterError(d.Action, err)
		}
		if err := parseCoordinate(&req, viewport, false); err != nil {
			return req, err
		}
	case schemas.ActionScroll, schemas.ActionScrollUp, schemas.ActionScrollDown:
		direction, err := validation.DirectionOf(d)
		if err != nil {
			return req, parameterError(d.Action, err)
		}
		req.Direction = direction
	case schemas.ActionLaunch:
		url, err := validation.NormalizeURL(d.URL)
		if err != nil {
			return req, parameterError(d.Action, err)
		}
		req.URL = url
	}
	return req, nil
}

func parseCoordinate(req *backend.Request, viewport schemas.Viewport, required bool) error {
	raw := req.Directive.Coordinate
	if strings.TrimSpace(raw) == "" && !required {
		return nil
	}
	c, err := validation.ParseCoordinate(raw, viewport)
	if err != nil {
		return parameterError(req.Action(), err)
	}
	req.Coordinate = &c
	return nil
}
