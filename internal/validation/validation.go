// internal/validation/validation.go
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/pilot/api/schemas"
)

var (
	// ErrMissingParameter is returned when a required directive field is empty.
	ErrMissingParameter = errors.New("missing required parameter")
	// ErrInvalidCoordinate is returned for a coordinate that is not "x,y" in integers.
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	// ErrCoordinateOutOfBounds is returned for a coordinate outside the viewport.
	ErrCoordinateOutOfBounds = errors.New("coordinate outside viewport")
	// ErrInvalidDirection is returned for a scroll direction other than up or down.
	ErrInvalidDirection = errors.New("invalid scroll direction")
	// ErrInvalidURL is returned for a launch target that cannot be navigated to.
	ErrInvalidURL = errors.New("invalid url")
)

var coordinatePattern = regexp.MustCompile(`^\s*(-?\d+)\s*,\s*(-?\d+)\s*$`)

// ParseCoordinate turns the raw "x,y" string into integers and checks it
// against the viewport. Out-of-range values are rejected, never clamped.
func ParseCoordinate(raw string, viewport schemas.Viewport) (schemas.Coordinate, error) {
	if strings.TrimSpace(raw) == "" {
		return schemas.Coordinate{}, fmt.Errorf("%w: coordinate", ErrMissingParameter)
	}
	m := coordinatePattern.FindStringSubmatch(raw)
	if m == nil {
		return schemas.Coordinate{}, fmt.Errorf("%w: %q is not in x,y form", ErrInvalidCoordinate, raw)
	}
	x, errX := strconv.Atoi(m[1])
	y, errY := strconv.Atoi(m[2])
	if errX != nil || errY != nil {
		return schemas.Coordinate{}, fmt.Errorf("%w: %q does not fit an integer", ErrInvalidCoordinate, raw)
	}
	c := schemas.Coordinate{X: x, Y: y}
	if !viewport.Contains(c) {
		return schemas.Coordinate{}, fmt.Errorf("%w: (%d,%d) not within %dx%d", ErrCoordinateOutOfBounds, x, y, viewport.Width, viewport.Height)
	}
	return c, nil
}

// ParseDirection validates the direction argument of the generic scroll action.
func ParseDirection(raw string) (schemas.ScrollDirection, error) {
	switch schemas.ScrollDirection(strings.ToLower(strings.TrimSpace(raw))) {
	case schemas.ScrollUp:
		return schemas.ScrollUp, nil
	case schemas.ScrollDown:
		return schemas.ScrollDown, nil
	case "":
		return "", fmt.Errorf("%w: direction", ErrMissingParameter)
	default:
		return "", fmt.Errorf("%w: %q (want up or down)", ErrInvalidDirection, raw)
	}
}

// DirectionOf maps the scroll actions onto a direction. The directional
// variants carry it implicitly; the generic action reads the direction field.
func DirectionOf(d schemas.ActionDirective) (schemas.ScrollDirection, error) {
	switch d.Action {
	case schemas.ActionScrollUp:
		return schemas.ScrollUp, nil
	case schemas.ActionScrollDown:
		return schemas.ScrollDown, nil
	default:
		return ParseDirection(d.Direction)
	}
}

// RequireText checks the free-text argument of the type action.
func RequireText(text string) error {
	if text == "" {
		return fmt.Errorf("%w: text", ErrMissingParameter)
	}
	return nil
}

// RequireKey checks the key argument of the keyPress action.
func RequireKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: key", ErrMissingParameter)
	}
	return nil
}

// NormalizeURL validates a launch target, adding an https scheme when the
// model gave a bare host.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: url", ErrMissingParameter)
	}
	if strings.ContainsAny(raw, " \t\n") {
		return "", fmt.Errorf("%w: %q contains whitespace", ErrInvalidURL, raw)
	}
	if !strings.Contains(raw, "://") && !strings.HasPrefix(raw, "about:") && !strings.HasPrefix(raw, "data:") {
		raw = "https://" + raw
	}
	return raw, nil
}
