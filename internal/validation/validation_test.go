// internal/validation/validation_test.go
package validation_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/validation"
)

var viewport = schemas.Viewport{Width: 900, Height: 600}

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		raw     string
		want    schemas.Coordinate
		wantErr error
	}{
		{raw: "450,300", want: schemas.Coordinate{X: 450, Y: 300}},
		{raw: " 0 , 0 ", want: schemas.Coordinate{X: 0, Y: 0}},
		{raw: "899,599", want: schemas.Coordinate{X: 899, Y: 599}},
		{raw: "", wantErr: validation.ErrMissingParameter},
		{raw: "450", wantErr: validation.ErrInvalidCoordinate},
		{raw: "450,300,1", wantErr: validation.ErrInvalidCoordinate},
		{raw: "12.5,3", wantErr: validation.ErrInvalidCoordinate},
		{raw: "x,y", wantErr: validation.ErrInvalidCoordinate},
		{raw: "99999999999999999999,1", wantErr: validation.ErrInvalidCoordinate},
		{raw: "900,10", wantErr: validation.ErrCoordinateOutOfBounds},
		{raw: "10,600", wantErr: validation.ErrCoordinateOutOfBounds},
		{raw: "-1,10", wantErr: validation.ErrCoordinateOutOfBounds},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.raw), func(t *testing.T) {
			got, err := validation.ParseCoordinate(tt.raw, viewport)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCoordinate_UnboundedViewport(t *testing.T) {
	got, err := validation.ParseCoordinate("5000,7000", schemas.Viewport{})
	require.NoError(t, err)
	assert.Equal(t, schemas.Coordinate{X: 5000, Y: 7000}, got)
}

// Every in-bounds point survives formatting and parsing unchanged; every
// out-of-bounds point is rejected rather than clamped.
func TestParseCoordinate_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		x := rapid.IntRange(-2000, 2000).Draw(t, "x")
		y := rapid.IntRange(-2000, 2000).Draw(t, "y")

		got, err := validation.ParseCoordinate(fmt.Sprintf("%d,%d", x, y), viewport)
		inside := x >= 0 && y >= 0 && x < viewport.Width && y < viewport.Height
		if inside {
			require.NoError(t, err)
			assert.Equal(t, schemas.Coordinate{X: x, Y: y}, got)
		} else {
			require.ErrorIs(t, err, validation.ErrCoordinateOutOfBounds)
		}
	})
}

func TestDirectionOf(t *testing.T) {
	dir, err := validation.DirectionOf(schemas.ActionDirective{Action: schemas.ActionScrollUp})
	require.NoError(t, err)
	assert.Equal(t, schemas.ScrollUp, dir)

	dir, err = validation.DirectionOf(schemas.ActionDirective{Action: schemas.ActionScroll, Direction: " Down "})
	require.NoError(t, err)
	assert.Equal(t, schemas.ScrollDown, dir)

	_, err = validation.DirectionOf(schemas.ActionDirective{Action: schemas.ActionScroll, Direction: "sideways"})
	assert.ErrorIs(t, err, validation.ErrInvalidDirection)

	_, err = validation.DirectionOf(schemas.ActionDirective{Action: schemas.ActionScroll})
	assert.ErrorIs(t, err, validation.ErrMissingParameter)
}

func TestNormalizeURL(t *testing.T) {
	got, err := validation.NormalizeURL("example.com/path")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/path", got)

	got, err = validation.NormalizeURL("http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:3000", got)

	_, err = validation.NormalizeURL("  ")
	assert.ErrorIs(t, err, validation.ErrMissingParameter)

	_, err = validation.NormalizeURL("not a url")
	assert.ErrorIs(t, err, validation.ErrInvalidURL)
}

func TestRequireTextAndKey(t *testing.T) {
	assert.ErrorIs(t, validation.RequireText(""), validation.ErrMissingParameter)
	assert.NoError(t, validation.RequireText(" "))
	assert.ErrorIs(t, validation.RequireKey(" "), validation.ErrMissingParameter)
	assert.NoError(t, validation.RequireKey("Enter"))
}
