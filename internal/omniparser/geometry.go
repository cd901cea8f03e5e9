// internal/omniparser/geometry.go
package omniparser

import (
	"math"
	"strings"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// CenterOf converts a normalized [x, y, width, height] box into the pixel
// coordinate of its center, kept inside the viewport.
func CenterOf(box [4]float64, viewport schemas.Viewport) schemas.Coordinate {
	x := (box[0] + box[2]/2) * float64(viewport.Width)
	y := (box[1] + box[3]/2) * float64(viewport.Height)
	return schemas.Coordinate{
		X: clamp(int(math.Round(x)), viewport.Width),
		Y: clamp(int(math.Round(y)), viewport.Height),
	}
}

// ElementCenter looks up element id in result and returns its center. The id
// may be given bare ("7") or with its label prefix ("ID 7").
func ElementCenter(result *schemas.OmniParserResult, id string, viewport schemas.Viewport) (schemas.Coordinate, bool) {
	if result.Empty() {
		return schemas.Coordinate{}, false
	}
	id = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(id), "ID"))
	box, ok := result.LabelCoordinates[id]
	if !ok {
		return schemas.Coordinate{}, false
	}
	return CenterOf(box, viewport), true
}

func clamp(v, size int) int {
	if v < 0 {
		return 0
	}
	if size > 0 && v >= size {
		return size - 1
	}
	return v
}
