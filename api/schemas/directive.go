package schemas

import "strings"

// -- Directive Schemas --

// BackendSource names the surface a directive targets.
type BackendSource string

const (
	SourceBrowser BackendSource = "browser"
	SourceDesktop BackendSource = "desktop"
)

// Valid reports whether the source is one of the known backends.
func (s BackendSource) Valid() bool {
	return s == SourceBrowser || s == SourceDesktop
}

// ActionKind is the verb of a directive.
type ActionKind string

const (
	ActionLaunch        ActionKind = "launch"
	ActionBack          ActionKind = "back"
	ActionClose         ActionKind = "close"
	ActionClick         ActionKind = "click"
	ActionDoubleClick   ActionKind = "doubleClick"
	ActionType          ActionKind = "type"
	ActionKeyPress      ActionKind = "keyPress"
	ActionScrollUp      ActionKind = "scroll_up"
	ActionScrollDown    ActionKind = "scroll_down"
	ActionScroll        ActionKind = "scroll"
	ActionGetURL        ActionKind = "getUrl"
	ActionHover         ActionKind = "hover"
	ActionDetectLoading ActionKind = "detectLoading"
	ActionSubmitForm    ActionKind = "submitForm"
)

// ScrollDirection is the direction argument of the generic scroll action.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// ActionDirective is one parsed perform_action block. All fields other than
// Action are optional and carried verbatim (whitespace-trimmed) from the markup.
type ActionDirective struct {
	Action          ActionKind    `json:"action"`
	Source          BackendSource `json:"source,omitempty"`
	URL             string        `json:"url,omitempty"`
	Coordinate      string        `json:"coordinate,omitempty"`
	Text            string        `json:"text,omitempty"`
	Key             string        `json:"key,omitempty"`
	Direction       string        `json:"direction,omitempty"`
	Selectors       []string      `json:"selectors,omitempty"`
	AboutThisAction string        `json:"about_this_action,omitempty"`
	MarkerNumber    string        `json:"marker_number,omitempty"`
}

// EffectiveSource returns the directive's source, defaulting to the browser
// when none was given.
func (d ActionDirective) EffectiveSource() BackendSource {
	if strings.TrimSpace(string(d.Source)) == "" {
		return SourceBrowser
	}
	return d.Source
}

// Coordinate is a validated integer point in viewport pixels.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Viewport is the pixel size of the surface a coordinate is checked against.
// A zero dimension disables the bound on that axis.
type Viewport struct {
	Width  int `json:"width" mapstructure:"width" yaml:"width"`
	Height int `json:"height" mapstructure:"height" yaml:"height"`
}

// Contains reports whether the point lies inside the viewport.
func (v Viewport) Contains(c Coordinate) bool {
	if c.X < 0 || c.Y < 0 {
		return false
	}
	if v.Width > 0 && c.X >= v.Width {
		return false
	}
	if v.Height > 0 && c.Y >= v.Height {
		return false
	}
	return true
}

// Center returns the middle of the viewport.
func (v Viewport) Center() Coordinate {
	return Coordinate{X: v.Width / 2, Y: v.Height / 2}
}
