// internal/router/capabilities.go
package router

import (
	"slices"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// capabilities lists the backends that accept each action. A nil entry means
// every backend does.
var capabilities = map[schemas.ActionKind][]schemas.BackendSource{
	schemas.ActionLaunch:      {schemas.SourceBrowser},
	schemas.ActionBack:        {schemas.SourceBrowser},
	schemas.ActionHover:       {schemas.SourceBrowser},
	schemas.ActionClose:       {schemas.SourceBrowser},
	schemas.ActionDoubleClick: {schemas.SourceDesktop},

	schemas.ActionClick:         nil,
	schemas.ActionType:          nil,
	schemas.ActionKeyPress:      nil,
	schemas.ActionScrollUp:      nil,
	schemas.ActionScrollDown:    nil,
	schemas.ActionScroll:        nil,
	schemas.ActionGetURL:        nil,
	schemas.ActionDetectLoading: nil,
	schemas.ActionSubmitForm:    nil,
}

// Known reports whether action is part of the vocabulary at all.
func Known(action schemas.ActionKind) bool {
	_, ok := capabilities[action]
	return ok
}

// Supports reports whether source accepts action. Unknown actions are not
// supported anywhere.
func Supports(source schemas.BackendSource, action schemas.ActionKind) bool {
	sources, ok := capabilities[action]
	if !ok {
		return false
	}
	return sources == nil || slices.Contains(sources, source)
}
