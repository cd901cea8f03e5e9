// internal/backend/browser/keys.go
package browser

import (
	"fmt"
	"runtime"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp/kb"
)

// namedKeys maps the lower-cased key names a model uses to chromedp key runes.
var namedKeys = map[string]string{
	"enter":      kb.Enter,
	"return":     kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"esc":        kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"del":        kb.Delete,
	"insert":     kb.Insert,
	"space":      " ",
	"arrowup":    kb.ArrowUp,
	"up":         kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"down":       kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"left":       kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"right":      kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"f1":         kb.F1,
	"f2":         kb.F2,
	"f3":         kb.F3,
	"f4":         kb.F4,
	"f5":         kb.F5,
	"f6":         kb.F6,
	"f7":         kb.F7,
	"f8":         kb.F8,
	"f9":         kb.F9,
	"f10":        kb.F10,
	"f11":        kb.F11,
	"f12":        kb.F12,
}

// resolveModifier maps a modifier name to its CDP flag. The generic
// accelerator names resolve to Meta on macOS and Control elsewhere.
func resolveModifier(name, platform string) (input.Modifier, bool) {
	switch name {
	case "control", "ctrl", "mod", "accel", "commandorcontrol", "cmdorctrl":
		if platform == "darwin" {
			return input.ModifierMeta, true
		}
		return input.ModifierCtrl, true
	case "meta", "cmd", "command", "super", "win":
		return input.ModifierMeta, true
	case "shift":
		return input.ModifierShift, true
	case "alt", "option", "opt":
		return input.ModifierAlt, true
	}
	return 0, false
}

// resolveKey turns a key spec such as "Enter", "a" or "Control+Shift+T" into
// the keys and modifiers chromedp dispatches. platform is a GOOS value; empty
// means the host.
func resolveKey(spec, platform string) (string, []input.Modifier, error) {
	if platform == "" {
		platform = runtime.GOOS
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", nil, fmt.Errorf("empty key")
	}

	parts := strings.Split(spec, "+")
	key := parts[len(parts)-1]
	mods := parts[:len(parts)-1]
	// "Control++" names the plus key itself.
	if key == "" && len(mods) > 0 && mods[len(mods)-1] == "" {
		key, mods = "+", mods[:len(mods)-1]
	}

	var modifiers []input.Modifier
	for _, m := range mods {
		mod, ok := resolveModifier(strings.ToLower(strings.TrimSpace(m)), platform)
		if !ok {
			return "", nil, fmt.Errorf("unknown modifier %q in %q", m, spec)
		}
		modifiers = append(modifiers, mod)
	}

	if utf8.RuneCountInString(key) == 1 {
		// Letters are sent lower-case with modifiers so Control+A selects all
		// instead of typing an upper-case A.
		if len(modifiers) > 0 {
			key = strings.ToLower(key)
		}
		return key, modifiers, nil
	}
	if named, ok := namedKeys[strings.ToLower(strings.TrimSpace(key))]; ok {
		return named, modifiers, nil
	}
	// A bare modifier press such as "Shift".
	if mod, ok := resolveModifier(strings.ToLower(key), platform); ok && len(modifiers) == 0 {
		return modifierKey(mod), nil, nil
	}
	return "", nil, fmt.Errorf("unknown key %q", key)
}

func modifierKey(mod input.Modifier) string {
	switch mod {
	case input.ModifierShift:
		return kb.Shift
	case input.ModifierAlt:
		return kb.Alt
	case input.ModifierMeta:
		return kb.Meta
	default:
		return kb.Control
	}
}
