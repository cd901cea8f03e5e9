// internal/backend/desktop/xdotool.go
package desktop

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// X11 wheel buttons.
const (
	wheelUpButton   = "4"
	wheelDownButton = "5"
)

func millis(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10)
}

func clickCmd(at schemas.Coordinate) []string {
	return []string{"xdotool", "mousemove", "--sync", strconv.Itoa(at.X), strconv.Itoa(at.Y), "click", "1"}
}

func doubleClickCmd(at schemas.Coordinate, delay time.Duration) []string {
	return []string{"xdotool", "mousemove", "--sync", strconv.Itoa(at.X), strconv.Itoa(at.Y),
		"click", "--repeat", "2", "--delay", millis(delay), "1"}
}

// typeCmd injects the literal text in one command; "--" stops text that
// starts with a dash from being read as an option.
func typeCmd(text string, delay time.Duration) []string {
	return []string{"xdotool", "type", "--clearmodifiers", "--delay", millis(delay), "--", text}
}

func keyCmd(keysym string) []string {
	return []string{"xdotool", "key", "--clearmodifiers", keysym}
}

func wheelCmd(direction schemas.ScrollDirection) []string {
	button := wheelDownButton
	if direction == schemas.ScrollUp {
		button = wheelUpButton
	}
	return []string{"xdotool", "click", button}
}

func screenshotCmd() []string {
	return []string{"sh", "-c", "import -window root png:- | base64 -w0"}
}

func processCheckCmd(process string) []string {
	return []string{"pgrep", "-f", process}
}

func windowSearchCmd(class string) []string {
	return []string{"xdotool", "search", "--class", class}
}

func windowNameCmd(windowID string) []string {
	return []string{"xdotool", "getwindowname", windowID}
}

// keysyms maps application key names to xdotool keysyms.
var keysyms = map[string]string{
	"enter":      "Return",
	"return":     "Return",
	"escape":     "Escape",
	"esc":        "Escape",
	"tab":        "Tab",
	"backspace":  "BackSpace",
	"delete":     "Delete",
	"del":        "Delete",
	"insert":     "Insert",
	"space":      "space",
	" ":          "space",
	"arrowup":    "Up",
	"up":         "Up",
	"arrowdown":  "Down",
	"down":       "Down",
	"arrowleft":  "Left",
	"left":       "Left",
	"arrowright": "Right",
	"right":      "Right",
	"pageup":     "Prior",
	"pagedown":   "Next",
	"home":       "Home",
	"end":        "End",
	"+":          "plus",
	"-":          "minus",

	// Modifiers take their left-hand variants.
	"control": "Control_L",
	"ctrl":    "Control_L",
	"shift":   "Shift_L",
	"alt":     "Alt_L",
	"option":  "Alt_L",
	"meta":    "Super_L",
	"cmd":     "Super_L",
	"command": "Super_L",
	"super":   "Super_L",
	"win":     "Super_L",
}

var (
	functionKey = regexp.MustCompile(`^[fF]([1-9]|1[0-2])$`)
	rawKeysym   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
)

// translateKey turns "Enter", "a" or "Control+Shift+T" into an xdotool key
// chord such as "Control_L+Shift_L+T".
func translateKey(spec string) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", fmt.Errorf("empty key")
	}
	parts := strings.Split(spec, "+")
	if len(parts) > 1 && parts[len(parts)-1] == "" {
		// "Control++" names the plus key.
		parts = append(parts[:len(parts)-2], "+")
	}

	out := make([]string, 0, len(parts))
	for _, part := range parts {
		sym, err := translateKeyPart(part)
		if err != nil {
			return "", fmt.Errorf("%w in %q", err, spec)
		}
		out = append(out, sym)
	}
	return strings.Join(out, "+"), nil
}

func translateKeyPart(part string) (string, error) {
	if part != " " {
		part = strings.TrimSpace(part)
	}
	if sym, ok := keysyms[strings.ToLower(part)]; ok {
		return sym, nil
	}
	if functionKey.MatchString(part) {
		return strings.ToUpper(part), nil
	}
	if len([]rune(part)) == 1 {
		return part, nil
	}
	// Anything else must already be a keysym name, e.g. XF86AudioPlay.
	if rawKeysym.MatchString(part) {
		return part, nil
	}
	return "", fmt.Errorf("unknown key %q", part)
}
