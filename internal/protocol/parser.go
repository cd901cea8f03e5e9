// internal/protocol/parser.go
package protocol

import (
	"github.com/xkilldash9x/pilot/api/schemas"
)

// Parse splits model text into its ordered message parts. It never fails;
// malformed markup degrades to literal text.
func Parse(text string) []schemas.MessagePart {
	sc := NewScanner(text)
	var parts []schemas.MessagePart
	for {
		part, ok := sc.Next()
		if !ok {
			return parts
		}
		parts = append(parts, part)
	}
}

// ExtractAction returns the first action-bearing perform_action block in text.
// Any later directives in the same text are ignored.
func ExtractAction(text string) (*schemas.ActionDirective, bool) {
	sc := NewScanner(text)
	for {
		part, ok := sc.Next()
		if !ok {
			return nil, false
		}
		if part.Kind == schemas.PartAction && part.Action != nil {
			return part.Action, true
		}
	}
}

// ExtractSettledAction is ExtractAction for a turn that is still streaming.
// A directive is held back while a block opened before it still lacks its
// close tag, because that close may yet arrive and take the directive into
// its body.
func ExtractSettledAction(partial string) (*schemas.ActionDirective, bool) {
	sc := NewScanner(partial)
	for {
		part, ok := sc.Next()
		if !ok {
			return nil, false
		}
		if part.Kind == schemas.PartAction && part.Action != nil {
			if len(sc.unclosed) > 0 {
				return nil, false
			}
			return part.Action, true
		}
	}
}

// CountActions reports how many directives the text carries. Only the first is
// ever executed; callers use this to log the discarded remainder.
func CountActions(text string) int {
	n := 0
	for _, p := range Parse(text) {
		if p.Kind == schemas.PartAction {
			n++
		}
	}
	return n
}
