// internal/protocol/fuzz_test.go
package protocol_test

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/xkilldash9x/pilot/api/schemas"
	"github.com/xkilldash9x/pilot/internal/protocol"
)

// -- Fuzz Testing --

// FuzzParse checks that arbitrary model output never panics the scanner and that
// the only directive-bearing part ExtractAction can return is the first one Parse sees.
func FuzzParse(f *testing.F) {
	f.Add("plain text")
	f.Add("<perform_action><action>click</action><coordinate>1,2</coordinate></perform_action>")
	f.Add("<perform_action><action>click</action>")
	f.Add("<complete_task><perform_action></complete_task></perform_action>")
	f.Add("<explore_output><clickable_element><text>a</text></explore_output>")
	f.Add("<perform_action_result><action_status>success</action_status>")

	f.Fuzz(func(t *testing.T, input string) {
		parts := protocol.Parse(input)

		var first *schemas.ActionDirective
		for _, p := range parts {
			if p.Kind == schemas.PartText && strings.TrimSpace(p.Text) != p.Text {
				t.Fatalf("text part is not trimmed: %q", p.Text)
			}
			if p.Kind == schemas.PartAction && first == nil {
				first = p.Action
			}
		}

		got, ok := protocol.ExtractAction(input)
		if ok != (first != nil) {
			t.Fatalf("ExtractAction() ok=%v but Parse() found directive=%v", ok, first != nil)
		}
		if ok && got.Action != first.Action {
			t.Fatalf("ExtractAction() returned %q, Parse() first directive is %q", got.Action, first.Action)
		}
	})
}

// FuzzActionResult_Structured renders a generated response and parses it back
// through the tolerant scanner.
func FuzzActionResult_Structured(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		resp := &schemas.ActionResponse{}
		if err := consumer.GenerateStruct(resp); err != nil {
			return
		}

		markup, err := protocol.RenderActionResult(resp)
		if err != nil {
			return
		}

		// Any output must parse without panicking, whatever the field contents.
		_ = protocol.Parse(markup)
		_, _ = protocol.ParseActionResult(markup)
	})
}
