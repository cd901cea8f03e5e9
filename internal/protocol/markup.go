// internal/protocol/markup.go
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// ErrNoActionResult is returned when markup does not contain a perform_action_result element.
var ErrNoActionResult = errors.New("markup does not contain a perform_action_result element")

// RenderActionResult serializes a response into perform_action_result markup
// for the next model turn. Children sit on their own lines but their text is
// written untouched, with carriage returns as character references, so Parse
// and ParseActionResult both recover every value exactly.
func RenderActionResult(resp *schemas.ActionResponse) (string, error) {
	if resp == nil {
		return "", errors.New("cannot render a nil action response")
	}

	doc := etree.NewDocument()
	doc.WriteSettings.CanonicalText = true
	root := doc.CreateElement(string(schemas.PartActionResult))
	child := func(tag, text string) {
		root.CreateText("\n")
		root.CreateElement(tag).SetText(text)
	}

	child(fieldActionStatus, string(resp.Status))
	child(fieldActionMessage, resp.Message)
	if resp.Screenshot != "" {
		child(fieldScreenshot, resp.Screenshot)
	}
	if resp.OmniParserResult != nil {
		raw, err := json.MarshalToString(resp.OmniParserResult)
		if err != nil {
			return "", fmt.Errorf("failed to encode omni parser result: %w", err)
		}
		child(fieldOmniParser, raw)
	}
	if resp.Error != "" {
		child(fieldError, resp.Error)
	}
	root.CreateText("\n")

	out, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to write action result markup: %w", err)
	}
	return out, nil
}

// ParseActionResult is the strict counterpart of RenderActionResult. Unlike
// Parse it requires well-formed XML.
func ParseActionResult(markup string) (*schemas.ActionResponse, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(markup); err != nil {
		return nil, fmt.Errorf("failed to read action result markup: %w", err)
	}
	root := doc.FindElement("//" + string(schemas.PartActionResult))
	if root == nil {
		return nil, ErrNoActionResult
	}

	resp := &schemas.ActionResponse{
		Status:     schemas.ActionStatus(strings.TrimSpace(childText(root, fieldActionStatus))),
		Message:    childText(root, fieldActionMessage),
		Screenshot: childText(root, fieldScreenshot),
		Error:      childText(root, fieldError),
	}
	if raw := childText(root, fieldOmniParser); raw != "" {
		var omni schemas.OmniParserResult
		if err := json.UnmarshalFromString(raw, &omni); err != nil {
			return nil, fmt.Errorf("failed to decode omni parser result: %w", err)
		}
		resp.OmniParserResult = &omni
	}
	return resp, nil
}

func childText(e *etree.Element, tag string) string {
	child := e.SelectElement(tag)
	if child == nil {
		return ""
	}
	return child.Text()
}

// RenderDirective writes a directive back into perform_action markup. Values
// are emitted verbatim, the way a model would write them.
func RenderDirective(d *schemas.ActionDirective) string {
	var b strings.Builder
	b.WriteString("<perform_action>\n")
	writeField(&b, fieldAction, string(d.Action))
	writeField(&b, fieldSource, string(d.Source))
	writeField(&b, fieldURL, d.URL)
	writeField(&b, fieldCoordinate, d.Coordinate)
	writeField(&b, fieldText, d.Text)
	writeField(&b, fieldKey, d.Key)
	writeField(&b, fieldDirection, d.Direction)
	for _, sel := range d.Selectors {
		writeField(&b, fieldSelector, sel)
	}
	writeField(&b, fieldAboutThisAction, d.AboutThisAction)
	writeField(&b, fieldMarkerNumber, d.MarkerNumber)
	b.WriteString("</perform_action>")
	return b.String()
}

func writeField(b *strings.Builder, name, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "<%s>%s</%s>\n", name, value, name)
}
