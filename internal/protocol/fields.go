// internal/protocol/fields.go
package protocol

import (
	"html"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/pilot/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Sub-field names recognized inside the top-level blocks.
const (
	fieldAction          = "action"
	fieldSource          = "source"
	fieldURL             = "url"
	fieldCoordinate      = "coordinate"
	fieldText            = "text"
	fieldKey             = "key"
	fieldDirection       = "direction"
	fieldSelector        = "selector"
	fieldAboutThisAction = "about_this_action"
	fieldMarkerNumber    = "marker_number"

	fieldActionStatus  = "action_status"
	fieldActionMessage = "action_message"
	fieldScreenshot    = "screenshot"
	fieldOmniParser    = "omni_parser"
	fieldError         = "error"

	fieldQuestion         = "question"
	fieldResult           = "result"
	fieldCommand          = "command"
	fieldClickableElement = "clickable_element"
	fieldCoordinates      = "coordinates"
	fieldAboutThisElement = "about_this_element"
)

var fieldPatterns = compileFieldPatterns(
	fieldAction, fieldSource, fieldURL, fieldCoordinate, fieldText, fieldKey,
	fieldDirection, fieldSelector, fieldAboutThisAction, fieldMarkerNumber,
	fieldActionStatus, fieldActionMessage, fieldScreenshot, fieldOmniParser, fieldError,
	fieldQuestion, fieldResult, fieldCommand, fieldClickableElement, fieldCoordinates,
	fieldAboutThisElement,
)

func compileFieldPatterns(names ...string) map[string]*regexp.Regexp {
	patterns := make(map[string]*regexp.Regexp, len(names))
	for _, name := range names {
		q := regexp.QuoteMeta(name)
		patterns[name] = regexp.MustCompile(`(?s)<` + q + `>(.*?)</` + q + `>`)
	}
	return patterns
}

// field returns the first occurrence of <name>...</name> inside body, trimmed.
// Each field is matched independently so that ordering and unknown siblings
// inside a block do not matter.
func field(body, name string) (string, bool) {
	m := fieldPatterns[name].FindStringSubmatch(body)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func fieldOr(body, name string) string {
	v, _ := field(body, name)
	return v
}

// rawField is field without trimming. Result values are rendered by
// RenderActionResult, so surrounding whitespace belongs to the value.
func rawField(body, name string) string {
	m := fieldPatterns[name].FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return m[1]
}

// fieldsAll returns every occurrence of <name>...</name>, trimmed, skipping empties.
func fieldsAll(body, name string) []string {
	matches := fieldPatterns[name].FindAllStringSubmatch(body, -1)
	var out []string
	for _, m := range matches {
		if v := strings.TrimSpace(m[1]); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// -- Block extractors --

func extractAction(body string) (schemas.MessagePart, bool) {
	action, ok := field(body, fieldAction)
	if !ok || action == "" {
		return schemas.MessagePart{}, false
	}

	d := &schemas.ActionDirective{
		Action:          schemas.ActionKind(action),
		Source:          schemas.BackendSource(fieldOr(body, fieldSource)),
		URL:             fieldOr(body, fieldURL),
		Coordinate:      fieldOr(body, fieldCoordinate),
		Text:            fieldOr(body, fieldText),
		Key:             fieldOr(body, fieldKey),
		Direction:       fieldOr(body, fieldDirection),
		Selectors:       fieldsAll(body, fieldSelector),
		AboutThisAction: fieldOr(body, fieldAboutThisAction),
		MarkerNumber:    fieldOr(body, fieldMarkerNumber),
	}
	return schemas.MessagePart{Kind: schemas.PartAction, Action: d}, true
}

// extractActionResult decodes a perform_action_result body. Values are entity
// unescaped because RenderActionResult escapes them on the way out.
func extractActionResult(body string) (schemas.MessagePart, bool) {
	resp := &schemas.ActionResponse{
		Status:     schemas.ActionStatus(strings.TrimSpace(unescapedField(body, fieldActionStatus))),
		Message:    unescapedField(body, fieldActionMessage),
		Screenshot: unescapedField(body, fieldScreenshot),
		Error:      unescapedField(body, fieldError),
	}
	if raw := unescapedField(body, fieldOmniParser); raw != "" {
		var omni schemas.OmniParserResult
		if err := json.UnmarshalFromString(raw, &omni); err == nil {
			resp.OmniParserResult = &omni
		}
	}
	return schemas.MessagePart{Kind: schemas.PartActionResult, Result: resp}, true
}

func unescapedField(body, name string) string {
	return html.UnescapeString(rawField(body, name))
}

func extractFollowup(body string) (schemas.MessagePart, bool) {
	q, ok := field(body, fieldQuestion)
	if !ok {
		q = strings.TrimSpace(body)
	}
	return schemas.MessagePart{Kind: schemas.PartFollowupQuestion, Question: q}, true
}

func extractCompletion(body string) (schemas.MessagePart, bool) {
	result, ok := field(body, fieldResult)
	if !ok {
		result = strings.TrimSpace(body)
	}
	return schemas.MessagePart{
		Kind: schemas.PartCompleteTask,
		Completion: &schemas.TaskCompletion{
			Result:  result,
			Command: fieldOr(body, fieldCommand),
		},
	}, true
}

func extractExplore(body string) (schemas.MessagePart, bool) {
	matches := fieldPatterns[fieldClickableElement].FindAllStringSubmatch(body, -1)
	elements := make([]schemas.ClickableElement, 0, len(matches))
	for _, m := range matches {
		elements = append(elements, schemas.ClickableElement{
			Text:             fieldOr(m[1], fieldText),
			Coordinates:      fieldOr(m[1], fieldCoordinates),
			AboutThisElement: fieldOr(m[1], fieldAboutThisElement),
		})
	}
	return schemas.MessagePart{Kind: schemas.PartExploreOutput, Elements: elements}, true
}
