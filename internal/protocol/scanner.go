// internal/protocol/scanner.go
package protocol

import (
	"strings"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// tagRule is one row of the top-level tag table.
type tagRule struct {
	name    string
	open    string
	close   string
	extract func(body string) (schemas.MessagePart, bool)
}

func newTagRule(kind schemas.PartKind, extract func(string) (schemas.MessagePart, bool)) tagRule {
	name := string(kind)
	return tagRule{name: name, open: "<" + name + ">", close: "</" + name + ">", extract: extract}
}

var tagTable = []tagRule{
	newTagRule(schemas.PartAction, extractAction),
	newTagRule(schemas.PartActionResult, extractActionResult),
	newTagRule(schemas.PartFollowupQuestion, extractFollowup),
	newTagRule(schemas.PartCompleteTask, extractCompletion),
	newTagRule(schemas.PartExploreOutput, extractExplore),
}

// Scanner walks model text once, left to right, yielding message parts in order.
//
// At each step the earliest opening tag from the tag table wins and the text
// before it is buffered as literal text. The body runs to the first matching
// close tag; blocks do not nest. An opening tag without a close is kept as
// literal text and scanning resumes just past it. Every step advances the
// cursor, so the scan always terminates.
type Scanner struct {
	text    string
	pos     int
	done    bool
	pending strings.Builder
	queue   []schemas.MessagePart
	// unclosed records tags whose close is absent from the rest of the input.
	// Later openings of those tags are literal text without another search.
	unclosed map[string]bool
}

// NewScanner creates a scanner over text.
func NewScanner(text string) *Scanner {
	return &Scanner{text: text, unclosed: make(map[string]bool)}
}

// Next returns the next part, or false once the input is exhausted.
func (s *Scanner) Next() (schemas.MessagePart, bool) {
	for len(s.queue) == 0 && !s.done {
		s.step()
	}
	if len(s.queue) == 0 {
		return schemas.MessagePart{}, false
	}
	part := s.queue[0]
	s.queue = s.queue[1:]
	return part, true
}

func (s *Scanner) step() {
	rest := s.text[s.pos:]
	idx, tag := s.earliestOpen(rest)
	if tag == nil {
		s.pending.WriteString(rest)
		s.pos = len(s.text)
		s.flushText()
		s.done = true
		return
	}

	s.pending.WriteString(rest[:idx])
	bodyStart := idx + len(tag.open)
	end := strings.Index(rest[bodyStart:], tag.close)
	if end < 0 {
		s.unclosed[tag.name] = true
		s.pending.WriteString(tag.open)
		s.pos += bodyStart
		return
	}

	body := rest[bodyStart : bodyStart+end]
	s.pos += bodyStart + end + len(tag.close)
	if part, ok := tag.extract(body); ok {
		s.flushText()
		s.queue = append(s.queue, part)
	}
}

func (s *Scanner) earliestOpen(rest string) (int, *tagRule) {
	best := -1
	var found *tagRule
	for i := range tagTable {
		tag := &tagTable[i]
		if s.unclosed[tag.name] {
			continue
		}
		idx := strings.Index(rest, tag.open)
		if idx >= 0 && (best < 0 || idx < best) {
			best, found = idx, tag
		}
	}
	return best, found
}

func (s *Scanner) flushText() {
	text := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	if text != "" {
		s.queue = append(s.queue, schemas.MessagePart{Kind: schemas.PartText, Text: text})
	}
}
