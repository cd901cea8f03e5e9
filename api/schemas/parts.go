package schemas

// -- Message Part Schemas --

// PartKind is the discriminator of a MessagePart.
type PartKind string

const (
	PartText             PartKind = "text"
	PartAction           PartKind = "perform_action"
	PartActionResult     PartKind = "perform_action_result"
	PartFollowupQuestion PartKind = "ask_followup_question"
	PartCompleteTask     PartKind = "complete_task"
	PartExploreOutput    PartKind = "explore_output"
)

// MessagePart is one ordered element of a parsed model message. Exactly one of
// the payload fields is set, matching Kind.
type MessagePart struct {
	Kind       PartKind           `json:"kind"`
	Text       string             `json:"text,omitempty"`
	Action     *ActionDirective   `json:"action,omitempty"`
	Result     *ActionResponse    `json:"result,omitempty"`
	Question   string             `json:"question,omitempty"`
	Completion *TaskCompletion    `json:"completion,omitempty"`
	Elements   []ClickableElement `json:"elements,omitempty"`
}

// TaskCompletion is the body of a complete_task block.
type TaskCompletion struct {
	Result  string `json:"result"`
	Command string `json:"command,omitempty"`
}

// ClickableElement is one entry of an explore_output block.
type ClickableElement struct {
	Text             string `json:"text"`
	Coordinates      string `json:"coordinates"`
	AboutThisElement string `json:"about_this_element,omitempty"`
}
