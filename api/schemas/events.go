package schemas

import "time"

// -- Notification Schemas --

// NotificationKind identifies a side-channel event broadcast to interested parties.
type NotificationKind string

const (
	NotifyActionPerformed NotificationKind = "action_performed"
	NotifyURLChange       NotificationKind = "url-change"
	NotifyInputFocused    NotificationKind = "input-focused"
	NotifyLoadingState    NotificationKind = "loading-state-update"
	NotifyPageReady       NotificationKind = "page-ready"
	NotifyActionError     NotificationKind = "browser-action-error"
)

// Notification is a single broadcast event. Emission order is preserved per kind.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Source    BackendSource    `json:"source"`
	Timestamp time.Time        `json:"timestamp"`
	Payload   any              `json:"payload,omitempty"`
}

// LoadingState is recomputed on every loading poll.
type LoadingState struct {
	IsLoading       bool     `json:"isLoading"`
	ProgressPercent *float64 `json:"progressPercent,omitempty"`
}

// ActionPerformedPayload accompanies NotifyActionPerformed.
type ActionPerformedPayload struct {
	Action     ActionKind  `json:"action"`
	Coordinate *Coordinate `json:"coordinate,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// URLChangePayload accompanies NotifyURLChange.
type URLChangePayload struct {
	URL string `json:"url"`
}

// InputFocusedPayload accompanies NotifyInputFocused.
type InputFocusedPayload struct {
	Coordinate Coordinate `json:"coordinate"`
	Tag        string     `json:"tag,omitempty"`
}

// ActionErrorPayload accompanies NotifyActionError.
type ActionErrorPayload struct {
	Action  ActionKind `json:"action"`
	Message string     `json:"message"`
	URL     string     `json:"url,omitempty"`
}
