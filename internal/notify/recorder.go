// internal/notify/recorder.go
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// Recorder is a synchronous Publisher that keeps every notification in memory.
// It backs the one-shot exec command, where there is nobody to stream to, and
// is convenient in tests.
type Recorder struct {
	mu     sync.Mutex
	events []schemas.Notification
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, source schemas.BackendSource, kind schemas.NotificationKind, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, schemas.Notification{
		Kind:      kind,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []schemas.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.Notification, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the recorded kinds in emission order.
func (r *Recorder) Kinds() []schemas.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]schemas.NotificationKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// OfKind returns the recorded notifications of one kind.
func (r *Recorder) OfKind(kind schemas.NotificationKind) []schemas.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []schemas.Notification
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Reset discards everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
