// internal/backend/browser/context.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from session that is also canceled
// when op is done.
//
// chromedp finds its browser and target through values on the context, and
// only the session context carries them. A request context from the router
// or an HTTP handler does not, so deriving from op would send the actions
// nowhere. op contributes its cancellation and deadline and nothing else.
// The returned cancel must be called to release the watcher goroutine.
func CombineContext(session, op context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(session)

	go func() {
		select {
		case <-op.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}

// valueOnlyContext keeps the parent's values, including the CDP target, but
// none of its deadline or cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that carries ctx's values but is never canceled by
// it. A dispatched interaction runs on a detached context so that a caller
// giving up does not leave the page half-way through a gesture.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
