// internal/notify/hub.go
package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pilot/api/schemas"
)

// ErrHubClosed is returned by Publish after Shutdown.
var ErrHubClosed = errors.New("notification hub is shut down")

// Publisher is what backends use to broadcast side-channel events.
type Publisher interface {
	Publish(ctx context.Context, source schemas.BackendSource, kind schemas.NotificationKind, payload any) error
}

// Hub fans notifications out to subscribers. A single dispatch goroutine
// delivers events in the order they were published, so events of the same
// kind always arrive in emission order. A subscriber whose buffer is full
// misses the event rather than stalling the publisher.
type Hub struct {
	logger     *zap.Logger
	bufferSize int

	mu          sync.RWMutex
	subscribers map[schemas.NotificationKind][]chan schemas.Notification
	wildcard    []chan schemas.Notification

	queue    chan schemas.Notification
	done     chan struct{}
	stopped  chan struct{}
	shutdown sync.Once
	dropped  atomic.Uint64
}

// NewHub creates a hub and starts its dispatcher. Call Shutdown to stop it.
func NewHub(logger *zap.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	h := &Hub{
		logger:      logger.Named("notify_hub"),
		bufferSize:  bufferSize,
		subscribers: make(map[schemas.NotificationKind][]chan schemas.Notification),
		queue:       make(chan schemas.Notification, bufferSize),
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go h.dispatch()
	return h
}

// Publish stamps and enqueues a notification. It blocks only while the
// dispatch queue is full.
func (h *Hub) Publish(ctx context.Context, source schemas.BackendSource, kind schemas.NotificationKind, payload any) error {
	n := schemas.Notification{
		ID:        uuid.New().String(),
		Kind:      kind,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	select {
	case <-h.done:
		return ErrHubClosed
	default:
	}

	select {
	case h.queue <- n:
		return nil
	case <-h.done:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe returns a channel receiving the given kinds, or every kind when
// none are named, and a function that cancels the subscription.
func (h *Hub) Subscribe(kinds ...schemas.NotificationKind) (<-chan schemas.Notification, func()) {
	ch := make(chan schemas.Notification, h.bufferSize)

	h.mu.Lock()
	select {
	case <-h.done:
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}
	if len(kinds) == 0 {
		h.wildcard = append(h.wildcard, ch)
	}
	for _, k := range kinds {
		h.subscribers[k] = append(h.subscribers[k], ch)
	}
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if !h.remove(ch, kinds) {
				// Shutdown already closed it.
				return
			}
			close(ch)
		})
	}
	return ch, unsubscribe
}

// remove detaches ch. Callers hold h.mu.
func (h *Hub) remove(ch chan schemas.Notification, kinds []schemas.NotificationKind) bool {
	found := false
	if len(kinds) == 0 {
		h.wildcard, found = without(h.wildcard, ch)
	}
	for _, k := range kinds {
		var ok bool
		h.subscribers[k], ok = without(h.subscribers[k], ch)
		found = found || ok
	}
	return found
}

func without(list []chan schemas.Notification, ch chan schemas.Notification) ([]chan schemas.Notification, bool) {
	for i, c := range list {
		if c == ch {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

func (h *Hub) dispatch() {
	defer close(h.stopped)
	for {
		select {
		case n := <-h.queue:
			h.deliver(n)
		case <-h.done:
			// Deliver whatever was accepted before shutdown.
			for {
				select {
				case n := <-h.queue:
					h.deliver(n)
				default:
					return
				}
			}
		}
	}
}

func (h *Hub) deliver(n schemas.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[n.Kind] {
		h.send(ch, n)
	}
	for _, ch := range h.wildcard {
		h.send(ch, n)
	}
}

func (h *Hub) send(ch chan schemas.Notification, n schemas.Notification) {
	select {
	case ch <- n:
	default:
		h.dropped.Add(1)
		h.logger.Warn("Subscriber buffer full, notification dropped.",
			zap.String("kind", string(n.Kind)),
			zap.String("id", n.ID))
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Shutdown stops accepting notifications, delivers those already queued and
// closes every subscriber channel.
func (h *Hub) Shutdown() {
	h.shutdown.Do(func() {
		close(h.done)
		<-h.stopped

		h.mu.Lock()
		defer h.mu.Unlock()
		seen := make(map[chan schemas.Notification]struct{})
		closeOnce := func(ch chan schemas.Notification) {
			if _, ok := seen[ch]; !ok {
				seen[ch] = struct{}{}
				close(ch)
			}
		}
		for _, subs := range h.subscribers {
			for _, ch := range subs {
				closeOnce(ch)
			}
		}
		for _, ch := range h.wildcard {
			closeOnce(ch)
		}
		h.subscribers = make(map[schemas.NotificationKind][]chan schemas.Notification)
		h.wildcard = nil
	})
}
