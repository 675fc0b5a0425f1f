package auth

import (
	"context"
	"sync"
	"time"
)

// EventType names a session change.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is pushed to every subscriber of a user's session stream.
type Event struct {
	Type   EventType `json:"type"`
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// EventBus fans session events out to subscribers of the same user.
type EventBus interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error)
}

const subscriberBuffer = 8

// MemoryBus is an in-process EventBus.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewMemoryBus constructs an empty bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string]map[chan Event]struct{})}
}

// Publish delivers event to current subscribers. Slow subscribers drop events.
func (b *MemoryBus) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[event.UserID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers a listener until cancel is called or ctx ends.
func (b *MemoryBus) Subscribe(ctx context.Context, userID string) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)
	b.mu.Lock()
	if b.subs[userID] == nil {
		b.subs[userID] = make(map[chan Event]struct{})
	}
	b.subs[userID][ch] = struct{}{}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			delete(b.subs[userID], ch)
			if len(b.subs[userID]) == 0 {
				delete(b.subs, userID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}
