package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/gamefolio/backend/internal/auth"
	"github.com/gamefolio/backend/internal/logging"
)

const subscriberBuffer = 8

// Bus implements auth.EventBus over Redis pub/sub so events published by one
// instance reach subscribers connected to another.
type Bus struct {
	client redis.UniversalClient
}

// NewBus constructs a bus on client.
func NewBus(client redis.UniversalClient) *Bus {
	return &Bus{client: client}
}

// Publish broadcasts event on the user's channel.
func (b *Bus) Publish(ctx context.Context, event auth.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, eventsChannel(event.UserID), payload).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe listens on the user's channel until cancel is called or ctx ends.
// Slow consumers drop events.
func (b *Bus) Subscribe(ctx context.Context, userID string) (<-chan auth.Event, func(), error) {
	pubsub := b.client.Subscribe(ctx, eventsChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe events: %w", err)
	}

	out := make(chan auth.Event, subscriberBuffer)
	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() { close(done) })
	}

	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event auth.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logging.FromContext(ctx).Warn("discarding malformed session event", "channel", msg.Channel, "error", err)
					continue
				}
				select {
				case out <- event:
				default:
				}
			}
		}
	}()

	return out, cancel, nil
}
