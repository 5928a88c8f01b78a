package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/bidstream/bidstream/internal/domain"
)

// EventBus implements domain.EventBus using Redis Pub/Sub. Delivery is
// best-effort: subscribers only receive messages published while they are
// connected, which matches the fan-out contract (a reconnecting viewer
// fetches current state via the snapshot query instead of replaying events).
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (b *EventBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel emitting messages tagged with their concrete topic. The
// subscription closes when the context is cancelled; the returned channel is
// closed at that point as well. Topics containing glob wildcards use
// PSUBSCRIBE.
func (b *EventBus) Subscribe(ctx context.Context, topic string) (<-chan domain.BusMessage, error) {
	var pubsub *redis.PubSub
	if hasPattern(topic) {
		pubsub = b.rdb.PSubscribe(ctx, topic)
	} else {
		pubsub = b.rdb.Subscribe(ctx, topic)
	}

	// Wait for the subscription confirmation before handing out the channel.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", topic, err)
	}

	out := make(chan domain.BusMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Topic: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the topic includes glob-style wildcards.
func hasPattern(topic string) bool {
	return strings.ContainsAny(topic, "*?[")
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
