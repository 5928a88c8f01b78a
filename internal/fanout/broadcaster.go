// Package fanout delivers auction state transitions to channel viewers over
// the event bus. Delivery is best-effort and at-most-once: transport failures
// are logged and swallowed so a broadcast problem can never roll back the
// state transition that produced it.
package fanout

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/bidstream/bidstream/internal/domain"
)

// ChannelTopic is the bus topic carrying events for every viewer of a
// channel.
func ChannelTopic(channelID string) string {
	return "auction:ch:" + channelID
}

// UserTopic is the bus topic carrying events targeted at a single user
// (outbid, won).
func UserTopic(userID string) string {
	return "auction:user:" + userID
}

// AllTopics matches every fan-out topic; the websocket hub subscribes to it.
const AllTopics = "auction:*"

// Broadcaster implements domain.EventPublisher over a raw publish/subscribe
// bus, JSON-encoding event envelopes.
type Broadcaster struct {
	bus    domain.EventBus
	logger *slog.Logger
}

// NewBroadcaster creates a Broadcaster publishing on the given bus.
func NewBroadcaster(bus domain.EventBus, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		bus:    bus,
		logger: logger.With(slog.String("component", "fanout")),
	}
}

// Channel delivers an event to every current viewer of a channel.
func (b *Broadcaster) Channel(ctx context.Context, channelID string, evt domain.Event) {
	evt.ChannelID = channelID
	b.publish(ctx, ChannelTopic(channelID), evt)
}

// User delivers an event to a single user.
func (b *Broadcaster) User(ctx context.Context, userID string, evt domain.Event) {
	b.publish(ctx, UserTopic(userID), evt)
}

func (b *Broadcaster) publish(ctx context.Context, topic string, evt domain.Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}

	data, err := json.Marshal(evt)
	if err != nil {
		b.logger.ErrorContext(ctx, "marshal event failed",
			slog.String("topic", topic),
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := b.bus.Publish(ctx, topic, data); err != nil {
		b.logger.WarnContext(ctx, "publish event failed",
			slog.String("topic", topic),
			slog.String("type", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// Compile-time interface check.
var _ domain.EventPublisher = (*Broadcaster)(nil)
