package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"relaygate/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventMessagePublished EventType = "message.published"
	EventPresenceUpdated  EventType = "presence.updated"
)

// Event is one cross-instance relay record. InstanceID lets a subscriber
// skip events it originated itself.
type Event struct {
	Type       EventType        `json:"type"`
	InstanceID string           `json:"instance_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Namespace  domain.Namespace `json:"namespace,omitempty"`
	Channel    string           `json:"channel,omitempty"`
	ActorID    domain.ActorID   `json:"actor_id,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
}

// EventBus relays room broadcasts and presence deltas between gateway
// instances over Redis pub/sub.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
	channels   []string
}

// NewEventBus creates a new event bus
func NewEventBus(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channels:   []string{"relaygate:events"},
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channels[0], data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"namespace", event.Namespace,
		"channel", event.Channel,
	)

	return nil
}

// Subscribe subscribes to events and calls handler for each event
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channels...)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip events from this instance
			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// PublishBroadcast relays a room broadcast to sibling instances.
func (eb *EventBus) PublishBroadcast(ctx context.Context, namespace domain.Namespace, channel string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast payload: %w", err)
	}

	return eb.Publish(ctx, &Event{
		Type:      EventMessagePublished,
		Namespace: namespace,
		Channel:   channel,
		Payload:   raw,
	})
}

// PublishPresence relays an actor's presence summary to sibling instances.
// An empty connection list in the record signals offline.
func (eb *EventBus) PublishPresence(ctx context.Context, record *domain.PresenceRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}

	return eb.Publish(ctx, &Event{
		Type:    EventPresenceUpdated,
		ActorID: record.ActorID,
		Payload: raw,
	})
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
