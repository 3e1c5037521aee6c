package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"watchparty/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType identifies a room lifecycle event; the values are the
// domain.EventRoom* names.
type EventType string

const eventChannel = "watchparty:events"

// Event is one room lifecycle event as seen by a single relay instance.
type Event struct {
	Type       EventType     `json:"type"`
	InstanceID string        `json:"instance_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Room       domain.RoomID `json:"room"`
	Occupants  int           `json:"occupants,omitempty"`
}

// EventBus publishes room lifecycle events over Redis pub/sub so a
// fleet of relays is observable from one place. Rooms themselves stay
// instance-local; the bus carries announcements, not state.
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
	}
}

// Publish broadcasts one event. Best-effort like everything else that
// leaves the relay.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eventChannel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	eb.logger.Debugw("published room event",
		"type", event.Type,
		"room", event.Room,
	)
	return nil
}

// PublishRoomEvent implements ports.EventPublisher.
func (eb *EventBus) PublishRoomEvent(ctx context.Context, eventType string, roomID domain.RoomID, occupants int) error {
	return eb.Publish(ctx, Event{
		Type:      EventType(eventType),
		Room:      roomID,
		Occupants: occupants,
	})
}

// Subscribe delivers events from other relay instances to handler
// until ctx ends. Events published by this instance are skipped.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eventChannel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("dropping malformed event", "error", err, "payload", msg.Payload)
				continue
			}
			if event.InstanceID == eb.instanceID {
				continue
			}
			if err := handler(event); err != nil {
				eb.logger.Warnw("event handler failed", "type", event.Type, "error", err)
			}
		}
	}
}

func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
