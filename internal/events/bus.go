package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event is a notification about a cart mutation.
type Event struct {
	ID         string          `json:"id"`
	CartID     string          `json:"cart_id"`
	Topic      string          `json:"topic"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id. The payload is encoded to JSON once so
// every downstream handler sees the same bytes.
func New(cartID, topic string, payload any, at time.Time) (Event, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if strings.TrimSpace(cartID) == "" {
		return Event{}, errors.New("events: cart id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	return Event{
		ID:         uuid.NewString(),
		CartID:     cartID,
		Topic:      topic,
		OccurredAt: at.UTC(),
		Payload:    encoded,
	}, nil
}

// DeliveryScheduler hands events to asynchronous downstream delivery.
type DeliveryScheduler interface {
	Schedule(ctx context.Context, event Event) error
}

// Notifier reacts to emitted events (logging, metrics, etc.).
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Bus fans events out to downstream handlers. A nil or disabled bus drops
// every event without touching any handler.
type Bus struct {
	Enabled   bool
	Scheduler DeliveryScheduler
	Notifiers []Notifier
}

// Emit dispatches events in order to all configured handlers. Handler
// failures do not stop delivery to the others; they are joined and returned.
func (b *Bus) Emit(ctx context.Context, evs ...Event) error {
	if b == nil || !b.Enabled {
		return nil
	}
	var joined error
	for _, ev := range evs {
		if b.Scheduler != nil {
			if schedErr := b.Scheduler.Schedule(ctx, ev); schedErr != nil {
				joined = errors.Join(joined, fmt.Errorf("events: schedule %s: %w", ev.Topic, schedErr))
			}
		}
		for _, notifier := range b.Notifiers {
			if notifier == nil {
				continue
			}
			if notifyErr := notifier.Notify(ctx, ev); notifyErr != nil {
				joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", notifyErr))
			}
		}
	}
	return joined
}

func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	switch v := payload.(type) {
	case []byte:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		if len(v) == 0 {
			return []byte("{}"), nil
		}
		if !json.Valid(v) {
			return nil, errors.New("payload is not valid json")
		}
		return append([]byte(nil), v...), nil
	default:
		return json.Marshal(v)
	}
}
