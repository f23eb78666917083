package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// TaskTypeDelivery is the asynq task type carrying one encoded Event.
const TaskTypeDelivery = "cart:event"

// LogNotifier writes every event to a structured logger.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, ev Event) error {
	n.Logger.Info().
		Str("event_id", ev.ID).
		Str("cart_id", ev.CartID).
		Str("topic", ev.Topic).
		Time("occurred_at", ev.OccurredAt).
		RawJSON("payload", ev.Payload).
		Msg("cart_event")
	return nil
}

// MetricsNotifier increments a counter labelled by topic.
type MetricsNotifier struct {
	Counter *prometheus.CounterVec
}

func (n MetricsNotifier) Notify(_ context.Context, ev Event) error {
	if n.Counter == nil {
		return nil
	}
	n.Counter.WithLabelValues(ev.Topic).Inc()
	return nil
}

// Enqueuer is the subset of *asynq.Client used for delivery scheduling.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TaskScheduler enqueues events as asynq tasks for the worker to deliver.
type TaskScheduler struct {
	Client   Enqueuer
	Queue    string
	MaxRetry int
}

func (s TaskScheduler) Schedule(ctx context.Context, ev Event) error {
	if s.Client == nil {
		return errors.New("events: task client not configured")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: encode task: %w", err)
	}
	opts := []asynq.Option{asynq.TaskID(ev.ID)}
	if s.Queue != "" {
		opts = append(opts, asynq.Queue(s.Queue))
	}
	if s.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(s.MaxRetry))
	}
	if _, err := s.Client.EnqueueContext(ctx, asynq.NewTask(TaskTypeDelivery, data), opts...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	}
	return nil
}

// DeliveryHandler is the worker side of TaskScheduler: it decodes queued
// events and passes them to its notifiers.
type DeliveryHandler struct {
	Notifiers []Notifier
	Timeout   time.Duration
}

// ProcessTask implements asynq.Handler.
func (h DeliveryHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var ev Event
	if err := json.Unmarshal(t.Payload(), &ev); err != nil {
		return fmt.Errorf("events: decode task: %w: %w", err, asynq.SkipRetry)
	}
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	var joined error
	for _, n := range h.Notifiers {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}
