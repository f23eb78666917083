package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/events"
)

type captureScheduler struct {
	events []events.Event
}

func (c *captureScheduler) Schedule(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, event events.Event) error {
	c.events = append(c.events, event)
	return c.err
}

type stubEnqueuer struct {
	tasks []*asynq.Task
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func mustEvent(t *testing.T, topic string, payload any) events.Event {
	t.Helper()
	ev, err := events.New("cart-1", topic, payload, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
	return ev
}

func TestNewEncodesPayload(t *testing.T) {
	ev := mustEvent(t, events.TopicItemAdded, map[string]any{"item_id": "sku-1"})
	require.NotEmpty(t, ev.ID)
	require.Equal(t, "cart-1", ev.CartID)
	require.JSONEq(t, `{"item_id":"sku-1"}`, string(ev.Payload))

	empty := mustEvent(t, events.TopicCartCleared, nil)
	require.JSONEq(t, `{}`, string(empty.Payload))

	_, err := events.New("cart-1", " ", nil, time.Now())
	require.Error(t, err)
	_, err = events.New("", events.TopicCartReset, nil, time.Now())
	require.Error(t, err)
	_, err = events.New("cart-1", events.TopicCartReset, []byte("{"), time.Now())
	require.Error(t, err)
}

func TestEmitFansOut(t *testing.T) {
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := &events.Bus{Enabled: true, Scheduler: scheduler, Notifiers: []events.Notifier{notifier, nil}}

	a := mustEvent(t, events.TopicItemAdded, nil)
	b := mustEvent(t, events.TopicItemRemoved, nil)
	require.NoError(t, bus.Emit(context.Background(), a, b))

	require.Len(t, scheduler.events, 2)
	require.Len(t, notifier.events, 2)
	require.Equal(t, events.TopicItemRemoved, notifier.events[1].Topic)
}

func TestEmitDisabledSkipsHandlers(t *testing.T) {
	notifier := &captureNotifier{}
	bus := &events.Bus{Enabled: false, Notifiers: []events.Notifier{notifier}}
	require.NoError(t, bus.Emit(context.Background(), mustEvent(t, events.TopicCartReset, nil)))
	require.Empty(t, notifier.events)

	var nilBus *events.Bus
	require.NoError(t, nilBus.Emit(context.Background(), mustEvent(t, events.TopicCartReset, nil)))
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := &captureNotifier{err: boom}
	ok := &captureNotifier{}
	bus := &events.Bus{Enabled: true, Notifiers: []events.Notifier{failing, ok}}

	err := bus.Emit(context.Background(), mustEvent(t, events.TopicRuleAdded, nil))
	require.ErrorIs(t, err, boom)
	require.Len(t, ok.events, 1)
}

func TestMetricsNotifierCountsByTopic(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_cart_events_total"}, []string{"topic"})
	n := events.MetricsNotifier{Counter: counter}
	require.NoError(t, n.Notify(context.Background(), mustEvent(t, events.TopicCartMerged, nil)))
	require.NoError(t, n.Notify(context.Background(), mustEvent(t, events.TopicCartMerged, nil)))
	require.Equal(t, 2.0, testutil.ToFloat64(counter.WithLabelValues(events.TopicCartMerged)))
}

func TestTaskSchedulerRoundTripsThroughDeliveryHandler(t *testing.T) {
	enq := &stubEnqueuer{}
	scheduler := events.TaskScheduler{Client: enq, Queue: "events", MaxRetry: 3}
	ev := mustEvent(t, events.TopicItemQuantityChanged, map[string]int{"quantity": 4})
	require.NoError(t, scheduler.Schedule(context.Background(), ev))
	require.Len(t, enq.tasks, 1)
	require.Equal(t, events.TaskTypeDelivery, enq.tasks[0].Type())

	var decoded events.Event
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &decoded))
	require.Equal(t, ev.ID, decoded.ID)

	notifier := &captureNotifier{}
	handler := events.DeliveryHandler{Notifiers: []events.Notifier{notifier}}
	require.NoError(t, handler.ProcessTask(context.Background(), enq.tasks[0]))
	require.Len(t, notifier.events, 1)
	require.Equal(t, ev.Topic, notifier.events[0].Topic)

	err := handler.ProcessTask(context.Background(), asynq.NewTask(events.TaskTypeDelivery, []byte("nope")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
