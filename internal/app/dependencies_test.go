package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/catalog"
	"github.com/daikazu/flexicart-sub000/internal/config"
	"github.com/daikazu/flexicart-sub000/internal/events"
	"github.com/daikazu/flexicart-sub000/internal/lock"
	"github.com/daikazu/flexicart-sub000/internal/obs"
	"github.com/daikazu/flexicart-sub000/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Cart: config.CartConfig{
			Currency:         "USD",
			EventsEnabled:    true,
			EventsQueue:      "events",
			Storage:          config.StorageMemory,
			SessionTTL:       time.Hour,
			MergeStrategy:    cart.StrategySum,
			MergeClearSource: true,
		},
		Cleanup: config.CleanupConfig{Lifetime: time.Hour},
		Obs:     config.ObsConfig{MetricsNamespace: "flexicart_test"},
	}
}

func TestBuildMemoryBackend(t *testing.T) {
	deps, err := Build(context.Background(), testConfig(), zerolog.Nop(), "flexicart-test")
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	assert.IsType(t, &store.Memory{}, deps.Store)
	assert.IsType(t, &lock.Local{}, deps.Locker)
	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.TaskClient)
	assert.Empty(t, deps.Probes())
	assert.Nil(t, deps.Resolver())

	bus := deps.EventBus()
	assert.True(t, bus.Enabled)
	assert.Nil(t, bus.Scheduler)
	assert.Len(t, bus.Notifiers, 2)

	svc := deps.CartService()
	key := cart.Key{SessionID: "sess-1"}
	_, err = svc.AddItem(context.Background(), key, cart.ItemInput{ID: "a", Name: "A", Price: "2.50", Quantity: 2})
	require.NoError(t, err)
	c, err := svc.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Count())
}

func TestBuildSessionBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"
	cfg.Cart.Storage = config.StorageSession
	cfg.Catalog = config.CatalogConfig{BaseURL: "http://catalog.invalid", CacheTTL: time.Minute}

	deps, err := Build(context.Background(), cfg, zerolog.Nop(), "flexicart-test")
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	assert.IsType(t, &store.Session{}, deps.Store)
	assert.IsType(t, lock.Locker{}, deps.Locker)
	require.NotNil(t, deps.TaskClient)
	assert.IsType(t, events.TaskScheduler{}, deps.EventBus().Scheduler)
	assert.Empty(t, deps.EventBus().Notifiers)
	assert.IsType(t, catalog.CachedResolver{}, deps.Resolver())

	probes := deps.Probes()
	require.Contains(t, probes, "redis")
	assert.NoError(t, probes["redis"](context.Background()))

	job := deps.CleanupJob()
	assert.Equal(t, time.Hour, job.Lifetime)
	assert.Same(t, deps.Store, job.Store)
}

// deliverNow stands in for the queue: it hands each event straight to the
// worker's delivery handler.
type deliverNow struct {
	handler events.DeliveryHandler
}

func (d deliverNow) Schedule(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return d.handler.ProcessTask(ctx, asynq.NewTask(events.TaskTypeDelivery, data))
}

func TestQueuedEventsAreCountedOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	deps, err := Build(context.Background(), cfg, zerolog.Nop(), "flexicart-test")
	require.NoError(t, err)
	t.Cleanup(deps.Close)

	bus := deps.EventBus()
	require.NotNil(t, bus.Scheduler)
	bus.Scheduler = deliverNow{handler: events.DeliveryHandler{Notifiers: deps.EventNotifiers()}}

	counter := obs.CartEventsTotal.WithLabelValues(events.TopicItemAdded)
	before := testutil.ToFloat64(counter)

	ev, err := events.New("cart-1", events.TopicItemAdded, map[string]string{"item_id": "a"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, bus.Emit(context.Background(), ev))

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}

func TestBuildFailsOnUnreachableRedis(t *testing.T) {
	cfg := testConfig()
	cfg.RedisURL = "redis://127.0.0.1:1/0"
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Build(ctx, cfg, zerolog.Nop(), "flexicart-test")
	require.Error(t, err)
}
