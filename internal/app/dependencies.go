// Package app assembles the infrastructure shared by the API and the worker:
// connections, the configured cart store, locking and event delivery.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/catalog"
	"github.com/daikazu/flexicart-sub000/internal/cleanup"
	"github.com/daikazu/flexicart-sub000/internal/config"
	"github.com/daikazu/flexicart-sub000/internal/events"
	"github.com/daikazu/flexicart-sub000/internal/health"
	"github.com/daikazu/flexicart-sub000/internal/lock"
	"github.com/daikazu/flexicart-sub000/internal/obs"
	"github.com/daikazu/flexicart-sub000/internal/resilience"
	"github.com/daikazu/flexicart-sub000/internal/store"
)

// CartStore is what the configured backend offers: persistence for the cart
// service and pruning for the cleanup job.
type CartStore interface {
	cart.Store
	cleanup.Pruner
}

// Dependencies holds the process-wide infrastructure. DB is nil unless carts
// live in Postgres; Redis and TaskClient are nil without REDIS_URL.
type Dependencies struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Registry   prometheus.Registerer
	DB         *pgxpool.Pool
	Redis      *redis.Client
	TaskClient *asynq.Client
	Store      CartStore
	Locker     cart.Locker

	closers []func() error
}

// Build connects to the backends cfg selects. On failure everything opened
// so far is closed again.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, appName string) (*Dependencies, error) {
	d := &Dependencies{Config: cfg, Logger: logger, Registry: prometheus.DefaultRegisterer}
	obs.MustRegisterDomainMetrics(cfg.Obs.MetricsNamespace, d.Registry)
	if err := resilience.Register(d.Registry); err != nil {
		return nil, fmt.Errorf("register resilience metrics: %w", err)
	}

	if err := d.init(ctx, appName); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}

func (d *Dependencies) init(ctx context.Context, appName string) error {
	cfg := d.Config
	if cfg.RedisURL != "" {
		client, err := newRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		d.Redis = client
		d.closers = append(d.closers, client.Close)

		opt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url for tasks: %w", err)
		}
		d.TaskClient = asynq.NewClient(opt)
		d.closers = append(d.closers, d.TaskClient.Close)
	}

	switch cfg.Cart.Storage {
	case config.StorageDatabase:
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migrate cart schema: %w", err)
		}
		pool, err := newPool(ctx, cfg.DatabaseURL, appName)
		if err != nil {
			return err
		}
		d.DB = pool
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
		d.Store = store.NewPostgres(pool)
	case config.StorageSession:
		d.Store = store.NewSession(d.Redis, cfg.Cart.SessionTTL)
	default:
		d.Store = store.NewMemory()
	}

	if d.Redis != nil {
		d.Locker = lock.Locker{R: d.Redis, RetryBackoff: 25 * time.Millisecond, Prefix: "cart:"}
	} else {
		d.Locker = &lock.Local{}
	}
	return nil
}

// Close releases connections in reverse order of opening.
func (d *Dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.Logger.Error().Err(err).Msg("close dependency")
		}
	}
	d.closers = nil
}

// EventNotifiers are the synchronous sinks every emitted event reaches.
func (d *Dependencies) EventNotifiers() []events.Notifier {
	return []events.Notifier{
		events.LogNotifier{Logger: d.Logger.With().Str("component", "events").Logger()},
		events.MetricsNotifier{Counter: obs.CartEventsTotal},
	}
}

// EventBus builds the bus handed to the cart service. With a task client the
// events are only queued and the worker runs the notifiers on delivery;
// otherwise the notifiers run inline.
func (d *Dependencies) EventBus() *events.Bus {
	bus := &events.Bus{Enabled: d.Config.Cart.EventsEnabled}
	if d.TaskClient != nil {
		bus.Scheduler = events.TaskScheduler{Client: d.TaskClient, Queue: d.Config.Cart.EventsQueue, MaxRetry: 5}
		return bus
	}
	bus.Notifiers = d.EventNotifiers()
	return bus
}

// Resolver returns the catalog lookup for AddFromCatalog, cached in Redis when
// possible. It is nil when no catalog is configured.
func (d *Dependencies) Resolver() cart.Resolver {
	if d.Config.Catalog.BaseURL == "" {
		return nil
	}
	client := catalog.NewHTTPClient(catalog.Config{
		BaseURL: d.Config.Catalog.BaseURL,
		APIKey:  d.Config.Catalog.APIKey,
		Timeout: d.Config.Catalog.Timeout,
		Logger:  d.Logger,
	})
	if d.Redis == nil || d.Config.Catalog.CacheTTL <= 0 {
		return client
	}
	return catalog.CachedResolver{
		Next:   client,
		Cache:  catalog.NewCache(d.Redis, d.Config.Catalog.CacheTTL),
		Logger: d.Logger,
	}
}

// CartService wires the store, lock, bus and catalog into a cart.Service.
func (d *Dependencies) CartService() *cart.Service {
	return &cart.Service{
		Store:            d.Store,
		Locker:           d.Locker,
		Events:           d.EventBus(),
		Catalog:          d.Resolver(),
		Logger:           d.Logger.With().Str("component", "cart").Logger(),
		Options:          d.Config.CartOptions(),
		MergeStrategy:    d.Config.Cart.MergeStrategy,
		MergeClearSource: d.Config.Cart.MergeClearSource,
		LockTTL:          d.Config.Cart.LockTTL,
	}
}

// CleanupJob builds the housekeeping job over the configured store.
func (d *Dependencies) CleanupJob() cleanup.Job {
	return cleanup.Job{
		Store:          d.Store,
		Enabled:        d.Config.Cleanup.Enabled,
		Lifetime:       d.Config.Cleanup.Lifetime,
		ForceDeleteAll: d.Config.Cleanup.ForceDeleteAll,
		Logger:         d.Logger.With().Str("component", "cleanup").Logger(),
	}
}

// Probes lists readiness checks for the backends in use.
func (d *Dependencies) Probes() map[string]health.Probe {
	probes := map[string]health.Probe{}
	if d.DB != nil {
		probes["postgres"] = d.DB.Ping
	}
	if d.Redis != nil {
		probes["redis"] = func(ctx context.Context) error { return d.Redis.Ping(ctx).Err() }
	}
	return probes
}

func newPool(ctx context.Context, databaseURL, appName string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func newRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	var instrumentErr error
	if err := redisotel.InstrumentTracing(client); err != nil {
		instrumentErr = errors.Join(instrumentErr, fmt.Errorf("instrument redis tracing: %w", err))
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		instrumentErr = errors.Join(instrumentErr, fmt.Errorf("instrument redis metrics: %w", err))
	}
	if instrumentErr != nil {
		_ = client.Close()
		return nil, instrumentErr
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
