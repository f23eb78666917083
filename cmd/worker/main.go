package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/daikazu/flexicart-sub000/internal/app"
	"github.com/daikazu/flexicart-sub000/internal/cleanup"
	"github.com/daikazu/flexicart-sub000/internal/config"
	"github.com/daikazu/flexicart-sub000/internal/events"
	"github.com/daikazu/flexicart-sub000/internal/obs"
)

const serviceName = "flexicart-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("component", "worker").Logger()
	if cfg.RedisURL == "" {
		logger.Fatal().Msg("REDIS_URL is required by the worker")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Build(bootCtx, cfg, logger, serviceName)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise dependencies")
	}
	defer deps.Close()

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			cfg.Cart.EventsQueue: 6,
			"default":            3,
		},
		Logger: asynqLogger{logger},
	})
	if err := srv.Start(newMux(deps)); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}
	defer srv.Shutdown()

	if cfg.Cleanup.Enabled {
		scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: asynqLogger{logger}})
		entryID, err := scheduler.Register(cfg.Cleanup.Schedule, cleanup.NewTask(), asynq.Unique(time.Hour))
		if err != nil {
			logger.Fatal().Err(err).Str("schedule", cfg.Cleanup.Schedule).Msg("register cleanup schedule")
		}
		if err := scheduler.Start(); err != nil {
			logger.Fatal().Err(err).Msg("start scheduler")
		}
		defer scheduler.Shutdown()
		logger.Info().Str("entry_id", entryID).Str("schedule", cfg.Cleanup.Schedule).Msg("cart cleanup scheduled")
	}

	logger.Info().Str("storage", cfg.Cart.Storage).Msg("worker starting")
	<-ctx.Done()
	logger.Info().Msg("worker shutting down")
}

func newMux(deps *app.Dependencies) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(events.TaskTypeDelivery, events.DeliveryHandler{
		Notifiers: deps.EventNotifiers(),
		Timeout:   30 * time.Second,
	})
	mux.Handle(cleanup.TaskType, deps.CleanupJob())
	return mux
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	log zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.log.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.log.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.log.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.log.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.log.Fatal().Msg(fmt.Sprint(args...)) }
