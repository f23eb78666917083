package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/daikazu/flexicart-sub000/internal/app"
	"github.com/daikazu/flexicart-sub000/internal/cart"
	"github.com/daikazu/flexicart-sub000/internal/config"
	"github.com/daikazu/flexicart-sub000/internal/health"
	"github.com/daikazu/flexicart-sub000/internal/obs"
	"github.com/daikazu/flexicart-sub000/internal/ratelimit"
	"github.com/daikazu/flexicart-sub000/internal/security"
)

const (
	serviceName     = "flexicart-api"
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := obs.NewLogger(cfg.Obs.LogFormat, cfg.Obs.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:       cfg.Obs.EnableTracing,
		ServiceName:   serviceName,
		Endpoint:      cfg.Obs.OTLPEndpoint,
		SamplingRatio: cfg.Obs.SamplingRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
		shutdownTracer = func(context.Context) error { return nil }
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error().Err(err).Msg("shutdown tracer")
		}
	}()

	bootCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := app.Build(bootCtx, cfg, logger, serviceName)
	cancel()
	if err != nil {
		logger.Fatal().Err(err).Str("storage", cfg.Cart.Storage).Msg("initialise dependencies")
	}
	defer deps.Close()

	router, err := newRouter(deps, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("build router")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           otelhttp.NewHandler(router, serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("storage", cfg.Cart.Storage).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func newRouter(deps *app.Dependencies, logger zerolog.Logger) (http.Handler, error) {
	cfg := deps.Config
	httpMetrics := obs.NewHTTPMetrics(cfg.Obs.MetricsNamespace, nil, deps.Registry)

	var counters redis.UniversalClient
	if deps.Redis != nil {
		counters = deps.Redis
	}
	limiter, err := ratelimit.New(cfg.RateLimit, counters)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if cfg.Obs.EnableTracing {
		r.Use(obs.TracingMiddleware)
	}
	r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: logger, UserHeader: cart.HeaderUserID, SessionHeader: cart.HeaderSessionID}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.AppEnv == "production"}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", cart.HeaderUserID, cart.HeaderSessionID},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: len(cfg.CORSAllowedOrigins) > 0,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	healthHandler := health.Handler{Probes: deps.Probes()}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	cartHandler := &cart.Handler{Svc: deps.CartService(), Locale: cfg.Cart.Locale}
	r.Group(func(g chi.Router) {
		g.Use(ratelimit.Handler{
			Limiter: limiter,
			Key:     ratelimit.HeaderOrIP(cart.HeaderUserID, cart.HeaderSessionID),
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
		}.Middleware)
		g.Use(security.BodyLimit{Max: maxBodyBytes}.Middleware)
		g.Route("/cart", cartHandler.Routes)
	})
	return r, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}
