package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrOpenCircuit is returned when the breaker refuses a request, either
// because it is open or because its single half-open trial call is in flight.
var ErrOpenCircuit = errors.New("resilience: circuit breaker open")

// State labels used by the breaker metrics.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// BreakerConfig tunes a Breaker. Counts are kept per Window while closed;
// the breaker opens once MinRequests have been seen and the failure ratio
// reaches FailureRatio, then stays open for Cooldown.
type BreakerConfig struct {
	Name         string
	MinRequests  uint32
	FailureRatio float64
	Cooldown     time.Duration
	Window       time.Duration
	Logger       zerolog.Logger
}

// Breaker guards one upstream. After Cooldown it lets exactly one trial call
// through; its outcome closes or reopens it.
type Breaker struct {
	name string
	cb   *gobreaker.TwoStepCircuitBreaker[struct{}]
}

// NewBreaker builds a breaker and publishes its initial state.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 1
	}
	if cfg.FailureRatio <= 0 || cfg.FailureRatio > 1 {
		cfg.FailureRatio = 0.5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	logger := cfg.Logger.With().Str("target", cfg.Name).Logger()

	b := &Breaker{name: cfg.Name}
	b.cb = gobreaker.NewTwoStepCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Window,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			if c.Requests < cfg.MinRequests {
				return false
			}
			return float64(c.TotalFailures)/float64(c.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			recordTransition(name, stateLabel(from), stateLabel(to))
			logger.Info().Str("from_state", stateLabel(from)).Str("to_state", stateLabel(to)).Msg("breaker_transition")
		},
	})
	BreakerState.WithLabelValues(cfg.Name).Set(stateGauge(StateClosed))
	return b
}

// Allow asks for permission to call upstream. On success the caller must
// invoke done exactly once with the call's outcome.
func (b *Breaker) Allow() (done func(success bool), err error) {
	done, err = b.cb.Allow()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenCircuit, b.name, err)
	}
	return done, nil
}

// State returns the current state label. An open breaker whose cooldown has
// elapsed reports half_open.
func (b *Breaker) State() string { return stateLabel(b.cb.State()) }

// Name returns the target the breaker guards.
func (b *Breaker) Name() string { return b.name }

func stateLabel(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

func stateGauge(label string) float64 {
	switch label {
	case StateOpen:
		return 1
	case StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func recordTransition(target, from, to string) {
	BreakerState.WithLabelValues(target).Set(stateGauge(to))
	BreakerTransitions.WithLabelValues(target, from, to).Inc()
	if to == StateOpen {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}
}
