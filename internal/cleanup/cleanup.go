// Package cleanup prunes abandoned carts from persistent storage.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/daikazu/flexicart-sub000/internal/obs"
)

// TaskType is the asynq task type that triggers a cleanup run.
const TaskType = "cart:cleanup"

// DefaultLifetime is how long an untouched cart is kept.
const DefaultLifetime = 30 * 24 * time.Hour

// Pruner deletes stored carts. store.Postgres, store.Session and store.Memory
// implement it.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Job removes carts not updated within Lifetime, or every cart when
// ForceDeleteAll is set. A disabled job does nothing.
type Job struct {
	Store          Pruner
	Enabled        bool
	Lifetime       time.Duration
	ForceDeleteAll bool
	Logger         zerolog.Logger
	Now            func() time.Time
}

// Run performs one cleanup pass and returns the number of carts deleted.
func (j Job) Run(ctx context.Context) (int64, error) {
	if !j.Enabled {
		return 0, nil
	}
	if j.Store == nil {
		return 0, errors.New("cleanup: store not configured")
	}

	var (
		deleted int64
		err     error
		mode    = "expired"
	)
	if j.ForceDeleteAll {
		mode = "all"
		deleted, err = j.Store.DeleteAll(ctx)
	} else {
		lifetime := j.Lifetime
		if lifetime <= 0 {
			lifetime = DefaultLifetime
		}
		deleted, err = j.Store.DeleteOlderThan(ctx, j.now().Add(-lifetime))
	}
	if err != nil {
		j.Logger.Error().Err(err).Str("mode", mode).Msg("cart_cleanup_failed")
		return deleted, fmt.Errorf("cleanup: %w", err)
	}
	if obs.CartCleanupDeleted != nil {
		obs.CartCleanupDeleted.Add(float64(deleted))
	}
	j.Logger.Info().Str("mode", mode).Int64("deleted", deleted).Msg("cart_cleanup_done")
	return deleted, nil
}

// ProcessTask implements asynq.Handler so the worker can run the job on a schedule.
func (j Job) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Run(ctx)
	return err
}

// NewTask returns the task a scheduler enqueues to trigger Run.
func NewTask() *asynq.Task {
	return asynq.NewTask(TaskType, nil)
}

func (j Job) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}
