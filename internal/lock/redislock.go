// Package lock serializes cart mutations per key, across processes through
// Redis or within one process through Local.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL bounds how long a crashed holder can block a key.
	DefaultTTL = 30 * time.Second

	defaultBackoff    = 50 * time.Millisecond
	defaultMaxBackoff = 500 * time.Millisecond
)

var (
	// ErrNotConfigured is returned by a Locker without a Redis client.
	ErrNotConfigured = errors.New("lock: redis client not configured")
	// ErrBusy wraps the context error when a key could not be acquired in time.
	ErrBusy = errors.New("lock: key busy")
)

// releaseScript deletes the key only while it still holds the caller's token,
// so an expired lock taken over by another holder is left alone.
var releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker is a SET NX based lock on Redis. Polling starts at RetryBackoff and
// doubles up to MaxBackoff.
type Locker struct {
	R            redis.UniversalClient
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	// Prefix is prepended to every key.
	Prefix string
}

// WithLock runs fn while holding key. The lock is released when fn returns,
// even with an error or after ctx is cancelled.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return ErrNotConfigured
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	key = l.Prefix + key
	token := uuid.NewString()

	wait := l.RetryBackoff
	if wait <= 0 {
		wait = defaultBackoff
	}
	ceiling := l.MaxBackoff
	if ceiling < wait {
		ceiling = max(wait, defaultMaxBackoff)
	}

	for {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s: %w", ErrBusy, key, ctx.Err())
			}
			return fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			defer l.release(context.WithoutCancel(ctx), key, token)
			return fn(ctx)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s: %w", ErrBusy, key, ctx.Err())
		case <-timer.C:
		}
		wait = min(wait*2, ceiling)
	}
}

func (l Locker) release(ctx context.Context, key, token string) {
	_ = releaseScript.Run(ctx, l.R, []string{key}, token).Err()
}
