package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Local is an in-process keyed lock for single-instance deployments and
// tests. The ttl argument is ignored: holders release on return. The zero
// value is ready to use.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch      chan struct{}
	waiters int
}

// WithLock executes fn while holding key. Waiting stops when ctx is done.
func (l *Local) WithLock(ctx context.Context, key string, _ time.Duration, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	s := l.acquireSlot(key)
	defer l.releaseSlot(key, s)

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: %s: %w", ErrBusy, key, ctx.Err())
	}
	defer func() { <-s.ch }()
	return fn(ctx)
}

func (l *Local) acquireSlot(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.slots == nil {
		l.slots = make(map[string]*slot)
	}
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.waiters++
	return s
}

func (l *Local) releaseSlot(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.waiters--
	if s.waiters == 0 {
		delete(l.slots, key)
	}
}
