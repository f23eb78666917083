package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/daikazu/flexicart-sub000/internal/lock"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithLockSerializesSameKey(t *testing.T) {
	_, client := newRedis(t)
	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, Prefix: "test:"}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	secondDone := make(chan error, 1)

	go func() {
		_ = locker.WithLock(ctx, "cart:lock:user:1", 500*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		secondDone <- locker.WithLock(ctx, "cart:lock:user:1", 500*time.Millisecond, func(context.Context) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	close(releaseFirst)

	require.NoError(t, <-secondDone)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockReleasesOnError(t *testing.T) {
	mr, client := newRedis(t)
	locker := lock.Locker{R: client, Prefix: "test:"}
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "k", time.Second, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, mr.Exists("test:k"))
}

func TestWithLockHonoursContext(t *testing.T) {
	mr, client := newRedis(t)
	require.NoError(t, mr.Set("held", "someone-else"))
	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err := locker.WithLock(ctx, "held", time.Second, func(context.Context) error {
		t.Fatal("callback must not run")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, lock.ErrBusy)
	got, _ := mr.Get("held")
	require.Equal(t, "someone-else", got)
}

func TestWithLockWithoutClient(t *testing.T) {
	err := lock.Locker{}.WithLock(context.Background(), "k", time.Second, func(context.Context) error { return nil })
	require.ErrorIs(t, err, lock.ErrNotConfigured)
}

func TestLocalSerializesSameKey(t *testing.T) {
	var l lock.Local
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithLock(context.Background(), "cart", 0, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), atomic.LoadInt32(&maxInside))
}

func TestLocalDistinctKeysDoNotBlock(t *testing.T) {
	var l lock.Local
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithLock(context.Background(), "a", 0, func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ran := false
	require.NoError(t, l.WithLock(ctx, "b", 0, func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	err := l.WithLock(short, "a", 0, func(context.Context) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.ErrorIs(t, err, lock.ErrBusy)
}
