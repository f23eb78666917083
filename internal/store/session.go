package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/daikazu/flexicart-sub000/internal/cart"
)

// DefaultSessionTTL is how long an untouched session cart survives.
const DefaultSessionTTL = 7 * 24 * time.Hour

const sessionPrefix = "cart:data:"

// Session stores carts as JSON in Redis. Every load and save pushes the
// expiry out by TTL.
type Session struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSession constructs a session store. A non-positive ttl uses DefaultSessionTTL.
func NewSession(client redis.UniversalClient, ttl time.Duration) *Session {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Session{client: client, ttl: ttl}
}

func sessionKey(key cart.Key) string { return sessionPrefix + key.String() }

func (s *Session) Load(ctx context.Context, key cart.Key) (cart.Snapshot, error) {
	k := sessionKey(key)
	data, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return cart.Snapshot{}, cart.ErrCartNotFound
	}
	if err != nil {
		return cart.Snapshot{}, fmt.Errorf("redis get failed: %w", err)
	}
	var snap cart.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return cart.Snapshot{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	if err := s.client.Expire(ctx, k, s.ttl).Err(); err != nil {
		return cart.Snapshot{}, fmt.Errorf("redis expire failed: %w", err)
	}
	return snap, nil
}

func (s *Session) Save(ctx context.Context, key cart.Key, snap cart.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *Session) Delete(ctx context.Context, key cart.Key) error {
	if err := s.client.Del(ctx, sessionKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

// DeleteOlderThan removes carts whose snapshot was last updated before cutoff.
// Redis expiry normally gets there first; this covers long TTLs.
func (s *Session) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.sweep(ctx, func(data []byte) bool {
		var snap cart.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return true
		}
		return snap.UpdatedAt.Before(cutoff)
	})
}

// DeleteAll removes every session cart.
func (s *Session) DeleteAll(ctx context.Context) (int64, error) {
	return s.sweep(ctx, nil)
}

func (s *Session) sweep(ctx context.Context, match func([]byte) bool) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, sessionPrefix+"*", 200).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan failed: %w", err)
		}
		for _, k := range keys {
			if match != nil {
				data, err := s.client.Get(ctx, k).Bytes()
				if errors.Is(err, redis.Nil) {
					continue
				}
				if err != nil {
					return deleted, fmt.Errorf("redis get failed: %w", err)
				}
				if !match(data) {
					continue
				}
			}
			n, err := s.client.Del(ctx, k).Result()
			if err != nil {
				return deleted, fmt.Errorf("redis delete failed: %w", err)
			}
			deleted += n
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}
