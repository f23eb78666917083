// Package store holds the cart.Store backends: an in-memory map, a Redis
// session store and a Postgres store.
package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/daikazu/flexicart-sub000/internal/cart"
)

// Memory keeps snapshots in process. Saved snapshots are copied, so callers
// cannot mutate stored state.
type Memory struct {
	mu    sync.RWMutex
	carts map[string][]byte
	saved map[string]time.Time
	// Now overrides the clock used to age entries.
	Now func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{carts: make(map[string][]byte), saved: make(map[string]time.Time)}
}

func (m *Memory) Load(_ context.Context, key cart.Key) (cart.Snapshot, error) {
	m.mu.RLock()
	data, ok := m.carts[key.String()]
	m.mu.RUnlock()
	if !ok {
		return cart.Snapshot{}, cart.ErrCartNotFound
	}
	var snap cart.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return cart.Snapshot{}, err
	}
	return snap, nil
}

func (m *Memory) Save(_ context.Context, key cart.Key, snap cart.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.carts == nil {
		m.carts = make(map[string][]byte)
		m.saved = make(map[string]time.Time)
	}
	m.carts[key.String()] = data
	m.saved[key.String()] = m.now()
	return nil
}

func (m *Memory) Delete(_ context.Context, key cart.Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, key.String())
	delete(m.saved, key.String())
	return nil
}

// DeleteOlderThan removes carts last saved before cutoff.
func (m *Memory) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, at := range m.saved {
		if at.Before(cutoff) {
			delete(m.carts, k)
			delete(m.saved, k)
			n++
		}
	}
	return n, nil
}

// DeleteAll removes every cart.
func (m *Memory) DeleteAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.carts))
	m.carts = make(map[string][]byte)
	m.saved = make(map[string]time.Time)
	return n, nil
}

func (m *Memory) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}
