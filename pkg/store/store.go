// Package store persists the last good feed responses so they can be served
// when every live source fails.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// BitcoinPricesKey holds the last Bitcoin price snapshot.
	BitcoinPricesKey = "bitcoin_prices_fallback"
	// ForexRatesKey holds the last forex rate tables, keyed by base.
	ForexRatesKey = "forex_rates_fallback"

	// DefaultMaxAge is how long a persisted snapshot stays usable.
	DefaultMaxAge = 24 * time.Hour
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is a key/value store for JSON blobs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Memory is an in-process Store. Values do not survive a restart.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = v
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Snapshot is the persisted envelope: the data and when it was saved, in
// milliseconds since the epoch.
type Snapshot[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
}

// SavedAt returns the snapshot time.
func (s Snapshot[T]) SavedAt() time.Time {
	return time.UnixMilli(s.Timestamp)
}

// Save writes data under key stamped with now.
func Save[T any](ctx context.Context, st Store, key string, data T, now time.Time) error {
	b, err := json.Marshal(Snapshot[T]{Data: data, Timestamp: now.UnixMilli()})
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := st.Set(ctx, key, b); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

// Load reads the snapshot under key. It returns ErrNotFound when the key is
// missing, unreadable or older than maxAge.
func Load[T any](ctx context.Context, st Store, key string, maxAge time.Duration, now time.Time) (Snapshot[T], error) {
	var snap Snapshot[T]
	b, err := st.Get(ctx, key)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("%w: decode %s: %v", ErrNotFound, key, err)
	}
	if maxAge > 0 && now.Sub(snap.SavedAt()) > maxAge {
		return snap, fmt.Errorf("%w: %s is older than %s", ErrNotFound, key, maxAge)
	}
	return snap, nil
}
