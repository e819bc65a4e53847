// Package state persists per-rule cooldown timestamps so a restart does not
// re-arm every rule at once.
package state

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Store records the last firing time of each rule
type Store interface {
	SaveLastFired(ctx context.Context, ruleID string, at time.Time) error
	LoadLastFired(ctx context.Context) (map[string]time.Time, error)
	Forget(ctx context.Context, ruleID string) error
	Close() error
}

type memoryStore struct {
	mu    sync.RWMutex
	fired map[string]time.Time
}

// NewMemoryStore returns a process-local store
func NewMemoryStore() Store {
	return &memoryStore{fired: make(map[string]time.Time)}
}

func (m *memoryStore) SaveLastFired(ctx context.Context, ruleID string, at time.Time) error {
	m.mu.Lock()
	m.fired[ruleID] = at
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) LoadLastFired(ctx context.Context) (map[string]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.fired), nil
}

func (m *memoryStore) Forget(ctx context.Context, ruleID string) error {
	m.mu.Lock()
	delete(m.fired, ruleID)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Close() error { return nil }
