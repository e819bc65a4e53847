// Package store keeps recent metric history per monitored target.
package store

import (
	"sort"
	"sync"

	"auditwatch/internal/models"
)

// DefaultCapacity is the number of snapshots retained per target
const DefaultCapacity = 100

// MetricsStore is an append-only, size-bounded history of snapshots per
// target. Buffers are created lazily on first write; the oldest entry is
// evicted once a buffer is full.
type MetricsStore struct {
	capacity int

	mu      sync.RWMutex
	buffers map[string]*ring
}

// ring is a fixed-size circular buffer of snapshots
type ring struct {
	items []models.MetricSnapshot
	start int
	size  int
}

func (r *ring) push(s models.MetricSnapshot) {
	if r.size < len(r.items) {
		r.items[(r.start+r.size)%len(r.items)] = s
		r.size++
		return
	}
	r.items[r.start] = s
	r.start = (r.start + 1) % len(r.items)
}

func (r *ring) ordered() []models.MetricSnapshot {
	out := make([]models.MetricSnapshot, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(r.start+i)%len(r.items)]
	}
	return out
}

// NewMetricsStore creates a store retaining capacity snapshots per target
func NewMetricsStore(capacity int) *MetricsStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MetricsStore{
		capacity: capacity,
		buffers:  make(map[string]*ring),
	}
}

// Record appends a snapshot to its target's buffer
func (s *MetricsStore) Record(snap models.MetricSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf, ok := s.buffers[snap.TargetID]
	if !ok {
		buf = &ring{items: make([]models.MetricSnapshot, s.capacity)}
		s.buffers[snap.TargetID] = buf
	}
	buf.push(snap)
}

// History returns the retained snapshots for a target, oldest first.
// Unseen targets yield an empty slice.
func (s *MetricsStore) History(targetID string) []models.MetricSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.buffers[targetID]
	if !ok {
		return []models.MetricSnapshot{}
	}
	return buf.ordered()
}

// Latest returns the newest snapshot for a target
func (s *MetricsStore) Latest(targetID string) (models.MetricSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buf, ok := s.buffers[targetID]
	if !ok || buf.size == 0 {
		return models.MetricSnapshot{}, false
	}
	return buf.items[(buf.start+buf.size-1)%len(buf.items)], true
}

// Targets lists every target with recorded history, sorted
func (s *MetricsStore) Targets() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.buffers))
	for id := range s.buffers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
