package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditwatch/internal/models"
)

func snapshotAt(target string, i int) models.MetricSnapshot {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.MetricSnapshot{
		TargetID:     target,
		RequestCount: int64(i),
		TakenAt:      base.Add(time.Duration(i) * time.Minute),
	}
}

func TestMetricsStore_KeepsMostRecent100(t *testing.T) {
	s := NewMetricsStore(100)
	for i := 0; i < 150; i++ {
		s.Record(snapshotAt("cbe", i))
	}

	history := s.History("cbe")
	require.Len(t, history, 100)
	for i, snap := range history {
		assert.Equal(t, int64(50+i), snap.RequestCount, "position %d", i)
	}
}

func TestMetricsStore_PartialBufferOrder(t *testing.T) {
	s := NewMetricsStore(10)
	for i := 0; i < 3; i++ {
		s.Record(snapshotAt("eta", i))
	}

	history := s.History("eta")
	require.Len(t, history, 3)
	assert.Equal(t, int64(0), history[0].RequestCount)
	assert.Equal(t, int64(2), history[2].RequestCount)

	latest, ok := s.Latest("eta")
	require.True(t, ok)
	assert.Equal(t, int64(2), latest.RequestCount)
}

func TestMetricsStore_UnseenTarget(t *testing.T) {
	s := NewMetricsStore(0)

	history := s.History("nope")
	assert.NotNil(t, history)
	assert.Empty(t, history)

	_, ok := s.Latest("nope")
	assert.False(t, ok)
}

func TestMetricsStore_TargetsAreIsolated(t *testing.T) {
	s := NewMetricsStore(5)
	for i := 0; i < 7; i++ {
		s.Record(snapshotAt("cbe", i))
	}
	s.Record(snapshotAt("fra", 99))

	assert.Len(t, s.History("cbe"), 5)
	assert.Len(t, s.History("fra"), 1)
	assert.Equal(t, []string{"cbe", "fra"}, s.Targets())
}

func TestMetricsStore_HistoryIsACopy(t *testing.T) {
	s := NewMetricsStore(5)
	s.Record(snapshotAt("cbe", 1))

	h := s.History("cbe")
	h[0].RequestCount = 42

	assert.Equal(t, int64(1), s.History("cbe")[0].RequestCount)
}

func TestMetricsStore_ConcurrentWriters(t *testing.T) {
	s := NewMetricsStore(100)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				s.Record(snapshotAt("asa", i))
				_ = s.History("asa")
			}
		}()
	}
	wg.Wait()

	assert.Len(t, s.History("asa"), 100)
}
