package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditwatch/internal/models"
	"auditwatch/internal/notify"
	"auditwatch/internal/registry"
	"auditwatch/internal/store"
)

// MockSampler returns fixed availability per target; "down" errors and
// "broken" panics.
type MockSampler struct {
	availability map[string]float64
	calls        atomic.Int32
}

func (m *MockSampler) Sample(ctx context.Context, targetID string) (models.MetricSnapshot, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return models.MetricSnapshot{}, err
	}
	switch targetID {
	case "down":
		return models.MetricSnapshot{}, errors.New("connection refused")
	case "broken":
		panic("sampler bug")
	}
	return models.MetricSnapshot{
		TargetID:        targetID,
		AvailabilityPct: m.availability[targetID],
		TakenAt:         time.Now(),
	}, nil
}

// MockFirer records fired rules; suppress makes every call a cooldown hit
type MockFirer struct {
	mu       sync.Mutex
	fired    []string
	suppress bool
	hook     func(ctx context.Context)
}

func (m *MockFirer) Fire(ctx context.Context, rule models.AlertRule, snap models.MetricSnapshot) notify.Result {
	if m.hook != nil {
		m.hook(ctx)
	}
	if m.suppress {
		return notify.Result{Suppressed: true}
	}
	m.mu.Lock()
	m.fired = append(m.fired, rule.ID+"@"+snap.TargetID)
	m.mu.Unlock()
	return notify.Result{Notification: &models.Notification{RuleID: rule.ID}}
}

func (m *MockFirer) Fired() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fired...)
}

func availabilityRule(t *testing.T, reg *registry.Registry, id, target string) {
	t.Helper()
	_, err := reg.AddRule(models.AlertRule{
		ID: id, TargetID: target, MetricField: models.FieldAvailability,
		Comparator: models.LessThan, Threshold: 95,
		Severity: models.SeverityHigh, Enabled: true,
	})
	require.NoError(t, err)
}

func newTestMonitor(t *testing.T, targets []string, firer *MockFirer) (*Monitor, *store.MetricsStore, *MockSampler) {
	t.Helper()
	reg := registry.New()
	availabilityRule(t, reg, "low-availability", models.AllTargets)

	s := &MockSampler{availability: map[string]float64{"cbe": 92, "eta": 99, "fra": 80}}
	ms := store.NewMetricsStore(10)
	m := NewMonitor(Config{
		Sampler:     s,
		Store:       ms,
		Rules:       reg,
		Dispatcher:  firer,
		Targets:     targets,
		Interval:    10 * time.Millisecond,
		Parallelism: 2,
	})
	return m, ms, s
}

func TestMonitor_RunCycleIsolatesTargetFailures(t *testing.T) {
	firer := &MockFirer{}
	m, ms, _ := newTestMonitor(t, []string{"cbe", "down", "broken", "eta", "fra"}, firer)

	report := m.RunCycle(context.Background())

	assert.Equal(t, 5, report.Targets)
	assert.Equal(t, 3, report.Sampled)
	assert.Equal(t, 2, report.SampleErrors)
	assert.Equal(t, 2, report.Matched)
	assert.Equal(t, 2, report.Fired)

	assert.ElementsMatch(t, []string{"low-availability@cbe", "low-availability@fra"}, firer.Fired())
	assert.Len(t, ms.History("cbe"), 1)
	assert.Len(t, ms.History("eta"), 1)
	assert.Empty(t, ms.History("down"))
}

func TestMonitor_CountsSuppressed(t *testing.T) {
	firer := &MockFirer{suppress: true}
	m, _, _ := newTestMonitor(t, []string{"cbe"}, firer)

	report := m.RunCycle(context.Background())
	assert.Equal(t, 1, report.Matched)
	assert.Equal(t, 0, report.Fired)
	assert.Equal(t, 1, report.Suppressed)
}

func TestMonitor_StartStop(t *testing.T) {
	m, _, s := newTestMonitor(t, []string{"eta"}, &MockFirer{})
	assert.False(t, m.Running())

	m.Start()
	require.True(t, m.Running())
	require.Eventually(t, func() bool { return m.Stats().Cycles >= 2 }, time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.Running())

	calls := s.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, s.calls.Load(), "no cycles after stop")

	// Stopping twice is harmless
	m.Stop()
}

func TestMonitor_StartReplacesTimer(t *testing.T) {
	m, _, s := newTestMonitor(t, []string{"eta"}, &MockFirer{})

	m.Start()
	m.Start()
	require.True(t, m.Running())
	require.Eventually(t, func() bool { return m.Stats().Cycles >= 1 }, time.Second, 5*time.Millisecond)

	m.Stop()
	calls := s.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, s.calls.Load(), "the replaced timer is gone too")
}

func TestMonitor_StopLetsDispatchFinish(t *testing.T) {
	entered := make(chan struct{})
	var once sync.Once
	type ctxState struct{ err error }
	var dispatchErr atomic.Value

	firer := &MockFirer{}
	firer.hook = func(ctx context.Context) {
		once.Do(func() {
			close(entered)
			time.Sleep(30 * time.Millisecond)
			dispatchErr.Store(ctxState{err: ctx.Err()})
		})
	}
	m, _, _ := newTestMonitor(t, []string{"cbe"}, firer)

	m.Start()
	<-entered
	m.Stop()

	stored := dispatchErr.Load()
	require.NotNil(t, stored, "dispatch completed before Stop returned")
	assert.NoError(t, stored.(ctxState).err)
}

func TestMonitor_CancelMidCycleSkipsRemainingTargets(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	firer := &MockFirer{}
	firer.hook = func(context.Context) { cancel() }
	m, ms, s := newTestMonitor(t, []string{"cbe", "fra", "eta"}, firer)
	m.parallelism = 1

	report := m.RunCycle(ctx)

	assert.Equal(t, 0, report.SampleErrors, "cancelled targets are not sample errors")
	assert.Equal(t, 1, report.Sampled)
	assert.Equal(t, 1, report.Fired)
	assert.Equal(t, []string{"low-availability@cbe"}, firer.Fired())
	assert.Equal(t, int32(1), s.calls.Load())
	assert.Empty(t, ms.History("fra"))
	assert.Equal(t, uint64(0), m.Stats().SampleErrors)
}
