package alerts

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditwatch/internal/clock"
	"auditwatch/internal/models"
	"auditwatch/internal/registry"
	"auditwatch/internal/state"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func availabilityRule() models.AlertRule {
	return models.AlertRule{
		ID:              "avail",
		TargetID:        "cbe",
		MetricField:     models.FieldAvailability,
		Comparator:      models.LessThan,
		Threshold:       95,
		Severity:        models.SeverityCritical,
		Enabled:         true,
		CooldownMinutes: 5,
	}
}

func TestMatches_ComparatorBoundaries(t *testing.T) {
	rule := availabilityRule()

	assert.True(t, Matches(rule, models.MetricSnapshot{AvailabilityPct: 94.9}))
	assert.False(t, Matches(rule, models.MetricSnapshot{AvailabilityPct: 95}))
	assert.False(t, Matches(rule, models.MetricSnapshot{AvailabilityPct: 99}))
}

func TestMatches_DisabledNeverMatches(t *testing.T) {
	rule := availabilityRule()
	rule.Enabled = false

	assert.False(t, Matches(rule, models.MetricSnapshot{AvailabilityPct: 0}))
}

func TestMatches_UnknownFieldOrComparator(t *testing.T) {
	rule := availabilityRule()
	rule.MetricField = "cpu"
	assert.False(t, Matches(rule, models.MetricSnapshot{}))

	rule = availabilityRule()
	rule.Comparator = "approximately"
	assert.False(t, Matches(rule, models.MetricSnapshot{AvailabilityPct: 1}))
}

func TestMayFire_CooldownWindow(t *testing.T) {
	rule := availabilityRule()
	assert.True(t, MayFire(rule, t0), "never fired")

	fired := t0
	rule.LastFiredAt = &fired

	assert.False(t, MayFire(rule, t0.Add(2*time.Minute)))
	assert.False(t, MayFire(rule, t0.Add(5*time.Minute-time.Nanosecond)))
	assert.True(t, MayFire(rule, t0.Add(5*time.Minute)), "window is inclusive of its end")
	assert.True(t, MayFire(rule, t0.Add(6*time.Minute)))

	rule.CooldownMinutes = 0
	assert.True(t, MayFire(rule, t0))
}

func TestShouldFire(t *testing.T) {
	rule := availabilityRule()
	snap := models.MetricSnapshot{AvailabilityPct: 90}

	assert.True(t, ShouldFire(rule, snap, t0))

	fired := t0
	rule.LastFiredAt = &fired
	assert.False(t, ShouldFire(rule, snap, t0.Add(time.Minute)))
}

func TestEvaluate_FiltersByTargetAndThreshold(t *testing.T) {
	wildcard := availabilityRule()
	wildcard.ID = "wild"
	wildcard.TargetID = models.AllTargets

	other := availabilityRule()
	other.ID = "other"
	other.TargetID = "eta"

	quiet := availabilityRule()
	quiet.ID = "quiet"
	quiet.Threshold = 50

	snap := models.MetricSnapshot{TargetID: "cbe", AvailabilityPct: 80}
	got := Evaluate([]models.AlertRule{availabilityRule(), wildcard, other, quiet}, snap)

	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"avail", "wild"}, ids)
}

func newCooldown(t *testing.T, st state.Store) (*Cooldown, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	_, err := reg.AddRule(availabilityRule())
	require.NoError(t, err)
	return NewCooldown(reg, st), reg
}

func TestCooldown_ClaimScenario(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(t0)
	cd, reg := newCooldown(t, nil)
	rule := availabilityRule()

	_, ok := cd.Claim(ctx, rule, clk.Now())
	require.True(t, ok, "first breach fires")

	clk.Advance(2 * time.Minute)
	_, ok = cd.Claim(ctx, rule, clk.Now())
	assert.False(t, ok, "second breach inside cooldown is suppressed")

	clk.Advance(4 * time.Minute)
	claimed, ok := cd.Claim(ctx, rule, clk.Now())
	require.True(t, ok, "breach after cooldown fires again")
	assert.Equal(t, t0.Add(6*time.Minute), *claimed.LastFiredAt)

	stored, err := reg.GetRule(rule.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(6*time.Minute), *stored.LastFiredAt)
}

func TestCooldown_ConcurrentClaimsFireOnce(t *testing.T) {
	cd, _ := newCooldown(t, nil)
	rule := availabilityRule()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := cd.Claim(context.Background(), rule, t0); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestCooldown_ClaimDisabledOrDeleted(t *testing.T) {
	ctx := context.Background()
	cd, reg := newCooldown(t, nil)

	off := false
	_, err := reg.UpdateRule("avail", models.RulePatch{Enabled: &off})
	require.NoError(t, err)

	_, ok := cd.Claim(ctx, availabilityRule(), t0)
	assert.False(t, ok)

	require.NoError(t, reg.DeleteRule("avail"))
	_, ok = cd.Claim(ctx, availabilityRule(), t0)
	assert.False(t, ok)
}

func TestCooldown_PersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	st := state.NewMemoryStore()

	cd, _ := newCooldown(t, st)
	_, ok := cd.Claim(ctx, availabilityRule(), t0)
	require.True(t, ok)

	// A fresh registry, as after a restart
	restarted, reg := newCooldown(t, st)
	n, err := restarted.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rule, err := reg.GetRule("avail")
	require.NoError(t, err)
	require.NotNil(t, rule.LastFiredAt)
	assert.Equal(t, t0, *rule.LastFiredAt)

	_, ok = restarted.Claim(ctx, availabilityRule(), t0.Add(time.Minute))
	assert.False(t, ok, "restored cooldown still applies")
}

func TestCooldown_ForgetDropsPersistedState(t *testing.T) {
	ctx := context.Background()
	st := state.NewMemoryStore()

	cd, _ := newCooldown(t, st)
	_, ok := cd.Claim(ctx, availabilityRule(), t0)
	require.True(t, ok)

	cd.Forget(ctx, "avail")
	stored, err := st.LoadLastFired(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	// Nil store is a no-op
	NewCooldown(nil, nil).Forget(ctx, "avail")
}

type failingStore struct{ state.Store }

func (failingStore) SaveLastFired(context.Context, string, time.Time) error {
	return errors.New("connection refused")
}

func TestCooldown_PersistFailureDoesNotBlockFiring(t *testing.T) {
	cd, _ := newCooldown(t, failingStore{state.NewMemoryStore()})

	_, ok := cd.Claim(context.Background(), availabilityRule(), t0)
	assert.True(t, ok)
}
