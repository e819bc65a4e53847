package registry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auditwatch/internal/models"
)

func testRule(id, target string) models.AlertRule {
	return models.AlertRule{
		ID:              id,
		Name:            models.LocalizedText{EN: "Low availability", AR: "انخفاض التوفر"},
		TargetID:        target,
		MetricField:     models.FieldAvailability,
		Comparator:      models.LessThan,
		Threshold:       95,
		Severity:        models.SeverityCritical,
		Enabled:         true,
		ChannelIDs:      []string{"ops-mail"},
		CooldownMinutes: 5,
	}
}

func testWebhook(id string) models.AlertChannel {
	return models.AlertChannel{
		ID:      id,
		Name:    "Ops hook",
		Kind:    models.KindWebhook,
		Enabled: true,
		Config:  models.WebhookConfig{URL: "https://hooks.example.com/alerts"},
	}
}

func TestRegistry_AddRuleUpserts(t *testing.T) {
	r := New()

	_, err := r.AddRule(testRule("r1", "cbe"))
	require.NoError(t, err)

	replacement := testRule("r1", "eta")
	replacement.Threshold = 90
	_, err = r.AddRule(replacement)
	require.NoError(t, err)

	rules := r.ListRules()
	require.Len(t, rules, 1)
	assert.Equal(t, "eta", rules[0].TargetID)
	assert.Equal(t, 90.0, rules[0].Threshold)
}

func TestRegistry_AddRuleRejectsInvalid(t *testing.T) {
	r := New()

	bad := testRule("r1", "cbe")
	bad.Comparator = "roughly"
	_, err := r.AddRule(bad)
	assert.ErrorIs(t, err, models.ErrInvalidComparator)

	bad = testRule("r2", "cbe")
	bad.CooldownMinutes = -1
	_, err = r.AddRule(bad)
	assert.ErrorIs(t, err, models.ErrNegativeCooldown)

	assert.Empty(t, r.ListRules())
}

func TestRegistry_RulesForIncludesWildcard(t *testing.T) {
	r := New()
	for _, rule := range []models.AlertRule{
		testRule("a", "cbe"),
		testRule("b", models.AllTargets),
		testRule("c", "eta"),
	} {
		_, err := r.AddRule(rule)
		require.NoError(t, err)
	}

	ids := func(rules []models.AlertRule) []string {
		out := make([]string, len(rules))
		for i, rule := range rules {
			out[i] = rule.ID
		}
		return out
	}

	assert.Equal(t, []string{"a", "b"}, ids(r.RulesFor("cbe")))
	assert.Equal(t, []string{"b", "c"}, ids(r.RulesFor("eta")))
	assert.Equal(t, []string{"b"}, ids(r.RulesFor("unknown")))
}

func TestRegistry_UpdateRule(t *testing.T) {
	r := New()
	_, err := r.AddRule(testRule("r1", "cbe"))
	require.NoError(t, err)

	disabled := false
	threshold := 80.0
	channels := []string{"sms-oncall", "ops-mail"}
	updated, err := r.UpdateRule("r1", models.RulePatch{
		Enabled:    &disabled,
		Threshold:  &threshold,
		ChannelIDs: &channels,
	})
	require.NoError(t, err)

	assert.False(t, updated.Enabled)
	assert.Equal(t, 80.0, updated.Threshold)
	assert.Equal(t, []string{"sms-oncall", "ops-mail"}, updated.ChannelIDs)
	assert.Equal(t, models.LessThan, updated.Comparator)

	_, err = r.UpdateRule("missing", models.RulePatch{})
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRegistry_UpdateRuleValidates(t *testing.T) {
	r := New()
	_, err := r.AddRule(testRule("r1", "cbe"))
	require.NoError(t, err)

	sev := models.Severity("apocalyptic")
	_, err = r.UpdateRule("r1", models.RulePatch{Severity: &sev})
	assert.ErrorIs(t, err, models.ErrInvalidSeverity)

	rule, err := r.GetRule("r1")
	require.NoError(t, err)
	assert.Equal(t, models.SeverityCritical, rule.Severity)
}

func TestRegistry_DeleteRule(t *testing.T) {
	r := New()
	_, err := r.AddRule(testRule("r1", "cbe"))
	require.NoError(t, err)

	require.NoError(t, r.DeleteRule("r1"))
	assert.ErrorIs(t, r.DeleteRule("r1"), ErrRuleNotFound)

	_, err = r.GetRule("r1")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRegistry_ReturnedRulesAreCopies(t *testing.T) {
	r := New()
	_, err := r.AddRule(testRule("r1", "cbe"))
	require.NoError(t, err)

	rule, err := r.GetRule("r1")
	require.NoError(t, err)
	rule.ChannelIDs[0] = "mutated"

	again, err := r.GetRule("r1")
	require.NoError(t, err)
	assert.Equal(t, "ops-mail", again.ChannelIDs[0])
}

func TestRegistry_MarkFiredIsAtomic(t *testing.T) {
	r := New()
	_, err := r.AddRule(testRule("r1", "cbe"))
	require.NoError(t, err)

	now := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	notFiredYet := func(rule models.AlertRule) bool { return rule.LastFiredAt == nil }

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := r.MarkFired("r1", now, notFiredYet); ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	rule, err := r.GetRule("r1")
	require.NoError(t, err)
	require.NotNil(t, rule.LastFiredAt)
	assert.Equal(t, now, *rule.LastFiredAt)

	_, _, err = r.MarkFired("missing", now, nil)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestRegistry_RestoreLastFiredKeepsNewest(t *testing.T) {
	r := New()
	_, err := r.AddRule(testRule("r1", "cbe"))
	require.NoError(t, err)

	newer := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	require.NoError(t, r.RestoreLastFired("r1", newer))
	require.NoError(t, r.RestoreLastFired("r1", older))

	rule, err := r.GetRule("r1")
	require.NoError(t, err)
	assert.Equal(t, newer, *rule.LastFiredAt)
}

func TestRegistry_ChannelCRUD(t *testing.T) {
	r := New()

	_, err := r.AddChannel(testWebhook("hook"))
	require.NoError(t, err)

	name := "Renamed"
	off := false
	updated, err := r.UpdateChannel("hook", models.ChannelPatch{Name: &name, Enabled: &off})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.False(t, updated.Enabled)

	_, err = r.UpdateChannel("hook", models.ChannelPatch{Config: models.SMSConfig{Numbers: []string{"+201000000000"}}})
	assert.ErrorIs(t, err, models.ErrConfigKindMismatch)

	ch, ok := r.LookupChannel("hook")
	require.True(t, ok)
	assert.Equal(t, models.KindWebhook, ch.Config.Kind())

	require.NoError(t, r.DeleteChannel("hook"))
	assert.ErrorIs(t, r.DeleteChannel("hook"), ErrChannelNotFound)
	_, err = r.GetChannel("hook")
	assert.ErrorIs(t, err, ErrChannelNotFound)
}

func TestRegistry_DeleteChannelKeepsRules(t *testing.T) {
	r := New()
	_, err := r.AddChannel(testWebhook("ops-mail"))
	require.NoError(t, err)
	_, err = r.AddRule(testRule("r1", "cbe"))
	require.NoError(t, err)

	require.NoError(t, r.DeleteChannel("ops-mail"))

	rule, err := r.GetRule("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"ops-mail"}, rule.ChannelIDs)
}

func TestRegistry_AddChannelRejectsMismatchedConfig(t *testing.T) {
	r := New()
	ch := testWebhook("hook")
	ch.Kind = models.KindEmail

	_, err := r.AddChannel(ch)
	assert.ErrorIs(t, err, models.ErrConfigKindMismatch)
}
