package alerts

import (
	"context"
	"time"

	"auditwatch/internal/logger"
	"auditwatch/internal/metrics"
	"auditwatch/internal/models"
	"auditwatch/internal/state"
)

// RuleMarker is the registry surface the cooldown tracker writes through
type RuleMarker interface {
	MarkFired(id string, firedAt time.Time, allow func(models.AlertRule) bool) (models.AlertRule, bool, error)
	RestoreLastFired(id string, at time.Time) error
}

// Cooldown gates firings per rule. A successful Claim stamps the rule's
// LastFiredAt before any delivery starts, so overlapping cycles cannot
// fire the same rule twice inside one cooldown window.
type Cooldown struct {
	rules RuleMarker
	state state.Store
}

// NewCooldown creates a tracker; st may be nil to skip persistence.
func NewCooldown(rules RuleMarker, st state.Store) *Cooldown {
	return &Cooldown{rules: rules, state: st}
}

// Claim atomically re-checks that the rule is enabled and out of cooldown
// at now, and records now as its last firing. It returns the stored rule
// and whether the caller owns this firing.
func (c *Cooldown) Claim(ctx context.Context, rule models.AlertRule, now time.Time) (models.AlertRule, bool) {
	log := logger.WithRule("cooldown", rule.ID)

	claimed, ok, err := c.rules.MarkFired(rule.ID, now, func(current models.AlertRule) bool {
		return current.Enabled && MayFire(current, now)
	})
	if err != nil {
		// Rule deleted between evaluation and claim
		log.Warn().Err(err).Msg("cannot claim firing")
		return models.AlertRule{}, false
	}
	if !ok {
		metrics.CooldownSuppressedTotal.Inc()
		log.Debug().
			Time("last_fired_at", derefTime(claimed.LastFiredAt)).
			Int("cooldown_minutes", claimed.CooldownMinutes).
			Msg("firing suppressed by cooldown")
		return claimed, false
	}

	if c.state != nil {
		if err := c.state.SaveLastFired(ctx, rule.ID, now); err != nil {
			metrics.PersistenceErrorsTotal.WithLabelValues("cooldown_state").Inc()
			log.Error().Err(err).Msg("failed to persist cooldown state")
		}
	}

	return claimed, true
}

// Restore loads persisted firing times back into the registry.
// Entries for rules that no longer exist are ignored.
func (c *Cooldown) Restore(ctx context.Context) (int, error) {
	if c.state == nil {
		return 0, nil
	}

	stored, err := c.state.LoadLastFired(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for ruleID, at := range stored {
		if err := c.rules.RestoreLastFired(ruleID, at); err != nil {
			continue
		}
		restored++
	}
	return restored, nil
}

// Forget drops the persisted firing time of a deleted rule. Failures are
// logged and counted only.
func (c *Cooldown) Forget(ctx context.Context, ruleID string) {
	if c.state == nil {
		return
	}
	if err := c.state.Forget(ctx, ruleID); err != nil {
		metrics.PersistenceErrorsTotal.WithLabelValues("cooldown_state").Inc()
		log := logger.WithRule("cooldown", ruleID)
		log.Error().Err(err).Msg("failed to drop cooldown state")
	}
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
