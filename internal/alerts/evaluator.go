// Package alerts decides when a rule fires: threshold evaluation against a
// snapshot, and per-rule cooldown gating.
package alerts

import (
	"time"

	"auditwatch/internal/metrics"
	"auditwatch/internal/models"
)

// Matches reports whether rule's condition holds for snap.
// Disabled rules, unknown fields and unknown comparators never match.
func Matches(rule models.AlertRule, snap models.MetricSnapshot) bool {
	if !rule.Enabled {
		return false
	}
	value, ok := snap.Value(rule.MetricField)
	if !ok {
		return false
	}
	return rule.Comparator.Compare(value, rule.Threshold)
}

// MayFire reports whether rule's cooldown has elapsed at now
func MayFire(rule models.AlertRule, now time.Time) bool {
	if rule.LastFiredAt == nil {
		return true
	}
	return !now.Before(rule.LastFiredAt.Add(rule.Cooldown()))
}

// ShouldFire is the firing decision for one rule and snapshot
func ShouldFire(rule models.AlertRule, snap models.MetricSnapshot, now time.Time) bool {
	return Matches(rule, snap) && MayFire(rule, now)
}

// Evaluate returns the rules among candidates whose condition holds for
// snap. Cooldown is not consulted here; see Cooldown.Claim.
func Evaluate(candidates []models.AlertRule, snap models.MetricSnapshot) []models.AlertRule {
	var matched []models.AlertRule
	for _, rule := range candidates {
		metrics.RuleEvaluationsTotal.Inc()
		if rule.AppliesTo(snap.TargetID) && Matches(rule, snap) {
			matched = append(matched, rule)
		}
	}
	return matched
}
