package models

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// AllTargets is the wildcard target id matching every monitored target
const AllTargets = "all"

// Severity represents alert severity levels
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Severities lists every severity from most to least urgent.
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

// IsValid checks if the severity level is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
		return true
	default:
		return false
	}
}

// Comparator is the relation a rule applies between observed value and threshold
type Comparator string

const (
	GreaterThan Comparator = "greater_than"
	LessThan    Comparator = "less_than"
	Equals      Comparator = "equals"
	NotEquals   Comparator = "not_equals"
)

// IsValid checks if the comparator is known
func (c Comparator) IsValid() bool {
	switch c {
	case GreaterThan, LessThan, Equals, NotEquals:
		return true
	default:
		return false
	}
}

// Compare applies the comparator. Unknown comparators never match.
func (c Comparator) Compare(value, threshold float64) bool {
	switch c {
	case GreaterThan:
		return value > threshold
	case LessThan:
		return value < threshold
	case Equals:
		return value == threshold
	case NotEquals:
		return value != threshold
	default:
		return false
	}
}

// LocalizedText carries the English and Arabic rendering of a label
type LocalizedText struct {
	EN string `json:"en"`
	AR string `json:"ar"`
}

// AlertRule is a user-defined threshold rule over one metric field
type AlertRule struct {
	ID              string        `json:"id"`
	Name            LocalizedText `json:"name"`
	TargetID        string        `json:"target_id"`
	MetricField     MetricField   `json:"metric_field"`
	Comparator      Comparator    `json:"comparator"`
	Threshold       float64       `json:"threshold"`
	Severity        Severity      `json:"severity"`
	Enabled         bool          `json:"enabled"`
	ChannelIDs      []string      `json:"channel_ids"`
	CooldownMinutes int           `json:"cooldown_minutes"`

	// Written only by the dispatch path
	LastFiredAt *time.Time `json:"last_fired_at,omitempty"`
}

// Cooldown returns the minimum spacing between two firings
func (r AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// AppliesTo reports whether the rule watches the given target
func (r AlertRule) AppliesTo(targetID string) bool {
	return r.TargetID == AllTargets || r.TargetID == targetID
}

// Clone returns a deep copy so callers cannot alias registry state
func (r AlertRule) Clone() AlertRule {
	r.ChannelIDs = slices.Clone(r.ChannelIDs)
	if r.LastFiredAt != nil {
		t := *r.LastFiredAt
		r.LastFiredAt = &t
	}
	return r
}

// Normalize trims identifiers, lower-cases enum fields and removes
// duplicate channel references while keeping their order.
func (r *AlertRule) Normalize() {
	r.ID = strings.TrimSpace(r.ID)
	r.TargetID = strings.ToLower(strings.TrimSpace(r.TargetID))
	r.MetricField = MetricField(strings.ToLower(strings.TrimSpace(string(r.MetricField))))
	r.Comparator = Comparator(strings.ToLower(strings.TrimSpace(string(r.Comparator))))
	r.Severity = Severity(strings.ToLower(strings.TrimSpace(string(r.Severity))))
	r.Name.EN = strings.TrimSpace(r.Name.EN)
	r.Name.AR = strings.TrimSpace(r.Name.AR)

	if r.ChannelIDs != nil {
		seen := make(map[string]struct{}, len(r.ChannelIDs))
		ids := make([]string, 0, len(r.ChannelIDs))
		for _, id := range r.ChannelIDs {
			id = strings.TrimSpace(id)
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
		r.ChannelIDs = ids
	}
}

// Validate checks if the AlertRule has all required fields and valid values
func (r *AlertRule) Validate() error {
	if r.ID == "" {
		return ErrEmptyRuleID
	}

	if r.TargetID == "" {
		return ErrEmptyTargetID
	}

	if !r.MetricField.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidMetricField, r.MetricField)
	}

	if !r.Comparator.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidComparator, r.Comparator)
	}

	if !r.Severity.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, r.Severity)
	}

	if r.CooldownMinutes < 0 {
		return ErrNegativeCooldown
	}

	for _, id := range r.ChannelIDs {
		if id == "" {
			return ErrEmptyChannelRef
		}
	}

	return nil
}

// RulePatch is a partial rule update; nil fields are left unchanged.
// LastFiredAt is deliberately absent.
type RulePatch struct {
	Name            *LocalizedText `json:"name,omitempty"`
	TargetID        *string        `json:"target_id,omitempty"`
	MetricField     *MetricField   `json:"metric_field,omitempty"`
	Comparator      *Comparator    `json:"comparator,omitempty"`
	Threshold       *float64       `json:"threshold,omitempty"`
	Severity        *Severity      `json:"severity,omitempty"`
	Enabled         *bool          `json:"enabled,omitempty"`
	ChannelIDs      *[]string      `json:"channel_ids,omitempty"`
	CooldownMinutes *int           `json:"cooldown_minutes,omitempty"`
}

// Apply returns a copy of r with the patch applied
func (p RulePatch) Apply(r AlertRule) AlertRule {
	r = r.Clone()
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.TargetID != nil {
		r.TargetID = *p.TargetID
	}
	if p.MetricField != nil {
		r.MetricField = *p.MetricField
	}
	if p.Comparator != nil {
		r.Comparator = *p.Comparator
	}
	if p.Threshold != nil {
		r.Threshold = *p.Threshold
	}
	if p.Severity != nil {
		r.Severity = *p.Severity
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.ChannelIDs != nil {
		r.ChannelIDs = slices.Clone(*p.ChannelIDs)
	}
	if p.CooldownMinutes != nil {
		r.CooldownMinutes = *p.CooldownMinutes
	}
	return r
}
