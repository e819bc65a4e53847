// Package registry holds alert rules and delivery channels keyed by id.
//
// Every read returns deep copies, so callers always see a consistent
// snapshot even while the monitoring loop marks rules as fired.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"auditwatch/internal/models"
)

// Registry errors
var (
	ErrRuleNotFound    = errors.New("alert rule not found")
	ErrChannelNotFound = errors.New("alert channel not found")
)

// Registry is a concurrency-safe store of rules and channels
type Registry struct {
	rulesMu sync.RWMutex
	rules   map[string]models.AlertRule

	channelsMu sync.RWMutex
	channels   map[string]models.AlertChannel
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		rules:    make(map[string]models.AlertRule),
		channels: make(map[string]models.AlertChannel),
	}
}

// AddRule validates and upserts a rule. Re-adding an existing id replaces it.
func (r *Registry) AddRule(rule models.AlertRule) (models.AlertRule, error) {
	rule = rule.Clone()
	rule.Normalize()
	if err := rule.Validate(); err != nil {
		return models.AlertRule{}, err
	}

	r.rulesMu.Lock()
	r.rules[rule.ID] = rule
	r.rulesMu.Unlock()

	return rule.Clone(), nil
}

// UpdateRule applies a partial update to an existing rule
func (r *Registry) UpdateRule(id string, patch models.RulePatch) (models.AlertRule, error) {
	r.rulesMu.Lock()
	defer r.rulesMu.Unlock()

	current, ok := r.rules[id]
	if !ok {
		return models.AlertRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}

	updated := patch.Apply(current)
	updated.Normalize()
	if err := updated.Validate(); err != nil {
		return models.AlertRule{}, err
	}

	r.rules[id] = updated
	return updated.Clone(), nil
}

// DeleteRule removes a rule
func (r *Registry) DeleteRule(id string) error {
	r.rulesMu.Lock()
	defer r.rulesMu.Unlock()

	if _, ok := r.rules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	delete(r.rules, id)
	return nil
}

// GetRule returns a copy of one rule
func (r *Registry) GetRule(id string) (models.AlertRule, error) {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()

	rule, ok := r.rules[id]
	if !ok {
		return models.AlertRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule.Clone(), nil
}

// ListRules returns every rule sorted by id
func (r *Registry) ListRules() []models.AlertRule {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()

	out := make([]models.AlertRule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// RulesFor returns the rules bound to targetID or to the "all" wildcard, sorted by id
func (r *Registry) RulesFor(targetID string) []models.AlertRule {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()

	out := make([]models.AlertRule, 0)
	for _, rule := range r.rules {
		if rule.AppliesTo(targetID) {
			out = append(out, rule.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MarkFired atomically re-checks a rule with allow and, if it passes, stamps
// LastFiredAt with firedAt. The returned rule reflects the stored state.
// Two concurrent callers can never both succeed for the same cooldown window.
func (r *Registry) MarkFired(id string, firedAt time.Time, allow func(models.AlertRule) bool) (models.AlertRule, bool, error) {
	r.rulesMu.Lock()
	defer r.rulesMu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return models.AlertRule{}, false, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if allow != nil && !allow(rule) {
		return rule.Clone(), false, nil
	}

	t := firedAt
	rule.LastFiredAt = &t
	r.rules[id] = rule
	return rule.Clone(), true, nil
}

// RestoreLastFired sets LastFiredAt when at is later than the stored value.
// Used to reload persisted cooldown state.
func (r *Registry) RestoreLastFired(id string, at time.Time) error {
	r.rulesMu.Lock()
	defer r.rulesMu.Unlock()

	rule, ok := r.rules[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	if rule.LastFiredAt != nil && !at.After(*rule.LastFiredAt) {
		return nil
	}
	t := at
	rule.LastFiredAt = &t
	r.rules[id] = rule
	return nil
}

// AddChannel validates and upserts a channel
func (r *Registry) AddChannel(ch models.AlertChannel) (models.AlertChannel, error) {
	ch = ch.Clone()
	ch.Normalize()
	if err := ch.Validate(); err != nil {
		return models.AlertChannel{}, err
	}

	r.channelsMu.Lock()
	r.channels[ch.ID] = ch
	r.channelsMu.Unlock()

	return ch.Clone(), nil
}

// UpdateChannel applies a partial update to an existing channel
func (r *Registry) UpdateChannel(id string, patch models.ChannelPatch) (models.AlertChannel, error) {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	current, ok := r.channels[id]
	if !ok {
		return models.AlertChannel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}

	updated, err := patch.Apply(current)
	if err != nil {
		return models.AlertChannel{}, err
	}
	if err := updated.Validate(); err != nil {
		return models.AlertChannel{}, err
	}

	r.channels[id] = updated
	return updated.Clone(), nil
}

// DeleteChannel removes a channel. Rules referencing it are left untouched.
func (r *Registry) DeleteChannel(id string) error {
	r.channelsMu.Lock()
	defer r.channelsMu.Unlock()

	if _, ok := r.channels[id]; !ok {
		return fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	delete(r.channels, id)
	return nil
}

// GetChannel returns a copy of one channel
func (r *Registry) GetChannel(id string) (models.AlertChannel, error) {
	ch, ok := r.LookupChannel(id)
	if !ok {
		return models.AlertChannel{}, fmt.Errorf("%w: %s", ErrChannelNotFound, id)
	}
	return ch, nil
}

// LookupChannel returns a copy of one channel and whether it exists
func (r *Registry) LookupChannel(id string) (models.AlertChannel, bool) {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()

	ch, ok := r.channels[id]
	if !ok {
		return models.AlertChannel{}, false
	}
	return ch.Clone(), true
}

// ListChannels returns every channel sorted by id
func (r *Registry) ListChannels() []models.AlertChannel {
	r.channelsMu.RLock()
	defer r.channelsMu.RUnlock()

	out := make([]models.AlertChannel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
