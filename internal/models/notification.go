package models

import (
	"slices"
	"time"
)

// NotificationStatus is the lifecycle state recorded by the archive
type NotificationStatus string

const (
	StatusActive       NotificationStatus = "active"
	StatusAcknowledged NotificationStatus = "acknowledged"
	StatusResolved     NotificationStatus = "resolved"
)

// NotificationMetadata captures what the rule saw when it fired
type NotificationMetadata struct {
	ObservedValue float64        `json:"observed_value"`
	Threshold     float64        `json:"threshold"`
	Comparator    Comparator     `json:"comparator"`
	MetricField   MetricField    `json:"metric_field"`
	Snapshot      MetricSnapshot `json:"snapshot"`
}

// Notification is created exactly once per firing and is immutable afterwards
type Notification struct {
	ID           string               `json:"id"`
	RuleID       string               `json:"rule_id"`
	RuleName     LocalizedText        `json:"rule_name"`
	TargetID     string               `json:"target_id"`
	TargetName   string               `json:"target_name"`
	TargetNameAR string               `json:"target_name_ar"`
	Severity     Severity             `json:"severity"`
	Message      string               `json:"message"`
	MessageAR    string               `json:"message_ar"`
	FiredAt      time.Time            `json:"fired_at"`
	ChannelIDs   []string             `json:"channel_ids"`
	Test         bool                 `json:"test,omitempty"`
	Metadata     NotificationMetadata `json:"metadata"`
}

// Clone returns a deep copy of the notification
func (n Notification) Clone() Notification {
	n.ChannelIDs = slices.Clone(n.ChannelIDs)
	return n
}
