package model

import "time"

type AlertStatus string

const (
	AlertStatusOpen         AlertStatus = "open"
	AlertStatusAcknowledged AlertStatus = "acknowledged"
	AlertStatusResolved     AlertStatus = "resolved"
)

// GlobalGroupKey is the groupKey used by rules without a group_by field.
const GlobalGroupKey = "_global"

// Alert is a stateful record of a rule threshold being met for a group.
// Version is bumped on every store write; updates must present the version
// they read or the store rejects them with a conflict.
type Alert struct {
	ID                     string        `json:"id"`
	RuleID                 string        `json:"rule_id"`
	GroupKey               string        `json:"group_key"`
	Title                  string        `json:"title"`
	Description            string        `json:"description"`
	Severity               Severity      `json:"severity"`
	Type                   string        `json:"type"`
	Status                 AlertStatus   `json:"status"`
	TriggeringEventCount   int           `json:"triggering_event_count"`
	FirstTriggeredAt       time.Time     `json:"first_triggered_at"`
	LastTriggeredAt        time.Time     `json:"last_triggered_at"`
	ResolvedAt             *time.Time    `json:"resolved_at,omitempty"`
	ResolutionNotes        string        `json:"resolution_notes,omitempty"`
	NotificationChannelIDs []string      `json:"notification_channel_ids,omitempty"`
	Actions                []AlertAction `json:"actions,omitempty"`
	Version                int64         `json:"version"`
}

// AlertAction is one entry in an alert's audit trail.
type AlertAction struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"` // acknowledged, resolved, comment, system_resolved
	Actor     string    `json:"actor"`
	Notes     string    `json:"notes,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Terminal reports whether the alert can still change status.
func (a *Alert) Terminal() bool {
	return a.Status == AlertStatusResolved
}
