// Package store persists events, alerts and engine configuration entities
// and serves the filtered, paginated queries the API and dashboard run.
package store

import (
	"errors"
	"time"

	"credwatch/internal/model"
)

var (
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an alert update presents a stale version.
	// The caller must re-read and retry.
	ErrConflict = errors.New("conflicting update")
)

// Store is the persistence contract for the engine. Alert updates follow a
// compare-and-swap discipline on Alert.Version.
type Store interface {
	AddEvent(event model.SecurityEvent) error
	GetEvent(id string) (*model.SecurityEvent, error)
	ListEvents(filter model.EventFilter) ([]model.SecurityEvent, int, error)
	EventsInRange(from, to time.Time) []model.SecurityEvent
	DeleteEventsBefore(cutoff time.Time) int

	CreateAlert(alert *model.Alert) error
	GetAlert(id string) (*model.Alert, error)
	FindActiveAlert(ruleID, groupKey string) (*model.Alert, error)
	ListAlerts(filter model.AlertFilter) ([]model.Alert, int, error)
	AlertsInRange(from, to time.Time) []model.Alert
	UpdateAlert(alert *model.Alert) error
	AppendAlertAction(id string, action model.AlertAction) (*model.Alert, error)
	DeleteAlertsBefore(cutoff time.Time) int

	PutRule(rule model.AlertRule) error
	GetRule(id string) (*model.AlertRule, error)
	ListRules() []model.AlertRule
	DeleteRule(id string) error

	PutChannel(channel model.NotificationChannel) error
	GetChannel(id string) (*model.NotificationChannel, error)
	ListChannels() []model.NotificationChannel
	DeleteChannel(id string) error

	PutAutoResolveRule(rule model.AutoResolveRule) error
	GetAutoResolveRule(id string) (*model.AutoResolveRule, error)
	ListAutoResolveRules() []model.AutoResolveRule
	DeleteAutoResolveRule(id string) error

	SubscribeAlerts(sub *AlertSubscriber)
	UnsubscribeAlerts(sub *AlertSubscriber)
}

// AlertSubscriber receives live alert writes matching its filter.
type AlertSubscriber struct {
	ID      string
	Channel chan model.Alert
	Filter  SubscriberFilter
}

// SubscriberFilter narrows the alerts a subscriber sees.
type SubscriberFilter struct {
	Severity model.Severity
	Type     string
}
