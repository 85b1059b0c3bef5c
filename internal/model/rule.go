package model

// AlertRule describes when a sequence of events should raise an Alert.
type AlertRule struct {
	ID                     string      `yaml:"id" json:"id"`
	Name                   string      `yaml:"name" json:"name"`
	Enabled                bool        `yaml:"enabled" json:"enabled"`
	EventType              string      `yaml:"event_type" json:"event_type"`
	Conditions             []Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	GroupBy                string      `yaml:"group_by,omitempty" json:"group_by,omitempty"`
	WindowMinutes          int         `yaml:"window_minutes" json:"window_minutes"`
	Threshold              int         `yaml:"threshold" json:"threshold"`
	CooldownMinutes        int         `yaml:"cooldown_minutes" json:"cooldown_minutes"`
	AlertSeverity          Severity    `yaml:"alert_severity" json:"alert_severity"`
	AlertType              string      `yaml:"alert_type" json:"alert_type"`
	Title                  string      `yaml:"title" json:"title"`
	Description            string      `yaml:"description" json:"description"`
	NotificationChannelIDs []string    `yaml:"notification_channel_ids,omitempty" json:"notification_channel_ids,omitempty"`
}

// Condition is a single field comparison evaluated against an event.
type Condition struct {
	Field    string `yaml:"field" json:"field"`
	Operator string `yaml:"operator" json:"operator"`
	Value    string `yaml:"value" json:"value"`
}

// AutoResolveRule closes alerts of a given type after a quiet period.
type AutoResolveRule struct {
	ID                string `yaml:"id" json:"id"`
	Name              string `yaml:"name" json:"name"`
	Enabled           bool   `yaml:"enabled" json:"enabled"`
	AlertType         string `yaml:"alert_type" json:"alert_type"`
	ResolutionMinutes int    `yaml:"resolution_minutes" json:"resolution_minutes"`
	ResolutionNotes   string `yaml:"resolution_notes,omitempty" json:"resolution_notes,omitempty"`
}
