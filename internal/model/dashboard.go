package model

import "time"

// DashboardSummary is the aggregated view over a time range.
type DashboardSummary struct {
	From             time.Time           `json:"from"`
	To               time.Time           `json:"to"`
	TotalEvents      int                 `json:"total_events"`
	TotalAlerts      int                 `json:"total_alerts"`
	OpenAlerts       int                 `json:"open_alerts"`
	EventsBySeverity map[Severity]int    `json:"events_by_severity"`
	EventsBySource   map[string]int      `json:"events_by_source"`
	AlertsBySeverity map[Severity]int    `json:"alerts_by_severity"`
	AlertsByStatus   map[AlertStatus]int `json:"alerts_by_status"`
	TopSources       []RankedEntry       `json:"top_sources"`
	TopAddresses     []RankedEntry       `json:"top_addresses"`
	TopIPs           []RankedEntry       `json:"top_ips"`
	EventTimeline    []TimelineBucket    `json:"event_timeline"`
	AlertTimeline    []TimelineBucket    `json:"alert_timeline"`
}

// RankedEntry is one row of a top-N ranking.
type RankedEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// TimelineBucket counts items in one fixed-width slice of the time range.
type TimelineBucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}
