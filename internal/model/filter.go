package model

import "time"

// EventFilter selects events in list queries. Zero values mean "any".
type EventFilter struct {
	Type               string
	Source             string
	Severity           Severity
	RelatedUserAddress string
	RelatedIP          string
	RelatedSessionID   string
	From               time.Time
	To                 time.Time
	Page               int
	Limit              int
}

// AlertFilter selects alerts in list queries. Zero values mean "any".
type AlertFilter struct {
	Severity Severity
	Status   AlertStatus
	Type     string
	RuleID   string
	GroupKey string
	From     time.Time
	To       time.Time
	Page     int
	Limit    int
}

// Page is the stable pagination envelope returned by list queries.
type Page struct {
	Items interface{} `json:"items"`
	Total int         `json:"total"`
	Page  int         `json:"page"`
	Limit int         `json:"limit"`
	Pages int         `json:"pages"`
}

func NewPage(items interface{}, total, page, limit int) Page {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return Page{Items: items, Total: total, Page: page, Limit: limit, Pages: pages}
}
