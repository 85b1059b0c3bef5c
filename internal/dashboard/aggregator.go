// Package dashboard computes summary statistics for the read-only
// dashboard surface.
package dashboard

import (
	"sort"
	"time"

	"credwatch/internal/model"
	"credwatch/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	timelineBuckets = 24
	topN            = 5
)

// Aggregator answers summary queries from the store's time-indexed reads.
// It holds no state of its own.
type Aggregator struct {
	store  store.Store
	logger *logrus.Logger
}

func NewAggregator(st store.Store, logger *logrus.Logger) *Aggregator {
	return &Aggregator{store: st, logger: logger}
}

// Summary aggregates events and alerts over [from, to].
func (a *Aggregator) Summary(from, to time.Time) model.DashboardSummary {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}

	events := a.store.EventsInRange(from, to)
	alerts := a.store.AlertsInRange(from, to)

	summary := model.DashboardSummary{
		From:             from,
		To:               to,
		TotalEvents:      len(events),
		TotalAlerts:      len(alerts),
		EventsBySeverity: make(map[model.Severity]int),
		EventsBySource:   make(map[string]int),
		AlertsBySeverity: make(map[model.Severity]int),
		AlertsByStatus:   make(map[model.AlertStatus]int),
	}

	sources := make(map[string]int)
	addresses := make(map[string]int)
	ips := make(map[string]int)

	for i := range events {
		e := &events[i]
		summary.EventsBySeverity[e.Severity]++
		summary.EventsBySource[e.Source]++
		sources[e.Source]++
		if e.RelatedUserAddress != "" {
			addresses[e.RelatedUserAddress]++
		}
		if e.RelatedIP != "" {
			ips[e.RelatedIP]++
		}
	}

	for i := range alerts {
		al := &alerts[i]
		summary.AlertsBySeverity[al.Severity]++
		summary.AlertsByStatus[al.Status]++
		if !al.Terminal() {
			summary.OpenAlerts++
		}
	}

	summary.TopSources = topEntries(sources, topN)
	summary.TopAddresses = topEntries(addresses, topN)
	summary.TopIPs = topEntries(ips, topN)

	summary.EventTimeline = eventTimeline(events, from, to)
	summary.AlertTimeline = alertTimeline(alerts, from, to)

	return summary
}

func topEntries(counts map[string]int, n int) []model.RankedEntry {
	entries := make([]model.RankedEntry, 0, len(counts))
	for key, count := range counts {
		entries = append(entries, model.RankedEntry{Key: key, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Key < entries[j].Key
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

func makeBuckets(from, to time.Time) ([]model.TimelineBucket, time.Duration) {
	width := to.Sub(from) / timelineBuckets
	if width <= 0 {
		width = time.Minute
	}
	buckets := make([]model.TimelineBucket, timelineBuckets)
	for i := range buckets {
		buckets[i].Start = from.Add(time.Duration(i) * width)
	}
	return buckets, width
}

func bucketIndex(ts, from time.Time, width time.Duration) int {
	idx := int(ts.Sub(from) / width)
	if idx < 0 {
		return 0
	}
	if idx >= timelineBuckets {
		return timelineBuckets - 1
	}
	return idx
}

func eventTimeline(events []model.SecurityEvent, from, to time.Time) []model.TimelineBucket {
	buckets, width := makeBuckets(from, to)
	for i := range events {
		buckets[bucketIndex(events[i].Timestamp, from, width)].Count++
	}
	return buckets
}

func alertTimeline(alerts []model.Alert, from, to time.Time) []model.TimelineBucket {
	buckets, width := makeBuckets(from, to)
	for i := range alerts {
		buckets[bucketIndex(alerts[i].FirstTriggeredAt, from, width)].Count++
	}
	return buckets
}
