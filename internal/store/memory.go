package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"credwatch/internal/model"

	"github.com/sirupsen/logrus"
)

const (
	defaultMaxEvents = 100000
	defaultMaxAlerts = 10000
)

// MemoryStore keeps everything in process memory under a RWMutex. Events are
// held in intake-timestamp order, which keeps time-range queries a binary
// search instead of a full scan.
type MemoryStore struct {
	mu sync.RWMutex

	events    []model.SecurityEvent
	eventByID map[string]int

	alerts     map[string]*model.Alert
	alertOrder []string
	// active (open/acknowledged) alert per ruleID+groupKey
	activeByKey map[string]string

	rules       map[string]model.AlertRule
	channels    map[string]model.NotificationChannel
	autoResolve map[string]model.AutoResolveRule

	maxEvents int
	maxAlerts int

	alertSubs   map[*AlertSubscriber]bool
	alertSubsMu sync.RWMutex

	logger *logrus.Logger
}

func NewMemoryStore(logger *logrus.Logger) *MemoryStore {
	return &MemoryStore{
		events:      make([]model.SecurityEvent, 0),
		eventByID:   make(map[string]int),
		alerts:      make(map[string]*model.Alert),
		activeByKey: make(map[string]string),
		rules:       make(map[string]model.AlertRule),
		channels:    make(map[string]model.NotificationChannel),
		autoResolve: make(map[string]model.AutoResolveRule),
		maxEvents:   defaultMaxEvents,
		maxAlerts:   defaultMaxAlerts,
		alertSubs:   make(map[*AlertSubscriber]bool),
		logger:      logger,
	}
}

func activeKey(ruleID, groupKey string) string {
	return ruleID + "\x00" + groupKey
}

// Event methods

func (s *MemoryStore) AddEvent(event model.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	s.eventByID[event.ID] = len(s.events) - 1

	// Keep only the newest maxEvents
	if len(s.events) > s.maxEvents {
		drop := len(s.events) - s.maxEvents
		for i := 0; i < drop; i++ {
			delete(s.eventByID, s.events[i].ID)
		}
		s.events = append([]model.SecurityEvent(nil), s.events[drop:]...)
		s.reindexEvents()
	}
	return nil
}

// caller holds s.mu
func (s *MemoryStore) reindexEvents() {
	for i := range s.events {
		s.eventByID[s.events[i].ID] = i
	}
}

func (s *MemoryStore) GetEvent(id string) (*model.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.eventByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	event := s.events[i]
	return &event, nil
}

// rangeIndexes returns the [lo, hi) slice bounds covering [from, to] in the
// timestamp-ordered event slice. Caller holds s.mu.
func (s *MemoryStore) rangeIndexes(from, to time.Time) (int, int) {
	lo := 0
	if !from.IsZero() {
		lo = sort.Search(len(s.events), func(i int) bool {
			return !s.events[i].Timestamp.Before(from)
		})
	}
	hi := len(s.events)
	if !to.IsZero() {
		hi = sort.Search(len(s.events), func(i int) bool {
			return s.events[i].Timestamp.After(to)
		})
	}
	if hi < lo {
		hi = lo
	}
	return lo, hi
}

func (s *MemoryStore) EventsInRange(from, to time.Time) []model.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := s.rangeIndexes(from, to)
	result := make([]model.SecurityEvent, hi-lo)
	copy(result, s.events[lo:hi])
	return result
}

func matchEvent(e *model.SecurityEvent, f *model.EventFilter) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if f.RelatedUserAddress != "" && e.RelatedUserAddress != f.RelatedUserAddress {
		return false
	}
	if f.RelatedIP != "" && e.RelatedIP != f.RelatedIP {
		return false
	}
	if f.RelatedSessionID != "" && e.RelatedSessionID != f.RelatedSessionID {
		return false
	}
	return true
}

func (s *MemoryStore) ListEvents(filter model.EventFilter) ([]model.SecurityEvent, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lo, hi := s.rangeIndexes(filter.From, filter.To)

	filtered := make([]model.SecurityEvent, 0)
	for i := lo; i < hi; i++ {
		if matchEvent(&s.events[i], &filter) {
			filtered = append(filtered, s.events[i])
		}
	}

	// Latest first
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}

	total := len(filtered)
	page, limit := clampPage(filter.Page, filter.Limit)
	start := (page - 1) * limit
	if start >= total {
		return []model.SecurityEvent{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func (s *MemoryStore) DeleteEventsBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	drop := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Timestamp.Before(cutoff)
	})
	if drop == 0 {
		return 0
	}
	for i := 0; i < drop; i++ {
		delete(s.eventByID, s.events[i].ID)
	}
	s.events = append([]model.SecurityEvent(nil), s.events[drop:]...)
	s.reindexEvents()
	return drop
}

// Alert methods

func (s *MemoryStore) CreateAlert(alert *model.Alert) error {
	s.mu.Lock()

	alert.Version = 1
	stored := *alert
	s.alerts[alert.ID] = &stored
	s.alertOrder = append(s.alertOrder, alert.ID)
	if !stored.Terminal() {
		s.activeByKey[activeKey(alert.RuleID, alert.GroupKey)] = alert.ID
	}

	// Keep only the newest maxAlerts
	if len(s.alertOrder) > s.maxAlerts {
		drop := len(s.alertOrder) - s.maxAlerts
		for _, id := range s.alertOrder[:drop] {
			s.dropAlertLocked(id)
		}
		s.alertOrder = append([]string(nil), s.alertOrder[drop:]...)
	}

	notify := stored
	s.mu.Unlock()

	s.notifyAlertSubscribers(notify)
	return nil
}

// caller holds s.mu
func (s *MemoryStore) dropAlertLocked(id string) {
	if a, ok := s.alerts[id]; ok {
		key := activeKey(a.RuleID, a.GroupKey)
		if s.activeByKey[key] == id {
			delete(s.activeByKey, key)
		}
		delete(s.alerts, id)
	}
}

func (s *MemoryStore) GetAlert(id string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *alert
	return &cp, nil
}

func (s *MemoryStore) FindActiveAlert(ruleID, groupKey string) (*model.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.activeByKey[activeKey(ruleID, groupKey)]
	if !ok {
		return nil, ErrNotFound
	}
	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *alert
	return &cp, nil
}

// UpdateAlert is the compare-and-swap write path: the caller must present
// the Version it read. On success the stored version advances and the
// caller's copy is refreshed; on mismatch nothing changes and ErrConflict
// is returned.
func (s *MemoryStore) UpdateAlert(alert *model.Alert) error {
	s.mu.Lock()

	current, ok := s.alerts[alert.ID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if current.Version != alert.Version {
		s.mu.Unlock()
		return ErrConflict
	}

	alert.Version++
	stored := *alert
	s.alerts[alert.ID] = &stored

	key := activeKey(stored.RuleID, stored.GroupKey)
	if stored.Terminal() {
		if s.activeByKey[key] == stored.ID {
			delete(s.activeByKey, key)
		}
	} else {
		s.activeByKey[key] = stored.ID
	}

	notify := stored
	s.mu.Unlock()

	s.notifyAlertSubscribers(notify)
	return nil
}

// AppendAlertAction records an audit entry. The trail stays writable after
// resolution; the action list is not versioned state.
func (s *MemoryStore) AppendAlertAction(id string, action model.AlertAction) (*model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, ErrNotFound
	}
	alert.Actions = append(alert.Actions, action)
	cp := *alert
	return &cp, nil
}

func matchAlert(a *model.Alert, f *model.AlertFilter) bool {
	if f.Severity != "" && a.Severity != f.Severity {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.RuleID != "" && a.RuleID != f.RuleID {
		return false
	}
	if f.GroupKey != "" && a.GroupKey != f.GroupKey {
		return false
	}
	if !f.From.IsZero() && a.LastTriggeredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && a.FirstTriggeredAt.After(f.To) {
		return false
	}
	return true
}

func (s *MemoryStore) ListAlerts(filter model.AlertFilter) ([]model.Alert, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filtered := make([]model.Alert, 0)
	// Newest first: creation order is the alertOrder slice.
	for i := len(s.alertOrder) - 1; i >= 0; i-- {
		alert, ok := s.alerts[s.alertOrder[i]]
		if !ok {
			continue
		}
		if matchAlert(alert, &filter) {
			filtered = append(filtered, *alert)
		}
	}

	total := len(filtered)
	page, limit := clampPage(filter.Page, filter.Limit)
	start := (page - 1) * limit
	if start >= total {
		return []model.Alert{}, total, nil
	}
	end := start + limit
	if end > total {
		end = total
	}
	return filtered[start:end], total, nil
}

func (s *MemoryStore) AlertsInRange(from, to time.Time) []model.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Alert, 0)
	for _, id := range s.alertOrder {
		alert, ok := s.alerts[id]
		if !ok {
			continue
		}
		if !from.IsZero() && alert.LastTriggeredAt.Before(from) {
			continue
		}
		if !to.IsZero() && alert.FirstTriggeredAt.After(to) {
			continue
		}
		result = append(result, *alert)
	}
	return result
}

// DeleteAlertsBefore removes resolved alerts whose resolution predates the
// cutoff. Open alerts are never retention-swept.
func (s *MemoryStore) DeleteAlertsBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.alertOrder[:0]
	removed := 0
	for _, id := range s.alertOrder {
		alert, ok := s.alerts[id]
		if !ok {
			continue
		}
		if alert.Status == model.AlertStatusResolved && alert.ResolvedAt != nil && alert.ResolvedAt.Before(cutoff) {
			s.dropAlertLocked(id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.alertOrder = kept
	return removed
}

// Rule methods

func (s *MemoryStore) PutRule(rule model.AlertRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

func (s *MemoryStore) GetRule(id string) (*model.AlertRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rule, nil
}

func (s *MemoryStore) ListRules() []model.AlertRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.AlertRule, 0, len(s.rules))
	for _, r := range s.rules {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *MemoryStore) DeleteRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// Channel methods

func (s *MemoryStore) PutChannel(channel model.NotificationChannel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channel.ID] = channel
	return nil
}

func (s *MemoryStore) GetChannel(id string) (*model.NotificationChannel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	channel, ok := s.channels[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &channel, nil
}

func (s *MemoryStore) ListChannels() []model.NotificationChannel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.NotificationChannel, 0, len(s.channels))
	for _, c := range s.channels {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *MemoryStore) DeleteChannel(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[id]; !ok {
		return ErrNotFound
	}
	delete(s.channels, id)
	return nil
}

// Auto-resolve rule methods

func (s *MemoryStore) PutAutoResolveRule(rule model.AutoResolveRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoResolve[rule.ID] = rule
	return nil
}

func (s *MemoryStore) GetAutoResolveRule(id string) (*model.AutoResolveRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rule, ok := s.autoResolve[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rule, nil
}

func (s *MemoryStore) ListAutoResolveRules() []model.AutoResolveRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]model.AutoResolveRule, 0, len(s.autoResolve))
	for _, r := range s.autoResolve {
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func (s *MemoryStore) DeleteAutoResolveRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.autoResolve[id]; !ok {
		return ErrNotFound
	}
	delete(s.autoResolve, id)
	return nil
}

// Subscriber methods

func (s *MemoryStore) SubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	s.alertSubs[sub] = true
}

func (s *MemoryStore) UnsubscribeAlerts(sub *AlertSubscriber) {
	s.alertSubsMu.Lock()
	defer s.alertSubsMu.Unlock()
	if s.alertSubs[sub] {
		delete(s.alertSubs, sub)
		close(sub.Channel)
	}
}

func (s *MemoryStore) notifyAlertSubscribers(alert model.Alert) {
	s.alertSubsMu.RLock()
	defer s.alertSubsMu.RUnlock()

	for sub := range s.alertSubs {
		if sub.Filter.Severity != "" && alert.Severity != sub.Filter.Severity {
			continue
		}
		if sub.Filter.Type != "" && !strings.EqualFold(alert.Type, sub.Filter.Type) {
			continue
		}
		select {
		case sub.Channel <- alert:
		default:
			// Subscriber too slow, skip
		}
	}
}

// Helpers

func clampPage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 25
	}
	if limit > 1000 {
		limit = 1000
	}
	return page, limit
}
