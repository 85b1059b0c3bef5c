// Package rules evaluates security events against the active rule set and
// opens or updates alerts when sliding-window thresholds are met.
package rules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"text/template"
	"time"

	"credwatch/internal/metrics"
	"credwatch/internal/model"
	"credwatch/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Dispatcher receives alerts that need notification fan-out.
type Dispatcher interface {
	Dispatch(alert model.Alert)
}

const casRetries = 3

// Engine holds the active rules and the per-(rule, groupKey) window arena.
type Engine struct {
	store      store.Store
	dispatcher Dispatcher
	metrics    *metrics.Metrics
	logger     *logrus.Logger

	mu    sync.RWMutex
	rules []model.AlertRule

	// groups maps ruleID+groupKey to *groupState. Entries lock
	// individually; the map itself is never locked as a whole.
	groups sync.Map
}

func NewEngine(st store.Store, dispatcher Dispatcher, m *metrics.Metrics, logger *logrus.Logger) *Engine {
	return &Engine{
		store:      st,
		dispatcher: dispatcher,
		metrics:    m,
		logger:     logger,
	}
}

// SetRules replaces the active rule set.
func (e *Engine) SetRules(rules []model.AlertRule) {
	e.mu.Lock()
	e.rules = append([]model.AlertRule(nil), rules...)
	e.mu.Unlock()
	e.logger.Infof("Active rule set replaced: %d rules", len(rules))
}

// Rules returns a copy of the active rule set.
func (e *Engine) Rules() []model.AlertRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.AlertRule(nil), e.rules...)
}

// OnEvent evaluates one accepted event against every enabled rule.
func (e *Engine) OnEvent(ctx context.Context, event *model.SecurityEvent) {
	start := time.Now()
	defer func() {
		e.metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	}()

	e.mu.RLock()
	rules := make([]model.AlertRule, len(e.rules))
	copy(rules, e.rules)
	e.mu.RUnlock()

	for i := range rules {
		rule := &rules[i]
		if !rule.Enabled {
			continue
		}
		if rule.EventType != event.Type {
			continue
		}
		if !evaluateConditions(rule.Conditions, event) {
			continue
		}
		e.processMatch(ctx, rule, event)
	}
}

func (e *Engine) processMatch(ctx context.Context, rule *model.AlertRule, event *model.SecurityEvent) {
	groupKey := model.GlobalGroupKey
	if rule.GroupBy != "" {
		if v, ok := event.Field(rule.GroupBy); ok && v != "" {
			groupKey = v
		}
	}

	stateI, _ := e.groups.LoadOrStore(groupStateKey(rule.ID, groupKey), &groupState{})
	state := stateI.(*groupState)

	state.mu.Lock()
	defer state.mu.Unlock()

	window := time.Duration(rule.WindowMinutes) * time.Minute
	count := state.observe(event.Timestamp, window)
	if count < rule.Threshold {
		return
	}

	existing, err := e.store.FindActiveAlert(rule.ID, groupKey)
	switch {
	case err == nil:
		e.updateAlert(existing, event, count)
	case errors.Is(err, store.ErrNotFound):
		cooldown := time.Duration(rule.CooldownMinutes) * time.Minute
		if !state.lastAlertAt.IsZero() && event.Timestamp.Sub(state.lastAlertAt) < cooldown {
			// Cooldown gates creation only; the window keeps counting.
			e.logger.Debugf("Alert suppressed by cooldown: rule=%s group=%s", rule.ID, groupKey)
			return
		}
		e.createAlert(rule, groupKey, event, count)
		state.lastAlertAt = event.Timestamp
	default:
		e.logger.Errorf("Failed to look up active alert for rule %s group %s: %v", rule.ID, groupKey, err)
	}
}

func (e *Engine) createAlert(rule *model.AlertRule, groupKey string, event *model.SecurityEvent, count int) {
	alert := model.Alert{
		ID:                     uuid.NewString(),
		RuleID:                 rule.ID,
		GroupKey:               groupKey,
		Title:                  renderTemplate(rule.Title, rule, groupKey, event),
		Description:            renderTemplate(rule.Description, rule, groupKey, event),
		Severity:               rule.AlertSeverity,
		Type:                   rule.AlertType,
		Status:                 model.AlertStatusOpen,
		TriggeringEventCount:   count,
		FirstTriggeredAt:       event.Timestamp,
		LastTriggeredAt:        event.Timestamp,
		NotificationChannelIDs: append([]string(nil), rule.NotificationChannelIDs...),
	}

	if err := e.store.CreateAlert(&alert); err != nil {
		e.logger.Errorf("Failed to persist alert for rule %s: %v", rule.ID, err)
		return
	}

	e.metrics.AlertsCreated.WithLabelValues(rule.ID, string(alert.Severity)).Inc()
	e.logger.Warnf("ALERT [%s] %s: %s (rule=%s group=%s count=%d)",
		alert.Severity, alert.Type, alert.Title, rule.ID, groupKey, count)

	// Persistence is done; delivery happens on the dispatcher's workers.
	e.dispatcher.Dispatch(alert)
}

// updateAlert bumps count and LastTriggeredAt on the existing alert. A
// concurrent resolver or manual update loses no intent: on conflict the
// alert is re-read and the bump re-applied on top of the fresh state.
func (e *Engine) updateAlert(alert *model.Alert, event *model.SecurityEvent, count int) {
	for attempt := 0; attempt < casRetries; attempt++ {
		alert.TriggeringEventCount = count
		if event.Timestamp.After(alert.LastTriggeredAt) {
			alert.LastTriggeredAt = event.Timestamp
		}

		err := e.store.UpdateAlert(alert)
		if err == nil {
			e.metrics.AlertsUpdated.Inc()
			return
		}
		if !errors.Is(err, store.ErrConflict) {
			e.logger.Errorf("Failed to update alert %s: %v", alert.ID, err)
			return
		}

		fresh, gerr := e.store.GetAlert(alert.ID)
		if gerr != nil {
			e.logger.Errorf("Failed to re-read alert %s after conflict: %v", alert.ID, gerr)
			return
		}
		if fresh.Terminal() {
			// Lost the race to a resolution; the window state will open a
			// fresh alert on the next threshold crossing.
			return
		}
		alert = fresh
	}
	e.logger.Errorf("Gave up updating alert %s after %d conflicts", alert.ID, casRetries)
}

// PruneStale drops window state idle for longer than maxIdle so the arena
// stays bounded as group keys churn.
func (e *Engine) PruneStale(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	removed := 0
	e.groups.Range(func(key, value interface{}) bool {
		state := value.(*groupState)
		state.mu.Lock()
		idle := state.idleSince(cutoff)
		state.mu.Unlock()
		if idle {
			e.groups.Delete(key)
			removed++
		}
		return true
	})
	if removed > 0 {
		e.logger.Debugf("Pruned %d idle rule group states", removed)
	}
	return removed
}

func groupStateKey(ruleID, groupKey string) string {
	return ruleID + "\x00" + groupKey
}

// templateData is what rule title/description templates render against.
type templateData struct {
	Rule     *model.AlertRule
	GroupKey string
	Event    *model.SecurityEvent
}

// renderTemplate executes the rule template, falling back to the raw text
// when it does not parse or execute.
func renderTemplate(text string, rule *model.AlertRule, groupKey string, event *model.SecurityEvent) string {
	if text == "" {
		return fmt.Sprintf("%s threshold met for %s", rule.Name, groupKey)
	}
	tmpl, err := template.New("alert").Parse(text)
	if err != nil {
		return text
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData{Rule: rule, GroupKey: groupKey, Event: event}); err != nil {
		return text
	}
	return buf.String()
}
