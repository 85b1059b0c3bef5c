// Package resolver runs the background sweeps: auto-resolution of quiet
// alerts and retention cleanup.
package resolver

import (
	"bytes"
	"context"
	"errors"
	"text/template"
	"time"

	"credwatch/internal/metrics"
	"credwatch/internal/model"
	"credwatch/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const casRetries = 3

// AutoResolver periodically closes open alerts that have been quiet for
// their rule's resolution period. A single goroutine runs the sweep, so
// sweeps never overlap.
type AutoResolver struct {
	store    store.Store
	metrics  *metrics.Metrics
	logger   *logrus.Logger
	interval time.Duration
}

func NewAutoResolver(st store.Store, interval time.Duration, m *metrics.Metrics, logger *logrus.Logger) *AutoResolver {
	if interval <= 0 {
		interval = time.Minute
	}
	return &AutoResolver{
		store:    st,
		metrics:  m,
		logger:   logger,
		interval: interval,
	}
}

// Run executes sweeps on the configured interval until the context is
// cancelled. Cancellation is checked between sweeps, never mid-update.
func (r *AutoResolver) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Infof("Auto-resolver started (interval: %v)", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Auto-resolver stopped")
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Sweep visits every open or acknowledged alert and resolves the ones whose
// quiet period has elapsed.
func (r *AutoResolver) Sweep() int {
	rulesByType := make(map[string]model.AutoResolveRule)
	for _, rule := range r.store.ListAutoResolveRules() {
		if rule.Enabled {
			rulesByType[rule.AlertType] = rule
		}
	}
	if len(rulesByType) == 0 {
		return 0
	}

	resolved := 0
	now := time.Now()
	for _, alert := range r.store.AlertsInRange(time.Time{}, time.Time{}) {
		if alert.Terminal() {
			continue
		}
		rule, ok := rulesByType[alert.Type]
		if !ok {
			continue
		}
		quiet := time.Duration(rule.ResolutionMinutes) * time.Minute
		if now.Sub(alert.LastTriggeredAt) < quiet {
			continue
		}
		if r.resolve(alert, rule, quiet) {
			resolved++
		}
	}

	if resolved > 0 {
		r.logger.Infof("Auto-resolver sweep closed %d alerts", resolved)
	}
	return resolved
}

// resolve commits the resolution with the store's compare-and-swap. A
// conflict means something touched the alert since we read it; the quiet
// period is re-checked against the fresh state and the resolution aborted
// if a new triggering event moved LastTriggeredAt.
func (r *AutoResolver) resolve(alert model.Alert, rule model.AutoResolveRule, quiet time.Duration) bool {
	current := alert
	for attempt := 0; attempt < casRetries; attempt++ {
		if current.Terminal() {
			return false
		}
		if time.Since(current.LastTriggeredAt) < quiet {
			// A triggering event won the race; the alert stays open.
			return false
		}

		now := time.Now()
		current.Status = model.AlertStatusResolved
		current.ResolvedAt = &now
		current.ResolutionNotes = renderNotes(rule, &current)

		err := r.store.UpdateAlert(&current)
		if err == nil {
			r.metrics.AlertsResolved.WithLabelValues("auto").Inc()
			r.logger.Infof("Alert %s auto-resolved after %v of quiet (rule %s)", current.ID, quiet, rule.ID)
			_, _ = r.store.AppendAlertAction(current.ID, model.AlertAction{
				ID:        uuid.NewString(),
				Action:    "system_resolved",
				Actor:     "system",
				Notes:     current.ResolutionNotes,
				Timestamp: now,
			})
			return true
		}
		if !errors.Is(err, store.ErrConflict) {
			r.logger.Errorf("Failed to auto-resolve alert %s: %v", current.ID, err)
			return false
		}

		fresh, gerr := r.store.GetAlert(current.ID)
		if gerr != nil {
			r.logger.Errorf("Failed to re-read alert %s after conflict: %v", current.ID, gerr)
			return false
		}
		current = *fresh
	}
	return false
}

func renderNotes(rule model.AutoResolveRule, alert *model.Alert) string {
	raw := rule.ResolutionNotes
	if raw == "" {
		return "Auto-resolved: no new triggering events"
	}
	tmpl, err := template.New("notes").Parse(raw)
	if err != nil {
		return raw
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, alert); err != nil {
		return raw
	}
	return buf.String()
}
