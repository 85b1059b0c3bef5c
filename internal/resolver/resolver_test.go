package resolver

import (
	"errors"
	"testing"
	"time"

	"credwatch/internal/metrics"
	"credwatch/internal/model"
	"credwatch/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestResolver(t *testing.T) (*AutoResolver, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore(testLogger())
	r := NewAutoResolver(st, time.Minute, metrics.New(prometheus.NewRegistry()), testLogger())
	return r, st
}

func quietRule(alertType string, minutes int) model.AutoResolveRule {
	return model.AutoResolveRule{
		ID:                "quiet-" + alertType,
		Name:              "Quiet period for " + alertType,
		Enabled:           true,
		AlertType:         alertType,
		ResolutionMinutes: minutes,
		ResolutionNotes:   "No further activity",
	}
}

func openAlert(id, alertType string, lastTriggered time.Time) *model.Alert {
	return &model.Alert{
		ID:               id,
		RuleID:           "r1",
		GroupKey:         "0xabc-" + id,
		Severity:         model.SeverityHigh,
		Type:             alertType,
		Status:           model.AlertStatusOpen,
		FirstTriggeredAt: lastTriggered.Add(-time.Hour),
		LastTriggeredAt:  lastTriggered,
	}
}

func TestSweepResolvesQuietAlerts(t *testing.T) {
	r, st := newTestResolver(t)
	st.PutAutoResolveRule(quietRule("brute_force", 60))

	st.CreateAlert(openAlert("quiet", "brute_force", time.Now().Add(-2*time.Hour)))
	st.CreateAlert(openAlert("noisy", "brute_force", time.Now().Add(-5*time.Minute)))

	if resolved := r.Sweep(); resolved != 1 {
		t.Fatalf("Sweep() = %d, want 1", resolved)
	}

	quiet, _ := st.GetAlert("quiet")
	if quiet.Status != model.AlertStatusResolved {
		t.Errorf("quiet alert status = %s, want resolved", quiet.Status)
	}
	if quiet.ResolvedAt == nil {
		t.Error("quiet alert missing ResolvedAt")
	}
	if quiet.ResolutionNotes != "No further activity" {
		t.Errorf("notes = %q", quiet.ResolutionNotes)
	}
	if len(quiet.Actions) != 1 || quiet.Actions[0].Action != "system_resolved" || quiet.Actions[0].Actor != "system" {
		t.Errorf("audit trail = %+v", quiet.Actions)
	}

	noisy, _ := st.GetAlert("noisy")
	if noisy.Status != model.AlertStatusOpen {
		t.Errorf("noisy alert status = %s, want open", noisy.Status)
	}
}

func TestSweepIgnoresOtherTypesAndDisabledRules(t *testing.T) {
	r, st := newTestResolver(t)
	st.PutAutoResolveRule(quietRule("brute_force", 60))
	disabled := quietRule("policy_violations", 60)
	disabled.Enabled = false
	st.PutAutoResolveRule(disabled)

	st.CreateAlert(openAlert("other-type", "suspicious_access", time.Now().Add(-2*time.Hour)))
	st.CreateAlert(openAlert("disabled-rule", "policy_violations", time.Now().Add(-2*time.Hour)))

	if resolved := r.Sweep(); resolved != 0 {
		t.Errorf("Sweep() = %d, want 0", resolved)
	}
}

func TestSweepSkipsAlreadyResolved(t *testing.T) {
	r, st := newTestResolver(t)
	st.PutAutoResolveRule(quietRule("brute_force", 60))

	now := time.Now()
	done := openAlert("done", "brute_force", now.Add(-2*time.Hour))
	done.Status = model.AlertStatusResolved
	done.ResolvedAt = &now
	st.CreateAlert(done)

	if resolved := r.Sweep(); resolved != 0 {
		t.Errorf("Sweep() = %d, want 0", resolved)
	}
}

func TestSweepResolvesAcknowledgedAlerts(t *testing.T) {
	r, st := newTestResolver(t)
	st.PutAutoResolveRule(quietRule("brute_force", 60))

	acked := openAlert("acked", "brute_force", time.Now().Add(-2*time.Hour))
	acked.Status = model.AlertStatusAcknowledged
	st.CreateAlert(acked)

	if resolved := r.Sweep(); resolved != 1 {
		t.Fatalf("Sweep() = %d, want 1", resolved)
	}
	got, _ := st.GetAlert("acked")
	if got.Status != model.AlertStatusResolved {
		t.Errorf("status = %s, want resolved", got.Status)
	}
}

// conflictingStore simulates an evaluator racing the resolver: the first
// update attempt conflicts because a new triggering event landed after the
// sweep read the alert.
type conflictingStore struct {
	store.Store
	conflicted bool
}

func (c *conflictingStore) UpdateAlert(alert *model.Alert) error {
	if !c.conflicted {
		c.conflicted = true
		fresh, err := c.Store.GetAlert(alert.ID)
		if err != nil {
			return err
		}
		fresh.LastTriggeredAt = time.Now()
		fresh.TriggeringEventCount++
		if err := c.Store.UpdateAlert(fresh); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return c.Store.UpdateAlert(alert)
}

func TestResolutionAbortsWhenNewEventWinsRace(t *testing.T) {
	st := store.NewMemoryStore(testLogger())
	racing := &conflictingStore{Store: st}
	r := NewAutoResolver(racing, time.Minute, metrics.New(prometheus.NewRegistry()), testLogger())

	st.PutAutoResolveRule(quietRule("brute_force", 60))
	st.CreateAlert(openAlert("contested", "brute_force", time.Now().Add(-2*time.Hour)))

	if resolved := r.Sweep(); resolved != 0 {
		t.Fatalf("Sweep() = %d, want 0: fresh trigger must abort resolution", resolved)
	}

	got, err := st.GetAlert("contested")
	if err != nil {
		t.Fatalf("GetAlert: %v", err)
	}
	if got.Status != model.AlertStatusOpen {
		t.Errorf("status = %s, want open", got.Status)
	}
	if !racing.conflicted {
		t.Error("test store never injected the conflict")
	}
}

func TestResolveRetriesThroughBenignConflict(t *testing.T) {
	// A conflict caused by a non-triggering write (an acknowledgement) must
	// not stop resolution: the quiet period still holds on re-read.
	st := store.NewMemoryStore(testLogger())
	benign := &ackingStore{Store: st}
	r := NewAutoResolver(benign, time.Minute, metrics.New(prometheus.NewRegistry()), testLogger())

	st.PutAutoResolveRule(quietRule("brute_force", 60))
	st.CreateAlert(openAlert("acked-race", "brute_force", time.Now().Add(-2*time.Hour)))

	if resolved := r.Sweep(); resolved != 1 {
		t.Fatalf("Sweep() = %d, want 1", resolved)
	}
	got, _ := st.GetAlert("acked-race")
	if got.Status != model.AlertStatusResolved {
		t.Errorf("status = %s, want resolved", got.Status)
	}
}

type ackingStore struct {
	store.Store
	conflicted bool
}

func (c *ackingStore) UpdateAlert(alert *model.Alert) error {
	if !c.conflicted {
		c.conflicted = true
		fresh, err := c.Store.GetAlert(alert.ID)
		if err != nil {
			return err
		}
		fresh.Status = model.AlertStatusAcknowledged
		if err := c.Store.UpdateAlert(fresh); err != nil {
			return err
		}
		return store.ErrConflict
	}
	return c.Store.UpdateAlert(alert)
}

func TestRetentionSweeper(t *testing.T) {
	st := store.NewMemoryStore(testLogger())
	pruner := &fakePruner{}
	sweeper := NewRetentionSweeper(st, pruner, time.Hour, 30, 90, testLogger())

	old := time.Now().Add(-40 * 24 * time.Hour)
	st.AddEvent(model.SecurityEvent{ID: "old", Type: "auth_failure", Source: "auth", Severity: model.SeverityLow, Timestamp: old})
	st.AddEvent(model.SecurityEvent{ID: "new", Type: "auth_failure", Source: "auth", Severity: model.SeverityLow, Timestamp: time.Now()})

	ancient := time.Now().Add(-100 * 24 * time.Hour)
	goneAlert := openAlert("gone", "brute_force", ancient)
	goneAlert.Status = model.AlertStatusResolved
	goneAlert.ResolvedAt = &ancient
	st.CreateAlert(goneAlert)
	st.CreateAlert(openAlert("kept", "brute_force", time.Now()))

	sweeper.Sweep()

	if _, err := st.GetEvent("old"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expired event survived, got %v", err)
	}
	if _, err := st.GetEvent("new"); err != nil {
		t.Errorf("fresh event swept: %v", err)
	}
	if _, err := st.GetAlert("gone"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expired alert survived, got %v", err)
	}
	if _, err := st.GetAlert("kept"); err != nil {
		t.Errorf("fresh alert swept: %v", err)
	}
	if !pruner.called {
		t.Error("window pruner not invoked")
	}
}

type fakePruner struct {
	called bool
}

func (p *fakePruner) PruneStale(maxIdle time.Duration) int {
	p.called = true
	return 0
}
