package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"credwatch/internal/metrics"
	"credwatch/internal/model"
	"credwatch/internal/store"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

type captureEvaluator struct {
	mu     sync.Mutex
	events []model.SecurityEvent
}

func (e *captureEvaluator) OnEvent(ctx context.Context, event *model.SecurityEvent) {
	e.mu.Lock()
	e.events = append(e.events, *event)
	e.mu.Unlock()
}

func (e *captureEvaluator) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.events)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestIntake(t *testing.T, maxPerMinute int) (*Intake, *store.MemoryStore, *captureEvaluator) {
	t.Helper()
	st := store.NewMemoryStore(testLogger())
	evaluator := &captureEvaluator{}
	in := New(st, evaluator, maxPerMinute, metrics.New(prometheus.NewRegistry()), testLogger())
	return in, st, evaluator
}

func validEvent() *model.SecurityEvent {
	return &model.SecurityEvent{
		Type:      "auth_failure",
		Source:    "auth-service",
		Severity:  model.SeverityMedium,
		Timestamp: time.Now().Add(-time.Second),
	}
}

func TestSubmitAcceptsAndNormalizes(t *testing.T) {
	in, st, evaluator := newTestIntake(t, 0)

	event := validEvent()
	producerTS := event.Timestamp
	if err := in.Submit(context.Background(), event); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if event.ID == "" {
		t.Error("accepted event must get an ID")
	}
	if !event.Timestamp.After(producerTS) {
		t.Error("intake must restamp the event with its own clock")
	}
	if _, err := st.GetEvent(event.ID); err != nil {
		t.Errorf("event not persisted: %v", err)
	}
	if evaluator.count() != 1 {
		t.Errorf("evaluator saw %d events, want 1", evaluator.count())
	}
}

func TestSubmitCollectsAllViolations(t *testing.T) {
	in, st, evaluator := newTestIntake(t, 0)

	err := in.Submit(context.Background(), &model.SecurityEvent{Severity: "extreme"})

	var verr *model.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("want ValidationError, got %v", err)
	}
	if len(verr.Violations) != 4 {
		t.Errorf("violations = %v, want 4 entries", verr.Violations)
	}
	if evaluator.count() != 0 {
		t.Error("rejected event reached the evaluator")
	}
	if got := st.EventsInRange(time.Time{}, time.Time{}); len(got) != 0 {
		t.Error("rejected event was persisted")
	}
}

func TestSubmitValidationCases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.SecurityEvent)
		reject bool
	}{
		{"valid", func(e *model.SecurityEvent) {}, false},
		{"missing type", func(e *model.SecurityEvent) { e.Type = "" }, true},
		{"missing source", func(e *model.SecurityEvent) { e.Source = "" }, true},
		{"missing timestamp", func(e *model.SecurityEvent) { e.Timestamp = time.Time{} }, true},
		{"unknown severity", func(e *model.SecurityEvent) { e.Severity = "urgent" }, true},
		{"empty severity", func(e *model.SecurityEvent) { e.Severity = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, _, _ := newTestIntake(t, 0)
			event := validEvent()
			tt.mutate(event)
			err := in.Submit(context.Background(), event)
			if tt.reject && err == nil {
				t.Error("want rejection, got nil")
			}
			if !tt.reject && err != nil {
				t.Errorf("want acceptance, got %v", err)
			}
		})
	}
}

func TestRateCapDropsAndCounts(t *testing.T) {
	in, st, evaluator := newTestIntake(t, 3)

	for i := 0; i < 5; i++ {
		if err := in.Submit(context.Background(), validEvent()); err != nil {
			// Over-cap submissions are dropped silently, never errored.
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	if got := in.DroppedEvents(); got != 2 {
		t.Errorf("DroppedEvents() = %d, want 2", got)
	}
	if evaluator.count() != 3 {
		t.Errorf("evaluator saw %d events, want 3", evaluator.count())
	}
	if got := st.EventsInRange(time.Time{}, time.Time{}); len(got) != 3 {
		t.Errorf("persisted %d events, want 3", len(got))
	}

	// Raising the cap readmits producers within the same minute.
	in.SetRateCap(10)
	if err := in.Submit(context.Background(), validEvent()); err != nil {
		t.Fatalf("Submit after cap raise: %v", err)
	}
	if evaluator.count() != 4 {
		t.Errorf("evaluator saw %d events after cap raise, want 4", evaluator.count())
	}
}

func TestZeroCapIsUnlimited(t *testing.T) {
	in, _, evaluator := newTestIntake(t, 0)
	for i := 0; i < 50; i++ {
		if err := in.Submit(context.Background(), validEvent()); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if evaluator.count() != 50 {
		t.Errorf("evaluator saw %d events, want 50", evaluator.count())
	}
	if in.DroppedEvents() != 0 {
		t.Errorf("DroppedEvents() = %d, want 0", in.DroppedEvents())
	}
}
