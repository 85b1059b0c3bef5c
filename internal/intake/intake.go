// Package intake validates and normalizes producer events before they reach
// rule evaluation.
package intake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"credwatch/internal/metrics"
	"credwatch/internal/model"
	"credwatch/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Evaluator consumes accepted events.
type Evaluator interface {
	OnEvent(ctx context.Context, event *model.SecurityEvent)
}

// Intake is the single entry point for producers. It is safe for concurrent
// use; over-cap events are dropped and counted, producers never block.
type Intake struct {
	store     store.Store
	evaluator Evaluator
	metrics   *metrics.Metrics
	logger    *logrus.Logger

	capMu       sync.Mutex
	capPerMin   int
	minuteStart time.Time
	minuteCount int
	dropped     int64
}

func New(st store.Store, evaluator Evaluator, maxEventsPerMinute int, m *metrics.Metrics, logger *logrus.Logger) *Intake {
	return &Intake{
		store:     st,
		evaluator: evaluator,
		metrics:   m,
		logger:    logger,
		capPerMin: maxEventsPerMinute,
	}
}

// SetRateCap swaps the ingestion cap, used on config reload.
func (in *Intake) SetRateCap(maxEventsPerMinute int) {
	in.capMu.Lock()
	in.capPerMin = maxEventsPerMinute
	in.capMu.Unlock()
}

// DroppedEvents returns the number of events discarded by the rate cap.
func (in *Intake) DroppedEvents() int64 {
	in.capMu.Lock()
	defer in.capMu.Unlock()
	return in.dropped
}

// Submit validates the event, stamps it with an intake timestamp and ID,
// persists it and forwards it to the evaluator. A ValidationError rejects
// only this event; the pipeline keeps running.
func (in *Intake) Submit(ctx context.Context, event *model.SecurityEvent) error {
	if err := validate(event); err != nil {
		in.metrics.EventsRejected.Inc()
		return err
	}

	if !in.admit() {
		// Over the ingestion cap: count and drop, never block the producer.
		in.metrics.EventsDropped.Inc()
		return nil
	}

	// Producer clocks are not trusted for windowing; the intake clock is
	// authoritative.
	event.ID = uuid.NewString()
	event.Timestamp = time.Now()

	if err := in.store.AddEvent(*event); err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	in.metrics.EventsIngested.WithLabelValues(event.Type, string(event.Severity)).Inc()
	in.logger.Debugf("Event accepted: type=%s source=%s severity=%s", event.Type, event.Source, event.Severity)

	in.evaluator.OnEvent(ctx, event)
	return nil
}

// admit counts the event against the rolling minute and reports whether it
// fits under the cap.
func (in *Intake) admit() bool {
	in.capMu.Lock()
	defer in.capMu.Unlock()

	if in.capPerMin <= 0 {
		return true
	}

	now := time.Now()
	if now.Sub(in.minuteStart) >= time.Minute {
		in.minuteStart = now
		in.minuteCount = 0
	}
	if in.minuteCount >= in.capPerMin {
		in.dropped++
		return false
	}
	in.minuteCount++
	return true
}

func validate(event *model.SecurityEvent) error {
	verr := &model.ValidationError{}
	if event.Type == "" {
		verr.Add("missing event type")
	}
	if event.Source == "" {
		verr.Add("missing event source")
	}
	if event.Timestamp.IsZero() {
		verr.Add("missing event timestamp")
	}
	if !event.Severity.Valid() {
		verr.Add(fmt.Sprintf("unknown severity %q", event.Severity))
	}
	return verr.Err()
}
