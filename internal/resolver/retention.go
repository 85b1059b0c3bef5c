package resolver

import (
	"context"
	"time"

	"credwatch/internal/store"

	"github.com/sirupsen/logrus"
)

// Pruner drops idle evaluation state; satisfied by the rule engine.
type Pruner interface {
	PruneStale(maxIdle time.Duration) int
}

// RetentionSweeper deletes events and alerts past their retention period.
type RetentionSweeper struct {
	store          store.Store
	pruner         Pruner
	logger         *logrus.Logger
	interval       time.Duration
	eventRetention time.Duration
	alertRetention time.Duration
}

func NewRetentionSweeper(st store.Store, pruner Pruner, interval time.Duration, eventRetentionDays, alertRetentionDays int, logger *logrus.Logger) *RetentionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionSweeper{
		store:          st,
		pruner:         pruner,
		logger:         logger,
		interval:       interval,
		eventRetention: time.Duration(eventRetentionDays) * 24 * time.Hour,
		alertRetention: time.Duration(alertRetentionDays) * 24 * time.Hour,
	}
}

func (s *RetentionSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Infof("Retention sweeper started (interval: %v)", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Retention sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *RetentionSweeper) Sweep() {
	now := time.Now()
	events := s.store.DeleteEventsBefore(now.Add(-s.eventRetention))
	alerts := s.store.DeleteAlertsBefore(now.Add(-s.alertRetention))
	pruned := 0
	if s.pruner != nil {
		// Window state older than a day is dead weight regardless of rule
		// windows, which are minutes-scale.
		pruned = s.pruner.PruneStale(24 * time.Hour)
	}
	if events > 0 || alerts > 0 || pruned > 0 {
		s.logger.Infof("Retention sweep removed %d events, %d alerts, %d idle groups", events, alerts, pruned)
	}
}
