package rules

import (
	"sync"
	"time"
)

// groupState is the sliding window and cooldown clock for one
// (ruleID, groupKey) pair. Each state carries its own lock so independent
// groups never contend.
type groupState struct {
	mu          sync.Mutex
	timestamps  []time.Time
	lastAlertAt time.Time
}

// observe appends the timestamp, evicts everything older than the window
// and returns the remaining count.
func (g *groupState) observe(ts time.Time, window time.Duration) int {
	g.timestamps = append(g.timestamps, ts)
	cutoff := ts.Add(-window)

	keep := 0
	for keep < len(g.timestamps) && g.timestamps[keep].Before(cutoff) {
		keep++
	}
	if keep > 0 {
		g.timestamps = append(g.timestamps[:0], g.timestamps[keep:]...)
	}
	return len(g.timestamps)
}

// idleSince reports whether the group has no windowed events newer than
// cutoff and no alert created after it.
func (g *groupState) idleSince(cutoff time.Time) bool {
	if len(g.timestamps) > 0 && g.timestamps[len(g.timestamps)-1].After(cutoff) {
		return false
	}
	return g.lastAlertAt.Before(cutoff)
}
