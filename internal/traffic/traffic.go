package traffic

import (
	"sync"
	"time"
)

// Outcome is a recorded event kind.
type Outcome int

const (
	// Success is an upstream lookup that returned usable data.
	Success Outcome = iota
	// Error is an upstream lookup that failed for reasons on the upstream side.
	Error
	// Delayed is a request held by the rate limiter before it was admitted.
	Delayed
	// Denied is a request refused by the rate limiter (429).
	Denied
	numOutcomes
)

// Tracker maintains sliding windows of outcome timestamps.
// Upstream outcomes feed the health error rate; limiter outcomes feed health and metrics.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	times     [numOutcomes][]time.Time
	now       func() time.Time
}

// NewTracker keeps outcomes for at least retention (minimum 5 minutes).
func NewTracker(retention time.Duration) *Tracker {
	if retention < 5*time.Minute {
		retention = 5 * time.Minute
	}
	return &Tracker{retention: retention, now: time.Now}
}

// Record appends an outcome at the current time and prunes expired entries.
func (t *Tracker) Record(o Outcome) {
	if o < 0 || o >= numOutcomes {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// RecordSuccess records a successful upstream lookup.
func (t *Tracker) RecordSuccess() { t.Record(Success) }

// RecordError records a failed upstream lookup.
func (t *Tracker) RecordError() { t.Record(Error) }

// RecordDelayed records a request held by the rate limiter.
func (t *Tracker) RecordDelayed() { t.Record(Delayed) }

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() { t.Record(Denied) }

// Count returns the number of o outcomes within the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < 0 || o >= numOutcomes {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], t.now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) of upstream lookups within the window.
// Limiter outcomes are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errCount := countSince(t.times[Error], cutoff)
	return errCount, errCount + countSince(t.times[Success], cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.times {
		t.times[i] = nil
	}
}

// countSince counts timestamps that are not before the cutoff time.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention period. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
