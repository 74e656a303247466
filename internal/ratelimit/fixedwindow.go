package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// FixedWindow admits at most limit requests per window. A window opens with the first request
// after the previous one closed. Requests past the quota reserve a slot in the next window with
// room and are held until it opens, so concurrent waiters are spread over successive windows.
type FixedWindow struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	maxWait time.Duration

	// start and count describe the latest window holding admissions; start may lie in the
	// future when requests are waiting on it.
	start time.Time
	count int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFixedWindow creates a fixed-window limiter.
func NewFixedWindow(limit int, window, maxWait time.Duration) *FixedWindow {
	return &FixedWindow{
		limit:   limit,
		window:  window,
		maxWait: maxWait,
		now:     time.Now,
		sleep:   sleepCtx,
	}
}

// Admit reserves a slot and blocks until its window opens.
// A held request whose context ends is Rejected; its reserved slot is not returned to the pool.
func (f *FixedWindow) Admit(ctx context.Context) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Rejected, err
	}
	wait, err := f.reserve()
	if err != nil {
		return Rejected, err
	}
	if wait <= 0 {
		return Allowed, nil
	}
	if err := f.sleep(ctx, wait); err != nil {
		return Rejected, err
	}
	return Delayed, nil
}

// reserve claims a slot and returns how long until its window opens.
func (f *FixedWindow) reserve() (time.Duration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	start, count := f.start, f.count
	switch {
	case start.IsZero() || !now.Before(start.Add(f.window)):
		start, count = now, 0
	case count >= f.limit:
		start, count = start.Add(f.window), 0
	}

	wait := start.Sub(now)
	if wait > 0 && f.maxWait > 0 && wait > f.maxWait {
		return 0, fmt.Errorf("%w: need %s", ErrWaitExceeded, wait)
	}
	f.start, f.count = start, count+1
	return wait, nil
}
