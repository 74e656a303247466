package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket spreads the quota evenly: requests tokens per window, burst of requests.
// Over-quota requests are held until their reservation matures.
type TokenBucket struct {
	limiter *rate.Limiter
	maxWait time.Duration
}

// NewTokenBucket creates a token-bucket limiter refilling requests tokens per window.
func NewTokenBucket(requests int, window, maxWait time.Duration) *TokenBucket {
	return &TokenBucket{
		limiter: rate.NewLimiter(rate.Every(window/time.Duration(requests)), requests),
		maxWait: maxWait,
	}
}

// Admit reserves a token and waits for it. A cancelled wait returns the token to the bucket.
func (t *TokenBucket) Admit(ctx context.Context) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Rejected, err
	}
	r := t.limiter.Reserve()
	if !r.OK() {
		return Rejected, fmt.Errorf("%w: burst exceeded", ErrWaitExceeded)
	}
	delay := r.Delay()
	if delay <= 0 {
		return Allowed, nil
	}
	if t.maxWait > 0 && delay > t.maxWait {
		r.Cancel()
		return Rejected, fmt.Errorf("%w: need %s", ErrWaitExceeded, delay)
	}
	if err := sleepCtx(ctx, delay); err != nil {
		r.Cancel()
		return Rejected, err
	}
	return Delayed, nil
}
