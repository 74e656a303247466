// Package ratelimit bounds global request throughput. Requests over quota are held until
// capacity frees up rather than refused, unless a maximum wait is configured.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Decision is the outcome of a single admission.
type Decision int

const (
	// Allowed requests proceed immediately.
	Allowed Decision = iota
	// Delayed requests proceed after being held until quota was available.
	Delayed
	// Rejected requests must not proceed.
	Rejected
)

func (d Decision) String() string {
	switch d {
	case Allowed:
		return "allowed"
	case Delayed:
		return "delayed"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Strategy names accepted by New.
const (
	StrategyFixedWindow = "fixed_window"
	StrategyTokenBucket = "token_bucket"
)

var (
	// ErrWaitExceeded is returned with Rejected when the required wait is longer than MaxWait.
	ErrWaitExceeded = errors.New("rate limit wait exceeds max wait")
	// ErrUnknownStrategy is returned by New for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown rate limit strategy")
)

// Limiter admits requests against a shared quota. Implementations are safe for concurrent use.
// Admit blocks while a request is held; a Rejected decision always comes with a non-nil error.
type Limiter interface {
	Admit(ctx context.Context) (Decision, error)
}

// Config holds limiter parameters. MaxWait of 0 means wait as long as needed.
type Config struct {
	Strategy string
	Requests int
	Window   time.Duration
	MaxWait  time.Duration
}

// New builds the limiter named by cfg.Strategy. An empty strategy selects the fixed window.
func New(cfg Config) (Limiter, error) {
	if cfg.Requests <= 0 {
		return nil, fmt.Errorf("rate limit requests must be > 0, got %d", cfg.Requests)
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be > 0, got %s", cfg.Window)
	}
	switch cfg.Strategy {
	case "", StrategyFixedWindow:
		return NewFixedWindow(cfg.Requests, cfg.Window, cfg.MaxWait), nil
	case StrategyTokenBucket:
		return NewTokenBucket(cfg.Requests, cfg.Window, cfg.MaxWait), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, cfg.Strategy)
	}
}

// sleepCtx waits for d or until ctx ends, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
