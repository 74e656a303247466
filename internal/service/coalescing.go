package service

import (
	"context"
	"sync"

	"github.com/kjstillabower/weather-gateway/internal/models"
)

// flight is a single upstream lookup shared by every caller that missed the same key.
type flight struct {
	done    chan struct{}
	result  models.Weather
	err     error
	waiters int // guarded by requestCoalescer.mu
	cancel  context.CancelFunc
}

// requestCoalescer prevents cache stampede by coalescing concurrent requests for the same key.
// The shared call outlives any single caller; it is cancelled only when every caller has left.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*flight
}

func newRequestCoalescer() *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*flight),
	}
}

// Do joins the in-flight call for key or starts fn for it, then waits for the result.
// shared reports whether this caller joined a call started by another request.
// fn receives a context carrying ctx's values that is cancelled once all waiters have gone.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func(ctx context.Context) (models.Weather, error)) (result models.Weather, shared bool, err error) {
	rc.mu.Lock()
	f, shared := rc.inFlight[key]
	if shared {
		f.waiters++
	} else {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{done: make(chan struct{}), waiters: 1, cancel: cancel}
		rc.inFlight[key] = f
		go rc.run(fctx, key, f, fn)
	}
	rc.mu.Unlock()

	select {
	case <-f.done:
		return f.result, shared, f.err
	case <-ctx.Done():
		rc.leave(key, f)
		return models.Weather{}, shared, ctx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, f *flight, fn func(ctx context.Context) (models.Weather, error)) {
	defer f.cancel()
	f.result, f.err = fn(ctx)

	rc.mu.Lock()
	if rc.inFlight[key] == f {
		delete(rc.inFlight, key)
	}
	rc.mu.Unlock()
	close(f.done)
}

// leave drops one waiter. The last one out cancels the call and forgets it so the next
// request starts fresh.
func (rc *requestCoalescer) leave(key string, f *flight) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if rc.inFlight[key] == f {
		delete(rc.inFlight, key)
	}
}
