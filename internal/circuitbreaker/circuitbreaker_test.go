package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errUpstream = errors.New("upstream down")

func failing() error { return errUpstream }
func succeeding() error { return nil }

// TestCircuitBreaker_OpensAfterThreshold verifies that consecutive failures open the circuit and
// subsequent calls fail fast without invoking fn.
func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, failing); !errors.Is(err, errUpstream) {
			t.Fatalf("Call() error = %v, want errUpstream", err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn called while circuit open")
	}
}

// TestCircuitBreaker_HalfOpenRecovery verifies that after the timeout the breaker probes and
// closes after enough successes.
func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	var transitions []string
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		OnStateChange:    func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) },
	})
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Call(ctx, failing)
	now = now.Add(10 * time.Second)

	if err := cb.Call(ctx, succeeding); err != nil {
		t.Fatalf("probe Call() error = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half_open", cb.State())
	}
	_ = cb.Call(ctx, succeeding)
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

// TestCircuitBreaker_HalfOpenFailureReopens verifies a failed probe reopens the circuit.
func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := New(Config{FailureThreshold: 1, Timeout: time.Second})
	cb.now = func() time.Time { return now }
	ctx := context.Background()

	_ = cb.Call(ctx, failing)
	now = now.Add(time.Second)
	_ = cb.Call(ctx, failing)

	if cb.State() != StateOpen {
		t.Errorf("State() = %v, want open", cb.State())
	}
	if err := cb.Call(ctx, succeeding); !errors.Is(err, ErrOpen) {
		t.Errorf("Call() error = %v, want ErrOpen", err)
	}
}

// TestCircuitBreaker_IgnoresNonFailures verifies errors rejected by IsFailure and errors from a
// cancelled caller do not count toward opening.
func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	errClient := errors.New("bad request")
	cb := New(Config{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, errClient) },
	})

	if err := cb.Call(context.Background(), func() error { return errClient }); !errors.Is(err, errClient) {
		t.Fatalf("Call() error = %v, want errClient", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() after client error = %v, want closed", cb.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = cb.Call(ctx, func() error { return ctx.Err() })
	if cb.State() != StateClosed {
		t.Errorf("State() after cancelled call = %v, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
