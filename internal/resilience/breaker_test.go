package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fail(_ context.Context) (int, error) { return 0, errBoom }
func ok(_ context.Context) (int, error)   { return 1, nil }

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker("regrid", DefaultBreakerConfig())

	v, err := Call(context.Background(), b, ok)
	if err != nil || v != 1 {
		t.Fatalf("unexpected result %d, %v", v, err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("regrid", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	for range 3 {
		_, _ = Call(context.Background(), b, fail)
	}
	if b.State() != Open {
		t.Fatalf("expected open after 3 failures, got %s", b.State())
	}

	called := false
	_, err := Call(context.Background(), b, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	if called {
		t.Error("fn should not run while open")
	}
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker("rentcast", BreakerConfig{FailureThreshold: 3, Cooldown: time.Minute})

	_, _ = Call(context.Background(), b, fail)
	_, _ = Call(context.Background(), b, fail)
	if b.Failures() != 2 {
		t.Fatalf("expected 2 failures, got %d", b.Failures())
	}
	_, _ = Call(context.Background(), b, ok)
	if b.Failures() != 0 {
		t.Errorf("expected failures reset, got %d", b.Failures())
	}
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	now := time.Now()
	b := NewBreaker("regrid", BreakerConfig{FailureThreshold: 1, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail)
	if b.State() != Open {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(11 * time.Second)
	if b.State() != HalfOpen {
		t.Fatalf("expected half-open after cool-down, got %s", b.State())
	}

	if _, err := Call(context.Background(), b, ok); err != nil {
		t.Fatalf("probe should run: %v", err)
	}
	if b.State() != Closed {
		t.Errorf("expected closed after successful probe, got %s", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker("regrid", BreakerConfig{FailureThreshold: 1, Cooldown: time.Second})
	b.now = func() time.Time { return now }

	_, _ = Call(context.Background(), b, fail)
	now = now.Add(2 * time.Second)
	_, _ = Call(context.Background(), b, fail)

	if b.State() != Open {
		t.Errorf("expected reopened, got %s", b.State())
	}
}

func TestBreaker_TripsFilter(t *testing.T) {
	b := NewBreaker("regrid", BreakerConfig{
		FailureThreshold: 1,
		Trips:            IsTransient,
	})

	_, _ = Call(context.Background(), b, fail)
	if b.State() != Closed {
		t.Errorf("permanent errors should not trip, got %s", b.State())
	}

	_, _ = Call(context.Background(), b, func(context.Context) (int, error) {
		return 0, NewTransientError(errBoom, 503)
	})
	if b.State() != Open {
		t.Errorf("transient error should trip, got %s", b.State())
	}
}

func TestBreaker_OnTransitionAndReset(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	b := NewBreaker("regrid", BreakerConfig{
		FailureThreshold: 1,
		OnTransition: func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, name+":"+from.String()+"->"+to.String())
		},
	})

	_, _ = Call(context.Background(), b, fail)
	b.Reset()

	mu.Lock()
	defer mu.Unlock()
	want := []string{"regrid:closed->open", "regrid:open->closed"}
	if len(seen) != len(want) {
		t.Fatalf("transitions = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("transition %d = %q, want %q", i, seen[i], want[i])
		}
	}
}

func TestCall_NilBreaker(t *testing.T) {
	v, err := Call(context.Background(), nil, ok)
	if err != nil || v != 1 {
		t.Fatalf("nil breaker should call through, got %d, %v", v, err)
	}
}

func TestBreakers_ForIsStable(t *testing.T) {
	bs := NewBreakers(DefaultBreakerConfig())

	var wg sync.WaitGroup
	got := make([]*Breaker, 20)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = bs.For("regrid")
		}(i)
	}
	wg.Wait()

	for _, b := range got {
		if b != got[0] {
			t.Fatal("For returned different breakers for the same name")
		}
	}
	if bs.For("rentcast") == got[0] {
		t.Error("different names must get different breakers")
	}
	if len(bs.States()) != 2 {
		t.Errorf("expected 2 states, got %d", len(bs.States()))
	}
}

func TestBreakerConfigFrom(t *testing.T) {
	cfg := BreakerConfigFrom(0, 0)
	if cfg.FailureThreshold != 5 || cfg.Cooldown != 30*time.Second {
		t.Errorf("expected defaults, got %+v", cfg)
	}
	cfg = BreakerConfigFrom(2, 7)
	if cfg.FailureThreshold != 2 || cfg.Cooldown != 7*time.Second {
		t.Errorf("unexpected config %+v", cfg)
	}
}
