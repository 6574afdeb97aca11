// Package resilience guards calls to external record providers with
// per-provider circuit breakers and classifies their failures.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// State is the state of a breaker.
type State int

const (
	// Closed lets calls through.
	Closed State = iota
	// Open rejects calls until the cool-down elapses.
	Open
	// HalfOpen lets probe calls through to test recovery.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected by an open breaker.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// Cooldown is how long the breaker stays open before allowing a probe.
	Cooldown time.Duration
	// Probes is the number of successful probes needed to close again.
	Probes int
	// Trips decides whether an error counts as a failure. Nil counts every error.
	Trips func(err error) bool
	// OnTransition is called on every state change with the breaker's name.
	OnTransition func(name string, from, to State)
}

// DefaultBreakerConfig returns 5 failures, a 30s cool-down and one probe.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		Probes:           1,
	}
}

// BreakerConfigFrom builds a config from plain settings, keeping defaults
// for non-positive values.
func BreakerConfigFrom(failureThreshold, cooldownSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if cooldownSecs > 0 {
		cfg.Cooldown = time.Duration(cooldownSecs) * time.Second
	}
	return cfg
}

// Breaker is a circuit breaker for one provider.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	probeOK     int

	now func() time.Time
}

// NewBreaker creates a named breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.Probes <= 0 {
		cfg.Probes = def.Probes
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the provider name the breaker guards.
func (b *Breaker) Name() string { return b.name }

// Call runs fn unless the breaker is open, in which case it returns
// ErrCircuitOpen without calling fn.
func Call[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if b == nil {
		return fn(ctx)
	}
	if err := b.allow(); err != nil {
		return zero, err
	}
	v, err := fn(ctx)
	b.record(err)
	return v, err
}

// State returns the current state, reporting HalfOpen once the cool-down has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.lastFailure) >= b.cfg.Cooldown {
		return HalfOpen
	}
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probeOK = 0
	if b.state != Closed {
		b.setState(Closed)
	}
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != Open {
		return nil
	}
	if b.now().Sub(b.lastFailure) >= b.cfg.Cooldown {
		b.setState(HalfOpen)
		return nil
	}
	return eris.Wrapf(ErrCircuitOpen, "resilience: %s", b.name)
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	trips := b.cfg.Trips
	if trips == nil {
		trips = func(e error) bool { return e != nil }
	}

	if err == nil || !trips(err) {
		switch b.state {
		case HalfOpen:
			b.probeOK++
			if b.probeOK >= b.cfg.Probes {
				b.failures = 0
				b.probeOK = 0
				b.setState(Closed)
			}
		case Closed:
			b.failures = 0
		}
		return
	}

	b.failures++
	b.lastFailure = b.now()
	switch b.state {
	case Closed:
		if b.failures >= b.cfg.FailureThreshold {
			b.setState(Open)
		}
	case HalfOpen:
		b.probeOK = 0
		b.setState(Open)
	}
}

func (b *Breaker) setState(to State) {
	from := b.state
	b.state = to
	if b.cfg.OnTransition != nil {
		b.cfg.OnTransition(b.name, from, to)
	}
}

// Breakers hands out one breaker per provider name.
type Breakers struct {
	cfg BreakerConfig

	mu sync.RWMutex
	m  map[string]*Breaker
}

// NewBreakers creates an empty breaker registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, m: make(map[string]*Breaker)}
}

// For returns the breaker for name, creating it on first use.
func (bs *Breakers) For(name string) *Breaker {
	bs.mu.RLock()
	b, ok := bs.m[name]
	bs.mu.RUnlock()
	if ok {
		return b
	}

	bs.mu.Lock()
	defer bs.mu.Unlock()
	if b, ok = bs.m[name]; ok {
		return b
	}
	b = NewBreaker(name, bs.cfg)
	bs.m[name] = b
	return b
}

// States snapshots every breaker's state.
func (bs *Breakers) States() map[string]State {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	out := make(map[string]State, len(bs.m))
	for name, b := range bs.m {
		out[name] = b.State()
	}
	return out
}
