// Package breaker gates outbound provider calls with a per-provider
// sliding-window circuit breaker. State is process-local: each worker
// protects its own outbound path.
package breaker

import (
	"sync"
	"time"
)

// State of one provider's circuit.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config tunes the breaker. Zero values fall back to defaults.
type Config struct {
	// WindowSize bounds the recent-call window.
	WindowSize int
	// FailureThreshold opens the circuit when this many failures sit in
	// the window.
	FailureThreshold int
	// Cooldown is how long an open circuit waits before admitting a probe.
	Cooldown time.Duration
	// OnStateChange, when set, is invoked on every circuit transition.
	// It runs with the breaker lock held and must not call back in.
	OnStateChange func(slug string, from, to State)
}

// DefaultConfig matches production tuning.
func DefaultConfig() Config {
	return Config{WindowSize: 10, FailureThreshold: 5, Cooldown: 60 * time.Second}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowSize <= 0 {
		c.WindowSize = d.WindowSize
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

type call struct {
	at      time.Time
	success bool
}

type circuit struct {
	state       State
	lastFailure time.Time
	window      []call
}

// Breaker tracks one circuit per provider slug.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	circuits map[string]*circuit
	clock    func() time.Time
}

// New returns a Breaker with the given config.
func New(cfg Config) *Breaker {
	return &Breaker{
		cfg:      cfg.withDefaults(),
		circuits: make(map[string]*circuit),
		clock:    time.Now,
	}
}

// WithClock overrides clock for testing.
func (b *Breaker) WithClock(clock func() time.Time) *Breaker {
	b.clock = clock
	return b
}

func (b *Breaker) circuitFor(slug string) *circuit {
	c, ok := b.circuits[slug]
	if !ok {
		c = &circuit{state: StateClosed}
		b.circuits[slug] = c
	}
	return c
}

func (b *Breaker) setState(c *circuit, slug string, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(slug, from, to)
	}
}

// CanCall reports whether a call to the provider may proceed. An open
// circuit whose cooldown has elapsed transitions to half-open and admits
// the probe.
func (b *Breaker) CanCall(slug string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(slug)
	switch c.state {
	case StateOpen:
		if b.clock().Sub(c.lastFailure) >= b.cfg.Cooldown {
			b.setState(c, slug, StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess notes a successful provider call. In half-open it closes
// the circuit and clears the window.
func (b *Breaker) RecordSuccess(slug string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuitFor(slug)
	if c.state == StateHalfOpen {
		b.setState(c, slug, StateClosed)
		c.window = nil
		return
	}
	b.append(c, true)
}

// RecordFailure notes a failed provider call. Threshold breaches open the
// circuit; failures while open refresh the cooldown.
func (b *Breaker) RecordFailure(slug string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.clock()
	c := b.circuitFor(slug)
	switch c.state {
	case StateHalfOpen:
		b.setState(c, slug, StateOpen)
		c.lastFailure = now
		c.window = nil
	case StateOpen:
		c.lastFailure = now
	default:
		b.append(c, false)
		if b.failures(c) >= b.cfg.FailureThreshold {
			b.setState(c, slug, StateOpen)
			c.lastFailure = now
		}
	}
}

func (b *Breaker) append(c *circuit, success bool) {
	c.window = append(c.window, call{at: b.clock(), success: success})
	if excess := len(c.window) - b.cfg.WindowSize; excess > 0 {
		c.window = c.window[excess:]
	}
}

func (b *Breaker) failures(c *circuit) int {
	n := 0
	for _, call := range c.window {
		if !call.success {
			n++
		}
	}
	return n
}

// CircuitStatus is a point-in-time view of one circuit.
type CircuitStatus struct {
	Provider    string    `json:"provider"`
	State       State     `json:"state"`
	Failures    int       `json:"failures"`
	WindowSize  int       `json:"windowSize"`
	LastFailure time.Time `json:"lastFailure,omitempty"`
}

// Snapshot returns the status of every known circuit, keyed by slug.
func (b *Breaker) Snapshot() map[string]CircuitStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]CircuitStatus, len(b.circuits))
	for slug, c := range b.circuits {
		out[slug] = CircuitStatus{
			Provider:    slug,
			State:       c.state,
			Failures:    b.failures(c),
			WindowSize:  len(c.window),
			LastFailure: c.lastFailure,
		}
	}
	return out
}

// StateOf returns the current state for one provider.
func (b *Breaker) StateOf(slug string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitFor(slug).state
}
