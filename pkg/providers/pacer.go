package providers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces outbound provider calls. Wait blocks until the provider's
// budget admits one call; ReportThrottle feeds 429 responses back so the
// pacer can slow down.
type Pacer interface {
	Wait(ctx context.Context, slug string) error
	ReportThrottle(slug string)
}

const (
	// fallback budget for providers without a catalog rate
	defaultPaceTokens   = 2
	defaultPaceInterval = 10 * time.Second

	// how long a throttled provider stays at half rate
	throttleBackoff = 5 * time.Minute
)

type paceState struct {
	limiter      *rate.Limiter
	baseLimit    rate.Limit
	reducedUntil time.Time
}

// LocalPacer enforces per-provider budgets inside one process using token
// buckets. A 429 report halves the refill rate until the backoff expires;
// reductions do not compound.
type LocalPacer struct {
	mu      sync.Mutex
	states  map[string]*paceState
	rates   map[string]RateSpec
	backoff time.Duration
	clock   func() time.Time
	logger  *slog.Logger
}

// NewLocalPacer builds a pacer seeded with the catalog budgets of defs.
func NewLocalPacer(defs []Definition, logger *slog.Logger) *LocalPacer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &LocalPacer{
		states:  make(map[string]*paceState),
		rates:   make(map[string]RateSpec),
		backoff: throttleBackoff,
		clock:   time.Now,
		logger:  logger.With("component", "pacer"),
	}
	for _, def := range defs {
		if def.Rate != nil {
			p.rates[def.Slug] = *def.Rate
		}
	}
	return p
}

// WithClock substitutes the time source. Used by tests.
func (p *LocalPacer) WithClock(clock func() time.Time) *LocalPacer {
	p.clock = clock
	return p
}

func (p *LocalPacer) state(slug string) *paceState {
	st, ok := p.states[slug]
	if !ok {
		spec, ok := p.rates[slug]
		if !ok || spec.Tokens <= 0 || spec.Interval <= 0 {
			spec = RateSpec{Tokens: defaultPaceTokens, Interval: defaultPaceInterval}
		}
		limit := rate.Limit(float64(spec.Tokens) / spec.Interval.Seconds())
		st = &paceState{
			limiter:   rate.NewLimiter(limit, spec.Tokens),
			baseLimit: limit,
		}
		p.states[slug] = st
	}

	if !st.reducedUntil.IsZero() && !p.clock().Before(st.reducedUntil) {
		st.limiter.SetLimit(st.baseLimit)
		st.reducedUntil = time.Time{}
		p.logger.Info("provider rate restored", "provider", slug, "rate", float64(st.baseLimit))
	}
	return st
}

// Wait blocks until the provider admits a call or ctx is done.
func (p *LocalPacer) Wait(ctx context.Context, slug string) error {
	p.mu.Lock()
	limiter := p.state(slug).limiter
	p.mu.Unlock()
	return limiter.Wait(ctx)
}

// ReportThrottle halves the provider's refill rate for the backoff period.
func (p *LocalPacer) ReportThrottle(slug string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.state(slug)
	st.limiter.SetLimit(st.baseLimit / 2)
	st.reducedUntil = p.clock().Add(p.backoff)
	p.logger.Warn("provider throttled, halving rate",
		"provider", slug,
		"rate", float64(st.baseLimit/2),
		"until", st.reducedUntil)
}
