package providers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// paceBucketScript runs the token bucket atomically in Redis so every
// worker draws from one shared budget per provider.
// KEYS[1] = bucket key, ARGV[1] = refill rate (tokens/s),
// ARGV[2] = capacity, ARGV[3] = cost, ARGV[4] = now (unix seconds, fractional)
var paceBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = tokens + elapsed * rate
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 600)

return allowed
`)

// RedisPacer shares provider budgets across workers through Redis. Denied
// calls poll until a token refills or ctx is done. Throttle reports set a
// shared marker that halves the rate for every worker.
type RedisPacer struct {
	client *redis.Client
	rates  map[string]RateSpec
	logger *slog.Logger
}

// NewRedisPacer builds a shared pacer seeded with the catalog budgets.
func NewRedisPacer(client *redis.Client, defs []Definition, logger *slog.Logger) *RedisPacer {
	if logger == nil {
		logger = slog.Default()
	}
	p := &RedisPacer{
		client: client,
		rates:  make(map[string]RateSpec),
		logger: logger.With("component", "pacer"),
	}
	for _, def := range defs {
		if def.Rate != nil {
			p.rates[def.Slug] = *def.Rate
		}
	}
	return p
}

func (p *RedisPacer) spec(slug string) RateSpec {
	if spec, ok := p.rates[slug]; ok && spec.Tokens > 0 && spec.Interval > 0 {
		return spec
	}
	return RateSpec{Tokens: defaultPaceTokens, Interval: defaultPaceInterval}
}

// Wait polls the shared bucket until a token is granted or ctx is done.
func (p *RedisPacer) Wait(ctx context.Context, slug string) error {
	spec := p.spec(slug)
	ratePerSec := float64(spec.Tokens) / spec.Interval.Seconds()

	// wait roughly one refill period between attempts
	poll := time.Duration(float64(time.Second) / ratePerSec)
	if poll < 50*time.Millisecond {
		poll = 50 * time.Millisecond
	}
	if poll > time.Second {
		poll = time.Second
	}

	for {
		reduced, err := p.client.Exists(ctx, "pacer:"+slug+":throttled").Result()
		if err != nil {
			return fmt.Errorf("providers: pacer redis: %w", err)
		}
		effective := ratePerSec
		if reduced > 0 {
			effective /= 2
		}

		now := float64(time.Now().UnixMicro()) / 1e6
		allowed, err := paceBucketScript.Run(ctx, p.client,
			[]string{"pacer:" + slug}, effective, spec.Tokens, 1, now).Int64()
		if err != nil {
			return fmt.Errorf("providers: pacer redis: %w", err)
		}
		if allowed == 1 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(poll):
		}
	}
}

// ReportThrottle marks the provider throttled for every worker sharing the
// bucket.
func (p *RedisPacer) ReportThrottle(slug string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := p.client.Set(ctx, "pacer:"+slug+":throttled", 1, throttleBackoff).Err(); err != nil {
		p.logger.Warn("throttle marker write failed", "provider", slug, "error", err)
		return
	}
	p.logger.Warn("provider throttled, halving shared rate", "provider", slug)
}
