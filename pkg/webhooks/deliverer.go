package webhooks

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SubscriptionSource yields the subscriptions a delivery should fan out to.
// *Service satisfies it.
type SubscriptionSource interface {
	ActiveSubscriptions(ctx context.Context, workspaceID uuid.UUID, event string) ([]Subscription, error)
}

// Deliverer posts signed events to subscribed endpoints. Delivery is best
// effort: Deliver never returns an error, all failures are logged.
type Deliverer struct {
	source SubscriptionSource
	client *http.Client
	logger *slog.Logger

	// waits between attempts; attempt count is len(schedule)+1
	schedule []time.Duration
	now      func() time.Time
}

// NewDeliverer builds a deliverer with the production retry schedule
// (attempts at 0s, 5s, 10s, 20s) and a 10s per-attempt timeout.
func NewDeliverer(source SubscriptionSource, timeout time.Duration, logger *slog.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Deliverer{
		source:   source,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("component", "webhooks"),
		schedule: []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
		now:      time.Now,
	}
}

// WithRetrySchedule replaces the waits between attempts. Used by tests.
func (d *Deliverer) WithRetrySchedule(waits ...time.Duration) *Deliverer {
	d.schedule = waits
	return d
}

// Deliver fans an event out to every active matching subscription,
// concurrently, and waits for all deliveries to finish or give up.
func (d *Deliverer) Deliver(ctx context.Context, workspaceID uuid.UUID, event Event) {
	subs, err := d.source.ActiveSubscriptions(ctx, workspaceID, event.Event)
	if err != nil {
		d.logger.Error("subscription lookup failed",
			"workspace_id", workspaceID, "event", event.Event, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := CanonicalBody(event)
	if err != nil {
		d.logger.Error("payload serialization failed",
			"workspace_id", workspaceID, "event", event.Event, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(sub Subscription) {
			defer wg.Done()
			d.deliverOne(ctx, sub, body, event.Event)
		}(sub)
	}
	wg.Wait()
}

func (d *Deliverer) deliverOne(ctx context.Context, sub Subscription, body []byte, eventName string) {
	var lastErr error
	attempts := len(d.schedule) + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				d.logger.Warn("webhook delivery abandoned",
					"subscription_id", sub.ID, "event", eventName, "error", ctx.Err())
				return
			case <-time.After(d.schedule[attempt-1]):
			}
		}

		if lastErr = d.post(ctx, sub, body); lastErr == nil {
			d.logger.Info("webhook delivered",
				"subscription_id", sub.ID, "event", eventName, "attempt", attempt+1)
			return
		}
		d.logger.Warn("webhook delivery failed",
			"subscription_id", sub.ID,
			"event", eventName,
			"attempt", attempt+1,
			"error", lastErr)
	}

	d.logger.Error("webhook delivery gave up",
		"subscription_id", sub.ID, "event", eventName, "attempts", attempts, "error", lastErr)
}

func (d *Deliverer) post(ctx context.Context, sub Subscription, body []byte) error {
	ts := d.now().Unix()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(ts, 10))
	req.Header.Set("X-Webhook-Signature", "sha256="+Sign(sub.SecretKey, ts, body))

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %d", resp.StatusCode)
	}
	return nil
}
