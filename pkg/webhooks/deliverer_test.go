package webhooks_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/webhooks"
)

type staticSource struct {
	subs []webhooks.Subscription
	err  error
}

func (s staticSource) ActiveSubscriptions(context.Context, uuid.UUID, string) ([]webhooks.Subscription, error) {
	return s.subs, s.err
}

func testSubscription(url string) webhooks.Subscription {
	return webhooks.Subscription{
		ID:          uuid.New(),
		WorkspaceID: uuid.New(),
		CallbackURL: url,
		EventTypes:  []string{"job.completed"},
		SecretKey:   "8f0a5b2c93d14e6f8f0a5b2c93d14e6f8f0a5b2c93d14e6f8f0a5b2c93d14e6f",
		IsActive:    true,
	}
}

func testEvent(ws uuid.UUID) webhooks.Event {
	return webhooks.Event{
		Event:       "job.completed",
		JobID:       uuid.New(),
		WorkspaceID: ws,
		Status:      "completed",
		Summary: webhooks.Summary{
			TotalRecords:     10,
			CompletedRecords: 9,
			FailedRecords:    1,
			CreditsConsumed:  18,
		},
		Timestamp: time.Now().UTC(),
	}
}

func TestDeliverSignsAndPosts(t *testing.T) {
	type captured struct {
		body        []byte
		signature   string
		timestamp   string
		contentType string
	}
	got := make(chan captured, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got <- captured{
			body:        body,
			signature:   r.Header.Get("X-Webhook-Signature"),
			timestamp:   r.Header.Get("X-Webhook-Timestamp"),
			contentType: r.Header.Get("Content-Type"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := testSubscription(srv.URL)
	d := webhooks.NewDeliverer(staticSource{subs: []webhooks.Subscription{sub}}, time.Second, discardLogger()).
		WithRetrySchedule()

	ws := uuid.New()
	event := testEvent(ws)
	d.Deliver(context.Background(), ws, event)

	req := <-got
	assert.Equal(t, "application/json", req.contentType)
	assert.Regexp(t, "^sha256=[0-9a-f]{64}$", req.signature)

	res := webhooks.VerifySignature(req.body, req.signature, req.timestamp, sub.SecretKey)
	assert.True(t, res.Valid, "reason: %s", res.Reason)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(req.body, &payload))
	assert.Equal(t, "job.completed", payload["event"])
	assert.Equal(t, event.JobID.String(), payload["jobId"])
	assert.Equal(t, "completed", payload["status"])
	summary, ok := payload["summary"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(18), summary["creditsConsumed"])
}

func TestDeliverRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := webhooks.NewDeliverer(staticSource{subs: []webhooks.Subscription{testSubscription(srv.URL)}},
		time.Second, discardLogger()).
		WithRetrySchedule(time.Millisecond, time.Millisecond, time.Millisecond)

	d.Deliver(context.Background(), uuid.New(), testEvent(uuid.New()))
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverGivesUpAfterFourAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := webhooks.NewDeliverer(staticSource{subs: []webhooks.Subscription{testSubscription(srv.URL)}},
		time.Second, discardLogger()).
		WithRetrySchedule(time.Millisecond, time.Millisecond, time.Millisecond)

	d.Deliver(context.Background(), uuid.New(), testEvent(uuid.New()))
	assert.Equal(t, int32(4), calls.Load())
}

func TestDeliverFansOutToAllSubscriptions(t *testing.T) {
	var first, second atomic.Int32
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		first.Add(1)
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		second.Add(1)
	}))
	defer srvB.Close()

	d := webhooks.NewDeliverer(staticSource{subs: []webhooks.Subscription{
		testSubscription(srvA.URL), testSubscription(srvB.URL),
	}}, time.Second, discardLogger()).WithRetrySchedule()

	d.Deliver(context.Background(), uuid.New(), testEvent(uuid.New()))
	assert.Equal(t, int32(1), first.Load())
	assert.Equal(t, int32(1), second.Load())
}

func TestDeliverNeverPanicsOnUnreachableEndpoint(t *testing.T) {
	d := webhooks.NewDeliverer(staticSource{subs: []webhooks.Subscription{
		testSubscription("https://127.0.0.1:1/hook"),
	}}, 100*time.Millisecond, discardLogger()).WithRetrySchedule()

	d.Deliver(context.Background(), uuid.New(), testEvent(uuid.New()))
}

func TestDeliverNoMatchingSubscriptions(t *testing.T) {
	d := webhooks.NewDeliverer(staticSource{}, time.Second, discardLogger())
	d.Deliver(context.Background(), uuid.New(), testEvent(uuid.New()))
}
