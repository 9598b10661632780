package webhooks_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/webhooks"
)

type staticResolver struct {
	ips map[string][]net.IP
	err error
}

func (r staticResolver) LookupIP(_ context.Context, _ string, host string) ([]net.IP, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.ips[host], nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, resolver webhooks.Resolver) (*webhooks.Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return webhooks.NewService(db, discardLogger()).WithResolver(resolver), mock
}

func publicResolver(hosts ...string) staticResolver {
	ips := make(map[string][]net.IP)
	for _, h := range hosts {
		ips[h] = []net.IP{net.ParseIP("93.184.216.34")}
	}
	return staticResolver{ips: ips}
}

func TestCreateSubscription(t *testing.T) {
	svc, mock := newTestService(t, publicResolver("hooks.example.com"))
	ws := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO webhook_subscriptions")).
		WithArgs(sqlmock.AnyArg(), ws, "https://hooks.example.com/enrichment",
			sqlmock.AnyArg(), sqlmock.AnyArg(), true, "user-1",
			sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sub, err := svc.CreateSubscription(context.Background(), ws, "user-1",
		"https://hooks.example.com/enrichment", []string{"job.completed", "job.failed"})
	require.NoError(t, err)

	assert.Regexp(t, "^[0-9a-f]{64}$", sub.SecretKey)
	assert.True(t, sub.IsActive)
	assert.Equal(t, []string{"job.completed", "job.failed"}, sub.EventTypes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSubscriptionRequiresEventTypes(t *testing.T) {
	svc, _ := newTestService(t, publicResolver("hooks.example.com"))

	_, err := svc.CreateSubscription(context.Background(), uuid.New(), "user-1",
		"https://hooks.example.com/enrichment", nil)
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestCreateSubscriptionRejectsNonHTTPS(t *testing.T) {
	svc, _ := newTestService(t, publicResolver("hooks.example.com"))

	for _, raw := range []string{
		"http://hooks.example.com/enrichment",
		"ftp://hooks.example.com/enrichment",
		"not a url at all ://",
	} {
		_, err := svc.CreateSubscription(context.Background(), uuid.New(), "user-1",
			raw, []string{"job.completed"})
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err), "url %q", raw)
	}
}

func TestCreateSubscriptionRejectsPrivateDestinations(t *testing.T) {
	resolver := staticResolver{ips: map[string][]net.IP{
		"loop.example.com":  {net.ParseIP("127.0.0.1")},
		"ten.example.com":   {net.ParseIP("10.0.0.5")},
		"corp.example.com":  {net.ParseIP("172.16.0.9")},
		"home.example.com":  {net.ParseIP("192.168.1.20")},
		"cloud.example.com": {net.ParseIP("169.254.169.254")},
		"mixed.example.com": {net.ParseIP("93.184.216.34"), net.ParseIP("10.0.0.5")},
	}}
	svc, _ := newTestService(t, resolver)

	hosts := []string{
		"https://loop.example.com/hook",
		"https://ten.example.com/hook",
		"https://corp.example.com/hook",
		"https://home.example.com/hook",
		"https://cloud.example.com/hook",
		"https://mixed.example.com/hook",
		"https://127.0.0.1/hook",
		"https://10.1.2.3/hook",
		"https://192.168.0.1:8443/hook",
		"https://169.254.169.254/latest/meta-data",
	}
	for _, raw := range hosts {
		_, err := svc.CreateSubscription(context.Background(), uuid.New(), "user-1",
			raw, []string{"job.completed"})
		assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err), "url %q", raw)
	}
}

func TestCreateSubscriptionUnresolvableHost(t *testing.T) {
	svc, _ := newTestService(t, staticResolver{err: errors.New("no such host")})

	_, err := svc.CreateSubscription(context.Background(), uuid.New(), "user-1",
		"https://gone.example.com/hook", []string{"job.completed"})
	assert.Equal(t, apperr.CodeValidation, apperr.CodeOf(err))
}

func TestActiveSubscriptionsFiltersByEvent(t *testing.T) {
	svc, mock := newTestService(t, publicResolver())
	ws := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "workspace_id", "callback_url", "event_types", "secret_key",
		"is_active", "created_by", "created_at", "updated_at"}).
		AddRow(uuid.New().String(), ws.String(), "https://hooks.example.com/a",
			`{"job.completed","job.failed"}`, "aa11", true, "user-1", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("$2 = ANY(event_types)")).
		WithArgs(ws, "job.completed").
		WillReturnRows(rows)

	subs, err := svc.ActiveSubscriptions(context.Background(), ws, "job.completed")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, []string{"job.completed", "job.failed"}, subs[0].EventTypes)
	assert.Equal(t, "aa11", subs[0].SecretKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSubscriptionsRedactsSecret(t *testing.T) {
	svc, mock := newTestService(t, publicResolver())
	ws := uuid.New()
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"id", "workspace_id", "callback_url", "event_types",
		"is_active", "created_by", "created_at", "updated_at"}).
		AddRow(uuid.New().String(), ws.String(), "https://hooks.example.com/a",
			`{"job.completed"}`, true, "user-1", now, now)

	mock.ExpectQuery(regexp.QuoteMeta("FROM webhook_subscriptions")).
		WithArgs(ws).
		WillReturnRows(rows)

	subs, err := svc.ListSubscriptions(context.Background(), ws)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Empty(t, subs[0].SecretKey)
}

func TestDeleteSubscription(t *testing.T) {
	svc, mock := newTestService(t, publicResolver())
	ws, id := uuid.New(), uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM webhook_subscriptions")).
		WithArgs(id, ws).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, svc.DeleteSubscription(context.Background(), ws, id))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM webhook_subscriptions")).
		WithArgs(id, ws).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := svc.DeleteSubscription(context.Background(), ws, id)
	assert.Equal(t, apperr.CodeNotFound, apperr.CodeOf(err))
}
