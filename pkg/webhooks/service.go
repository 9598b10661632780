// Package webhooks manages subscription registration and signed, retried
// delivery of job lifecycle events. Callback destinations are validated
// against private address ranges before a subscription is accepted.
package webhooks

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
)

// Resolver resolves hostnames for callback URL screening. *net.Resolver
// satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Service manages webhook subscriptions for all workspaces.
type Service struct {
	db       *sql.DB
	resolver Resolver
	logger   *slog.Logger
}

// NewService creates a subscription service using the system DNS resolver.
func NewService(db *sql.DB, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:       db,
		resolver: net.DefaultResolver,
		logger:   logger.With("component", "webhooks"),
	}
}

// WithResolver swaps the DNS resolver. Used by tests.
func (s *Service) WithResolver(r Resolver) *Service {
	s.resolver = r
	return s
}

// Init creates the subscription table.
func (s *Service) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS webhook_subscriptions (
			id UUID PRIMARY KEY,
			workspace_id UUID NOT NULL,
			callback_url TEXT NOT NULL,
			event_types TEXT[] NOT NULL,
			secret_key TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_webhook_subscriptions_workspace
			ON webhook_subscriptions (workspace_id)`)
	if err != nil {
		return fmt.Errorf("webhooks: init schema: %w", err)
	}
	return nil
}

// CreateSubscription validates the callback URL, generates a signing
// secret, and persists the subscription. The returned Subscription carries
// the secret; list paths never expose it again.
func (s *Service) CreateSubscription(ctx context.Context, workspaceID uuid.UUID, userID, callbackURL string, eventTypes []string) (*Subscription, error) {
	if len(eventTypes) == 0 {
		return nil, apperr.Validation("at least one event type is required")
	}
	if err := s.validateCallbackURL(ctx, callbackURL); err != nil {
		return nil, err
	}

	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, apperr.Internal("generate webhook secret", err)
	}

	now := time.Now().UTC()
	sub := &Subscription{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		CallbackURL: callbackURL,
		EventTypes:  eventTypes,
		SecretKey:   hex.EncodeToString(secret),
		IsActive:    true,
		CreatedBy:   userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions
			(id, workspace_id, callback_url, event_types, secret_key, is_active, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sub.ID, sub.WorkspaceID, sub.CallbackURL, pq.Array(sub.EventTypes),
		sub.SecretKey, sub.IsActive, sub.CreatedBy, sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return nil, apperr.Internal("store webhook subscription", err)
	}

	s.logger.Info("webhook subscription created",
		"workspace_id", workspaceID,
		"subscription_id", sub.ID,
		"events", eventTypes)
	return sub, nil
}

// ListSubscriptions returns a workspace's subscriptions with secrets
// redacted.
func (s *Service) ListSubscriptions(ctx context.Context, workspaceID uuid.UUID) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, callback_url, event_types, is_active, created_by, created_at, updated_at
		FROM webhook_subscriptions
		WHERE workspace_id = $1
		ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, apperr.Internal("list webhook subscriptions", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.WorkspaceID, &sub.CallbackURL, pq.Array(&sub.EventTypes),
			&sub.IsActive, &sub.CreatedBy, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, apperr.Internal("scan webhook subscription", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ActiveSubscriptions returns the active subscriptions listening for event,
// secrets included, for the delivery path.
func (s *Service) ActiveSubscriptions(ctx context.Context, workspaceID uuid.UUID, event string) ([]Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, callback_url, event_types, secret_key, is_active, created_by, created_at, updated_at
		FROM webhook_subscriptions
		WHERE workspace_id = $1 AND is_active AND $2 = ANY(event_types)`,
		workspaceID, event)
	if err != nil {
		return nil, apperr.Internal("select active subscriptions", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.WorkspaceID, &sub.CallbackURL, pq.Array(&sub.EventTypes),
			&sub.SecretKey, &sub.IsActive, &sub.CreatedBy, &sub.CreatedAt, &sub.UpdatedAt); err != nil {
			return nil, apperr.Internal("scan active subscription", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a subscription owned by the workspace.
func (s *Service) DeleteSubscription(ctx context.Context, workspaceID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM webhook_subscriptions WHERE id = $1 AND workspace_id = $2`, id, workspaceID)
	if err != nil {
		return apperr.Internal("delete webhook subscription", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Internal("delete webhook subscription", err)
	}
	if n == 0 {
		return apperr.NotFound("webhook subscription not found")
	}
	s.logger.Info("webhook subscription deleted", "workspace_id", workspaceID, "subscription_id", id)
	return nil
}

// validateCallbackURL enforces HTTPS and rejects destinations that resolve
// to loopback, private, or link-local addresses.
func (s *Service) validateCallbackURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return apperr.Validation("callback URL is not a valid URL")
	}
	if u.Scheme != "https" {
		return apperr.Validation("callback URL must use https")
	}
	host := u.Hostname()
	if host == "" {
		return apperr.Validation("callback URL has no host")
	}

	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return apperr.Validation("callback URL points to a private address")
		}
		return nil
	}

	ips, err := s.resolver.LookupIP(ctx, "ip", host)
	if err != nil || len(ips) == 0 {
		return apperr.Validationf("callback host %q cannot be resolved", host)
	}
	for _, ip := range ips {
		if blockedIP(ip) {
			return apperr.Validation("callback URL resolves to a private address")
		}
	}
	return nil
}

// blockedIP covers loopback 127/8, RFC1918 10/8 172.16/12 192.168/16,
// link-local 169.254/16, and their IPv6 equivalents.
func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
}
