package telemetry

import (
	"context"
	"fmt"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// Options configures the ClickHouse connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

// OpenClickHouse connects over the native protocol and verifies the
// connection.
func OpenClickHouse(ctx context.Context, opts Options) (driver.Conn, error) {
	conn, err := ch.Open(&ch.Options{
		Addr: []string{opts.Addr},
		Auth: ch.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: open clickhouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("telemetry: ping clickhouse: %w", err)
	}
	return conn, nil
}

// Sink is the destination for credit events.
type Sink interface {
	WriteCreditEvents(ctx context.Context, events []CreditEvent) error
	Close() error
}

// ClickHouseSink writes credit events with batched inserts.
type ClickHouseSink struct {
	conn driver.Conn
}

// NewClickHouseSink wraps an open connection.
func NewClickHouseSink(conn driver.Conn) *ClickHouseSink {
	return &ClickHouseSink{conn: conn}
}

// WriteCreditEvents appends one batch of rows.
func (s *ClickHouseSink) WriteCreditEvents(ctx context.Context, events []CreditEvent) error {
	if len(events) == 0 {
		return nil
	}
	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO credit_events
			(event_id, workspace_id, transaction_type, amount, source, reference_id, provider_slug, created_at)`)
	if err != nil {
		return fmt.Errorf("telemetry: prepare batch: %w", err)
	}
	for _, ev := range events {
		if err := batch.Append(
			ev.EventID, ev.WorkspaceID, ev.TransactionType, ev.Amount,
			ev.Source, ev.ReferenceID, ev.ProviderSlug, ev.CreatedAt,
		); err != nil {
			return fmt.Errorf("telemetry: append event: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("telemetry: send batch: %w", err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *ClickHouseSink) Close() error {
	return s.conn.Close()
}
