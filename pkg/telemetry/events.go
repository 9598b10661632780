// Package telemetry streams credit ledger activity into ClickHouse for
// analytical queries. Ingestion is asynchronous and lossy under pressure:
// the relational ledger stays the source of truth.
package telemetry

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/credits"
)

// CreditEvent is one row of the credit_events table.
type CreditEvent struct {
	EventID         uuid.UUID
	WorkspaceID     uuid.UUID
	TransactionType string
	Amount          int32
	Source          string
	ReferenceID     *uuid.UUID
	ProviderSlug    *string
	CreatedAt       time.Time
}

// eventFromTransaction converts a committed ledger entry. The ledger
// transaction id doubles as the event id, so replays deduplicate.
func eventFromTransaction(tx credits.Transaction, source string) CreditEvent {
	ev := CreditEvent{
		EventID:         tx.ID,
		WorkspaceID:     tx.WorkspaceID,
		TransactionType: string(tx.Type),
		Amount:          int32(tx.Amount),
		Source:          source,
		CreatedAt:       tx.CreatedAt,
	}
	if ref, err := uuid.Parse(tx.ReferenceID); err == nil {
		ev.ReferenceID = &ref
	}
	if slug, ok := strings.CutPrefix(tx.Description, "Enrichment: "); ok {
		slug = strings.TrimSpace(slug)
		if slug != "" {
			ev.ProviderSlug = &slug
		}
	}
	return ev
}
