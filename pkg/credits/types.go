package credits

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TypePurchase   TransactionType = "purchase"
	TypeUsage      TransactionType = "usage"
	TypeRefund     TransactionType = "refund"
	TypeBonus      TransactionType = "bonus"
	TypeAdjustment TransactionType = "adjustment"
)

// BillingRecord is a workspace's credit account. The balance never goes
// negative at any commit.
type BillingRecord struct {
	WorkspaceID           uuid.UUID `json:"workspaceId"`
	CreditBalance         int64     `json:"creditBalance"`
	CreditLimit           int64     `json:"creditLimit"`
	AutoRecharge          bool      `json:"autoRecharge"`
	AutoRechargeThreshold int64     `json:"autoRechargeThreshold"`
	AutoRechargeAmount    int64     `json:"autoRechargeAmount"`
	Plan                  string    `json:"plan"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// Transaction is one immutable ledger entry. Usage amounts are negative;
// every other type is positive.
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	WorkspaceID uuid.UUID       `json:"workspaceId"`
	Amount      int64           `json:"amount"`
	Type        TransactionType `json:"type"`
	Description string          `json:"description"`
	ReferenceID string          `json:"referenceId,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
