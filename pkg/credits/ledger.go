// Package credits is the transactional credit ledger. Every balance
// mutation locks the workspace's billing row, so concurrent debits
// serialize and the balance invariant holds at each commit.
package credits

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
)

// EventRecorder receives committed ledger entries for telemetry. Recording
// is best-effort and runs after commit; it can never undo a transaction.
type EventRecorder interface {
	RecordTransaction(ctx context.Context, tx Transaction, source string)
}

// Ledger mutates and reads workspace credit state.
type Ledger struct {
	db       *sql.DB
	logger   *slog.Logger
	recorder EventRecorder
}

// NewLedger creates a ledger. recorder may be nil.
func NewLedger(db *sql.DB, logger *slog.Logger, recorder EventRecorder) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{db: db, logger: logger.With("component", "credits"), recorder: recorder}
}

// Init creates the billing and ledger tables.
func (l *Ledger) Init(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS billing (
			workspace_id UUID PRIMARY KEY,
			credit_balance BIGINT NOT NULL DEFAULT 0 CHECK (credit_balance >= 0),
			credit_limit BIGINT NOT NULL DEFAULT 0,
			auto_recharge BOOLEAN NOT NULL DEFAULT false,
			auto_recharge_threshold BIGINT NOT NULL DEFAULT 0,
			auto_recharge_amount BIGINT NOT NULL DEFAULT 0,
			plan TEXT NOT NULL DEFAULT 'standard',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("credits: init billing: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS credit_transactions (
			id UUID PRIMARY KEY,
			workspace_id UUID NOT NULL,
			amount BIGINT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('purchase','usage','refund','bonus','adjustment')),
			description TEXT NOT NULL,
			reference_id TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("credits: init transactions: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_credit_transactions_workspace
		ON credit_transactions (workspace_id, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("credits: init index: %w", err)
	}
	return nil
}

// CreateBillingParams provisions a workspace account.
type CreateBillingParams struct {
	WorkspaceID           uuid.UUID
	InitialCredits        int64
	CreditLimit           int64
	AutoRecharge          bool
	AutoRechargeThreshold int64
	AutoRechargeAmount    int64
	Plan                  string
}

// CreateBilling provisions the billing row for a workspace. Initial
// credits land as a purchase entry so the ledger stays conservative.
func (l *Ledger) CreateBilling(ctx context.Context, p CreateBillingParams) (*BillingRecord, error) {
	if p.InitialCredits < 0 {
		return nil, apperr.Validation("initialCredits must not be negative")
	}
	if p.Plan == "" {
		p.Plan = "standard"
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("credits: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO billing
			(workspace_id, credit_balance, credit_limit, auto_recharge, auto_recharge_threshold, auto_recharge_amount, plan, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		p.WorkspaceID, p.InitialCredits, p.CreditLimit,
		p.AutoRecharge, p.AutoRechargeThreshold, p.AutoRechargeAmount, p.Plan, now,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, apperr.Conflict("billing already provisioned for workspace")
		}
		return nil, fmt.Errorf("credits: create billing: %w", err)
	}

	var initial *Transaction
	if p.InitialCredits > 0 {
		initial, err = l.insertTransaction(ctx, tx, p.WorkspaceID, p.InitialCredits, TypePurchase, "Initial credits", "")
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("credits: commit: %w", err)
	}
	if initial != nil {
		l.record(ctx, *initial, "ledger")
	}

	return &BillingRecord{
		WorkspaceID:           p.WorkspaceID,
		CreditBalance:         p.InitialCredits,
		CreditLimit:           p.CreditLimit,
		AutoRecharge:          p.AutoRecharge,
		AutoRechargeThreshold: p.AutoRechargeThreshold,
		AutoRechargeAmount:    p.AutoRechargeAmount,
		Plan:                  p.Plan,
		CreatedAt:             now,
		UpdatedAt:             now,
	}, nil
}

// AddCredits increases the balance and appends a purchase entry. Refunds
// go through here with a descriptive reason.
func (l *Ledger) AddCredits(ctx context.Context, workspaceID uuid.UUID, amount int64, description string) (*Transaction, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("credits: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var balance int64
	err = tx.QueryRowContext(ctx,
		`SELECT credit_balance FROM billing WHERE workspace_id = $1 FOR UPDATE`,
		workspaceID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("billing record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("credits: lock billing: %w", err)
	}

	if err := l.updateBalance(ctx, tx, workspaceID, balance+amount); err != nil {
		return nil, err
	}
	entry, err := l.insertTransaction(ctx, tx, workspaceID, amount, TypePurchase, description, "")
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("credits: commit: %w", err)
	}
	l.record(ctx, *entry, "ledger")
	return entry, nil
}

// Debit decreases the balance and appends a usage entry with a negative
// amount. A shortfall rolls back untouched. Auto-recharge tops the account
// back up inside the same transaction when the post-debit balance falls
// under the threshold.
func (l *Ledger) Debit(ctx context.Context, workspaceID uuid.UUID, amount int64, description, referenceID string) (*Transaction, error) {
	if amount <= 0 {
		return nil, apperr.Validation("amount must be positive")
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("credits: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		balance        int64
		autoRecharge   bool
		threshold      int64
		rechargeAmount int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT credit_balance, auto_recharge, auto_recharge_threshold, auto_recharge_amount FROM billing WHERE workspace_id = $1 FOR UPDATE`,
		workspaceID,
	).Scan(&balance, &autoRecharge, &threshold, &rechargeAmount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("billing record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("credits: lock billing: %w", err)
	}

	if balance < amount {
		return nil, apperr.InsufficientCredits(
			fmt.Sprintf("insufficient credits: balance %d, required %d", balance, amount))
	}

	newBalance := balance - amount
	if err := l.updateBalance(ctx, tx, workspaceID, newBalance); err != nil {
		return nil, err
	}
	usage, err := l.insertTransaction(ctx, tx, workspaceID, -amount, TypeUsage, description, referenceID)
	if err != nil {
		return nil, err
	}

	var recharge *Transaction
	if autoRecharge && newBalance < threshold && rechargeAmount > 0 {
		if err := l.updateBalance(ctx, tx, workspaceID, newBalance+rechargeAmount); err != nil {
			return nil, err
		}
		recharge, err = l.insertTransaction(ctx, tx, workspaceID, rechargeAmount, TypePurchase, "Auto-recharge", "")
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("credits: commit: %w", err)
	}

	l.record(ctx, *usage, "ledger")
	if recharge != nil {
		l.logger.InfoContext(ctx, "auto-recharge triggered",
			"workspace_id", workspaceID.String(), "amount", rechargeAmount)
		l.record(ctx, *recharge, "auto_recharge")
	}
	return usage, nil
}

// Billing returns the workspace's billing record.
func (l *Ledger) Billing(ctx context.Context, workspaceID uuid.UUID) (*BillingRecord, error) {
	var (
		b         BillingRecord
		updatedAt time.Time
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT workspace_id, credit_balance, credit_limit, auto_recharge, auto_recharge_threshold, auto_recharge_amount, plan, created_at, updated_at
		FROM billing
		WHERE workspace_id = $1`,
		workspaceID,
	).Scan(&b.WorkspaceID, &b.CreditBalance, &b.CreditLimit, &b.AutoRecharge,
		&b.AutoRechargeThreshold, &b.AutoRechargeAmount, &b.Plan, &b.CreatedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("billing record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("credits: get billing: %w", err)
	}
	b.UpdatedAt = updatedAt
	return &b, nil
}

// Transactions returns one reverse-chronological page of the ledger.
func (l *Ledger) Transactions(ctx context.Context, workspaceID uuid.UUID, page, limit int) ([]Transaction, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, workspace_id, amount, type, description, reference_id, created_at
		FROM credit_transactions
		WHERE workspace_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		workspaceID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("credits: list transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var (
			entry Transaction
			ref   sql.NullString
		)
		if err := rows.Scan(&entry.ID, &entry.WorkspaceID, &entry.Amount, &entry.Type,
			&entry.Description, &ref, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("credits: scan transaction: %w", err)
		}
		entry.ReferenceID = ref.String
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (l *Ledger) updateBalance(ctx context.Context, tx *sql.Tx, workspaceID uuid.UUID, balance int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE billing SET credit_balance = $1, updated_at = $2 WHERE workspace_id = $3`,
		balance, time.Now().UTC(), workspaceID,
	)
	if err != nil {
		return fmt.Errorf("credits: update balance: %w", err)
	}
	return nil
}

func (l *Ledger) insertTransaction(ctx context.Context, tx *sql.Tx, workspaceID uuid.UUID, amount int64, txType TransactionType, description, referenceID string) (*Transaction, error) {
	entry := &Transaction{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Amount:      amount,
		Type:        txType,
		Description: description,
		ReferenceID: referenceID,
		CreatedAt:   time.Now().UTC(),
	}
	var ref sql.NullString
	if referenceID != "" {
		ref = sql.NullString{String: referenceID, Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO credit_transactions (id, workspace_id, amount, type, description, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		entry.ID, workspaceID, amount, txType, description, ref, entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("credits: insert transaction: %w", err)
	}
	return entry, nil
}

func (l *Ledger) record(ctx context.Context, tx Transaction, source string) {
	if l.recorder == nil {
		return
	}
	l.recorder.RecordTransaction(ctx, tx, source)
}
