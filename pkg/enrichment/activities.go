package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/breaker"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/credits"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/observability"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/providers"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/schema"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/vault"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/webhooks"
)

// Error types carried by non-retryable activity failures.
const (
	errTypeUnknownProvider    = "UnknownProvider"
	errTypeMissingCredentials = "MissingCredentials"
	errTypeCredentialDecrypt  = "CredentialDecrypt"
)

// Activities holds every side-effecting dependency of the workflow. One
// instance is registered per worker process.
type Activities struct {
	store     *Store
	registry  *providers.Registry
	breaker   *breaker.Breaker
	ledger    *credits.Ledger
	vault     *vault.Vault
	deliverer *webhooks.Deliverer
	metrics   *observability.Provider
	logger    *slog.Logger
}

func NewActivities(store *Store, registry *providers.Registry, br *breaker.Breaker, ledger *credits.Ledger, v *vault.Vault, deliverer *webhooks.Deliverer, metrics *observability.Provider, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		registry:  registry,
		breaker:   br,
		ledger:    ledger,
		vault:     v,
		deliverer: deliverer,
		metrics:   metrics,
		logger:    logger.With("component", "enrichment_activity"),
	}
}

// EnrichRecord runs one (record, field, provider) attempt. The persisted
// record is keyed by the idempotency key, so engine retries and workflow
// replays converge on a single outcome with a single debit and a single
// breaker update.
func (a *Activities) EnrichRecord(ctx context.Context, in EnrichInput) (*EnrichOutput, error) {
	existing, err := a.store.RecordByKey(ctx, in.IdempotencyKey)
	if err != nil {
		return nil, fmt.Errorf("idempotency probe: %w", err)
	}
	if existing != nil {
		return outputFromRecord(existing), nil
	}

	def, ok := a.registry.Provider(in.ProviderSlug)
	if !ok {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("unknown provider: %s", in.ProviderSlug), errTypeUnknownProvider, nil)
	}
	cost := int64(def.CreditCost)

	if !a.breaker.CanCall(in.ProviderSlug) {
		a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "breaker_open")
		return a.persistFailure(ctx, in, "Circuit breaker open")
	}

	debit, err := a.ledger.Debit(ctx, in.WorkspaceID, cost, "Enrichment: "+in.ProviderSlug, in.JobID.String())
	if err != nil {
		if apperr.Is(err, apperr.CodeInsufficientCredits) {
			a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "insufficient_credits")
			return a.persistFailure(ctx, in, "Insufficient credits")
		}
		return nil, fmt.Errorf("debit credits: %w", err)
	}
	a.metrics.RecordCreditTransaction(ctx, "debit")

	cred, err := a.vault.CredentialForProvider(ctx, in.WorkspaceID, def.CredentialType)
	if err != nil {
		if apperr.Is(err, apperr.CodeNotFound) {
			a.refund(ctx, in, cost, "Refund: missing credentials for "+in.ProviderSlug)
			a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "credential_error")
			return nil, temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("Missing credentials for provider %s", in.ProviderSlug),
				errTypeMissingCredentials, nil)
		}
		// Refund before the retryable return: the retry path re-debits.
		a.refund(ctx, in, cost, "Refund: credential lookup failed for "+in.ProviderSlug)
		return nil, fmt.Errorf("fetch credential: %w", err)
	}

	plain, err := a.vault.DecryptCredential(ctx, cred.ID)
	if err != nil {
		a.refund(ctx, in, cost, "Refund: credential decrypt failed for "+in.ProviderSlug)
		a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "credential_error")
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("cannot decrypt credentials for provider %s", in.ProviderSlug),
			errTypeCredentialDecrypt, err)
	}

	started := time.Now()
	result, err := def.Adapter.Enrich(ctx, providers.Credentials{Key: plain.Key, Secret: plain.Secret}, in.InputData)
	a.metrics.ObserveProviderCall(ctx, in.ProviderSlug, time.Since(started), err)
	if err != nil {
		a.breaker.RecordFailure(in.ProviderSlug)
		a.refund(ctx, in, cost, "Refund: provider error from "+in.ProviderSlug)
		a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "provider_error")
		return a.persistFailure(ctx, in, err.Error())
	}

	if result.Success && result.Data != nil {
		if validator := a.registry.OutputValidator(in.ProviderSlug); validator != nil {
			if issues := validator.Validate(result.Data); len(issues) > 0 {
				a.breaker.RecordFailure(in.ProviderSlug)
				a.refund(ctx, in, cost, "Refund: invalid response from "+in.ProviderSlug)
				a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "invalid_output")
				return a.persistFailure(ctx, in, "Output schema validation failed: "+schema.Render(issues))
			}
		}
	}

	if !result.Success {
		a.breaker.RecordFailure(in.ProviderSlug)
		a.refund(ctx, in, cost, "Refund: failed enrichment from "+in.ProviderSlug)
		a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "failed")
		reason := result.Error
		if reason == "" {
			reason = "provider returned failure"
		}
		return a.persistFailure(ctx, in, reason)
	}

	a.breaker.RecordSuccess(in.ProviderSlug)

	if !result.IsComplete {
		// The provider answered but could not fill the field; the debit
		// is returned and the next waterfall provider gets its turn.
		a.refund(ctx, in, cost, "Refund: partial result from "+in.ProviderSlug)
		a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "partial")
		return a.persistRecord(ctx, &Record{
			ID:             uuid.New(),
			JobID:          in.JobID,
			WorkspaceID:    in.WorkspaceID,
			InputData:      in.InputData,
			OutputData:     result.Data,
			ProviderSlug:   in.ProviderSlug,
			Status:         RecordSuccess,
			IdempotencyKey: in.IdempotencyKey,
			CreatedAt:      time.Now().UTC(),
		})
	}

	a.metrics.RecordEnrichment(ctx, in.ProviderSlug, "success")
	txID := debit.ID
	return a.persistRecord(ctx, &Record{
		ID:                  uuid.New(),
		JobID:               in.JobID,
		WorkspaceID:         in.WorkspaceID,
		InputData:           in.InputData,
		OutputData:          result.Data,
		ProviderSlug:        in.ProviderSlug,
		CreditsConsumed:     cost,
		Status:              RecordSuccess,
		IdempotencyKey:      in.IdempotencyKey,
		CreditTransactionID: &txID,
		CreatedAt:           time.Now().UTC(),
	})
}

// UpdateJobStatus writes the job's status and counters.
func (a *Activities) UpdateJobStatus(ctx context.Context, u StatusUpdate) error {
	if err := a.store.UpdateJobStatus(ctx, u.JobID, u.Status, u.CompletedRecords, u.FailedRecords); err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return nil
}

// DeliverWebhook emits the job's terminal event to every matching
// subscription. Delivery failures stay inside the deliverer.
func (a *Activities) DeliverWebhook(ctx context.Context, in WebhookInput) error {
	event := "job." + string(in.Status)
	a.metrics.RecordWebhook(ctx, event)
	a.deliverer.Deliver(ctx, in.WorkspaceID, webhooks.Event{
		Event:       event,
		JobID:       in.JobID,
		WorkspaceID: in.WorkspaceID,
		Status:      string(in.Status),
		Summary:     in.Summary,
		Timestamp:   time.Now().UTC(),
	})
	return nil
}

// refund compensates a debit after a failed attempt. A refund that itself
// fails is logged and swallowed: failing the activity here would re-run the
// provider call on retry and double-charge the workspace.
func (a *Activities) refund(ctx context.Context, in EnrichInput, amount int64, reason string) {
	if _, err := a.ledger.AddCredits(ctx, in.WorkspaceID, amount, reason); err != nil {
		a.logger.ErrorContext(ctx, "credit refund failed",
			"workspace_id", in.WorkspaceID.String(),
			"job_id", in.JobID.String(),
			"provider", in.ProviderSlug,
			"amount", amount,
			"error", err,
		)
		return
	}
	a.metrics.RecordCreditTransaction(ctx, "refund")
}

func (a *Activities) persistFailure(ctx context.Context, in EnrichInput, reason string) (*EnrichOutput, error) {
	return a.persistRecord(ctx, &Record{
		ID:             uuid.New(),
		JobID:          in.JobID,
		WorkspaceID:    in.WorkspaceID,
		InputData:      in.InputData,
		ProviderSlug:   in.ProviderSlug,
		Status:         RecordFailed,
		ErrorReason:    reason,
		IdempotencyKey: in.IdempotencyKey,
		CreatedAt:      time.Now().UTC(),
	})
}

func (a *Activities) persistRecord(ctx context.Context, rec *Record) (*EnrichOutput, error) {
	stored, err := a.store.InsertRecord(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("persist record: %w", err)
	}
	return outputFromRecord(stored), nil
}

// outputFromRecord rebuilds the activity result from a persisted row.
// Complete successes always carry a positive debit, so creditsConsumed
// doubles as the completeness marker on replay.
func outputFromRecord(rec *Record) *EnrichOutput {
	return &EnrichOutput{
		Success:         rec.Status == RecordSuccess,
		Data:            rec.OutputData,
		IsComplete:      rec.Status == RecordSuccess && rec.CreditsConsumed > 0,
		ProviderSlug:    rec.ProviderSlug,
		CreditsConsumed: rec.CreditsConsumed,
		Error:           rec.ErrorReason,
	}
}
