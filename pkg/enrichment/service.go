package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/credits"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/normalize"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/providers"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/schema"
)

// maxBatchSize caps how many records one workflow batch carries.
const maxBatchSize = 1000

// WorkflowClient starts and cancels enrichment workflows. Tests substitute
// a fake; production wires the Temporal-backed implementation.
type WorkflowClient interface {
	StartEnrichment(ctx context.Context, input WorkflowInput) error
	CancelEnrichment(ctx context.Context, jobID uuid.UUID) error
}

// Service is the job intake and read surface.
type Service struct {
	store    *Store
	registry *providers.Registry
	ledger   *credits.Ledger
	flow     WorkflowClient
	logger   *slog.Logger
}

func NewService(store *Store, registry *providers.Registry, ledger *credits.Ledger, flow WorkflowClient, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		registry: registry,
		ledger:   ledger,
		flow:     flow,
		logger:   logger.With("component", "enrichment"),
	}
}

// CreateJob validates the request, prices it, persists the job, and starts
// the workflow. The job returns in pending; the workflow moves it on.
func (s *Service) CreateJob(ctx context.Context, workspaceID uuid.UUID, userID string, req JobRequest) (*Job, error) {
	if len(req.Records) == 0 {
		return nil, apperr.Validation("records must not be empty")
	}
	if len(req.Fields) == 0 {
		return nil, apperr.Validation("fields must not be empty")
	}

	for _, field := range req.Fields {
		if len(s.registry.ForField(field)) == 0 {
			return nil, apperr.Validationf("no providers support field %q", field)
		}
	}
	if len(req.Waterfall) > 0 {
		if err := s.registry.ValidateSlugs(req.Waterfall.Slugs()); err != nil {
			return nil, err
		}
	}

	records := make([]map[string]any, len(req.Records))
	for i, rec := range req.Records {
		records[i] = normalize.Record(rec)
	}

	fieldProviders := s.resolveFieldProviders(req.Fields, req.Waterfall)
	if err := s.validateRecords(records, req.Fields, fieldProviders); err != nil {
		return nil, err
	}

	estimate, err := s.registry.EstimateCredits(len(records), req.Fields, req.Waterfall)
	if err != nil {
		return nil, err
	}

	billing, err := s.ledger.Billing(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if billing.CreditBalance < estimate {
		return nil, apperr.InsufficientCredits(fmt.Sprintf(
			"insufficient credits: balance %d, estimated %d", billing.CreditBalance, estimate))
	}

	now := time.Now().UTC()
	job := &Job{
		ID:               uuid.New(),
		WorkspaceID:      workspaceID,
		Status:           StatusPending,
		RequestedFields:  req.Fields,
		Waterfall:        req.Waterfall,
		TotalRecords:     len(records),
		EstimatedCredits: estimate,
		CreatedBy:        userID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	input := WorkflowInput{
		JobID:           job.ID,
		WorkspaceID:     workspaceID,
		Batches:         splitBatches(records, maxBatchSize),
		RequestedFields: req.Fields,
		Waterfall:       req.Waterfall,
		FieldProviders:  fieldProviders,
	}
	if err := s.flow.StartEnrichment(ctx, input); err != nil {
		if uerr := s.store.UpdateJobStatus(ctx, job.ID, StatusFailed, 0, 0); uerr != nil {
			s.logger.ErrorContext(ctx, "failed to mark unstartable job",
				"job_id", job.ID.String(), "error", uerr)
		}
		return nil, apperr.Internal("failed to start enrichment workflow", err)
	}

	s.logger.InfoContext(ctx, "enrichment job created",
		"job_id", job.ID.String(),
		"workspace_id", workspaceID.String(),
		"total_records", job.TotalRecords,
		"estimated_credits", estimate,
	)
	return job, nil
}

// CancelJob signals the workflow and marks the job cancelled. Cancelling a
// job that already reached a terminal status is a conflict.
func (s *Service) CancelJob(ctx context.Context, workspaceID, jobID uuid.UUID) (*Job, error) {
	job, err := s.store.Job(ctx, workspaceID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.Terminal() {
		return nil, apperr.Conflict(fmt.Sprintf("job is already %s", job.Status))
	}

	if err := s.flow.CancelEnrichment(ctx, jobID); err != nil {
		// The workflow may have just finished on its own; the row still
		// gets marked per the caller's intent.
		s.logger.WarnContext(ctx, "workflow cancellation failed",
			"job_id", jobID.String(), "error", err)
	}
	if err := s.store.UpdateJobStatus(ctx, jobID, StatusCancelled, job.CompletedRecords, job.FailedRecords); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "enrichment job cancelled",
		"job_id", jobID.String(), "workspace_id", workspaceID.String())
	job.Status = StatusCancelled
	return job, nil
}

// Job returns one job.
func (s *Service) Job(ctx context.Context, workspaceID, jobID uuid.UUID) (*Job, error) {
	return s.store.Job(ctx, workspaceID, jobID)
}

// Jobs lists jobs, newest first.
func (s *Service) Jobs(ctx context.Context, workspaceID uuid.UUID, page, limit int) ([]Job, error) {
	return s.store.Jobs(ctx, workspaceID, page, limit)
}

// Record returns one enrichment record.
func (s *Service) Record(ctx context.Context, workspaceID, recordID uuid.UUID) (*Record, error) {
	return s.store.Record(ctx, workspaceID, recordID)
}

// Records lists a job's records.
func (s *Service) Records(ctx context.Context, workspaceID, jobID uuid.UUID, page, limit int) ([]Record, error) {
	return s.store.Records(ctx, workspaceID, jobID, page, limit)
}

// resolveFieldProviders maps each field to its ordered provider slugs: the
// waterfall when configured, otherwise every supporting provider in catalog
// order.
func (s *Service) resolveFieldProviders(fields []string, waterfall providers.Waterfall) map[string][]string {
	out := make(map[string][]string, len(fields))
	for _, field := range fields {
		if entry, ok := waterfall[field]; ok && len(entry.Providers) > 0 {
			out[field] = entry.Providers
			continue
		}
		defs := s.registry.ForField(field)
		slugs := make([]string, 0, len(defs))
		for _, def := range defs {
			slugs = append(slugs, def.Slug)
		}
		out[field] = slugs
	}
	return out
}

// validateRecords checks every record against the input schema of each
// field's first resolved provider.
func (s *Service) validateRecords(records []map[string]any, fields []string, fieldProviders map[string][]string) error {
	for _, field := range fields {
		slugs := fieldProviders[field]
		if len(slugs) == 0 {
			continue
		}
		validator := s.registry.InputValidator(slugs[0])
		if validator == nil {
			continue
		}
		for i, rec := range records {
			if issues := validator.Validate(rec); len(issues) > 0 {
				return apperr.Validationf("Record %d fails validation for provider %s: %s",
					i, slugs[0], schema.Render(issues))
			}
		}
	}
	return nil
}

func splitBatches(records []map[string]any, size int) [][]map[string]any {
	batches := make([][]map[string]any, 0, (len(records)+size-1)/size)
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		batches = append(batches, records[start:end])
	}
	return batches
}
