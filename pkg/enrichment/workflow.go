package enrichment

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/webhooks"
)

// Activity options per the activity contract table.
var (
	enrichOptions = workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
	statusOptions = workflow.ActivityOptions{
		StartToCloseTimeout: 10 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
	webhookOptions = workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	}
)

// EnrichmentWorkflow drives one job: batches in order, records in order,
// fields in order, providers in waterfall order. All external state flows
// through activities; everything here must stay deterministic.
func EnrichmentWorkflow(ctx workflow.Context, input WorkflowInput) error {
	logger := workflow.GetLogger(ctx)
	var a *Activities

	total := 0
	for _, batch := range input.Batches {
		total += len(batch)
	}

	statusCtx := workflow.WithActivityOptions(ctx, statusOptions)
	if err := workflow.ExecuteActivity(statusCtx, a.UpdateJobStatus, StatusUpdate{
		JobID:  input.JobID,
		Status: StatusRunning,
	}).Get(statusCtx, nil); err != nil && !temporal.IsCanceledError(err) {
		return fmt.Errorf("mark job running: %w", err)
	}

	enrichCtx := workflow.WithActivityOptions(ctx, enrichOptions)

	var (
		cancelled   bool
		completed   int
		failed      int
		creditsUsed int64
		globalIdx   int
	)

batches:
	for _, batch := range input.Batches {
		for localIdx, record := range batch {
			if ctx.Err() != nil {
				cancelled = true
				break batches
			}
			recordIndex := globalIdx + localIdx
			allSatisfied := true

			for _, field := range input.RequestedFields {
				slugs := input.FieldProviders[field]
				if len(slugs) == 0 {
					allSatisfied = false
					continue
				}

				satisfied := false
				for _, slug := range slugs {
					if ctx.Err() != nil {
						cancelled = true
						break
					}
					var out EnrichOutput
					err := workflow.ExecuteActivity(enrichCtx, a.EnrichRecord, EnrichInput{
						JobID:          input.JobID,
						WorkspaceID:    input.WorkspaceID,
						RecordIndex:    recordIndex,
						InputData:      record,
						FieldName:      field,
						ProviderSlug:   slug,
						IdempotencyKey: fmt.Sprintf("%s:%d:%s:%s", input.JobID, recordIndex, field, slug),
					}).Get(enrichCtx, &out)
					if err != nil {
						if temporal.IsCanceledError(err) || ctx.Err() != nil {
							cancelled = true
							break
						}
						logger.Warn("enrichment attempt failed, falling through",
							"recordIndex", recordIndex, "field", field, "provider", slug, "error", err)
						continue
					}
					if out.Success && out.IsComplete {
						creditsUsed += out.CreditsConsumed
						satisfied = true
						break
					}
				}
				if cancelled {
					break batches
				}
				if !satisfied {
					allSatisfied = false
				}
			}

			if allSatisfied {
				completed++
			} else {
				failed++
			}
		}
		globalIdx += len(batch)
	}

	status := finalStatus(cancelled, total, completed, failed)

	// After cancellation the original context refuses new activities; the
	// terminal status and webhook still have to go out.
	finishCtx := ctx
	if ctx.Err() != nil {
		finishCtx, _ = workflow.NewDisconnectedContext(ctx)
	}

	if err := workflow.ExecuteActivity(workflow.WithActivityOptions(finishCtx, statusOptions), a.UpdateJobStatus, StatusUpdate{
		JobID:            input.JobID,
		Status:           status,
		CompletedRecords: completed,
		FailedRecords:    failed,
	}).Get(finishCtx, nil); err != nil {
		return fmt.Errorf("write final status: %w", err)
	}

	if err := workflow.ExecuteActivity(workflow.WithActivityOptions(finishCtx, webhookOptions), a.DeliverWebhook, WebhookInput{
		JobID:       input.JobID,
		WorkspaceID: input.WorkspaceID,
		Status:      status,
		Summary: webhooks.Summary{
			TotalRecords:     total,
			CompletedRecords: completed,
			FailedRecords:    failed,
			CreditsConsumed:  creditsUsed,
		},
	}).Get(finishCtx, nil); err != nil {
		logger.Warn("webhook delivery activity failed", "jobId", input.JobID.String(), "error", err)
	}

	logger.Info("enrichment workflow finished",
		"jobId", input.JobID.String(), "status", string(status),
		"completed", completed, "failed", failed)
	return nil
}

func finalStatus(cancelled bool, total, completed, failed int) JobStatus {
	switch {
	case cancelled:
		return StatusCancelled
	case failed == 0 && completed == total:
		return StatusCompleted
	case completed == 0:
		return StatusFailed
	default:
		return StatusPartiallyCompleted
	}
}
