package enrichment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// DefaultTaskQueue is the queue enrichment workers poll when the
// configuration does not override it.
const DefaultTaskQueue = "enrichment"

// WorkflowID derives the deterministic workflow id for a job.
func WorkflowID(jobID uuid.UUID) string {
	return "enrichment-job-" + jobID.String()
}

// TemporalClient runs enrichment workflows on a Temporal server.
type TemporalClient struct {
	client    client.Client
	taskQueue string
}

func NewTemporalClient(c client.Client, taskQueue string) *TemporalClient {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &TemporalClient{client: c, taskQueue: taskQueue}
}

// StartEnrichment starts the workflow for a job. The workflow id embeds the
// job id, so a double start of the same job is rejected by the server.
func (t *TemporalClient) StartEnrichment(ctx context.Context, input WorkflowInput) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowID(input.JobID),
		TaskQueue: t.taskQueue,
	}
	if _, err := t.client.ExecuteWorkflow(ctx, opts, EnrichmentWorkflow, input); err != nil {
		return fmt.Errorf("start workflow %s: %w", opts.ID, err)
	}
	return nil
}

// CancelEnrichment requests cancellation of a job's workflow.
func (t *TemporalClient) CancelEnrichment(ctx context.Context, jobID uuid.UUID) error {
	if err := t.client.CancelWorkflow(ctx, WorkflowID(jobID), ""); err != nil {
		return fmt.Errorf("cancel workflow %s: %w", WorkflowID(jobID), err)
	}
	return nil
}

// Register wires the workflow and its activities onto a worker.
func Register(w worker.Worker, a *Activities) {
	w.RegisterWorkflow(EnrichmentWorkflow)
	w.RegisterActivity(a)
}
