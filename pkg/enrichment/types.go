// Package enrichment runs multi-provider record enrichment jobs: intake
// and validation, credit-aware scheduling, and the durable workflow that
// walks each record's field waterfall until a provider returns a complete
// result.
package enrichment

import (
	"time"

	"github.com/google/uuid"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/providers"
	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/webhooks"
)

// JobStatus is the job lifecycle state.
type JobStatus string

const (
	StatusPending            JobStatus = "pending"
	StatusRunning            JobStatus = "running"
	StatusCompleted          JobStatus = "completed"
	StatusFailed             JobStatus = "failed"
	StatusPartiallyCompleted JobStatus = "partially_completed"
	StatusCancelled          JobStatus = "cancelled"
)

// Terminal reports whether the status ends the lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusPartiallyCompleted, StatusCancelled:
		return true
	}
	return false
}

// RecordStatus is the outcome of one enrichment attempt.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// Job is one enrichment job. Counters are written by the workflow; the
// intake path only ever creates jobs in pending.
type Job struct {
	ID               uuid.UUID           `json:"id"`
	WorkspaceID      uuid.UUID           `json:"workspaceId"`
	Status           JobStatus           `json:"status"`
	RequestedFields  []string            `json:"requestedFields"`
	Waterfall        providers.Waterfall `json:"waterfallConfig,omitempty"`
	TotalRecords     int                 `json:"totalRecords"`
	CompletedRecords int                 `json:"completedRecords"`
	FailedRecords    int                 `json:"failedRecords"`
	EstimatedCredits int64               `json:"estimatedCredits"`
	CreatedBy        string              `json:"createdBy"`
	CreatedAt        time.Time           `json:"createdAt"`
	UpdatedAt        time.Time           `json:"updatedAt"`
	CompletedAt      *time.Time          `json:"completedAt,omitempty"`
}

// Record is the persisted outcome of one (record, field, provider)
// attempt. IdempotencyKey is unique; re-running an attempt converges on
// the existing row.
type Record struct {
	ID                  uuid.UUID      `json:"id"`
	JobID               uuid.UUID      `json:"jobId"`
	WorkspaceID         uuid.UUID      `json:"workspaceId"`
	InputData           map[string]any `json:"inputData"`
	OutputData          map[string]any `json:"outputData,omitempty"`
	ProviderSlug        string         `json:"providerSlug"`
	CreditsConsumed     int64          `json:"creditsConsumed"`
	Status              RecordStatus   `json:"status"`
	ErrorReason         string         `json:"errorReason,omitempty"`
	IdempotencyKey      string         `json:"idempotencyKey"`
	CreditTransactionID *uuid.UUID     `json:"creditTransactionId,omitempty"`
	CreatedAt           time.Time      `json:"createdAt"`
}

// JobRequest is the intake payload.
type JobRequest struct {
	Records   []map[string]any    `json:"records"`
	Fields    []string            `json:"fields"`
	Waterfall providers.Waterfall `json:"waterfallConfig,omitempty"`
}

// WorkflowInput is everything the workflow needs. FieldProviders is
// precomputed at intake because the workflow cannot reach the registry.
type WorkflowInput struct {
	JobID           uuid.UUID           `json:"jobId"`
	WorkspaceID     uuid.UUID           `json:"workspaceId"`
	Batches         [][]map[string]any  `json:"batches"`
	RequestedFields []string            `json:"requestedFields"`
	Waterfall       providers.Waterfall `json:"waterfallConfig,omitempty"`
	FieldProviders  map[string][]string `json:"fieldProviders"`
}

// EnrichInput is one activity invocation: enrich one field of one record
// through one provider.
type EnrichInput struct {
	JobID          uuid.UUID      `json:"jobId"`
	WorkspaceID    uuid.UUID      `json:"workspaceId"`
	RecordIndex    int            `json:"recordIndex"`
	InputData      map[string]any `json:"inputData"`
	FieldName      string         `json:"fieldName"`
	ProviderSlug   string         `json:"providerSlug"`
	IdempotencyKey string         `json:"idempotencyKey"`
}

// EnrichOutput is the activity result the workflow steers on. A field is
// satisfied only when Success and IsComplete both hold.
type EnrichOutput struct {
	Success         bool           `json:"success"`
	Data            map[string]any `json:"data,omitempty"`
	IsComplete      bool           `json:"isComplete"`
	ProviderSlug    string         `json:"providerSlug"`
	CreditsConsumed int64          `json:"creditsConsumed"`
	Error           string         `json:"error,omitempty"`
}

// StatusUpdate is the UpdateJobStatus activity payload.
type StatusUpdate struct {
	JobID            uuid.UUID `json:"jobId"`
	Status           JobStatus `json:"status"`
	CompletedRecords int       `json:"completedRecords"`
	FailedRecords    int       `json:"failedRecords"`
}

// WebhookInput is the DeliverWebhook activity payload.
type WebhookInput struct {
	JobID       uuid.UUID        `json:"jobId"`
	WorkspaceID uuid.UUID        `json:"workspaceId"`
	Status      JobStatus        `json:"status"`
	Summary     webhooks.Summary `json:"summary"`
}
