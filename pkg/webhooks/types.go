package webhooks

import (
	"time"

	"github.com/google/uuid"
)

// Subscription is a workspace's registered webhook endpoint.
type Subscription struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspaceId"`
	CallbackURL string    `json:"callbackUrl"`
	EventTypes  []string  `json:"eventTypes"`
	SecretKey   string    `json:"secretKey,omitempty"`
	IsActive    bool      `json:"isActive"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Summary aggregates a finished job's counters for the webhook payload.
type Summary struct {
	TotalRecords     int   `json:"totalRecords"`
	CompletedRecords int   `json:"completedRecords"`
	FailedRecords    int   `json:"failedRecords"`
	CreditsConsumed  int64 `json:"creditsConsumed"`
}

// Event is the webhook payload for a job status change.
type Event struct {
	Event       string    `json:"event"`
	JobID       uuid.UUID `json:"jobId"`
	WorkspaceID uuid.UUID `json:"workspaceId"`
	Status      string    `json:"status"`
	Summary     Summary   `json:"summary"`
	Timestamp   time.Time `json:"timestamp"`
}
