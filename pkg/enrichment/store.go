package enrichment

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/apperr"
)

// Store persists jobs and enrichment records.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(db *sql.DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger.With("component", "enrichment_store")}
}

// Init creates the job and record tables.
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS enrichment_jobs (
			id UUID PRIMARY KEY,
			workspace_id UUID NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			requested_fields JSONB NOT NULL,
			waterfall_config JSONB,
			total_records INT NOT NULL,
			completed_records INT NOT NULL DEFAULT 0,
			failed_records INT NOT NULL DEFAULT 0,
			estimated_credits BIGINT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			completed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enrichment_jobs_workspace
			ON enrichment_jobs (workspace_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS enrichment_records (
			id UUID PRIMARY KEY,
			job_id UUID NOT NULL,
			workspace_id UUID NOT NULL,
			input_data JSONB NOT NULL,
			output_data JSONB,
			provider_slug TEXT NOT NULL,
			credits_consumed BIGINT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_reason TEXT,
			idempotency_key TEXT NOT NULL UNIQUE,
			credit_transaction_id UUID,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_enrichment_records_job
			ON enrichment_records (job_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("enrichment: init schema: %w", err)
		}
	}
	return nil
}

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job *Job) error {
	fields, err := json.Marshal(job.RequestedFields)
	if err != nil {
		return fmt.Errorf("enrichment: marshal fields: %w", err)
	}
	var waterfall any
	if len(job.Waterfall) > 0 {
		raw, err := json.Marshal(job.Waterfall)
		if err != nil {
			return fmt.Errorf("enrichment: marshal waterfall: %w", err)
		}
		waterfall = raw
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_jobs (
			id, workspace_id, status, requested_fields, waterfall_config,
			total_records, completed_records, failed_records,
			estimated_credits, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		job.ID, job.WorkspaceID, job.Status, fields, waterfall,
		job.TotalRecords, job.CompletedRecords, job.FailedRecords,
		job.EstimatedCredits, job.CreatedBy, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enrichment: insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, workspace_id, status, requested_fields, waterfall_config,
	total_records, completed_records, failed_records, estimated_credits,
	created_by, created_at, updated_at, completed_at`

// Job looks up one job scoped to its workspace.
func (s *Store) Job(ctx context.Context, workspaceID, jobID uuid.UUID) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM enrichment_jobs WHERE id = $1 AND workspace_id = $2`,
		jobID, workspaceID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("enrichment job not found")
	}
	return job, err
}

// Jobs lists a workspace's jobs, newest first.
func (s *Store) Jobs(ctx context.Context, workspaceID uuid.UUID, page, limit int) ([]Job, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM enrichment_jobs
		 WHERE workspace_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		workspaceID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("enrichment: list jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus writes status and counters. Terminal statuses also stamp
// completed_at.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status JobStatus, completed, failed int) error {
	now := time.Now().UTC()
	var (
		res sql.Result
		err error
	)
	if status.Terminal() {
		res, err = s.db.ExecContext(ctx, `
			UPDATE enrichment_jobs
			SET status = $1, completed_records = $2, failed_records = $3,
			    updated_at = $4, completed_at = $4
			WHERE id = $5`,
			status, completed, failed, now, jobID,
		)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE enrichment_jobs
			SET status = $1, completed_records = $2, failed_records = $3, updated_at = $4
			WHERE id = $5`,
			status, completed, failed, now, jobID,
		)
	}
	if err != nil {
		return fmt.Errorf("enrichment: update job status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("enrichment: update job status: %w", err)
	}
	if affected == 0 {
		return apperr.NotFound("enrichment job not found")
	}
	return nil
}

const recordColumns = `id, job_id, workspace_id, input_data, output_data, provider_slug,
	credits_consumed, status, error_reason, idempotency_key, credit_transaction_id, created_at`

// InsertRecord persists an attempt outcome. The idempotency key is unique;
// a concurrent duplicate is a no-op and the existing row wins.
func (s *Store) InsertRecord(ctx context.Context, rec *Record) (*Record, error) {
	input, err := json.Marshal(rec.InputData)
	if err != nil {
		return nil, fmt.Errorf("enrichment: marshal input: %w", err)
	}
	var output any
	if rec.OutputData != nil {
		raw, err := json.Marshal(rec.OutputData)
		if err != nil {
			return nil, fmt.Errorf("enrichment: marshal output: %w", err)
		}
		output = raw
	}
	var errorReason any
	if rec.ErrorReason != "" {
		errorReason = rec.ErrorReason
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enrichment_records (
			id, job_id, workspace_id, input_data, output_data, provider_slug,
			credits_consumed, status, error_reason, idempotency_key,
			credit_transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		rec.ID, rec.JobID, rec.WorkspaceID, input, output, rec.ProviderSlug,
		rec.CreditsConsumed, rec.Status, errorReason, rec.IdempotencyKey,
		rec.CreditTransactionID, rec.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("enrichment: insert record: %w", err)
	}
	stored, err := s.RecordByKey(ctx, rec.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("enrichment: record %s not visible after insert", rec.IdempotencyKey)
	}
	return stored, nil
}

// RecordByKey returns the record for an idempotency key, or nil when no
// attempt has been persisted yet.
func (s *Store) RecordByKey(ctx context.Context, key string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM enrichment_records WHERE idempotency_key = $1`,
		key,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// Record looks up one record scoped to its workspace.
func (s *Store) Record(ctx context.Context, workspaceID, recordID uuid.UUID) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM enrichment_records WHERE id = $1 AND workspace_id = $2`,
		recordID, workspaceID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("enrichment record not found")
	}
	return rec, err
}

// Records lists a job's records in insertion order.
func (s *Store) Records(ctx context.Context, workspaceID, jobID uuid.UUID, page, limit int) ([]Record, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM enrichment_records
		 WHERE job_id = $1 AND workspace_id = $2
		 ORDER BY created_at ASC LIMIT $3 OFFSET $4`,
		jobID, workspaceID, limit, (page-1)*limit,
	)
	if err != nil {
		return nil, fmt.Errorf("enrichment: list records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job         Job
		fields      []byte
		waterfall   []byte
		completedAt sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.WorkspaceID, &job.Status, &fields, &waterfall,
		&job.TotalRecords, &job.CompletedRecords, &job.FailedRecords,
		&job.EstimatedCredits, &job.CreatedBy, &job.CreatedAt, &job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(fields, &job.RequestedFields); err != nil {
		return nil, fmt.Errorf("enrichment: decode fields: %w", err)
	}
	if len(waterfall) > 0 {
		if err := json.Unmarshal(waterfall, &job.Waterfall); err != nil {
			return nil, fmt.Errorf("enrichment: decode waterfall: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec         Record
		input       []byte
		output      []byte
		errorReason sql.NullString
		txID        sql.Null[uuid.UUID]
	)
	err := row.Scan(
		&rec.ID, &rec.JobID, &rec.WorkspaceID, &input, &output, &rec.ProviderSlug,
		&rec.CreditsConsumed, &rec.Status, &errorReason, &rec.IdempotencyKey,
		&txID, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(input, &rec.InputData); err != nil {
		return nil, fmt.Errorf("enrichment: decode input: %w", err)
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &rec.OutputData); err != nil {
			return nil, fmt.Errorf("enrichment: decode output: %w", err)
		}
	}
	if errorReason.Valid {
		rec.ErrorReason = errorReason.String
	}
	if txID.Valid {
		id := txID.V
		rec.CreditTransactionID = &id
	}
	return &rec, nil
}
