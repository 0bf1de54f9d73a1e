package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tayler-id/lab-agent-rag/internal/core"
	"github.com/tayler-id/lab-agent-rag/internal/models"
)

func (c *DatabaseClient) EnqueueJob(ctx context.Context, job *models.IngestionJob) error {
	if job == nil {
		return errors.New("nil job")
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	const q = `
		INSERT INTO jobs (id, tenant_id, payload, status, run_after, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', now(), now(), now())
	`
	_, err = c.db.ExecContext(ctx, q, job.ID, job.TenantID, payload)
	return err
}

func (c *DatabaseClient) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	const q = `
		SELECT id, tenant_id, payload, status, error_msg, run_after, lease_owner, lease_expires_at, created_at, updated_at
		FROM jobs WHERE id = $1
	`
	job, err := scanJob(c.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// ClaimNextJob takes an exclusive lease on the oldest claimable job:
// pending, retrying past its backoff, or processing under an expired
// lease (a crashed worker). SKIP LOCKED keeps concurrent pollers from
// contending on the same row.
func (c *DatabaseClient) ClaimNextJob(ctx context.Context, owner string, lease time.Duration) (*models.IngestionJob, error) {
	const q = `
		UPDATE jobs SET
			status = 'processing',
			lease_owner = $1,
			lease_expires_at = now() + make_interval(secs => $2),
			updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending'
			   OR (status = 'retrying' AND run_after <= now())
			   OR (status = 'processing' AND lease_expires_at < now())
			ORDER BY created_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, tenant_id, payload, status, error_msg, run_after, lease_owner, lease_expires_at, created_at, updated_at
	`
	job, err := scanJob(c.db.QueryRowContext(ctx, q, owner, lease.Seconds()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// FinishJob records the outcome of a processing attempt. The write is
// conditional on the caller still holding the lease; a worker that lost
// its lease to a reclaim gets ErrJobNotClaimed and must abandon the job.
func (c *DatabaseClient) FinishJob(ctx context.Context, jobID, owner, status, errMsg string, payload models.JobPayload, runAfter time.Time) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	var after sql.NullTime
	if !runAfter.IsZero() {
		after = sql.NullTime{Time: runAfter, Valid: true}
	}
	const q = `
		UPDATE jobs SET
			status = $3,
			error_msg = $4,
			payload = $5,
			run_after = COALESCE($6, run_after),
			lease_owner = NULL,
			lease_expires_at = NULL,
			updated_at = now()
		WHERE id = $1 AND lease_owner = $2
	`
	res, err := c.db.ExecContext(ctx, q, jobID, owner, status, errMsg, encoded, after)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.ErrJobNotClaimed
	}
	return nil
}

// ResubmitJob moves a terminal job back to pending for another run. The
// payload attempt counter is incremented, not reset, so each resubmit
// stays visible in the job's history.
func (c *DatabaseClient) ResubmitJob(ctx context.Context, jobID string) error {
	const q = `
		UPDATE jobs SET
			status = 'pending',
			error_msg = '',
			run_after = now(),
			lease_owner = NULL,
			lease_expires_at = NULL,
			payload = jsonb_set(payload, '{attempt}', to_jsonb(COALESCE((payload->>'attempt')::int, 0) + 1)),
			updated_at = now()
		WHERE id = $1 AND status IN ('done', 'needs_review', 'failed')
	`
	res, err := c.db.ExecContext(ctx, q, jobID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s not found or not terminal", jobID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.IngestionJob, error) {
	var (
		job     models.IngestionJob
		payload []byte
		owner   sql.NullString
		expires sql.NullTime
	)
	err := row.Scan(
		&job.ID, &job.TenantID, &payload, &job.Status, &job.ErrorMsg,
		&job.RunAfter, &owner, &expires, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &job.Payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
	}
	if owner.Valid {
		job.LeaseOwner = owner.String
	}
	if expires.Valid {
		t := expires.Time
		job.LeaseExpiresAt = &t
	}
	return &job, nil
}
