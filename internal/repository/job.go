package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"chat-lottery-bot/internal/model"
)

// JobRepository persists scheduled jobs for the durable scheduler. It
// implements scheduler.JobStore.
type JobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository creates a new JobRepository instance.
func NewJobRepository(pool *pgxpool.Pool) *JobRepository {
	return &JobRepository{pool: pool}
}

// Create inserts a new job row.
func (r *JobRepository) Create(ctx context.Context, job *model.Job) error {
	const query = `
		INSERT INTO jobs (id, type, payload, execute_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`

	_, err := r.pool.Exec(ctx, query, job.ID, job.Type, job.Payload, job.ExecuteAt, job.Status)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// ListDue returns pending jobs whose execute_at has passed, ordered by
// execute_at ascending for deterministic dispatch.
func (r *JobRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Job, error) {
	const query = `
		SELECT id, type, payload, execute_at, status, created_at
		FROM jobs
		WHERE status = $1 AND execute_at <= $2
		ORDER BY execute_at ASC
	`

	rows, err := r.pool.Query(ctx, query, model.JobStatusPending, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		var job model.Job
		err := rows.Scan(
			&job.ID,
			&job.Type,
			&job.Payload,
			&job.ExecuteAt,
			&job.Status,
			&job.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}

// Claim atomically flips a pending job to running. The conditional update is
// what keeps concurrent pollers from executing the same job twice: only one
// of them observes rows affected = 1.
func (r *JobRepository) Claim(ctx context.Context, id string) (bool, error) {
	const query = `
		UPDATE jobs
		SET status = $2
		WHERE id = $1 AND status = $3
	`

	result, err := r.pool.Exec(ctx, query, id, model.JobStatusRunning, model.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to claim job: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// Delete removes a completed job record.
func (r *JobRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM jobs WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return nil
}

// MarkFailed flips a job to failed so an operator can inspect and re-drive
// it. Failed jobs are never picked up again automatically.
func (r *JobRepository) MarkFailed(ctx context.Context, id string) error {
	const query = `UPDATE jobs SET status = $2 WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, id, model.JobStatusFailed); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}

// ListFailed returns failed jobs for operator inspection.
func (r *JobRepository) ListFailed(ctx context.Context, limit int) ([]*model.Job, error) {
	const query = `
		SELECT id, type, payload, execute_at, status, created_at
		FROM jobs
		WHERE status = $1
		ORDER BY execute_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, model.JobStatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		var job model.Job
		err := rows.Scan(
			&job.ID,
			&job.Type,
			&job.Payload,
			&job.ExecuteAt,
			&job.Status,
			&job.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}

	return jobs, nil
}
