package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Mino1214/juncom-server/pkg/database"
	apperrors "github.com/Mino1214/juncom-server/pkg/errors"
)

// DefaultMaxAttempts is the retry budget applied when Enqueue is called
// without WithMaxAttempts.
const DefaultMaxAttempts = 5

// DefaultClaimTimeout is how long a job may sit in running before it is
// presumed orphaned by a crashed worker and eligible for reclaim.
const DefaultClaimTimeout = 5 * time.Minute

// retryBackoff returns the delay before the next attempt. Exponential from
// 1s, capped at 60s: 1s, 2s, 4s, 8s, ...
func retryBackoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	// Clamp the exponent so large attempt counts never shift past the
	// cap (or overflow the duration).
	if attempts > 7 {
		attempts = 7
	}
	backoff := time.Second << (attempts - 1)
	if backoff > time.Minute {
		backoff = time.Minute
	}
	return backoff
}

// PostgresQueue is the durable jobs-table implementation of Queue. Ready jobs
// are claimed with SELECT ... FOR UPDATE SKIP LOCKED so multiple worker
// processes can poll the same table without double-delivery.
type PostgresQueue struct {
	pool         database.DBTX
	maxAttempts  int
	claimTimeout time.Duration
}

// NewPostgresQueue creates a jobs-table queue. maxAttempts <= 0 falls back to
// DefaultMaxAttempts.
func NewPostgresQueue(pool database.DBTX, maxAttempts int) *PostgresQueue {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &PostgresQueue{pool: pool, maxAttempts: maxAttempts, claimTimeout: DefaultClaimTimeout}
}

// Enqueue persists a new job and returns its id.
func (q *PostgresQueue) Enqueue(ctx context.Context, kind string, payload any, opts ...Option) (string, error) {
	options := enqueueOptions{maxAttempts: q.maxAttempts}
	for _, opt := range opts {
		opt(&options)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	runAt := now.Add(options.delay)

	query := `
		INSERT INTO jobs (id, kind, payload, status, run_at, attempts, max_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $7)`

	_, err = q.pool.Exec(ctx, query, id, kind, payloadBytes, JobStatusQueued, runAt, options.maxAttempts, now)
	if err != nil {
		return "", fmt.Errorf("enqueue %s job: %w", kind, err)
	}

	JobsEnqueued.WithLabelValues(kind).Inc()
	return id, nil
}

// GetJob returns the job with the given id.
func (q *PostgresQueue) GetJob(ctx context.Context, id string) (*Job, error) {
	query := `
		SELECT id, kind, payload, status, run_at, attempts, max_attempts, last_error, result, created_at, updated_at
		FROM jobs
		WHERE id = $1`

	var j Job
	err := q.pool.QueryRow(ctx, query, id).Scan(
		&j.ID,
		&j.Kind,
		&j.Payload,
		&j.Status,
		&j.RunAt,
		&j.Attempts,
		&j.MaxAttempts,
		&j.LastError,
		&j.Result,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("job", id)
		}
		return nil, fmt.Errorf("get job: %w", err)
	}

	return &j, nil
}

// Claim atomically takes the next ready job, marks it running, and increments
// its attempt counter. Returns nil when no job is ready. SKIP LOCKED means
// concurrent claimers each get a different row instead of blocking.
//
// A running row whose updated_at is older than the claim timeout was left
// behind by a worker that died mid-handler; such rows are reclaimed like
// ready jobs. Each reclaim consumes an attempt, and a stale row with no
// attempts left is dead-lettered instead of re-run.
func (q *PostgresQueue) Claim(ctx context.Context) (*Job, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	claimQuery := `
		SELECT id, kind, payload, status, run_at, attempts, max_attempts, last_error, result, created_at, updated_at
		FROM jobs
		WHERE (status = $1 AND run_at <= NOW())
		   OR (status = $2 AND updated_at <= $3)
		ORDER BY run_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED`

	staleBefore := time.Now().UTC().Add(-q.claimTimeout)

	var j Job
	err = tx.QueryRow(ctx, claimQuery, JobStatusQueued, JobStatusRunning, staleBefore).Scan(
		&j.ID,
		&j.Kind,
		&j.Payload,
		&j.Status,
		&j.RunAt,
		&j.Attempts,
		&j.MaxAttempts,
		&j.LastError,
		&j.Result,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if j.Status == JobStatusRunning && j.Attempts >= j.MaxAttempts {
		deadQuery := `
			UPDATE jobs
			SET status = $1, last_error = $2, updated_at = NOW()
			WHERE id = $3`

		if _, err := tx.Exec(ctx, deadQuery, JobStatusDead, "claim expired with no attempts left", j.ID); err != nil {
			return nil, fmt.Errorf("dead-letter stale job: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit claim transaction: %w", err)
		}
		JobsDead.WithLabelValues(j.Kind).Inc()
		return nil, nil
	}

	updateQuery := `
		UPDATE jobs
		SET status = $1, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $2`

	if _, err := tx.Exec(ctx, updateQuery, JobStatusRunning, j.ID); err != nil {
		return nil, fmt.Errorf("mark job running: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim transaction: %w", err)
	}

	j.Status = JobStatusRunning
	j.Attempts++
	return &j, nil
}

// Complete marks the job done and stores its result (may be nil).
func (q *PostgresQueue) Complete(ctx context.Context, id string, result any) error {
	var resultBytes []byte
	if result != nil {
		var err error
		resultBytes, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal job result: %w", err)
		}
	}

	query := `
		UPDATE jobs
		SET status = $1, result = $2, updated_at = NOW()
		WHERE id = $3`

	if _, err := q.pool.Exec(ctx, query, JobStatusDone, resultBytes, id); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}

	return nil
}

// Fail records a handler failure. Permanent errors fail the job immediately.
// Transient errors reschedule with exponential backoff until the retry budget
// is exhausted, then dead-letter the job.
func (q *PostgresQueue) Fail(ctx context.Context, job *Job, handlerErr error) error {
	switch {
	case IsPermanent(handlerErr):
		return q.moveTo(ctx, job, JobStatusFailed, handlerErr)
	case job.Attempts >= job.MaxAttempts:
		return q.moveTo(ctx, job, JobStatusDead, handlerErr)
	default:
		runAt := time.Now().UTC().Add(retryBackoff(job.Attempts))
		query := `
			UPDATE jobs
			SET status = $1, run_at = $2, last_error = $3, updated_at = NOW()
			WHERE id = $4`
		if _, err := q.pool.Exec(ctx, query, JobStatusQueued, runAt, handlerErr.Error(), job.ID); err != nil {
			return fmt.Errorf("reschedule job: %w", err)
		}
		JobsRetried.WithLabelValues(job.Kind).Inc()
		return nil
	}
}

func (q *PostgresQueue) moveTo(ctx context.Context, job *Job, status string, handlerErr error) error {
	query := `
		UPDATE jobs
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3`

	if _, err := q.pool.Exec(ctx, query, status, handlerErr.Error(), job.ID); err != nil {
		return fmt.Errorf("mark job %s: %w", status, err)
	}

	if status == JobStatusDead {
		JobsDead.WithLabelValues(job.Kind).Inc()
	} else {
		JobsFailed.WithLabelValues(job.Kind).Inc()
	}
	return nil
}
