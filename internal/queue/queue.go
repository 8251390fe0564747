package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Job kinds processed by the order pipeline.
const (
	KindCreateOrder     = "order.create"
	KindAutoCancelOrder = "order.autocancel"
)

// Job status constants. Jobs move queued -> running -> done. A permanent
// handler failure marks the job failed (user-visible outcome, e.g. sold out);
// exhausting the retry budget on transient failures marks it dead
// (dead-letter, parked for manual inspection).
const (
	JobStatusQueued  = "queued"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
	JobStatusDead    = "dead"
)

// Job is a unit of deferred work persisted in the jobs table.
type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	RunAt       time.Time       `json:"run_at"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	LastError   string          `json:"last_error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsTerminal reports whether the job will never run again.
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusDone || j.Status == JobStatusFailed || j.Status == JobStatusDead
}

// UnmarshalPayload deserializes the job payload into the given target.
func (j *Job) UnmarshalPayload(target any) error {
	return json.Unmarshal(j.Payload, target)
}

// enqueueOptions holds per-job overrides applied by Option values.
type enqueueOptions struct {
	delay       time.Duration
	maxAttempts int
}

// Option customizes a single Enqueue call.
type Option func(*enqueueOptions)

// WithDelay schedules the job to become ready after the given duration
// instead of immediately.
func WithDelay(d time.Duration) Option {
	return func(o *enqueueOptions) {
		o.delay = d
	}
}

// WithMaxAttempts overrides the queue's default retry budget for this job.
func WithMaxAttempts(n int) Option {
	return func(o *enqueueOptions) {
		o.maxAttempts = n
	}
}

// Queue is the durable at-least-once job channel. Enqueue persists a job;
// a Worker claims ready jobs and dispatches them to registered handlers.
type Queue interface {
	// Enqueue persists a new job of the given kind and returns its id.
	// The payload is JSON-marshaled.
	Enqueue(ctx context.Context, kind string, payload any, opts ...Option) (string, error)

	// GetJob returns the job with the given id, including its status and
	// result, for client polling.
	GetJob(ctx context.Context, id string) (*Job, error)
}
