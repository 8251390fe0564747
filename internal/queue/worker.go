package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HandlerFunc processes one claimed job. The returned value is stored as the
// job result and surfaced to polling clients. Wrap errors with Permanent to
// fail without retry.
type HandlerFunc func(ctx context.Context, job *Job) (any, error)

// Worker polls the jobs table and dispatches claimed jobs to registered
// handlers by kind.
type Worker struct {
	queue        *PostgresQueue
	logger       *slog.Logger
	handlers     map[string]HandlerFunc
	concurrency  int
	pollInterval time.Duration

	wg sync.WaitGroup
}

// NewWorker creates a worker pool. concurrency <= 0 defaults to 1 and
// pollInterval <= 0 defaults to 250ms.
func NewWorker(queue *PostgresQueue, logger *slog.Logger, concurrency int, pollInterval time.Duration) *Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 250 * time.Millisecond
	}
	return &Worker{
		queue:        queue,
		logger:       logger,
		handlers:     make(map[string]HandlerFunc),
		concurrency:  concurrency,
		pollInterval: pollInterval,
	}
}

// Register binds a handler to a job kind. Must be called before Start.
func (w *Worker) Register(kind string, handler HandlerFunc) {
	w.handlers[kind] = handler
}

// Start launches the worker goroutines. It blocks until ctx is canceled and
// all in-flight jobs have finished.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting queue workers",
		"concurrency", w.concurrency,
		"poll_interval", w.pollInterval.String())

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.run(ctx)
		}()
	}

	w.wg.Wait()
	w.logger.Info("queue workers stopped")
}

func (w *Worker) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain ready jobs before sleeping again.
			for {
				if ctx.Err() != nil {
					return
				}
				job, err := w.queue.Claim(ctx)
				if err != nil {
					w.logger.Error("failed to claim job", "error", err)
					break
				}
				if job == nil {
					break
				}
				w.process(ctx, job)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, job *Job) {
	log := w.logger.With("job_id", job.ID, "job_kind", job.Kind, "attempt", job.Attempts)

	// Bookkeeping writes must land even when shutdown cancels ctx while a
	// handler is in flight; otherwise the row stays running until the claim
	// timeout reclaims it.
	bookCtx := context.WithoutCancel(ctx)

	handler, ok := w.handlers[job.Kind]
	if !ok {
		log.Error("no handler registered for job kind")
		if err := w.queue.Fail(bookCtx, job, Permanent(fmt.Errorf("unknown job kind %q", job.Kind))); err != nil {
			log.Error("failed to mark job failed", "error", err)
		}
		return
	}

	timer := prometheus.NewTimer(JobDuration.WithLabelValues(job.Kind))
	result, err := handler(ctx, job)
	timer.ObserveDuration()

	if err != nil {
		switch {
		case IsPermanent(err):
			log.Warn("job failed permanently", "error", err)
		case job.Attempts >= job.MaxAttempts:
			log.Error("job dead-lettered after exhausting retries", "error", err)
		default:
			log.Warn("job failed, will retry", "error", err)
		}
		if failErr := w.queue.Fail(bookCtx, job, err); failErr != nil {
			log.Error("failed to record job failure", "error", failErr)
		}
		return
	}

	if err := w.queue.Complete(bookCtx, job.ID, result); err != nil {
		log.Error("failed to complete job", "error", err)
		return
	}

	JobsProcessed.WithLabelValues(job.Kind).Inc()
	log.Info("job completed")
}
