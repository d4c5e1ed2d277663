// Package worker runs background jobs. A Pool claims due jobs from the
// queue, keeps their leases alive and hands each one to an Executor, which
// runs it through middleware and resolves the outcome.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/middleware"
	"github.com/xraph/cascade/queue"
)

// errShutdown is the cancellation cause for jobs interrupted by a forced
// pool shutdown.
var errShutdown = errors.New("cascade: worker shutting down")

// Runner runs the command handler for a claimed job.
type Runner func(ctx context.Context, j *job.Job) error

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMiddleware appends middleware to the execution chain. The first
// middleware is the outermost wrapper.
func WithMiddleware(mws ...middleware.Middleware) ExecutorOption {
	return func(e *Executor) { e.mws = append(e.mws, mws...) }
}

// WithClassifier replaces job.Classify.
func WithClassifier(c job.Classifier) ExecutorOption {
	return func(e *Executor) { e.classify = c }
}

// Executor runs a single job through middleware and the runner, then
// records the outcome on the queue and notifies extensions.
type Executor struct {
	queue      *queue.Queue
	run        Runner
	extensions *ext.Registry
	classify   job.Classifier
	mws        []middleware.Middleware
	chain      middleware.Middleware
	logger     *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(q *queue.Queue, run Runner, extensions *ext.Registry, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		queue:      q,
		run:        run,
		extensions: extensions,
		classify:   job.Classify,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.chain = middleware.Chain(e.mws...)
	return e
}

// Execute runs j and resolves it. The returned error is the handler error,
// job.ErrLeaseLost when the job now belongs to another worker, or a store
// error from resolution. A nil return means the job succeeded.
func (e *Executor) Execute(ctx context.Context, j *job.Job) error {
	e.extensions.EmitJobStarted(ctx, j)

	start := time.Now()
	err := e.chain(ctx, j, func(ctx context.Context) error {
		return e.run(ctx, j)
	})
	elapsed := time.Since(start)

	// Resolution must land even when the execution context was cancelled.
	rctx := context.WithoutCancel(ctx)

	switch cause := context.Cause(ctx); {
	case errors.Is(cause, job.ErrLeaseLost):
		e.leaseLost(rctx, j)
		return job.ErrLeaseLost
	case err != nil && errors.Is(cause, errShutdown):
		if relErr := e.queue.Release(rctx, j, e.queue.Now()); relErr != nil {
			return e.resolveError(rctx, j, relErr)
		}
		e.logger.Info("job released on shutdown",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.JobType),
		)
		return cause
	}

	if err == nil {
		return e.succeed(rctx, j, elapsed)
	}
	return e.fail(rctx, j, err)
}

func (e *Executor) succeed(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	res, err := e.queue.MarkSucceeded(ctx, j)
	if err != nil {
		return e.resolveError(ctx, j, err)
	}
	switch res.Outcome {
	case queue.OutcomeRescheduled:
		e.extensions.EmitJobRescheduled(ctx, j, res.NextRunAt)
	case queue.OutcomeDeadLettered:
		// The recurrence could not be computed.
		e.extensions.EmitJobDeadLettered(ctx, j, res.Reason, nil)
	default:
		e.extensions.EmitJobSucceeded(ctx, j, elapsed)
	}
	return nil
}

func (e *Executor) fail(ctx context.Context, j *job.Job, handlerErr error) error {
	kind := e.classify(handlerErr)
	res, err := e.queue.MarkFailed(ctx, j, handlerErr, kind)
	if err != nil {
		return e.resolveError(ctx, j, err)
	}

	if res.Outcome == queue.OutcomeRetrying {
		e.extensions.EmitJobRetrying(ctx, j, res.Attempt, res.NextRunAt, handlerErr)
		e.logger.Info("job scheduled for retry",
			slog.String("job_id", j.ID.String()),
			slog.String("job_type", j.JobType),
			slog.Int("next_attempt", res.Attempt),
			slog.Int("max_retries", j.MaxRetries),
			slog.Time("next_run_at", res.NextRunAt),
		)
		return handlerErr
	}

	e.extensions.EmitJobDeadLettered(ctx, j, res.Reason, handlerErr)
	e.logger.Warn("job dead-lettered",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.JobType),
		slog.String("reason", res.Reason),
		slog.Int("retry_count", j.RetryCount),
		slog.String("error", handlerErr.Error()),
	)
	return handlerErr
}

func (e *Executor) resolveError(ctx context.Context, j *job.Job, err error) error {
	if errors.Is(err, job.ErrLeaseLost) {
		e.leaseLost(ctx, j)
		return err
	}
	e.logger.Error("failed to resolve job",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.JobType),
		slog.String("error", err.Error()),
	)
	return err
}

func (e *Executor) leaseLost(ctx context.Context, j *job.Job) {
	e.logger.Warn("job lease lost, result discarded",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.JobType),
	)
	e.extensions.EmitJobLeaseLost(ctx, j)
}
