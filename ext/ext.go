// Package ext defines the extension system for cascade.
// Extensions are notified of job, command and event lifecycle moments and
// can react to them: logging, metrics, audit trails, fan-out to brokers.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the moments they care about.
package ext

import (
	"context"
	"time"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// JobEnqueued is called after a new job row is written.
type JobEnqueued interface {
	OnJobEnqueued(ctx context.Context, j *job.Job) error
}

// JobDeduplicated is called when an enqueue matched an active job by
// idempotency key and no row was written.
type JobDeduplicated interface {
	OnJobDeduplicated(ctx context.Context, key string, existing id.JobID) error
}

// JobStarted is called when a worker begins executing a claimed job.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobSucceeded is called after a non-recurring job is marked succeeded.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error
}

// JobRescheduled is called after a recurring job is reborn for its next
// occurrence.
type JobRescheduled interface {
	OnJobRescheduled(ctx context.Context, j *job.Job, nextRunAt time.Time) error
}

// JobRetrying is called when a failed job is scheduled for another attempt.
type JobRetrying interface {
	OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time, err error) error
}

// JobDeadLettered is called when a job fails terminally.
type JobDeadLettered interface {
	OnJobDeadLettered(ctx context.Context, j *job.Job, reason string, err error) error
}

// JobLeaseLost is called when a worker discovers another worker reclaimed
// a job it was still running.
type JobLeaseLost interface {
	OnJobLeaseLost(ctx context.Context, j *job.Job) error
}

// CommandDispatched is called after a command runs inline (jobID is nil)
// or is handed to the queue.
type CommandDispatched interface {
	OnCommandDispatched(ctx context.Context, jobType string, jobID id.JobID) error
}

// EventEmitted is called for every event entering the cascade.
type EventEmitted interface {
	OnEventEmitted(ctx context.Context, env *event.Envelope) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
