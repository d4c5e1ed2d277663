package job

import (
	"context"
	"time"

	"github.com/xraph/cascade/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Status filters by status. Empty means all.
	Status Status
	// JobType filters by type tag. Empty means all.
	JobType string
	// ReferenceID filters by domain reference. Empty means all.
	ReferenceID string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	Status  Status
	JobType string
}

// Store defines the persistence contract for jobs.
//
// All mutating calls other than InsertJob, RequeueJob and SetJobDisabled
// are conditional on the named worker still holding the lease and return
// ErrLeaseLost otherwise. Stores stamp times with their own clock.
type Store interface {
	// InsertJob persists j as pending. When j.IdempotencyKey is set and an
	// active job already holds it, nothing is written and the existing
	// job's ID is returned with inserted=false. The check and the write
	// are atomic.
	InsertJob(ctx context.Context, j *Job) (jobID id.JobID, inserted bool, err error)

	// ClaimJobs atomically leases up to limit claimable jobs to workerID
	// for the lease duration, marking them running and stamping
	// last_run_at. Concurrent callers never receive the same job while its
	// lease is valid.
	ClaimJobs(ctx context.Context, workerID id.WorkerID, limit int, lease time.Duration) ([]*Job, error)

	// HeartbeatJob extends the lease of a running job held by workerID.
	HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error

	// CompleteJob marks a job succeeded and clears its lease.
	CompleteJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error

	// RescheduleJob returns a recurring job to pending at nextRunAt with
	// its retry count, lease and error state cleared.
	RescheduleJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, nextRunAt time.Time) error

	// RetryJob returns a failed job to pending at nextRunAt, increments its
	// retry count and records the error.
	RetryJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, nextRunAt time.Time, errMsg string, kind ErrorKind) error

	// DeadLetterJob moves a job to dead_letter and records why.
	DeadLetterJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, kind ErrorKind, reason string) error

	// ReleaseJob returns a claimed job to pending at runAt without
	// counting an attempt.
	ReleaseJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, runAt time.Time) error

	// RequeueJob moves a dead-lettered job back to pending at runAt with a
	// fresh retry budget. Returns ErrNotDeadLettered for any other status.
	// Requeueing under an idempotency key that another active job now
	// holds returns that job's ID and leaves the dead letter in place.
	RequeueJob(ctx context.Context, jobID id.JobID, runAt time.Time) (id.JobID, error)

	// SetJobDisabled suspends or resumes claims for a job.
	SetJobDisabled(ctx context.Context, jobID id.JobID, disabled bool) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// GetJobByKey returns the active job holding an idempotency key, or
	// ErrJobNotFound.
	GetJobByKey(ctx context.Context, key string) (*Job, error)

	// ListJobs returns jobs ordered by creation time.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)
}
