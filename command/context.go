package command

import (
	"context"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// JobInfo describes the job a background handler is running for.
type JobInfo struct {
	ID          id.JobID
	JobType     string
	Attempt     int
	MaxRetries  int
	Version     int
	ReferenceID string
}

// LastAttempt reports whether a retryable failure now would dead-letter.
func (i JobInfo) LastAttempt() bool { return i.Attempt > i.MaxRetries }

type jobInfoKey struct{}

// WithJob attaches j's metadata to ctx.
func WithJob(ctx context.Context, j *job.Job) context.Context {
	return context.WithValue(ctx, jobInfoKey{}, JobInfo{
		ID:          j.ID,
		JobType:     j.JobType,
		Attempt:     j.Attempt(),
		MaxRetries:  j.MaxRetries,
		Version:     max(j.Version, 1),
		ReferenceID: j.ReferenceID,
	})
}

// JobFrom returns the job metadata of a background execution. Inline
// executions report false.
func JobFrom(ctx context.Context) (JobInfo, bool) {
	info, ok := ctx.Value(jobInfoKey{}).(JobInfo)
	return info, ok
}
