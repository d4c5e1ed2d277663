package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cascade/job"
)

// Timeout returns middleware that enforces an execution deadline. perType
// overrides def for individual job types; a zero duration disables the
// deadline. When the deadline passes the handler context is cancelled and
// the resulting context.DeadlineExceeded is classified as retryable.
//
// Keep deadlines below the lease duration, otherwise another worker may
// reclaim the job while it is still running here.
func Timeout(logger *slog.Logger, def time.Duration, perType map[string]time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		d := def
		if override, ok := perType[j.JobType]; ok {
			d = override
		}
		if d > 0 {
			logger.Debug("job timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
