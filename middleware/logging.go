package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cascade/job"
)

// Logging returns middleware that logs job start and completion.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		logger.Debug("job started",
			slog.String("job_type", j.JobType),
			slog.String("job_id", j.ID.String()),
			slog.Int("attempt", j.Attempt()),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Warn("job failed",
				slog.String("job_type", j.JobType),
				slog.String("job_id", j.ID.String()),
				slog.Int("attempt", j.Attempt()),
				slog.String("error_kind", string(job.Classify(err))),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("job completed",
				slog.String("job_type", j.JobType),
				slog.String("job_id", j.ID.String()),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
