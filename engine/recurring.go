package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/command"
	"github.com/xraph/cascade/cron"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// RegisterRecurring schedules cmd to run on frequency. One recurring job
// exists per job type: registering again while it is active returns the
// existing job. The first run is at the next occurrence after now. Inline
// commands cannot recur and return cascade.ErrInlineOnly.
func (eng *Engine[D]) RegisterRecurring(ctx context.Context, cmd command.Command, frequency string) (id.JobID, error) {
	jobType := cmd.JobType()
	if !eng.commands.Has(jobType) {
		return id.Nil, fmt.Errorf("%w: %q", cascade.ErrUnknownCommand, jobType)
	}
	if cmd.ExecutionMode() == command.Inline {
		return id.Nil, fmt.Errorf("%w: %q is inline", cascade.ErrInlineOnly, jobType)
	}
	first, err := cron.Next(frequency, eng.queue.Now())
	if err != nil {
		return id.Nil, err
	}

	spec := cmd.JobSpec().With(
		job.WithIdempotencyKey(cron.RecurringKey(jobType)),
		job.WithFrequency(frequency),
		job.WithRunAt(first),
	)
	jobID, err := eng.enqueue(ctx, cmd, spec)
	if err != nil {
		return id.Nil, err
	}

	eng.logger.Info("recurring job registered",
		slog.String("job_type", jobType),
		slog.String("frequency", cron.Normalize(frequency)),
		slog.String("job_id", jobID.String()),
	)
	return jobID, nil
}

// DisableRecurring stops claims of the recurring job for jobType. Its
// history is kept and EnableRecurring resumes it.
func (eng *Engine[D]) DisableRecurring(ctx context.Context, jobType string) error {
	return eng.setRecurringDisabled(ctx, jobType, true)
}

// EnableRecurring resumes a disabled recurring job.
func (eng *Engine[D]) EnableRecurring(ctx context.Context, jobType string) error {
	return eng.setRecurringDisabled(ctx, jobType, false)
}

func (eng *Engine[D]) setRecurringDisabled(ctx context.Context, jobType string, disabled bool) error {
	j, err := eng.store.GetJobByKey(ctx, cron.RecurringKey(jobType))
	if errors.Is(err, job.ErrJobNotFound) {
		return fmt.Errorf("%w: %q", cascade.ErrRecurringNotFound, jobType)
	}
	if err != nil {
		return err
	}
	return eng.store.SetJobDisabled(ctx, j.ID, disabled)
}
