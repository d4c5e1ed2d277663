package dlq

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// ListOpts filters List.
type ListOpts struct {
	JobType string
	Limit   int
	Offset  int
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source used for replay.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service provides dead-letter operations over a job store.
type Service struct {
	store  job.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a dead-letter service.
func NewService(store job.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns dead-lettered jobs, oldest first.
func (s *Service) List(ctx context.Context, opts ListOpts) ([]*Entry, error) {
	jobs, err := s.store.ListJobs(ctx, job.ListOpts{
		Status:  job.StatusDeadLetter,
		JobType: opts.JobType,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
	if err != nil {
		return nil, err
	}
	entries := make([]*Entry, len(jobs))
	for i, j := range jobs {
		entries[i] = entryFrom(j)
	}
	return entries, nil
}

// Get returns one dead-lettered job. It returns job.ErrNotDeadLettered
// when the job exists in another status.
func (s *Service) Get(ctx context.Context, jobID id.JobID) (*Entry, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusDeadLetter {
		return nil, job.ErrNotDeadLettered
	}
	return entryFrom(j), nil
}

// Count returns the number of dead-lettered jobs, optionally for one job
// type.
func (s *Service) Count(ctx context.Context, jobType string) (int64, error) {
	return s.store.CountJobs(ctx, job.CountOpts{Status: job.StatusDeadLetter, JobType: jobType})
}

// Replay returns a dead-lettered job to pending, due now, with its retry
// count and errors cleared. It returns the ID of the job that is active
// for the work afterwards.
func (s *Service) Replay(ctx context.Context, jobID id.JobID) (id.JobID, error) {
	activeID, err := s.store.RequeueJob(ctx, jobID, s.now())
	if err != nil {
		return id.Nil, err
	}
	if activeID.String() != jobID.String() {
		s.logger.Info("dead letter superseded by active job",
			slog.String("job_id", jobID.String()),
			slog.String("active_job_id", activeID.String()),
		)
		return activeID, nil
	}
	s.logger.Info("dead letter replayed", slog.String("job_id", jobID.String()))
	return activeID, nil
}

// ReplayAll replays every dead-lettered job of jobType, or of every type
// when jobType is empty. It stops at the first error and returns how many
// jobs were replayed.
func (s *Service) ReplayAll(ctx context.Context, jobType string) (int, error) {
	const page = 100
	replayed, offset := 0, 0
	for {
		// Replayed jobs leave the dead_letter status and shift the list;
		// superseded ones stay, so the offset only advances past them.
		entries, err := s.List(ctx, ListOpts{JobType: jobType, Limit: page, Offset: offset})
		if err != nil {
			return replayed, err
		}
		for _, e := range entries {
			activeID, err := s.Replay(ctx, e.JobID)
			if err != nil {
				return replayed, err
			}
			if activeID.String() == e.JobID.String() {
				replayed++
			} else {
				offset++
			}
		}
		if len(entries) < page {
			return replayed, nil
		}
	}
}
