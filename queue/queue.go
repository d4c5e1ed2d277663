package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xraph/cascade/backoff"
	"github.com/xraph/cascade/cron"
	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// maxErrorLen bounds the error text stored on a job.
const maxErrorLen = 4096

// ErrEmptyJobType is returned when enqueueing without a job type.
var ErrEmptyJobType = errors.New("cascade: empty job type")

// Outcome names how an attempt was resolved.
type Outcome string

const (
	OutcomeSucceeded    Outcome = "succeeded"
	OutcomeRescheduled  Outcome = "rescheduled"
	OutcomeRetrying     Outcome = "retrying"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

// Resolution describes what happened to a job after an attempt.
type Resolution struct {
	Outcome Outcome
	// NextRunAt is set for rescheduled and retrying jobs.
	NextRunAt time.Time
	// Attempt is the number of the next attempt for retrying jobs.
	Attempt int
	// Reason is set for dead-lettered jobs.
	Reason string
}

// Option configures a Queue.
type Option func(*Queue)

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(q *Queue) { q.backoff = s }
}

// WithLease sets the lease granted on claim and heartbeat.
func WithLease(d time.Duration) Option {
	return func(q *Queue) { q.lease = d }
}

// WithDefaultMaxRetries sets the retry budget for specs that leave it unset.
func WithDefaultMaxRetries(n int) Option {
	return func(q *Queue) { q.defaultMaxRetries = n }
}

// WithExtensions sets the extension registry notified on enqueue.
func WithExtensions(r *ext.Registry) Option {
	return func(q *Queue) { q.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) { q.logger = l }
}

// WithClock overrides the time source used for scheduling decisions.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// Queue implements enqueue, claim and resolution over a job.Store.
// It is safe for concurrent use.
type Queue struct {
	store             job.Store
	backoff           backoff.Strategy
	lease             time.Duration
	defaultMaxRetries int
	extensions        *ext.Registry
	logger            *slog.Logger
	now               func() time.Time
}

// New creates a Queue over store.
func New(store job.Store, opts ...Option) *Queue {
	q := &Queue{
		store:             store,
		backoff:           backoff.DefaultStrategy(),
		lease:             30 * time.Second,
		defaultMaxRetries: 3,
		logger:            slog.Default(),
		now:               func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Store returns the underlying job store.
func (q *Queue) Store() job.Store { return q.store }

// Now returns the current time according to the queue's clock.
func (q *Queue) Now() time.Time { return q.now() }

// Lease returns the lease duration granted to claims.
func (q *Queue) Lease() time.Duration { return q.lease }

// Enqueue persists a job due now. If spec carries an idempotency key held
// by an active job, that job's ID is returned and nothing is written.
func (q *Queue) Enqueue(ctx context.Context, jobType string, payload []byte, spec *job.Spec) (id.JobID, error) {
	runAt := time.Time{}
	if spec != nil {
		runAt = spec.RunAt
	}
	return q.Schedule(ctx, jobType, payload, spec, runAt)
}

// Schedule persists a job due at runAt. A zero runAt means now. The
// idempotency rule of Enqueue applies.
func (q *Queue) Schedule(ctx context.Context, jobType string, payload []byte, spec *job.Spec, runAt time.Time) (id.JobID, error) {
	if jobType == "" {
		return id.Nil, ErrEmptyJobType
	}
	if spec != nil && spec.Frequency != "" {
		if err := cron.Validate(spec.Frequency); err != nil {
			return id.Nil, err
		}
	}

	now := q.now()
	if runAt.IsZero() {
		runAt = now
	}

	j := &job.Job{
		ID:         id.NewJobID(),
		JobType:    jobType,
		Version:    spec.PayloadVersion(),
		Args:       payload,
		Status:     job.StatusPending,
		MaxRetries: spec.RetryBudget(q.defaultMaxRetries),
		NextRunAt:  runAt.UTC(),
	}
	j.CreatedAt, j.UpdatedAt = now, now
	if spec != nil {
		j.Priority = spec.Priority
		j.IdempotencyKey = spec.IdempotencyKey
		j.ReferenceID = spec.ReferenceID
		j.Frequency = cron.Normalize(spec.Frequency)
	}

	jobID, inserted, err := q.store.InsertJob(ctx, j)
	if err != nil {
		return id.Nil, fmt.Errorf("enqueue %q: %w", jobType, err)
	}
	if !inserted {
		q.logger.Debug("job deduplicated",
			slog.String("job_type", jobType),
			slog.String("idempotency_key", j.IdempotencyKey),
			slog.String("job_id", jobID.String()),
		)
		q.extensions.EmitJobDeduplicated(ctx, j.IdempotencyKey, jobID)
		return jobID, nil
	}

	q.extensions.EmitJobEnqueued(ctx, j)
	return jobID, nil
}

// ClaimReady leases up to limit ready jobs to workerID.
func (q *Queue) ClaimReady(ctx context.Context, workerID id.WorkerID, limit int) ([]*job.Job, error) {
	if limit <= 0 {
		return nil, nil
	}
	return q.store.ClaimJobs(ctx, workerID, limit, q.lease)
}

// Heartbeat extends the lease on a job held by workerID. It returns
// job.ErrLeaseLost once another worker has reclaimed the job.
func (q *Queue) Heartbeat(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	return q.store.HeartbeatJob(ctx, jobID, workerID, q.lease)
}

// MarkSucceeded resolves a successful attempt of j, which must be the
// record returned by ClaimReady. Recurring jobs are reborn at their next
// occurrence with a fresh retry budget.
func (q *Queue) MarkSucceeded(ctx context.Context, j *job.Job) (Resolution, error) {
	if !j.Recurring() {
		if err := q.store.CompleteJob(ctx, j.ID, j.WorkerID); err != nil {
			return Resolution{}, err
		}
		return Resolution{Outcome: OutcomeSucceeded}, nil
	}

	next, err := cron.Next(j.Frequency, q.now())
	if err != nil {
		reason := "invalid frequency"
		if dlErr := q.store.DeadLetterJob(ctx, j.ID, j.WorkerID, err.Error(), job.KindFatal, reason); dlErr != nil {
			return Resolution{}, dlErr
		}
		return Resolution{Outcome: OutcomeDeadLettered, Reason: reason}, nil
	}
	if err := q.store.RescheduleJob(ctx, j.ID, j.WorkerID, next); err != nil {
		return Resolution{}, err
	}
	return Resolution{Outcome: OutcomeRescheduled, NextRunAt: next}, nil
}

// MarkFailed resolves a failed attempt of j. Retryable failures with
// budget left are rescheduled after backoff; anything else dead-letters.
func (q *Queue) MarkFailed(ctx context.Context, j *job.Job, cause error, kind job.ErrorKind) (Resolution, error) {
	msg := errorText(cause)

	if kind == job.KindRetryable && j.RetryCount < j.MaxRetries {
		next := q.now().Add(q.backoff.Delay(j.RetryCount + 1))
		if err := q.store.RetryJob(ctx, j.ID, j.WorkerID, next, msg, kind); err != nil {
			return Resolution{}, err
		}
		return Resolution{Outcome: OutcomeRetrying, NextRunAt: next, Attempt: j.RetryCount + 2}, nil
	}

	reason := job.ReasonFatal
	if kind == job.KindRetryable {
		reason = job.ReasonMaxRetries
	}
	if err := q.store.DeadLetterJob(ctx, j.ID, j.WorkerID, msg, kind, reason); err != nil {
		return Resolution{}, err
	}
	return Resolution{Outcome: OutcomeDeadLettered, Reason: reason}, nil
}

// Release returns a claimed job to pending at runAt without counting the
// attempt.
func (q *Queue) Release(ctx context.Context, j *job.Job, runAt time.Time) error {
	return q.store.ReleaseJob(ctx, j.ID, j.WorkerID, runAt)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToValidUTF8(err.Error(), "\uFFFD")
	if len(msg) <= maxErrorLen {
		return msg
	}
	// Cut on a rune boundary; TEXT columns reject invalid UTF-8.
	n := maxErrorLen
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}
