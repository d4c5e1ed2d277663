package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/queue"
)

// Pool claims due jobs and runs them concurrently through an Executor.
// A single loop claims at most as many jobs as there are free slots; each
// claimed job runs as its own task and heartbeats its lease until it
// resolves.
//
// Several pools, in one process or many, may share a store. The store's
// claim is the only coordination between them.
type Pool struct {
	queue      *queue.Queue
	executor   *Executor
	throttle   *queue.Throttle
	extensions *ext.Registry
	workerID   id.WorkerID
	logger     *slog.Logger

	concurrency       int
	batchSize         int
	pollInterval      time.Duration
	heartbeatInterval time.Duration

	mu       sync.Mutex
	running  bool
	stopLoop context.CancelFunc
	loopDone chan struct{}
	tasks    *errgroup.Group
	inflight atomic.Int32
	wake     chan struct{}

	activeMu sync.Mutex
	active   map[string]context.CancelCauseFunc
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithConcurrency sets the maximum number of jobs run at once.
func WithConcurrency(n int) PoolOption {
	return func(p *Pool) { p.concurrency = n }
}

// WithBatchSize caps how many jobs one claim may take.
func WithBatchSize(n int) PoolOption {
	return func(p *Pool) { p.batchSize = n }
}

// WithPollInterval sets how long the loop sleeps after a short claim.
func WithPollInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often running jobs extend their lease.
// It should be well below the queue's lease duration.
func WithHeartbeatInterval(d time.Duration) PoolOption {
	return func(p *Pool) { p.heartbeatInterval = d }
}

// WithThrottle admits claimed jobs through t. Rejected jobs are released
// back to pending without consuming an attempt.
func WithThrottle(t *queue.Throttle) PoolOption {
	return func(p *Pool) { p.throttle = t }
}

// WithWorkerID fixes the pool's worker identity. By default a new one is
// generated.
func WithWorkerID(w id.WorkerID) PoolOption {
	return func(p *Pool) { p.workerID = w }
}

// WithConfig applies the worker settings of cfg.
func WithConfig(cfg cascade.Config) PoolOption {
	return func(p *Pool) {
		p.concurrency = cfg.Concurrency
		p.batchSize = cfg.BatchSize
		p.pollInterval = cfg.PollInterval
		p.heartbeatInterval = cfg.HeartbeatInterval
	}
}

// NewPool creates a worker pool. Defaults come from cascade.DefaultConfig.
func NewPool(q *queue.Queue, executor *Executor, extensions *ext.Registry, logger *slog.Logger, opts ...PoolOption) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pool{
		queue:      q,
		executor:   executor,
		extensions: extensions,
		workerID:   id.NewWorkerID(),
		logger:     logger,
		wake:       make(chan struct{}, 1),
		active:     make(map[string]context.CancelCauseFunc),
	}
	WithConfig(cascade.DefaultConfig())(p)
	for _, opt := range opts {
		opt(p)
	}
	p.concurrency = max(p.concurrency, 1)
	if p.batchSize <= 0 {
		p.batchSize = p.concurrency
	}
	if p.heartbeatInterval <= 0 || p.heartbeatInterval >= q.Lease() {
		p.heartbeatInterval = q.Lease() / 3
	}
	return p
}

// WorkerID returns the identity this pool claims jobs under.
func (p *Pool) WorkerID() id.WorkerID { return p.workerID }

// Inflight returns the number of jobs currently running.
func (p *Pool) Inflight() int { return int(p.inflight.Load()) }

// Start launches the claim loop and returns immediately.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return cascade.ErrAlreadyStarted
	}
	p.running = true

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.stopLoop = cancel
	p.loopDone = make(chan struct{})
	p.tasks = new(errgroup.Group)
	p.tasks.SetLimit(p.concurrency)

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Int("batch_size", p.batchSize),
	)

	go p.loop(loopCtx)
	return nil
}

// Stop stops claiming and waits for running jobs to finish. If ctx ends
// first, running jobs are cancelled and released back to pending.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return cascade.ErrNotStarted
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))

	p.stopLoop()
	<-p.loopDone

	done := make(chan struct{})
	go func() {
		_ = p.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActive(errShutdown)
		<-done
	}

	p.extensions.EmitShutdown(ctx)
	return nil
}

func (p *Pool) loop(ctx context.Context) {
	defer close(p.loopDone)

	for {
		full := false
		if free := p.concurrency - p.Inflight(); free > 0 {
			limit := min(p.batchSize, free)
			n := p.claim(ctx, limit)
			full = n == limit
		}
		if full {
			// More work is likely waiting.
			if ctx.Err() != nil {
				return
			}
			continue
		}

		timer := time.NewTimer(p.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// claim takes up to limit jobs and starts them. It returns how many jobs
// the store handed out.
func (p *Pool) claim(ctx context.Context, limit int) int {
	jobs, err := p.queue.ClaimReady(ctx, p.workerID, limit)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Error("claim error", slog.String("error", err.Error()))
		}
		return 0
	}

	for _, j := range jobs {
		if !p.throttle.Acquire(j.JobType) {
			p.deferThrottled(ctx, j)
			continue
		}
		p.inflight.Add(1)
		p.tasks.Go(func() error {
			defer func() {
				p.throttle.Release(j.JobType)
				p.inflight.Add(-1)
				select {
				case p.wake <- struct{}{}:
				default:
				}
			}()
			p.run(j)
			return nil
		})
	}
	return len(jobs)
}

func (p *Pool) deferThrottled(ctx context.Context, j *job.Job) {
	runAt := p.queue.Now().Add(p.pollInterval)
	if err := p.queue.Release(context.WithoutCancel(ctx), j, runAt); err != nil {
		p.logger.Error("failed to release throttled job",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	p.logger.Debug("job throttled",
		slog.String("job_id", j.ID.String()),
		slog.String("job_type", j.JobType),
	)
}

// run executes one job while a sibling goroutine heartbeats its lease.
func (p *Pool) run(j *job.Job) {
	ctx, cancel := context.WithCancelCause(context.Background())
	key := j.ID.String()
	p.track(key, cancel)
	defer p.untrack(key)

	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		p.heartbeat(ctx, j, cancel)
	}()

	if err := p.executor.Execute(ctx, j); err != nil {
		p.logger.Debug("job execution finished with error",
			slog.String("job_id", key),
			slog.String("job_type", j.JobType),
			slog.String("error", err.Error()),
		)
	}

	cancel(nil)
	<-hbDone
}

func (p *Pool) heartbeat(ctx context.Context, j *job.Job, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := p.queue.Heartbeat(ctx, j.ID, p.workerID)
		switch {
		case err == nil:
		case errors.Is(err, job.ErrLeaseLost):
			p.logger.Warn("heartbeat rejected, cancelling job",
				slog.String("job_id", j.ID.String()),
				slog.String("job_type", j.JobType),
			)
			cancel(job.ErrLeaseLost)
			return
		case ctx.Err() != nil:
			return
		default:
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", j.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Pool) track(jobID string, cancel context.CancelCauseFunc) {
	p.activeMu.Lock()
	p.active[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrack(jobID string) {
	p.activeMu.Lock()
	delete(p.active, jobID)
	p.activeMu.Unlock()
}

func (p *Pool) cancelActive(cause error) {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.active {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel(cause)
	}
}
