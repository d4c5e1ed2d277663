// Package memory provides a fully in-memory job store. It is safe for
// concurrent use and intended for tests and development.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/store"
)

var _ store.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source. Tests use it to expire leases
// without sleeping.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.Mutex

	jobs map[string]*job.Job
	// active maps an idempotency key to the ID of the pending or running
	// job that holds it.
	active map[string]string

	now func() time.Time
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		jobs:   make(map[string]*job.Job),
		active: make(map[string]string),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// InsertJob persists j unless an active job holds its idempotency key.
func (m *Store) InsertJob(_ context.Context, j *job.Job) (id.JobID, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j.IdempotencyKey != "" {
		if existing, ok := m.active[j.IdempotencyKey]; ok {
			return m.jobs[existing].ID, false, nil
		}
	}

	cp := *j
	cp.Status = job.StatusPending
	if cp.NextRunAt.IsZero() {
		cp.NextRunAt = m.now()
	}
	m.jobs[cp.ID.String()] = &cp
	m.track(&cp)
	return cp.ID, true, nil
}

// ClaimJobs leases up to limit claimable jobs to workerID.
func (m *Store) ClaimJobs(_ context.Context, workerID id.WorkerID, limit int, lease time.Duration) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	candidates := make([]*job.Job, 0)
	for _, j := range m.jobs {
		if j.Claimable(now) {
			candidates = append(candidates, j)
		}
	}
	sort.Slice(candidates, func(a, b int) bool { return job.Less(candidates[a], candidates[b]) })

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	until := now.Add(lease)
	claimed := make([]*job.Job, len(candidates))
	for i, j := range candidates {
		ran := now
		leaseUntil := until
		j.Status = job.StatusRunning
		j.WorkerID = workerID
		j.LastRunAt = &ran
		j.LeaseExpiresAt = &leaseUntil
		j.UpdatedAt = now
		claimed[i] = clone(j)
	}
	return claimed, nil
}

// HeartbeatJob extends the lease held by workerID.
func (m *Store) HeartbeatJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.held(jobID, workerID)
	if err != nil {
		return err
	}
	until := m.now().Add(lease)
	j.LeaseExpiresAt = &until
	return nil
}

// CompleteJob marks a job succeeded.
func (m *Store) CompleteJob(_ context.Context, jobID id.JobID, workerID id.WorkerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.held(jobID, workerID)
	if err != nil {
		return err
	}
	j.Status = job.StatusSucceeded
	m.release(j)
	j.ErrorMessage = ""
	j.ErrorKind = ""
	m.untrack(j)
	return nil
}

// RescheduleJob returns a recurring job to pending at nextRunAt.
func (m *Store) RescheduleJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, nextRunAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.held(jobID, workerID)
	if err != nil {
		return err
	}
	j.Status = job.StatusPending
	j.NextRunAt = nextRunAt.UTC()
	j.RetryCount = 0
	j.ErrorMessage = ""
	j.ErrorKind = ""
	m.release(j)
	return nil
}

// RetryJob returns a failed job to pending at nextRunAt.
func (m *Store) RetryJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, nextRunAt time.Time, errMsg string, kind job.ErrorKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.held(jobID, workerID)
	if err != nil {
		return err
	}
	j.Status = job.StatusPending
	j.NextRunAt = nextRunAt.UTC()
	j.RetryCount++
	j.ErrorMessage = errMsg
	j.ErrorKind = kind
	m.release(j)
	return nil
}

// DeadLetterJob moves a job to dead_letter.
func (m *Store) DeadLetterJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, kind job.ErrorKind, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.held(jobID, workerID)
	if err != nil {
		return err
	}
	now := m.now()
	j.Status = job.StatusDeadLetter
	j.ErrorMessage = errMsg
	j.ErrorKind = kind
	j.DeadLetteredAt = &now
	j.DeadLetterReason = reason
	m.release(j)
	m.untrack(j)
	return nil
}

// ReleaseJob returns a claimed job to pending without counting an attempt.
func (m *Store) ReleaseJob(_ context.Context, jobID id.JobID, workerID id.WorkerID, runAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, err := m.held(jobID, workerID)
	if err != nil {
		return err
	}
	j.Status = job.StatusPending
	j.NextRunAt = runAt.UTC()
	m.release(j)
	return nil
}

// RequeueJob moves a dead-lettered job back to pending.
func (m *Store) RequeueJob(_ context.Context, jobID id.JobID, runAt time.Time) (id.JobID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return id.Nil, job.ErrJobNotFound
	}
	if j.Status != job.StatusDeadLetter {
		return id.Nil, job.ErrNotDeadLettered
	}
	if j.IdempotencyKey != "" {
		if existing, held := m.active[j.IdempotencyKey]; held {
			return m.jobs[existing].ID, nil
		}
	}
	j.Status = job.StatusPending
	j.NextRunAt = runAt.UTC()
	j.RetryCount = 0
	j.ErrorMessage = ""
	j.ErrorKind = ""
	j.DeadLetteredAt = nil
	j.DeadLetterReason = ""
	j.UpdatedAt = m.now()
	m.track(j)
	return j.ID, nil
}

// SetJobDisabled suspends or resumes claims for a job.
func (m *Store) SetJobDisabled(_ context.Context, jobID id.JobID, disabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return job.ErrJobNotFound
	}
	now := m.now()
	if disabled {
		if j.DisabledAt == nil {
			j.DisabledAt = &now
		}
	} else {
		j.DisabledAt = nil
	}
	j.UpdatedAt = now
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return clone(j), nil
}

// GetJobByKey returns the active job holding key.
func (m *Store) GetJobByKey(_ context.Context, key string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobID, ok := m.active[key]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return clone(m.jobs[jobID]), nil
}

// ListJobs returns jobs matching opts, oldest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*job.Job
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.JobType != "" && j.JobType != opts.JobType {
			continue
		}
		if opts.ReferenceID != "" && j.ReferenceID != opts.ReferenceID {
			continue
		}
		result = append(result, clone(j))
	}
	slices.SortFunc(result, func(a, b *job.Job) int { return a.ID.Compare(b.ID) })
	return paginate(result, opts.Offset, opts.Limit), nil
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, j := range m.jobs {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.JobType != "" && j.JobType != opts.JobType {
			continue
		}
		n++
	}
	return n, nil
}

// held returns the live record if workerID holds its lease.
// Callers must hold m.mu.
func (m *Store) held(jobID id.JobID, workerID id.WorkerID) (*job.Job, error) {
	j, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	if !j.OwnedBy(workerID) {
		return nil, job.ErrLeaseLost
	}
	return j, nil
}

// release clears lease fields. Callers must hold m.mu.
func (m *Store) release(j *job.Job) {
	j.WorkerID = id.Nil
	j.LeaseExpiresAt = nil
	j.UpdatedAt = m.now()
}

func (m *Store) track(j *job.Job) {
	if j.IdempotencyKey != "" {
		m.active[j.IdempotencyKey] = j.ID.String()
	}
}

func (m *Store) untrack(j *job.Job) {
	if j.IdempotencyKey != "" && m.active[j.IdempotencyKey] == j.ID.String() {
		delete(m.active, j.IdempotencyKey)
	}
}

func clone(j *job.Job) *job.Job {
	cp := *j
	cp.Args = slices.Clone(j.Args)
	return &cp
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
