package job

import (
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job waits for next_run_at and a free worker.
	StatusPending Status = "pending"
	// StatusRunning means a worker holds a lease on the job.
	StatusRunning Status = "running"
	// StatusSucceeded means the job finished and will not run again.
	StatusSucceeded Status = "succeeded"
	// StatusFailed is accepted from stores written by older releases.
	// Current code schedules retries as pending and never writes it.
	StatusFailed Status = "failed"
	// StatusDeadLetter means the job failed terminally and needs an operator.
	StatusDeadLetter Status = "dead_letter"
)

// Active reports whether s counts toward idempotency-key uniqueness.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusRunning
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusDeadLetter
}

// Dead-letter reasons recorded on the job.
const (
	ReasonMaxRetries = "max retries exceeded"
	ReasonFatal      = "fatal error"
)

// Job is one unit of durable background work.
type Job struct {
	cascade.Entity

	ID      id.JobID `json:"id"`
	JobType string   `json:"job_type"`
	Version int      `json:"version"`
	Args    []byte   `json:"args"`
	Status  Status   `json:"status"`

	Priority       int    `json:"priority"`
	MaxRetries     int    `json:"max_retries"`
	RetryCount     int    `json:"retry_count"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
	ReferenceID    string `json:"reference_id,omitempty"`
	Frequency      string `json:"frequency,omitempty"`

	NextRunAt      time.Time   `json:"next_run_at"`
	LastRunAt      *time.Time  `json:"last_run_at,omitempty"`
	WorkerID       id.WorkerID `json:"worker_id,omitempty"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty"`

	ErrorMessage     string     `json:"error_message,omitempty"`
	ErrorKind        ErrorKind  `json:"error_kind,omitempty"`
	DeadLetteredAt   *time.Time `json:"dead_lettered_at,omitempty"`
	DeadLetterReason string     `json:"dead_letter_reason,omitempty"`
	DisabledAt       *time.Time `json:"disabled_at,omitempty"`
}

// Attempt is the 1-indexed number of the current or next execution.
func (j *Job) Attempt() int { return j.RetryCount + 1 }

// Recurring reports whether the job reschedules itself on success.
func (j *Job) Recurring() bool { return j.Frequency != "" }

// Disabled reports whether claims are suspended for the job.
func (j *Job) Disabled() bool { return j.DisabledAt != nil }

// Claimable reports whether the job may be claimed at now.
func (j *Job) Claimable(now time.Time) bool {
	if j.Disabled() {
		return false
	}
	switch j.Status {
	case StatusPending, StatusFailed:
		return !j.NextRunAt.After(now)
	case StatusRunning:
		return j.LeaseExpiresAt == nil || j.LeaseExpiresAt.Before(now)
	default:
		return false
	}
}

// OwnedBy reports whether workerID holds the job's lease. A lease that
// expired without being reclaimed still belongs to its worker.
func (j *Job) OwnedBy(workerID id.WorkerID) bool {
	return j.Status == StatusRunning && j.WorkerID.String() == workerID.String()
}

// Less orders claim candidates: priority descending, then next_run_at, then ID.
func Less(a, b *Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.NextRunAt.Equal(b.NextRunAt) {
		return a.NextRunAt.Before(b.NextRunAt)
	}
	return a.ID.Compare(b.ID) < 0
}
