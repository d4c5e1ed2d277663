package dlq

import (
	"time"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// Entry is a dead-lettered job as operators see it.
type Entry struct {
	JobID          id.JobID      `json:"job_id"`
	JobType        string        `json:"job_type"`
	Version        int           `json:"version"`
	Payload        []byte        `json:"payload"`
	Error          string        `json:"error"`
	ErrorKind      job.ErrorKind `json:"error_kind"`
	Reason         string        `json:"reason"`
	RetryCount     int           `json:"retry_count"`
	MaxRetries     int           `json:"max_retries"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
	ReferenceID    string        `json:"reference_id,omitempty"`
	Frequency      string        `json:"frequency,omitempty"`
	DeadLetteredAt time.Time     `json:"dead_lettered_at"`
	CreatedAt      time.Time     `json:"created_at"`
}

// entryFrom builds an Entry from a dead-lettered job.
func entryFrom(j *job.Job) *Entry {
	e := &Entry{
		JobID:          j.ID,
		JobType:        j.JobType,
		Version:        j.Version,
		Payload:        j.Args,
		Error:          j.ErrorMessage,
		ErrorKind:      j.ErrorKind,
		Reason:         j.DeadLetterReason,
		RetryCount:     j.RetryCount,
		MaxRetries:     j.MaxRetries,
		IdempotencyKey: j.IdempotencyKey,
		ReferenceID:    j.ReferenceID,
		Frequency:      j.Frequency,
		CreatedAt:      j.CreatedAt,
	}
	if j.DeadLetteredAt != nil {
		e.DeadLetteredAt = *j.DeadLetteredAt
	}
	return e
}
