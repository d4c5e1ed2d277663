package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Extension)(nil)
	_ ext.JobEnqueued       = (*Extension)(nil)
	_ ext.JobDeduplicated   = (*Extension)(nil)
	_ ext.JobStarted        = (*Extension)(nil)
	_ ext.JobSucceeded      = (*Extension)(nil)
	_ ext.JobRescheduled    = (*Extension)(nil)
	_ ext.JobRetrying       = (*Extension)(nil)
	_ ext.JobDeadLettered   = (*Extension)(nil)
	_ ext.JobLeaseLost      = (*Extension)(nil)
	_ ext.CommandDispatched = (*Extension)(nil)
	_ ext.EventEmitted      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	// What happened
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	// Details
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity levels.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension bridges cascade lifecycle events to an audit trail backend.
// Each lifecycle hook emits a structured audit event through the [Recorder].
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (e *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobEnqueued, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", j.JobType,
		"reference_id", j.ReferenceID,
		"idempotency_key", j.IdempotencyKey,
	)
}

// OnJobDeduplicated implements ext.JobDeduplicated.
func (e *Extension) OnJobDeduplicated(ctx context.Context, key string, existing id.JobID) error {
	return e.record(ctx, ActionJobDeduplicated, SeverityInfo, OutcomeSuccess,
		ResourceJob, existing.String(), CategoryJob, nil,
		"idempotency_key", key,
	)
}

// OnJobStarted implements ext.JobStarted.
func (e *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobStarted, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", j.JobType,
		"worker_id", j.WorkerID.String(),
		"attempt", j.Attempt(),
	)
}

// OnJobSucceeded implements ext.JobSucceeded.
func (e *Extension) OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return e.record(ctx, ActionJobSucceeded, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", j.JobType,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// OnJobRescheduled implements ext.JobRescheduled.
func (e *Extension) OnJobRescheduled(ctx context.Context, j *job.Job, nextRunAt time.Time) error {
	return e.record(ctx, ActionJobRescheduled, SeverityInfo, OutcomeSuccess,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", j.JobType,
		"frequency", j.Frequency,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobRetrying implements ext.JobRetrying.
func (e *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time, jobErr error) error {
	return e.record(ctx, ActionJobRetrying, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, jobErr,
		"job_type", j.JobType,
		"attempt", attempt,
		"max_retries", j.MaxRetries,
		"next_run_at", nextRunAt.Format(time.RFC3339),
	)
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (e *Extension) OnJobDeadLettered(ctx context.Context, j *job.Job, reason string, jobErr error) error {
	return e.record(ctx, ActionJobDeadLettered, SeverityCritical, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, jobErr,
		"job_type", j.JobType,
		"dead_letter_reason", reason,
		"retry_count", j.RetryCount,
		"reference_id", j.ReferenceID,
	)
}

// OnJobLeaseLost implements ext.JobLeaseLost.
func (e *Extension) OnJobLeaseLost(ctx context.Context, j *job.Job) error {
	return e.record(ctx, ActionJobLeaseLost, SeverityWarning, OutcomeFailure,
		ResourceJob, j.ID.String(), CategoryJob, nil,
		"job_type", j.JobType,
		"worker_id", j.WorkerID.String(),
	)
}

// ── Cascade hooks ───────────────────────────────────

// OnCommandDispatched implements ext.CommandDispatched.
func (e *Extension) OnCommandDispatched(ctx context.Context, jobType string, jobID id.JobID) error {
	mode := "background"
	if jobID.IsNil() {
		mode = "inline"
	}
	return e.record(ctx, ActionCommandDispatched, SeverityInfo, OutcomeSuccess,
		ResourceCommand, jobType, CategoryCommand, nil,
		"mode", mode,
		"job_id", jobID.String(),
	)
}

// OnEventEmitted implements ext.EventEmitted.
func (e *Extension) OnEventEmitted(ctx context.Context, env *event.Envelope) error {
	return e.record(ctx, ActionEventEmitted, SeverityInfo, OutcomeSuccess,
		ResourceEvent, env.ID.String(), CategoryEvent, nil,
		"event_type", env.Type,
	)
}

// ── Internal helpers ────────────────────────────────

// record builds and sends an audit event if the action is enabled.
// The kvPairs argument is a list of key-value pairs added to Metadata.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			slog.String("action", action),
			slog.String("resource_id", resourceID),
			slog.String("error", recErr.Error()),
		)
	}
	return nil
}
