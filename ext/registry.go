package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// A nil *Registry is valid and emits nothing.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobEnqueued       []entry[JobEnqueued]
	jobDeduplicated   []entry[JobDeduplicated]
	jobStarted        []entry[JobStarted]
	jobSucceeded      []entry[JobSucceeded]
	jobRescheduled    []entry[JobRescheduled]
	jobRetrying       []entry[JobRetrying]
	jobDeadLettered   []entry[JobDeadLettered]
	jobLeaseLost      []entry[JobLeaseLost]
	commandDispatched []entry[CommandDispatched]
	eventEmitted      []entry[EventEmitted]
	shutdown          []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
// Register is not safe to call concurrently with emits; register
// everything before starting the engine.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	r.jobEnqueued = appendHook[JobEnqueued](r.jobEnqueued, name, e)
	r.jobDeduplicated = appendHook[JobDeduplicated](r.jobDeduplicated, name, e)
	r.jobStarted = appendHook[JobStarted](r.jobStarted, name, e)
	r.jobSucceeded = appendHook[JobSucceeded](r.jobSucceeded, name, e)
	r.jobRescheduled = appendHook[JobRescheduled](r.jobRescheduled, name, e)
	r.jobRetrying = appendHook[JobRetrying](r.jobRetrying, name, e)
	r.jobDeadLettered = appendHook[JobDeadLettered](r.jobDeadLettered, name, e)
	r.jobLeaseLost = appendHook[JobLeaseLost](r.jobLeaseLost, name, e)
	r.commandDispatched = appendHook[CommandDispatched](r.commandDispatched, name, e)
	r.eventEmitted = appendHook[EventEmitted](r.eventEmitted, name, e)
	r.shutdown = appendHook[Shutdown](r.shutdown, name, e)
}

func appendHook[H any](list []entry[H], name string, e Extension) []entry[H] {
	if h, ok := e.(H); ok {
		return append(list, entry[H]{name: name, hook: h})
	}
	return list
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension {
	if r == nil {
		return nil
	}
	return r.extensions
}

// EmitJobEnqueued notifies all extensions that implement JobEnqueued.
func (r *Registry) EmitJobEnqueued(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobEnqueued {
		if err := e.hook.OnJobEnqueued(ctx, j); err != nil {
			r.logHookError("OnJobEnqueued", e.name, err)
		}
	}
}

// EmitJobDeduplicated notifies all extensions that implement JobDeduplicated.
func (r *Registry) EmitJobDeduplicated(ctx context.Context, key string, existing id.JobID) {
	if r == nil {
		return
	}
	for _, e := range r.jobDeduplicated {
		if err := e.hook.OnJobDeduplicated(ctx, key, existing); err != nil {
			r.logHookError("OnJobDeduplicated", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) {
	if r == nil {
		return
	}
	for _, e := range r.jobSucceeded {
		if err := e.hook.OnJobSucceeded(ctx, j, elapsed); err != nil {
			r.logHookError("OnJobSucceeded", e.name, err)
		}
	}
}

// EmitJobRescheduled notifies all extensions that implement JobRescheduled.
func (r *Registry) EmitJobRescheduled(ctx context.Context, j *job.Job, nextRunAt time.Time) {
	if r == nil {
		return
	}
	for _, e := range r.jobRescheduled {
		if err := e.hook.OnJobRescheduled(ctx, j, nextRunAt); err != nil {
			r.logHookError("OnJobRescheduled", e.name, err)
		}
	}
}

// EmitJobRetrying notifies all extensions that implement JobRetrying.
func (r *Registry) EmitJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time, cause error) {
	if r == nil {
		return
	}
	for _, e := range r.jobRetrying {
		if err := e.hook.OnJobRetrying(ctx, j, attempt, nextRunAt, cause); err != nil {
			r.logHookError("OnJobRetrying", e.name, err)
		}
	}
}

// EmitJobDeadLettered notifies all extensions that implement JobDeadLettered.
func (r *Registry) EmitJobDeadLettered(ctx context.Context, j *job.Job, reason string, cause error) {
	if r == nil {
		return
	}
	for _, e := range r.jobDeadLettered {
		if err := e.hook.OnJobDeadLettered(ctx, j, reason, cause); err != nil {
			r.logHookError("OnJobDeadLettered", e.name, err)
		}
	}
}

// EmitJobLeaseLost notifies all extensions that implement JobLeaseLost.
func (r *Registry) EmitJobLeaseLost(ctx context.Context, j *job.Job) {
	if r == nil {
		return
	}
	for _, e := range r.jobLeaseLost {
		if err := e.hook.OnJobLeaseLost(ctx, j); err != nil {
			r.logHookError("OnJobLeaseLost", e.name, err)
		}
	}
}

// EmitCommandDispatched notifies all extensions that implement CommandDispatched.
func (r *Registry) EmitCommandDispatched(ctx context.Context, jobType string, jobID id.JobID) {
	if r == nil {
		return
	}
	for _, e := range r.commandDispatched {
		if err := e.hook.OnCommandDispatched(ctx, jobType, jobID); err != nil {
			r.logHookError("OnCommandDispatched", e.name, err)
		}
	}
}

// EmitEventEmitted notifies all extensions that implement EventEmitted.
func (r *Registry) EmitEventEmitted(ctx context.Context, env *event.Envelope) {
	if r == nil {
		return
	}
	for _, e := range r.eventEmitted {
		if err := e.hook.OnEventEmitted(ctx, env); err != nil {
			r.logHookError("OnEventEmitted", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	if r == nil {
		return
	}
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Hook errors are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
