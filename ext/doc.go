// Package ext defines the extension system for cascade.
//
// Extensions are notified of lifecycle moments and can react to them:
// recording metrics, writing audit logs, publishing to a broker.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the moments they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	func (e *MyExtension) OnJobDeadLettered(ctx context.Context, j *job.Job, reason string, err error) error {
//	    log.Printf("job %s dead-lettered: %s", j.ID, reason)
//	    return nil
//	}
//
// # Job Hooks
//
//   - [JobEnqueued]: a new job row was written
//   - [JobDeduplicated]: an enqueue matched an active idempotency key
//   - [JobStarted]: a worker began executing the job
//   - [JobSucceeded]: a one-shot job finished
//   - [JobRescheduled]: a recurring job was reborn for its next occurrence
//   - [JobRetrying]: a failed job will be retried after backoff
//   - [JobDeadLettered]: a job failed terminally
//   - [JobLeaseLost]: another worker reclaimed a running job
//
// # Cascade Hooks
//
//   - [CommandDispatched]: a command ran inline or was enqueued
//   - [EventEmitted]: an event entered the cascade
//   - [Shutdown]: the engine is shutting down
//
// Hook errors are logged and never block the pipeline.
package ext
