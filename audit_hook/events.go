package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobEnqueued       = "job.enqueued"
	ActionJobDeduplicated   = "job.deduplicated"
	ActionJobStarted        = "job.started"
	ActionJobSucceeded      = "job.succeeded"
	ActionJobRescheduled    = "job.rescheduled"
	ActionJobRetrying       = "job.retrying"
	ActionJobDeadLettered   = "job.dead_lettered"
	ActionJobLeaseLost      = "job.lease_lost"
	ActionCommandDispatched = "command.dispatched"
	ActionEventEmitted      = "event.emitted"
)

// Audit event categories group related actions.
const (
	CategoryJob     = "cascade.job"
	CategoryCommand = "cascade.command"
	CategoryEvent   = "cascade.event"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob     = "job"
	ResourceCommand = "command"
	ResourceEvent   = "event"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobEnqueued,
		ActionJobDeduplicated,
		ActionJobStarted,
		ActionJobSucceeded,
		ActionJobRescheduled,
		ActionJobRetrying,
		ActionJobDeadLettered,
		ActionJobLeaseLost,
		ActionCommandDispatched,
		ActionEventEmitted,
	}
}
