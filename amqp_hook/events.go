package amqphook

import amqp "github.com/rabbitmq/amqp091-go"

// Lifecycle event types. Each constant maps to one ext hook and is used as
// both the message Type and the routing key.
const (
	EventJobEnqueued       = "cascade.job.enqueued"
	EventJobDeduplicated   = "cascade.job.deduplicated"
	EventJobStarted        = "cascade.job.started"
	EventJobSucceeded      = "cascade.job.succeeded"
	EventJobRescheduled    = "cascade.job.rescheduled"
	EventJobRetrying       = "cascade.job.retrying"
	EventJobDeadLettered   = "cascade.job.dead_lettered"
	EventJobLeaseLost      = "cascade.job.lease_lost"
	EventCommandDispatched = "cascade.command.dispatched"
	EventEventEmitted      = "cascade.event.emitted"
)

// DefaultExchange is the topic exchange messages are published to unless
// WithExchange overrides it.
const DefaultExchange = "cascade.events"

// AllEvents returns every event type this extension can publish.
func AllEvents() []string {
	return []string{
		EventJobEnqueued,
		EventJobDeduplicated,
		EventJobStarted,
		EventJobSucceeded,
		EventJobRescheduled,
		EventJobRetrying,
		EventJobDeadLettered,
		EventJobLeaseLost,
		EventCommandDispatched,
		EventEventEmitted,
	}
}

// ExchangeDeclarer is the subset of *amqp.Channel used to set up topology.
type ExchangeDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

// DeclareExchange declares the durable topic exchange the extension
// publishes to. It is idempotent.
func DeclareExchange(ch ExchangeDeclarer, name string) error {
	return ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil)
}
