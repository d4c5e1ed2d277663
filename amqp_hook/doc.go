// Package amqphook publishes cascade lifecycle moments and emitted events
// to a RabbitMQ topic exchange. When registered as an extension, every job,
// command and event hook becomes one AMQP message whose routing key is the
// event type (cascade.job.dead_lettered, cascade.event.emitted, and so on),
// so consumers bind only to what they care about.
//
// Usage:
//
//	conn, _ := amqp.Dial(os.Getenv("CASCADE_AMQP_URL"))
//	ch, _ := conn.Channel()
//	_ = amqphook.DeclareExchange(ch, amqphook.DefaultExchange)
//
//	hook := amqphook.New(ch)
//	eng, _ := engine.New(engine.WithExtension(hook))
//
// To restrict which events are published:
//
//	hook := amqphook.New(ch,
//	    amqphook.WithEvents(
//	        amqphook.EventJobDeadLettered,
//	        amqphook.EventEventEmitted,
//	    ),
//	)
//
// Publishing is best effort. A broker failure is returned to the extension
// registry, which logs it; the job itself is unaffected.
package amqphook
