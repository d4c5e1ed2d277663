package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*MetricsExtension)(nil)
	_ ext.JobEnqueued       = (*MetricsExtension)(nil)
	_ ext.JobDeduplicated   = (*MetricsExtension)(nil)
	_ ext.JobSucceeded      = (*MetricsExtension)(nil)
	_ ext.JobRescheduled    = (*MetricsExtension)(nil)
	_ ext.JobRetrying       = (*MetricsExtension)(nil)
	_ ext.JobDeadLettered   = (*MetricsExtension)(nil)
	_ ext.JobLeaseLost      = (*MetricsExtension)(nil)
	_ ext.CommandDispatched = (*MetricsExtension)(nil)
	_ ext.EventEmitted      = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/cascade/observability"

// MetricsExtension records system-wide lifecycle counters on an OTel
// meter. Job counters carry a job_type attribute; the event counter
// carries event_type.
type MetricsExtension struct {
	JobEnqueued       metric.Int64Counter
	JobDeduplicated   metric.Int64Counter
	JobSucceeded      metric.Int64Counter
	JobRescheduled    metric.Int64Counter
	JobRetried        metric.Int64Counter
	JobDeadLettered   metric.Int64Counter
	JobLeaseLost      metric.Int64Counter
	CommandDispatched metric.Int64Counter
	EventEmitted      metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		// The API returns a usable noop instrument alongside any error.
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		JobEnqueued:       counter("cascade.job.enqueued", "Jobs written to the store"),
		JobDeduplicated:   counter("cascade.job.deduplicated", "Enqueues absorbed by an active idempotency key"),
		JobSucceeded:      counter("cascade.job.succeeded", "One-shot jobs that succeeded"),
		JobRescheduled:    counter("cascade.job.rescheduled", "Recurring jobs reborn for their next occurrence"),
		JobRetried:        counter("cascade.job.retried", "Failed attempts scheduled for retry"),
		JobDeadLettered:   counter("cascade.job.dead_lettered", "Jobs that failed terminally"),
		JobLeaseLost:      counter("cascade.job.lease_lost", "Executions whose lease was reclaimed"),
		CommandDispatched: counter("cascade.command.dispatched", "Commands run inline or handed to the queue"),
		EventEmitted:      counter("cascade.event.emitted", "Events entering the cascade"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func jobType(t string) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", t))
}

// OnJobEnqueued implements ext.JobEnqueued.
func (m *MetricsExtension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	m.JobEnqueued.Add(ctx, 1, jobType(j.JobType))
	return nil
}

// OnJobDeduplicated implements ext.JobDeduplicated.
func (m *MetricsExtension) OnJobDeduplicated(ctx context.Context, _ string, _ id.JobID) error {
	m.JobDeduplicated.Add(ctx, 1)
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, j *job.Job, _ time.Duration) error {
	m.JobSucceeded.Add(ctx, 1, jobType(j.JobType))
	return nil
}

// OnJobRescheduled implements ext.JobRescheduled.
func (m *MetricsExtension) OnJobRescheduled(ctx context.Context, j *job.Job, _ time.Time) error {
	m.JobRescheduled.Add(ctx, 1, jobType(j.JobType))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, j *job.Job, _ int, _ time.Time, _ error) error {
	m.JobRetried.Add(ctx, 1, jobType(j.JobType))
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (m *MetricsExtension) OnJobDeadLettered(ctx context.Context, j *job.Job, reason string, _ error) error {
	m.JobDeadLettered.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", j.JobType),
		attribute.String("reason", reason),
	))
	return nil
}

// OnJobLeaseLost implements ext.JobLeaseLost.
func (m *MetricsExtension) OnJobLeaseLost(ctx context.Context, j *job.Job) error {
	m.JobLeaseLost.Add(ctx, 1, jobType(j.JobType))
	return nil
}

// OnCommandDispatched implements ext.CommandDispatched.
func (m *MetricsExtension) OnCommandDispatched(ctx context.Context, t string, jobID id.JobID) error {
	mode := "background"
	if jobID.IsNil() {
		mode = "inline"
	}
	m.CommandDispatched.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", t),
		attribute.String("mode", mode),
	))
	return nil
}

// OnEventEmitted implements ext.EventEmitted.
func (m *MetricsExtension) OnEventEmitted(ctx context.Context, env *event.Envelope) error {
	m.EventEmitted.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", env.Type)))
	return nil
}
