package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*PrometheusExtension)(nil)
	_ ext.JobEnqueued       = (*PrometheusExtension)(nil)
	_ ext.JobDeduplicated   = (*PrometheusExtension)(nil)
	_ ext.JobSucceeded      = (*PrometheusExtension)(nil)
	_ ext.JobRescheduled    = (*PrometheusExtension)(nil)
	_ ext.JobRetrying       = (*PrometheusExtension)(nil)
	_ ext.JobDeadLettered   = (*PrometheusExtension)(nil)
	_ ext.JobLeaseLost      = (*PrometheusExtension)(nil)
	_ ext.CommandDispatched = (*PrometheusExtension)(nil)
	_ ext.EventEmitted      = (*PrometheusExtension)(nil)
)

// Job outcome label values for cascade_jobs_processed_total.
const (
	StatusSucceeded    = "succeeded"
	StatusRescheduled  = "rescheduled"
	StatusRetried      = "retried"
	StatusDeadLettered = "dead_lettered"
	StatusLeaseLost    = "lease_lost"
)

// PrometheusExtension records lifecycle metrics into a Prometheus
// registry.
type PrometheusExtension struct {
	JobsEnqueued     *prometheus.CounterVec
	JobsDeduplicated prometheus.Counter
	JobsProcessed    *prometheus.CounterVec
	JobDuration      *prometheus.HistogramVec
	Commands         *prometheus.CounterVec
	Events           *prometheus.CounterVec
}

// NewPrometheusExtension registers cascade collectors with reg. A nil reg
// means prometheus.DefaultRegisterer.
func NewPrometheusExtension(reg prometheus.Registerer) *PrometheusExtension {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusExtension{
		JobsEnqueued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_jobs_enqueued_total",
			Help: "The total number of jobs written to the store.",
		}, []string{"type"}),
		JobsDeduplicated: f.NewCounter(prometheus.CounterOpts{
			Name: "cascade_jobs_deduplicated_total",
			Help: "The total number of enqueues absorbed by an active idempotency key.",
		}),
		JobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_jobs_processed_total",
			Help: "The total number of resolved job executions.",
		}, []string{"type", "status"}),
		JobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cascade_job_duration_seconds",
			Help:    "Duration of successful job executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"type"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_commands_dispatched_total",
			Help: "The total number of dispatched commands.",
		}, []string{"type", "mode"}),
		Events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cascade_events_emitted_total",
			Help: "The total number of events entering the cascade.",
		}, []string{"type"}),
	}
}

// Handler serves the metrics gathered by g in the Prometheus exposition
// format. A nil g means prometheus.DefaultGatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Name implements ext.Extension.
func (p *PrometheusExtension) Name() string { return "observability-prometheus" }

// OnJobEnqueued implements ext.JobEnqueued.
func (p *PrometheusExtension) OnJobEnqueued(_ context.Context, j *job.Job) error {
	p.JobsEnqueued.WithLabelValues(j.JobType).Inc()
	return nil
}

// OnJobDeduplicated implements ext.JobDeduplicated.
func (p *PrometheusExtension) OnJobDeduplicated(context.Context, string, id.JobID) error {
	p.JobsDeduplicated.Inc()
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (p *PrometheusExtension) OnJobSucceeded(_ context.Context, j *job.Job, elapsed time.Duration) error {
	p.JobsProcessed.WithLabelValues(j.JobType, StatusSucceeded).Inc()
	p.JobDuration.WithLabelValues(j.JobType).Observe(elapsed.Seconds())
	return nil
}

// OnJobRescheduled implements ext.JobRescheduled.
func (p *PrometheusExtension) OnJobRescheduled(_ context.Context, j *job.Job, _ time.Time) error {
	p.JobsProcessed.WithLabelValues(j.JobType, StatusRescheduled).Inc()
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (p *PrometheusExtension) OnJobRetrying(_ context.Context, j *job.Job, _ int, _ time.Time, _ error) error {
	p.JobsProcessed.WithLabelValues(j.JobType, StatusRetried).Inc()
	return nil
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (p *PrometheusExtension) OnJobDeadLettered(_ context.Context, j *job.Job, _ string, _ error) error {
	p.JobsProcessed.WithLabelValues(j.JobType, StatusDeadLettered).Inc()
	return nil
}

// OnJobLeaseLost implements ext.JobLeaseLost.
func (p *PrometheusExtension) OnJobLeaseLost(_ context.Context, j *job.Job) error {
	p.JobsProcessed.WithLabelValues(j.JobType, StatusLeaseLost).Inc()
	return nil
}

// OnCommandDispatched implements ext.CommandDispatched.
func (p *PrometheusExtension) OnCommandDispatched(_ context.Context, jobType string, jobID id.JobID) error {
	mode := "background"
	if jobID.IsNil() {
		mode = "inline"
	}
	p.Commands.WithLabelValues(jobType, mode).Inc()
	return nil
}

// OnEventEmitted implements ext.EventEmitted.
func (p *PrometheusExtension) OnEventEmitted(_ context.Context, env *event.Envelope) error {
	p.Events.WithLabelValues(env.Type).Inc()
	return nil
}
