package amqphook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xraph/cascade/codec"
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

	_ Publisher = (*amqp.Channel)(nil)
)

// Publisher is the subset of *amqp.Channel the extension publishes with.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Extension publishes cascade lifecycle events to RabbitMQ.
type Extension struct {
	pub          Publisher
	exchange     string
	codec        codec.Codec
	deliveryMode uint8
	timeout      time.Duration
	enabled      map[string]bool        // nil = all enabled
	payloads     map[string]PayloadFunc // custom payload builders
	logger       *slog.Logger
	now          func() time.Time
}

// New creates an Extension that publishes through pub, typically an
// *amqp.Channel.
func New(pub Publisher, opts ...Option) *Extension {
	h := &Extension{
		pub:      pub,
		exchange: DefaultExchange,
		codec:    codec.JSON{},
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name implements ext.Extension.
func (h *Extension) Name() string { return "amqp-hook" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobEnqueued implements ext.JobEnqueued.
func (h *Extension) OnJobEnqueued(ctx context.Context, j *job.Job) error {
	return h.publish(ctx, EventJobEnqueued, newJobPayload(j))
}

// OnJobDeduplicated implements ext.JobDeduplicated.
func (h *Extension) OnJobDeduplicated(ctx context.Context, key string, existing id.JobID) error {
	return h.publish(ctx, EventJobDeduplicated, &dedupPayload{
		IdempotencyKey: key,
		ExistingJobID:  existing.String(),
	})
}

// OnJobStarted implements ext.JobStarted.
func (h *Extension) OnJobStarted(ctx context.Context, j *job.Job) error {
	return h.publish(ctx, EventJobStarted, newJobPayload(j))
}

// OnJobSucceeded implements ext.JobSucceeded.
func (h *Extension) OnJobSucceeded(ctx context.Context, j *job.Job, elapsed time.Duration) error {
	return h.publish(ctx, EventJobSucceeded, &jobSucceededPayload{
		jobPayload: *newJobPayload(j),
		ElapsedMs:  elapsed.Milliseconds(),
	})
}

// OnJobRescheduled implements ext.JobRescheduled.
func (h *Extension) OnJobRescheduled(ctx context.Context, j *job.Job, nextRunAt time.Time) error {
	return h.publish(ctx, EventJobRescheduled, &jobScheduledPayload{
		jobPayload: *newJobPayload(j),
		NextRunAt:  nextRunAt.UTC().Format(time.RFC3339),
	})
}

// OnJobRetrying implements ext.JobRetrying.
func (h *Extension) OnJobRetrying(ctx context.Context, j *job.Job, attempt int, nextRunAt time.Time, jobErr error) error {
	return h.publish(ctx, EventJobRetrying, &jobScheduledPayload{
		jobPayload:   *newJobPayload(j),
		RetryAttempt: attempt,
		NextRunAt:    nextRunAt.UTC().Format(time.RFC3339),
		Error:        errString(jobErr),
	})
}

// OnJobDeadLettered implements ext.JobDeadLettered.
func (h *Extension) OnJobDeadLettered(ctx context.Context, j *job.Job, reason string, jobErr error) error {
	return h.publish(ctx, EventJobDeadLettered, &jobDeadLetteredPayload{
		jobPayload: *newJobPayload(j),
		Reason:     reason,
		Error:      errString(jobErr),
	})
}

// OnJobLeaseLost implements ext.JobLeaseLost.
func (h *Extension) OnJobLeaseLost(ctx context.Context, j *job.Job) error {
	return h.publish(ctx, EventJobLeaseLost, newJobPayload(j))
}

// ── Cascade hooks ───────────────────────────────────

// OnCommandDispatched implements ext.CommandDispatched.
func (h *Extension) OnCommandDispatched(ctx context.Context, jobType string, jobID id.JobID) error {
	p := &commandPayload{JobType: jobType, Mode: "inline"}
	if !jobID.IsNil() {
		p.Mode = "background"
		p.JobID = jobID.String()
	}
	return h.publish(ctx, EventCommandDispatched, p)
}

// OnEventEmitted implements ext.EventEmitted. The envelope's payload bytes
// are forwarded as-is; they were produced by the engine's codec.
func (h *Extension) OnEventEmitted(ctx context.Context, env *event.Envelope) error {
	return h.publish(ctx, EventEventEmitted, &eventPayload{
		EventID:   env.ID.String(),
		EventType: env.Type,
		Payload:   env.Payload,
		CreatedAt: env.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
}

// ── Internal helpers ────────────────────────────────

// publish encodes and sends one message if the event type is enabled.
func (h *Extension) publish(ctx context.Context, eventType string, defaultData any) error {
	if h.enabled != nil && !h.enabled[eventType] {
		return nil
	}

	data := defaultData
	if fn, ok := h.payloads[eventType]; ok {
		custom, err := fn(defaultData)
		if err != nil {
			return fmt.Errorf("amqp_hook: payload %s: %w", eventType, err)
		}
		data = custom
	}

	body, err := h.codec.Marshal(data)
	if err != nil {
		return fmt.Errorf("amqp_hook: encode %s: %w", eventType, err)
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	msg := amqp.Publishing{
		ContentType:  contentType(h.codec),
		DeliveryMode: h.deliveryMode,
		MessageId:    id.NewEventID().String(),
		Timestamp:    h.now(),
		Type:         eventType,
		AppId:        "cascade",
		Body:         body,
	}
	if err := h.pub.PublishWithContext(ctx, h.exchange, eventType, false, false, msg); err != nil {
		return fmt.Errorf("amqp_hook: publish %s: %w", eventType, err)
	}

	h.logger.Debug("amqp_hook: published",
		slog.String("type", eventType),
		slog.String("exchange", h.exchange),
	)
	return nil
}

func contentType(c codec.Codec) string {
	if c.Name() == codec.NameMsgpack {
		return "application/msgpack"
	}
	return "application/json"
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ── Default payload types ───────────────────────────

type jobPayload struct {
	JobID       string `json:"job_id"`
	JobType     string `json:"job_type"`
	Version     int    `json:"version"`
	Attempt     int    `json:"attempt"`
	ReferenceID string `json:"reference_id,omitempty"`
	WorkerID    string `json:"worker_id,omitempty"`
}

func newJobPayload(j *job.Job) *jobPayload {
	p := &jobPayload{
		JobID:       j.ID.String(),
		JobType:     j.JobType,
		Version:     j.Version,
		Attempt:     j.Attempt(),
		ReferenceID: j.ReferenceID,
	}
	if !j.WorkerID.IsNil() {
		p.WorkerID = j.WorkerID.String()
	}
	return p
}

type dedupPayload struct {
	IdempotencyKey string `json:"idempotency_key"`
	ExistingJobID  string `json:"existing_job_id"`
}

type jobSucceededPayload struct {
	jobPayload
	ElapsedMs int64 `json:"elapsed_ms"`
}

type jobScheduledPayload struct {
	jobPayload
	RetryAttempt int    `json:"retry_attempt,omitempty"`
	NextRunAt    string `json:"next_run_at"`
	Error        string `json:"error,omitempty"`
}

type jobDeadLetteredPayload struct {
	jobPayload
	Reason string `json:"reason"`
	Error  string `json:"error,omitempty"`
}

type commandPayload struct {
	JobType string `json:"job_type"`
	Mode    string `json:"mode"`
	JobID   string `json:"job_id,omitempty"`
}

type eventPayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Payload   []byte `json:"payload"`
	CreatedAt string `json:"created_at"`
}
