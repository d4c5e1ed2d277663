package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/cascade/job"
)

// tracerName is the instrumentation scope name for cascade tracing.
const tracerName = "github.com/xraph/cascade"

// Tracing returns middleware that wraps job execution in an OpenTelemetry
// span using the global TracerProvider. Without a configured provider the
// noop tracer is used.
//
// Span attributes: cascade.job.id, cascade.job.type, cascade.job.version,
// cascade.retry_count, cascade.reference_id. On error the span status is
// codes.Error and cascade.error_kind records the classification.
func Tracing() Middleware {
	return TracingWithTracer(otel.Tracer(tracerName))
}

// TracingWithTracer returns tracing middleware using the provided tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "cascade.job.execute",
			trace.WithAttributes(
				attribute.String("cascade.job.id", j.ID.String()),
				attribute.String("cascade.job.type", j.JobType),
				attribute.Int("cascade.job.version", j.Version),
				attribute.Int("cascade.retry_count", j.RetryCount),
				attribute.String("cascade.reference_id", j.ReferenceID),
			),
			trace.WithSpanKind(trace.SpanKindConsumer),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("cascade.error_kind", string(job.Classify(err))))
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
