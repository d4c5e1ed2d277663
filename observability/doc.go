// Package observability provides metrics extensions for cascade. Both
// implement lifecycle hooks and count enqueues, outcomes, lease losses,
// dispatched commands and emitted events.
//
//   - [MetricsExtension] records through an OpenTelemetry meter
//   - [PrometheusExtension] records into a Prometheus registry
//
// For per-execution spans and durations, see middleware.Tracing() and
// middleware.Metrics().
package observability
