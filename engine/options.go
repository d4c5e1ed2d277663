package engine

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/backoff"
	"github.com/xraph/cascade/codec"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/job"
	mw "github.com/xraph/cascade/middleware"
	"github.com/xraph/cascade/queue"
)

// Option configures an Engine.
type Option func(*options)

type options struct {
	config         cascade.Config
	codec          codec.Codec
	transport      event.Transport
	logger         *slog.Logger
	extensions     []ext.Extension
	middleware     []mw.Middleware
	timeout        time.Duration
	timeoutPerType map[string]time.Duration
	backoff        backoff.Strategy
	throttle       *queue.Throttle
	classifier     job.Classifier
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// WithConfig sets the engine configuration. The default is
// cascade.DefaultConfig().
func WithConfig(cfg cascade.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithCodec sets the codec for command payloads and event envelopes.
// Every process sharing a store or transport must use the same codec.
func WithCodec(c codec.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithTransport publishes emitted events through t instead of an
// in-process broker. The engine does not close a supplied transport.
func WithTransport(t event.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithExtension registers lifecycle extensions.
func WithExtension(e ...ext.Extension) Option {
	return func(o *options) { o.extensions = append(o.extensions, e...) }
}

// WithMiddleware appends middleware after the built-in chain.
func WithMiddleware(m ...mw.Middleware) Option {
	return func(o *options) { o.middleware = append(o.middleware, m...) }
}

// WithJobTimeout bounds background execution: def for every job type,
// perType for individual ones.
func WithJobTimeout(def time.Duration, perType map[string]time.Duration) Option {
	return func(o *options) {
		o.timeout = def
		o.timeoutPerType = perType
	}
}

// WithBackoff sets the retry backoff strategy. The default is
// backoff.DefaultStrategy().
func WithBackoff(b backoff.Strategy) Option {
	return func(o *options) { o.backoff = b }
}

// WithThrottle limits claimed jobs per job type.
func WithThrottle(t *queue.Throttle) Option {
	return func(o *options) { o.throttle = t }
}

// WithClassifier replaces job.Classify for background failures.
func WithClassifier(c job.Classifier) Option {
	return func(o *options) { o.classifier = c }
}

// WithTracerProvider sets the OTel TracerProvider for the tracing
// middleware. If not set, the global provider is used.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithMeterProvider sets the OTel MeterProvider for the metrics middleware
// and the observability extension. If not set, the global provider is
// used.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}
