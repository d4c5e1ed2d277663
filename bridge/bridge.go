// Package bridge lets a synchronous caller take part in an asynchronous
// cascade. Dispatch emits a request event and blocks until a later event
// answers it or the timeout fires.
//
// The bridge listens on the engine's transport, so the answering event
// may come from any process that shares the transport. Matching is the
// caller's business: a Match inspects each event and either ignores it,
// accepts it as the answer or turns it into a failure.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/event"
)

// DefaultTimeout bounds how long Dispatch waits for an answer.
const DefaultTimeout = 30 * time.Second

// ErrSubscriptionClosed is returned when the transport ends the
// subscription before an answer arrives.
var ErrSubscriptionClosed = errors.New("cascade: bridge subscription closed")

// Cascade is the part of an engine the bridge drives.
type Cascade interface {
	Emit(ctx context.Context, evt event.Event) error
	Transport() event.Transport
	Events() *event.Registry
}

// Match inspects an event. A non-nil error ends the wait with that error,
// ok=true ends it with the value, and anything else ignores the event.
type Match[T any] func(evt event.Event) (value T, ok bool, err error)

// Bridge waits for answers to request events.
type Bridge struct {
	cascade Cascade
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout sets how long Dispatch waits. Zero or negative keeps the
// default.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// configured is implemented by engines that carry a request timeout.
type configured interface {
	Config() cascade.Config
}

// New creates a Bridge over c. The default wait is c's RequestTimeout
// when c exposes a cascade.Config, DefaultTimeout otherwise.
func New(c Cascade, opts ...Option) *Bridge {
	b := &Bridge{
		cascade: c,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	if cc, ok := c.(configured); ok && cc.Config().RequestTimeout > 0 {
		b.timeout = cc.Config().RequestTimeout
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Timeout returns the configured wait.
func (b *Bridge) Timeout() time.Duration { return b.timeout }

// Dispatch emits request and returns the first answer match accepts.
// The subscription is opened before emitting so a fast answer is never
// missed, and it is read while the emission runs, so an inline cascade
// that publishes more events than the transport buffers can still
// deliver its answer. Emission errors return immediately.
//
// The timeout bounds the whole call, including the inline part of the
// cascade: Emit runs under a context that expires with it. When nothing
// answers in time Dispatch returns cascade.ErrRequestTimeout. Emission
// still running after an answer is accepted continues in the background
// until it finishes or the timeout expires.
func Dispatch[T any](ctx context.Context, b *Bridge, request event.Event, match Match[T]) (T, error) {
	var zero T

	wctx, cancel := context.WithTimeout(ctx, b.timeout)
	handedOff := false
	defer func() {
		if !handedOff {
			cancel()
		}
	}()

	sub, err := b.cascade.Transport().Subscribe(wctx)
	if err != nil {
		return zero, fmt.Errorf("bridge: subscribe: %w", err)
	}
	defer sub.Close() //nolint:errcheck // subscription close is best effort

	emitted := make(chan error, 1)
	go func() { emitted <- b.cascade.Emit(wctx, request) }()

	timedOut := func() (T, error) {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%w: %q after %s", cascade.ErrRequestTimeout, request.EventType(), b.timeout)
	}
	// answered hands cancellation to the emission when it is still running.
	answered := func(pending <-chan error) {
		if pending == nil {
			return
		}
		handedOff = true
		go func() {
			<-pending
			cancel()
		}()
	}

	pending := emitted
	registry := b.cascade.Events()
	for {
		select {
		case err := <-pending:
			pending = nil
			if err != nil {
				if wctx.Err() != nil {
					return timedOut()
				}
				return zero, err
			}
		case env, open := <-sub.C():
			if !open {
				if wctx.Err() != nil {
					return timedOut()
				}
				return zero, ErrSubscriptionClosed
			}
			evt, err := registry.Decode(env)
			if err != nil {
				b.logger.Debug("bridge skipped undecodable event",
					slog.String("event_type", env.Type),
					slog.String("error", err.Error()),
				)
				continue
			}
			v, ok, err := match(evt)
			if err != nil {
				answered(pending)
				return zero, err
			}
			if ok {
				answered(pending)
				return v, nil
			}
		case <-wctx.Done():
			return timedOut()
		}
	}
}
