package amqphook

import (
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/xraph/cascade/codec"
)

// Option configures an Extension.
type Option func(*Extension)

// PayloadFunc builds a custom message body for a specific event type. It
// receives the default payload and returns the value that gets encoded.
type PayloadFunc func(defaultData any) (any, error)

// WithExchange sets the exchange messages are published to.
func WithExchange(name string) Option {
	return func(h *Extension) { h.exchange = name }
}

// WithEvents restricts the extension to publish only the listed event
// types. By default every type is enabled. Unknown types are ignored.
func WithEvents(events ...string) Option {
	return func(h *Extension) {
		h.enabled = make(map[string]bool, len(events))
		for _, e := range events {
			h.enabled[e] = true
		}
	}
}

// WithPayloadFunc registers a custom payload builder for the given event
// type.
func WithPayloadFunc(eventType string, fn PayloadFunc) Option {
	return func(h *Extension) {
		if h.payloads == nil {
			h.payloads = make(map[string]PayloadFunc)
		}
		h.payloads[eventType] = fn
	}
}

// WithCodec sets the codec used for message bodies. Defaults to JSON.
func WithCodec(c codec.Codec) Option {
	return func(h *Extension) { h.codec = c }
}

// WithPersistent marks published messages as persistent.
func WithPersistent() Option {
	return func(h *Extension) { h.deliveryMode = amqp.Persistent }
}

// WithPublishTimeout bounds each publish call. Zero means no extra bound
// beyond the caller's context.
func WithPublishTimeout(d time.Duration) Option {
	return func(h *Extension) { h.timeout = d }
}

// WithLogger sets a custom logger for the extension.
func WithLogger(l *slog.Logger) Option {
	return func(h *Extension) { h.logger = l }
}
