package event

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/cascade/codec"
)

// ErrUnknownEvent is returned when decoding an envelope whose type was
// never registered.
var ErrUnknownEvent = errors.New("cascade: unknown event type")

type decoder func(payload []byte) (Event, error)

// Registry maps event type tags to decoders. It is safe for concurrent use.
type Registry struct {
	codec codec.Codec

	mu       sync.RWMutex
	decoders map[string]decoder
}

// NewRegistry creates a registry decoding with c. A nil codec means JSON.
func NewRegistry(c codec.Codec) *Registry {
	if c == nil {
		c = codec.JSON{}
	}
	return &Registry{codec: c, decoders: make(map[string]decoder)}
}

// Codec returns the registry's codec.
func (r *Registry) Codec() codec.Codec { return r.codec }

// Register makes T decodable. The tag comes from the zero value of T, so
// EventType must not depend on field values.
func Register[T Event](r *Registry) {
	var zero T
	tag := zero.EventType()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[tag] = func(payload []byte) (Event, error) {
		var v T
		if err := r.codec.Unmarshal(payload, &v); err != nil {
			return nil, fmt.Errorf("decode event %q: %w", tag, err)
		}
		return v, nil
	}
}

// Known reports whether tag has a decoder.
func (r *Registry) Known(tag string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[tag]
	return ok
}

// Decode fills env.Event from env.Payload if it is not already set.
func (r *Registry) Decode(env *Envelope) (Event, error) {
	if env.Event != nil {
		return env.Event, nil
	}
	r.mu.RLock()
	dec, ok := r.decoders[env.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	evt, err := dec(env.Payload)
	if err != nil {
		return nil, err
	}
	env.Event = evt
	return evt, nil
}
