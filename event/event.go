// Package event defines the fact boundary of the cascade: typed events,
// the envelope they travel in, a type registry for decoding them on the
// far side of a transport, and the transports themselves.
//
// Events are immutable. By convention, request events express intent
// ("crawl requested") and fact events record outcomes ("site crawled",
// "crawl failed"). Machines should only react to facts.
package event

import (
	"fmt"
	"time"

	"github.com/xraph/cascade/codec"
	"github.com/xraph/cascade/id"
)

// Event is a typed fact or request.
type Event interface {
	// EventType returns the stable tag used to route and decode the event.
	EventType() string
}

// Envelope carries one emitted event. Event is the typed value when it is
// known locally or has been decoded; Payload is its encoded form.
type Envelope struct {
	ID        id.EventID `json:"id"`
	Type      string     `json:"type"`
	Payload   []byte     `json:"payload"`
	CreatedAt time.Time  `json:"created_at"`

	Event Event `json:"-"`
}

// Wrap encodes evt into a new Envelope.
func Wrap(evt Event, c codec.Codec) (*Envelope, error) {
	payload, err := c.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode event %q: %w", evt.EventType(), err)
	}
	return &Envelope{
		ID:        id.NewEventID(),
		Type:      evt.EventType(),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
		Event:     evt,
	}, nil
}
