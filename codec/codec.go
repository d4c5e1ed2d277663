// Package codec serializes command payloads and event bodies.
//
// A job's args and an event envelope's payload are opaque bytes to the
// store and the transport. The codec that produced them is the only thing
// that can read them back, so every process sharing a store must agree on
// one codec.
package codec

// Codec defines the serialization contract for payloads.
type Codec interface {
	// Marshal serializes v.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v, which must be a pointer.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier ("json", "msgpack").
	Name() string
}

// Codec names for configuration.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// Get returns a codec by name. Unknown names and "" yield JSON.
func Get(name string) Codec {
	switch name {
	case NameMsgpack:
		return Msgpack{}
	default:
		return JSON{}
	}
}
