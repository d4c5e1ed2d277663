package event

import "context"

// Transport fans emitted envelopes out to subscribers, possibly in other
// processes. Delivery is best effort: a slow or absent subscriber misses
// events. Durable work never rides on a transport; it goes through the job
// store.
type Transport interface {
	// Publish delivers env to current subscribers.
	Publish(ctx context.Context, env *Envelope) error

	// Subscribe registers a subscriber. Envelopes published after Subscribe
	// returns are delivered until the subscription is closed or ctx ends.
	Subscribe(ctx context.Context) (Subscription, error)

	// Close releases transport resources and closes all subscriptions.
	Close() error
}

// Subscription is a stream of envelopes.
type Subscription interface {
	// C returns the envelope channel. It is closed when the subscription ends.
	C() <-chan *Envelope

	// Close ends the subscription. Safe to call multiple times.
	Close() error
}
