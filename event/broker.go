package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the default per-subscriber envelope buffer.
const DefaultBufferSize = 256

var _ Transport = (*Broker)(nil)

// Broker is an in-process Transport. Publish never blocks: a subscriber
// whose buffer is full misses the envelope and the drop is counted.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]*subscriber
	nextID atomic.Int64
	closed bool

	bufferSize int

	totalPublished atomic.Int64
	totalDropped   atomic.Int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// NewBroker creates an in-process broker.
func NewBroker(opts ...BrokerOption) *Broker {
	b := &Broker{
		subs:       make(map[string]*subscriber),
		bufferSize: DefaultBufferSize,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish delivers env to every subscriber with buffer space.
func (b *Broker) Publish(_ context.Context, env *Envelope) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if s.send(env) {
			b.totalPublished.Add(1)
		} else {
			b.totalDropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a subscriber that lives until closed or ctx ends.
func (b *Broker) Subscribe(ctx context.Context) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &subscriber{
		id:   strconv.FormatInt(b.nextID.Add(1), 10),
		ch:   make(chan *Envelope, b.bufferSize),
		done: make(chan struct{}),
	}
	s.onClose = func() { b.remove(s.id) }
	if b.closed {
		s.close()
		return s, nil
	}
	b.subs[s.id] = s

	if done := ctx.Done(); done != nil {
		go func() {
			select {
			case <-done:
				_ = s.Close()
			case <-s.done:
			}
		}()
	}
	return s, nil
}

// Close closes every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*subscriber)
	b.closed = true
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
	return nil
}

// Stats returns broker counters.
func (b *Broker) Stats() BrokerStats {
	b.mu.RLock()
	n := len(b.subs)
	b.mu.RUnlock()
	return BrokerStats{
		SubscriberCount: n,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker counters.
type BrokerStats struct {
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

func (b *Broker) remove(subID string) {
	b.mu.Lock()
	s, ok := b.subs[subID]
	delete(b.subs, subID)
	b.mu.Unlock()
	if ok {
		s.close()
	}
}

type subscriber struct {
	id      string
	ch      chan *Envelope
	onClose func()

	// mu guards sends against close so a send never hits a closed channel.
	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func (s *subscriber) C() <-chan *Envelope { return s.ch }

func (s *subscriber) Close() error {
	s.onClose()
	return nil
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	close(s.done)
}

// send attempts a non-blocking delivery.
func (s *subscriber) send(env *Envelope) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- env:
		return true
	default:
		return false
	}
}
