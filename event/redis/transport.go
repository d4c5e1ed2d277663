// Package redis implements event.Transport over Redis pub/sub so that an
// event emitted by a worker process reaches request/response waiters in
// API processes.
//
// Pub/sub is fire-and-forget: a process that is not subscribed when an
// envelope is published never sees it. That matches the transport
// contract; durable work goes through the job store.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	t := redistransport.New(client, registry)
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/cascade/event"
)

// DefaultChannel is the pub/sub channel envelopes are published on.
const DefaultChannel = "cascade:events"

var _ event.Transport = (*Transport)(nil)

// Option configures the Transport.
type Option func(*Transport)

// WithChannel overrides the pub/sub channel.
func WithChannel(ch string) Option {
	return func(t *Transport) { t.channel = ch }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// WithBufferSize sets the per-subscriber buffer size.
func WithBufferSize(n int) Option {
	return func(t *Transport) { t.bufferSize = n }
}

// Transport publishes envelopes on a Redis channel and decodes received
// ones through an event registry. The caller owns the client lifecycle.
type Transport struct {
	client     redis.UniversalClient
	registry   *event.Registry
	channel    string
	logger     *slog.Logger
	bufferSize int

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

// New creates a Redis pub/sub transport.
func New(client redis.UniversalClient, registry *event.Registry, opts ...Option) *Transport {
	t := &Transport{
		client:     client,
		registry:   registry,
		channel:    DefaultChannel,
		logger:     slog.Default(),
		bufferSize: event.DefaultBufferSize,
		subs:       make(map[*subscription]struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Publish sends env to every subscribed process.
func (t *Transport) Publish(ctx context.Context, env *event.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("cascade/redis: encode envelope: %w", err)
	}
	if err := t.client.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("cascade/redis: publish: %w", err)
	}
	return nil
}

// Subscribe opens a pub/sub subscription. It returns once Redis has
// confirmed the subscription, so envelopes published afterwards are seen.
func (t *Transport) Subscribe(ctx context.Context) (event.Subscription, error) {
	ps := t.client.Subscribe(ctx, t.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("cascade/redis: subscribe: %w", err)
	}

	s := &subscription{
		ps:   ps,
		ch:   make(chan *event.Envelope, t.bufferSize),
		done: make(chan struct{}),
	}
	t.mu.Lock()
	t.subs[s] = struct{}{}
	t.mu.Unlock()

	go t.pump(ctx, s)
	return s, nil
}

// Close closes all open subscriptions.
func (t *Transport) Close() error {
	t.mu.Lock()
	subs := t.subs
	t.subs = make(map[*subscription]struct{})
	t.mu.Unlock()

	for s := range subs {
		_ = s.Close()
	}
	return nil
}

func (t *Transport) pump(ctx context.Context, s *subscription) {
	defer func() {
		t.mu.Lock()
		delete(t.subs, s)
		t.mu.Unlock()
		close(s.ch)
	}()

	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.Close()
			return
		case <-s.done:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			env, err := t.decode(msg.Payload)
			if err != nil {
				t.logger.Debug("cascade/redis: dropping envelope",
					slog.String("error", err.Error()),
				)
				continue
			}
			select {
			case s.ch <- env:
			default:
				t.logger.Warn("cascade/redis: subscriber buffer full, dropping envelope",
					slog.String("event_type", env.Type),
				)
			}
		}
	}
}

func (t *Transport) decode(payload string) (*event.Envelope, error) {
	var env event.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return nil, err
	}
	if t.registry != nil && t.registry.Known(env.Type) {
		if _, err := t.registry.Decode(&env); err != nil {
			return nil, err
		}
	}
	return &env, nil
}

type subscription struct {
	ps   *redis.PubSub
	ch   chan *event.Envelope
	once sync.Once
	done chan struct{}
}

func (s *subscription) C() <-chan *event.Envelope { return s.ch }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
