package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/cascade/store"
)

// ScanWindow bounds how many due jobs a claim examines per Sorted Set.
const ScanWindow = 1000

var _ store.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock overrides the time source used to stamp and compare times.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store implements store.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
	now    func() time.Time
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client: client,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate preloads the Lua scripts. Redis has no schema.
func (s *Store) Migrate(ctx context.Context) error {
	for _, script := range []*redis.Script{
		insertScript, claimScript, heartbeatScript, completeScript, rescheduleScript,
		retryScript, deadLetterScript, releaseScript, requeueScript, disableScript,
	} {
		if err := script.Load(ctx, s.client).Err(); err != nil {
			return err
		}
	}
	s.logger.Debug("cascade/redis: scripts loaded")
	return nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
