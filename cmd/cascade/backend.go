package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/store/postgres"
	redisstore "github.com/xraph/cascade/store/redis"
)

var errNoBackend = errors.New("no backend configured: set --database-url or --redis-addr")

// defaultOpener picks PostgreSQL when a database URL is set and Redis
// otherwise.
func defaultOpener(ctx context.Context, g *globals) (store.Store, error) {
	switch {
	case g.databaseURL != "":
		s, err := postgres.New(ctx, g.databaseURL, postgres.WithLogger(g.logger))
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return s, nil

	case g.redisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: g.redisAddr})
		s := redisstore.New(client, redisstore.WithLogger(g.logger))
		if err := s.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return &ownedRedis{Store: s, client: client}, nil

	default:
		return nil, errNoBackend
	}
}

// ownedRedis closes the client the CLI created; the redis store leaves
// client lifecycle to its caller.
type ownedRedis struct {
	*redisstore.Store
	client *redis.Client
}

func (o *ownedRedis) Close() error { return o.client.Close() }
