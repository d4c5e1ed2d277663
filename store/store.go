// Package store defines the aggregate persistence interface a backend
// implements. The job store is the only shared mutable resource in a
// cascade deployment; every coordination point goes through it.
package store

import (
	"context"

	"github.com/xraph/cascade/job"
)

// Store is the aggregate persistence interface.
type Store interface {
	job.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}
