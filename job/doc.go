// Package job defines the durable job record, its lifecycle, the
// persistence contract every store backend implements, and the error
// classification that decides between retry and dead-letter.
//
// # Lifecycle
//
//	pending ──claim──▶ running ──success──▶ succeeded
//	   ▲                  │  └──success, recurring──▶ pending (next occurrence)
//	   │                  ├──retryable, budget left──▶ pending (backoff)
//	   │                  └──fatal or budget spent──▶ dead_letter
//	   └────────── lease expired: running is claimable again
//
// Terminal jobs are retained. Dead-lettered jobs can be requeued by an
// operator through the dlq package.
//
// # Claiming
//
// A job is claimable when it is pending with next_run_at at or before now,
// or running with an expired lease. Disabled jobs are never claimed.
// Claims are ordered by priority (highest first), then next_run_at, then ID.
// Every resolution call names the worker that holds the lease; a store
// rejects it with [ErrLeaseLost] when the job has since been reclaimed.
package job
