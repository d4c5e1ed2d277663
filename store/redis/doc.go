// Package redis implements store.Store on Redis using go-redis and Lua
// scripts.
//
// Each job is a Hash. Pending jobs sit in a Sorted Set scored by
// next_run_at and leased jobs in a second Sorted Set scored by lease
// expiry, so a claim reads both sets and leases the winners in one
// script. Active idempotency keys live in a Hash mapping key to job ID.
// All keys share the {cascade} hash tag and therefore one cluster slot.
//
// Claims consider at most ScanWindow due jobs, oldest first, and order
// those by priority. Listing and counting walk every job and are meant for
// operator tooling, not hot paths.
//
// Usage:
//
//	client := goredis.NewClient(&goredis.Options{Addr: "localhost:6379"})
//	s := redis.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis
