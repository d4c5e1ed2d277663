// Package cascade is a durable job scheduling core with a reactive
// command/effect/event pipeline on top.
//
// Commands are typed requests. Inline commands run in-process at the call
// site; background commands are serialized into a durable job and picked up
// by a polling worker pool. Effects execute commands and emit facts
// (events). Machines observe events and decide follow-up commands, which
// dispatch in turn. That cycle is the cascade.
//
// # Quick Start
//
//	st := memory.New()
//	eng, err := engine.New[Deps](st, deps,
//	    engine.WithConfig(cascade.NewConfig(cascade.WithConcurrency(20))),
//	)
//	engine.RegisterEvent[SiteCrawled](eng)
//	engine.RegisterEffect[CrawlSite](eng, "crawl_site", crawlEffect)
//	eng.RegisterMachine("crawler", crawlMachine)
//	_ = eng.Start(ctx)
//	_, _ = eng.Dispatch(ctx, CrawlSite{Domain: "example.com"})
//
// Request/response callers that need the fact a command eventually emits
// use the bridge package to dispatch and wait for a matching event.
//
// # Guarantees
//
// Delivery is at-least-once. Every job carries a lease; a worker that
// crashes or stalls loses its lease and the job is claimed again. Handlers
// must therefore be idempotent. Enqueueing with an idempotency key never
// produces two active jobs for the same key.
//
// All job and event IDs use TypeID: type-prefixed, K-sortable,
// UUIDv7-based identifiers.
package cascade
