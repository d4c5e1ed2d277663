// Package engine wires the cascade together: job store, queue, command
// registry, worker pool, event transport, machines and extensions. It is
// the application-level API for registering work and driving cascades.
//
// The engine sits above every subsystem package. The root cascade package
// defines shared types that those subsystems import, so it cannot import
// them back.
//
// # Building an Engine
//
//	eng, err := engine.New(pgStore, deps,
//	    engine.WithConfig(cascade.NewConfig(cascade.WithConcurrency(20))),
//	    engine.WithExtension(audithook.New(audithook.NewSlogRecorder(logger))),
//	    engine.WithTransport(redisTransport),
//	)
//
// # Registering Work
//
//	// Effects run one command and return one fact event.
//	engine.RegisterEffect(eng, "crawl_site", crawlEffect)
//
//	// Plain handlers are commands without a resulting event.
//	engine.Register(eng, "sync_posts", syncHandler)
//
//	// Machines turn fact events into the next command.
//	eng.RegisterMachine("extraction", extractionMachine)
//
//	// Events that arrive over a remote transport need a decoder.
//	engine.RegisterEvent[SiteCrawled](eng)
//
// # Driving a Cascade
//
//	res, err := eng.Dispatch(ctx, CrawlSite{Domain: "example.org"})
//	err = eng.Emit(ctx, SiteCrawled{Domain: "example.org"})
//
//	// Recurring jobs are keyed per job type and reschedule themselves.
//	eng.RegisterRecurring(ctx, RefreshFeeds{}, "@hourly")
//
// # Options
//
//   - [WithConfig] sets worker, lease, retry and cascade limits
//   - [WithCodec] selects the payload codec for commands and events
//   - [WithTransport] replaces the in-process event broker
//   - [WithExtension] registers a lifecycle extension
//   - [WithMiddleware] appends job execution middleware
//   - [WithJobTimeout] bounds job execution per job type
//   - [WithBackoff] sets the retry backoff strategy
//   - [WithThrottle] limits rate and concurrency per job type
//   - [WithClassifier] replaces the default error classifier
//   - [WithTracerProvider] and [WithMeterProvider] override the global OTel providers
package engine
