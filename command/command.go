// Package command defines the typed command boundary and the registry that
// turns an untyped job row back into a typed handler call.
//
// A command is a serializable request for one unit of work. Its
// ExecutionMode decides where it runs: Inline commands run in the
// caller's goroutine; Background commands are encoded into a durable job
// and executed by a worker. Domain code registers one handler per job
// type at startup so the worker loop never needs compile-time knowledge of
// domain types.
//
//	type CrawlSite struct {
//	    command.BackgroundMode
//	    Domain string `json:"domain"`
//	}
//
//	func (CrawlSite) JobType() string { return "crawl_site" }
//
//	command.Register(reg, "crawl_site", func(ctx context.Context, c CrawlSite, d Deps) error {
//	    return d.Crawler.Crawl(ctx, c.Domain)
//	})
package command

import "github.com/xraph/cascade/job"

// Mode selects where a command executes.
type Mode int

const (
	// Inline commands execute synchronously in the dispatching goroutine.
	Inline Mode = iota
	// Background commands are persisted as jobs and executed by a worker.
	Background
)

func (m Mode) String() string {
	switch m {
	case Inline:
		return "inline"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Command is a typed unit-of-work request.
type Command interface {
	// JobType returns the stable tag the command is registered under.
	JobType() string

	// ExecutionMode returns Inline or Background.
	ExecutionMode() Mode

	// JobSpec returns scheduling metadata for Background execution. Nil
	// means defaults. A zero MaxRetries also means the default retry
	// budget, not zero retries; set job.NoRetries for a single attempt.
	JobSpec() *job.Spec
}

// InlineMode can be embedded to make a command Inline with no job spec.
type InlineMode struct{}

func (InlineMode) ExecutionMode() Mode { return Inline }

func (InlineMode) JobSpec() *job.Spec { return nil }

// BackgroundMode can be embedded to make a command Background with default
// scheduling. Commands that need a spec override JobSpec.
type BackgroundMode struct{}

func (BackgroundMode) ExecutionMode() Mode { return Background }

func (BackgroundMode) JobSpec() *job.Spec { return nil }
