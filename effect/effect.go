// Package effect holds the one place domain side effects happen. An
// effect executes one command type and returns exactly one fact event
// describing what happened, including expected failures ("crawl failed")
// that downstream machines should react to. A returned error means the
// step itself failed and is classified for retry or dead-lettering.
package effect

import (
	"context"

	"github.com/xraph/cascade/command"
	"github.com/xraph/cascade/event"
)

// Effect executes commands of type T with dependencies D.
type Effect[T command.Command, D any] interface {
	Execute(ctx context.Context, cmd T, deps D) (event.Event, error)
}

// Func adapts a function to Effect.
type Func[T command.Command, D any] func(ctx context.Context, cmd T, deps D) (event.Event, error)

// Execute calls f.
func (f Func[T, D]) Execute(ctx context.Context, cmd T, deps D) (event.Event, error) {
	return f(ctx, cmd, deps)
}
