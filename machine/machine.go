// Package machine defines the reactive half of a cascade. A machine looks
// at fact events and optionally answers with the next command of a
// multi-step workflow. Machines may keep small in-memory bookkeeping to
// suppress duplicate triggers, but never durable state: it is lost on
// restart and is not shared between processes.
package machine

import (
	"github.com/xraph/cascade/command"
	"github.com/xraph/cascade/event"
)

// Machine decides the next command for an event. A nil command means no
// reaction. The engine never calls Decide on the same machine
// concurrently, so implementations may mutate their own fields.
type Machine interface {
	Decide(evt event.Event) command.Command
}

// Func adapts a stateless function to Machine.
type Func func(evt event.Event) command.Command

// Decide calls f.
func (f Func) Decide(evt event.Event) command.Command { return f(evt) }
