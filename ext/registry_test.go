package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *allHooksExt) OnJobDeduplicated(_ context.Context, _ string, _ id.JobID) error {
	e.calls = append(e.calls, "OnJobDeduplicated")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobSucceeded(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobSucceeded")
	return nil
}

func (e *allHooksExt) OnJobRescheduled(_ context.Context, _ *job.Job, _ time.Time) error {
	e.calls = append(e.calls, "OnJobRescheduled")
	return nil
}

func (e *allHooksExt) OnJobRetrying(_ context.Context, _ *job.Job, _ int, _ time.Time, _ error) error {
	e.calls = append(e.calls, "OnJobRetrying")
	return nil
}

func (e *allHooksExt) OnJobDeadLettered(_ context.Context, _ *job.Job, _ string, _ error) error {
	e.calls = append(e.calls, "OnJobDeadLettered")
	return nil
}

func (e *allHooksExt) OnJobLeaseLost(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobLeaseLost")
	return nil
}

func (e *allHooksExt) OnCommandDispatched(_ context.Context, _ string, _ id.JobID) error {
	e.calls = append(e.calls, "OnCommandDispatched")
	return nil
}

func (e *allHooksExt) OnEventEmitted(_ context.Context, _ *event.Envelope) error {
	e.calls = append(e.calls, "OnEventEmitted")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// jobOnlyExt only implements a couple of job hooks.
type jobOnlyExt struct {
	calls []string
}

func (e *jobOnlyExt) Name() string { return "job-only" }

func (e *jobOnlyExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobEnqueued")
	return nil
}

func (e *jobOnlyExt) OnJobSucceeded(_ context.Context, _ *job.Job, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobSucceeded")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	jo := &jobOnlyExt{}
	r.Register(all)
	r.Register(jo)

	ctx := context.Background()
	j := &job.Job{JobType: "crawl_site"}

	r.EmitJobEnqueued(ctx, j)
	if len(all.calls) != 1 || all.calls[0] != "OnJobEnqueued" {
		t.Fatalf("all: expected [OnJobEnqueued], got %v", all.calls)
	}
	if len(jo.calls) != 1 || jo.calls[0] != "OnJobEnqueued" {
		t.Fatalf("jo: expected [OnJobEnqueued], got %v", jo.calls)
	}

	r.EmitJobStarted(ctx, j)
	if len(all.calls) != 2 || all.calls[1] != "OnJobStarted" {
		t.Fatalf("all: expected OnJobStarted as 2nd, got %v", all.calls)
	}
	if len(jo.calls) != 1 {
		t.Fatalf("jo: should still have 1 call, got %v", jo.calls)
	}
}

func TestRegistry_AllHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	j := &job.Job{JobType: "crawl_site"}
	fail := errors.New("fail")

	r.EmitJobEnqueued(ctx, j)
	r.EmitJobDeduplicated(ctx, "crawl:example.com", id.NewJobID())
	r.EmitJobStarted(ctx, j)
	r.EmitJobSucceeded(ctx, j, time.Second)
	r.EmitJobRescheduled(ctx, j, time.Now())
	r.EmitJobRetrying(ctx, j, 2, time.Now(), fail)
	r.EmitJobDeadLettered(ctx, j, job.ReasonMaxRetries, fail)
	r.EmitJobLeaseLost(ctx, j)
	r.EmitCommandDispatched(ctx, "crawl_site", id.Nil)
	r.EmitEventEmitted(ctx, &event.Envelope{ID: id.NewEventID(), Type: "site_crawled"})
	r.EmitShutdown(ctx)

	expected := []string{
		"OnJobEnqueued", "OnJobDeduplicated", "OnJobStarted", "OnJobSucceeded",
		"OnJobRescheduled", "OnJobRetrying", "OnJobDeadLettered", "OnJobLeaseLost",
		"OnCommandDispatched", "OnEventEmitted", "OnShutdown",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(&failingExt{})
	r.Register(all)

	ctx := context.Background()
	r.EmitJobEnqueued(ctx, &job.Job{})
	r.EmitShutdown(ctx)

	if len(all.calls) != 2 || all.calls[0] != "OnJobEnqueued" {
		t.Fatalf("all: expected hooks despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()
	j := &job.Job{}

	r.EmitJobEnqueued(ctx, j)
	r.EmitJobDeduplicated(ctx, "k", id.Nil)
	r.EmitJobStarted(ctx, j)
	r.EmitJobSucceeded(ctx, j, time.Second)
	r.EmitJobRescheduled(ctx, j, time.Now())
	r.EmitJobRetrying(ctx, j, 1, time.Now(), errors.New("x"))
	r.EmitJobDeadLettered(ctx, j, job.ReasonFatal, errors.New("x"))
	r.EmitJobLeaseLost(ctx, j)
	r.EmitCommandDispatched(ctx, "t", id.Nil)
	r.EmitEventEmitted(ctx, &event.Envelope{})
	r.EmitShutdown(ctx)
}

func TestRegistry_NilRegistryNoOp(_ *testing.T) {
	var r *ext.Registry
	ctx := context.Background()

	r.EmitJobEnqueued(ctx, &job.Job{})
	r.EmitEventEmitted(ctx, &event.Envelope{})
	r.EmitShutdown(ctx)
	_ = r.Extensions()
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	var order []string
	r.Register(&orderExt{name: "first", order: &order})
	r.Register(&orderExt{name: "second", order: &order})

	r.EmitJobEnqueued(context.Background(), &job.Job{})

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

type orderExt struct {
	name  string
	order *[]string
}

func (e *orderExt) Name() string { return e.name }

func (e *orderExt) OnJobEnqueued(_ context.Context, _ *job.Job) error {
	*e.order = append(*e.order, e.name)
	return nil
}
