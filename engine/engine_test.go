package engine_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/backoff"
	"github.com/xraph/cascade/command"
	"github.com/xraph/cascade/effect"
	"github.com/xraph/cascade/engine"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/machine"
	"github.com/xraph/cascade/store/memory"
)

// ──────────────────────────────────────────────────
// Crawl domain
// ──────────────────────────────────────────────────

type crawlRequested struct {
	Domain string `json:"domain"`
}

func (crawlRequested) EventType() string { return "crawl_requested" }

type siteCrawled struct {
	Domain string   `json:"domain"`
	Pages  []string `json:"pages"`
}

func (siteCrawled) EventType() string { return "site_crawled" }

type postsExtracted struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

func (postsExtracted) EventType() string { return "posts_extracted" }

type crawlSite struct {
	command.BackgroundMode
	Domain string `json:"domain"`
}

func (crawlSite) JobType() string { return "crawl_site" }

func (c crawlSite) JobSpec() *job.Spec {
	return job.NewSpec(job.WithIdempotencyKey("crawl:"+c.Domain), job.WithReferenceID(c.Domain))
}

type extractPosts struct {
	command.BackgroundMode
	Domain string   `json:"domain"`
	Pages  []string `json:"pages"`
}

func (extractPosts) JobType() string { return "extract_posts" }

func (c extractPosts) JobSpec() *job.Spec {
	return job.NewSpec(job.WithIdempotencyKey("extract:" + c.Domain))
}

type deps struct {
	crawls   *atomic.Int32
	extracts *atomic.Int32
	posts    *atomic.Int32
}

func newDeps() deps {
	return deps{crawls: new(atomic.Int32), extracts: new(atomic.Int32), posts: new(atomic.Int32)}
}

// crawler reacts to crawl facts. Pending suppresses a second extraction
// while one is in flight for the same domain.
func crawler(pending *machine.Pending) machine.Machine {
	return machine.Func(func(evt event.Event) command.Command {
		switch e := evt.(type) {
		case crawlRequested:
			return crawlSite{Domain: e.Domain}
		case siteCrawled:
			if !pending.Mark(e.Domain) {
				return nil
			}
			return extractPosts{Domain: e.Domain, Pages: e.Pages}
		case postsExtracted:
			pending.Clear(e.Domain)
		}
		return nil
	})
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func fastConfig() cascade.Config {
	cfg := cascade.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Concurrency = 4
	cfg.ShutdownTimeout = time.Second
	return cfg
}

func newCrawlEngine(t *testing.T, opts ...engine.Option) (*engine.Engine[deps], deps) {
	t.Helper()
	d := newDeps()
	opts = append([]engine.Option{
		engine.WithConfig(fastConfig()),
		engine.WithLogger(discard()),
		engine.WithBackoff(backoff.NewConstant(10 * time.Millisecond)),
	}, opts...)
	eng, err := engine.New(memory.New(), d, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	engine.RegisterEffect[crawlSite, deps](eng, "crawl_site", effect.Func[crawlSite, deps](
		func(_ context.Context, cmd crawlSite, d deps) (event.Event, error) {
			d.crawls.Add(1)
			return siteCrawled{Domain: cmd.Domain, Pages: []string{"/", "/blog"}}, nil
		}))
	engine.RegisterEffect[extractPosts, deps](eng, "extract_posts", effect.Func[extractPosts, deps](
		func(_ context.Context, cmd extractPosts, d deps) (event.Event, error) {
			d.extracts.Add(1)
			d.posts.Add(int32(len(cmd.Pages)))
			return postsExtracted{Domain: cmd.Domain, Count: len(cmd.Pages)}, nil
		}))
	eng.RegisterMachine("crawler", crawler(machine.NewPending()))
	return eng, d
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// ──────────────────────────────────────────────────
// Cascade end to end
// ──────────────────────────────────────────────────

func TestEngine_CrawlCascade(t *testing.T) {
	eng, d := newCrawlEngine(t)
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(ctx) //nolint:errcheck // test cleanup

	if err := eng.Emit(ctx, crawlRequested{Domain: "example.org"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return d.extracts.Load() == 1 })

	if d.crawls.Load() != 1 {
		t.Errorf("crawls = %d, want 1", d.crawls.Load())
	}
	if d.posts.Load() != 2 {
		t.Errorf("posts = %d, want 2", d.posts.Load())
	}

	waitFor(t, 5*time.Second, func() bool {
		n, _ := eng.Store().CountJobs(ctx, job.CountOpts{Status: job.StatusSucceeded})
		return n == 2
	})
	crawls, err := eng.Store().ListJobs(ctx, job.ListOpts{JobType: "crawl_site"})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(crawls) != 1 || crawls[0].ReferenceID != "example.org" {
		t.Errorf("crawl jobs = %+v", crawls)
	}
}

func TestEngine_RedeliveredFactDeduplicated(t *testing.T) {
	eng, _ := newCrawlEngine(t)
	ctx := context.Background()

	fact := siteCrawled{Domain: "example.org", Pages: []string{"/"}}
	for range 3 {
		if err := eng.Emit(ctx, fact); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	n, err := eng.Store().CountJobs(ctx, job.CountOpts{JobType: "extract_posts"})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("extract jobs = %d, want 1", n)
	}
}

func TestEngine_IdempotencyKeyBacksUpMachineState(t *testing.T) {
	eng, _ := newCrawlEngine(t)
	// A second process has its own empty Pending set.
	eng.RegisterMachine("crawler-replica", crawler(machine.NewPending()))
	ctx := context.Background()

	if err := eng.Emit(ctx, siteCrawled{Domain: "example.org"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	n, _ := eng.Store().CountJobs(ctx, job.CountOpts{JobType: "extract_posts"})
	if n != 1 {
		t.Errorf("extract jobs = %d, want 1", n)
	}
}

// ──────────────────────────────────────────────────
// Dispatch
// ──────────────────────────────────────────────────

type greet struct {
	command.InlineMode
	Name string `json:"name"`
}

func (greet) JobType() string { return "greet" }

type greeted struct {
	Name string `json:"name"`
}

func (greeted) EventType() string { return "greeted" }

func TestEngine_InlineDispatch(t *testing.T) {
	eng, err := engine.New(memory.New(), struct{}{}, engine.WithLogger(discard()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	engine.RegisterEffect[greet, struct{}](eng, "greet", effect.Func[greet, struct{}](
		func(_ context.Context, cmd greet, _ struct{}) (event.Event, error) {
			return greeted{Name: cmd.Name}, nil
		}))

	var seen atomic.Value
	eng.RegisterMachine("audit", machine.Func(func(evt event.Event) command.Command {
		if g, ok := evt.(greeted); ok {
			seen.Store(g.Name)
		}
		return nil
	}))

	res, err := eng.Dispatch(context.Background(), greet{Name: "ada"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if res.Mode != command.Inline || !res.JobID.IsNil() {
		t.Errorf("result = %+v, want inline with no job", res)
	}
	if seen.Load() != "ada" {
		t.Errorf("machine saw %v, want ada", seen.Load())
	}
	if n, _ := eng.Store().CountJobs(context.Background(), job.CountOpts{}); n != 0 {
		t.Errorf("inline dispatch wrote %d jobs", n)
	}
}

func TestEngine_BackgroundDispatch(t *testing.T) {
	eng, _ := newCrawlEngine(t)
	ctx := context.Background()

	first, err := eng.Dispatch(ctx, crawlSite{Domain: "a.org"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if first.Mode != command.Background || first.JobID.IsNil() {
		t.Fatalf("result = %+v, want background job", first)
	}
	again, err := eng.Dispatch(ctx, crawlSite{Domain: "a.org"})
	if err != nil {
		t.Fatalf("Dispatch again: %v", err)
	}
	if again.JobID.String() != first.JobID.String() {
		t.Errorf("duplicate dispatch got %s, want %s", again.JobID, first.JobID)
	}

	j, err := eng.Store().GetJob(ctx, first.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != job.StatusPending || j.Version != 1 || j.MaxRetries != cascade.DefaultConfig().DefaultMaxRetries {
		t.Errorf("job = %+v", j)
	}
}

type unregistered struct{ command.InlineMode }

func (unregistered) JobType() string { return "nobody_home" }

func TestEngine_UnknownCommand(t *testing.T) {
	eng, _ := newCrawlEngine(t)
	if _, err := eng.Dispatch(context.Background(), unregistered{}); !errors.Is(err, cascade.ErrUnknownCommand) {
		t.Fatalf("Dispatch = %v, want ErrUnknownCommand", err)
	}
}

type versioned struct {
	command.BackgroundMode
}

func (versioned) JobType() string { return "versioned" }

func TestEngine_DispatchStampsRegisteredVersion(t *testing.T) {
	eng, err := engine.New(memory.New(), struct{}{}, engine.WithLogger(discard()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	engine.Register[versioned, struct{}](eng, "versioned", func(context.Context, versioned, struct{}) error { return nil },
		command.WithVersion(3))

	res, err := eng.Dispatch(context.Background(), versioned{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	j, _ := eng.Store().GetJob(context.Background(), res.JobID)
	if j.Version != 3 {
		t.Errorf("Version = %d, want 3", j.Version)
	}
}

// ──────────────────────────────────────────────────
// Cascade depth
// ──────────────────────────────────────────────────

type ping struct{}

func (ping) EventType() string { return "ping" }

type bounce struct{ command.InlineMode }

func (bounce) JobType() string { return "bounce" }

func TestEngine_CascadeTooDeep(t *testing.T) {
	cfg := cascade.DefaultConfig()
	cfg.MaxCascadeDepth = 4
	eng, err := engine.New(memory.New(), struct{}{}, engine.WithConfig(cfg), engine.WithLogger(discard()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	var runs atomic.Int32
	engine.RegisterEffect[bounce, struct{}](eng, "bounce", effect.Func[bounce, struct{}](
		func(context.Context, bounce, struct{}) (event.Event, error) {
			runs.Add(1)
			return ping{}, nil
		}))
	eng.RegisterMachine("loop", machine.Func(func(evt event.Event) command.Command {
		if _, ok := evt.(ping); ok {
			return bounce{}
		}
		return nil
	}))

	err = eng.Emit(context.Background(), ping{})
	if !errors.Is(err, cascade.ErrCascadeTooDeep) {
		t.Fatalf("Emit = %v, want ErrCascadeTooDeep", err)
	}
	if runs.Load() != 4 {
		t.Errorf("runs = %d, want 4", runs.Load())
	}
}

// ──────────────────────────────────────────────────
// Failures and dead letters
// ──────────────────────────────────────────────────

type chargeCard struct {
	command.BackgroundMode
	Cents int `json:"cents"`
}

func (chargeCard) JobType() string { return "charge_card" }

func TestEngine_FatalEffectDeadLettersAndReplays(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)

	eng, err := engine.New(memory.New(), struct{}{},
		engine.WithConfig(fastConfig()), engine.WithLogger(discard()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	var charged atomic.Int32
	engine.Register[chargeCard, struct{}](eng, "charge_card", func(_ context.Context, cmd chargeCard, _ struct{}) error {
		if fail.Load() {
			return job.Fatal(errors.New("card declined"))
		}
		charged.Add(int32(cmd.Cents))
		return nil
	})

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(ctx) //nolint:errcheck // test cleanup

	res, err := eng.Dispatch(ctx, chargeCard{Cents: 500})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool {
		n, _ := eng.DLQ().Count(ctx, "charge_card")
		return n == 1
	})

	entry, err := eng.DLQ().Get(ctx, res.JobID)
	if err != nil {
		t.Fatalf("DLQ Get: %v", err)
	}
	if entry.Reason != job.ReasonFatal || entry.RetryCount != 0 {
		t.Errorf("entry = %+v", entry)
	}

	fail.Store(false)
	if _, err := eng.DLQ().Replay(ctx, res.JobID); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return charged.Load() == 500 })
}

// ──────────────────────────────────────────────────
// Recurring jobs
// ──────────────────────────────────────────────────

type digest struct{ command.BackgroundMode }

func (digest) JobType() string { return "digest" }

type inlineDigest struct{ command.InlineMode }

func (inlineDigest) JobType() string { return "inline_digest" }

func TestEngine_Recurring(t *testing.T) {
	eng, err := engine.New(memory.New(), struct{}{}, engine.WithLogger(discard()))
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	engine.Register[digest, struct{}](eng, "digest", func(context.Context, digest, struct{}) error { return nil })
	ctx := context.Background()

	before := time.Now()
	jobID, err := eng.RegisterRecurring(ctx, digest{}, "@every 1h")
	if err != nil {
		t.Fatalf("RegisterRecurring: %v", err)
	}
	j, _ := eng.Store().GetJob(ctx, jobID)
	if j.Frequency != "@every 1h" || j.IdempotencyKey != "recurring:digest" {
		t.Errorf("job = %+v", j)
	}
	if j.NextRunAt.Before(before.Add(59 * time.Minute)) {
		t.Errorf("NextRunAt = %v, want about an hour out", j.NextRunAt)
	}

	again, err := eng.RegisterRecurring(ctx, digest{}, "@every 1h")
	if err != nil || again.String() != jobID.String() {
		t.Errorf("re-register = %s, %v; want %s", again, err, jobID)
	}

	if err := eng.DisableRecurring(ctx, "digest"); err != nil {
		t.Fatalf("DisableRecurring: %v", err)
	}
	if j, _ := eng.Store().GetJob(ctx, jobID); !j.Disabled() {
		t.Error("job not disabled")
	}
	if err := eng.EnableRecurring(ctx, "digest"); err != nil {
		t.Fatalf("EnableRecurring: %v", err)
	}
	if j, _ := eng.Store().GetJob(ctx, jobID); j.Disabled() {
		t.Error("job still disabled")
	}

	if err := eng.DisableRecurring(ctx, "missing"); !errors.Is(err, cascade.ErrRecurringNotFound) {
		t.Errorf("DisableRecurring(missing) = %v, want ErrRecurringNotFound", err)
	}
	if _, err := eng.RegisterRecurring(ctx, digest{}, "sometimes"); !errors.Is(err, cascade.ErrInvalidFrequency) {
		t.Errorf("RegisterRecurring(bad) = %v, want ErrInvalidFrequency", err)
	}
	if _, err := eng.RegisterRecurring(ctx, unregistered{}, "@daily"); !errors.Is(err, cascade.ErrUnknownCommand) {
		t.Errorf("RegisterRecurring(unknown) = %v, want ErrUnknownCommand", err)
	}

	engine.Register[inlineDigest, struct{}](eng, "inline_digest", func(context.Context, inlineDigest, struct{}) error { return nil })
	if _, err := eng.RegisterRecurring(ctx, inlineDigest{}, "daily"); !errors.Is(err, cascade.ErrInlineOnly) {
		t.Errorf("RegisterRecurring(inline) = %v, want ErrInlineOnly", err)
	}
}

// ──────────────────────────────────────────────────
// Construction
// ──────────────────────────────────────────────────

func TestEngine_NilStore(t *testing.T) {
	if _, err := engine.New[struct{}](nil, struct{}{}); !errors.Is(err, cascade.ErrNoStore) {
		t.Fatalf("New(nil) = %v, want ErrNoStore", err)
	}
}

func TestEngine_StartTwice(t *testing.T) {
	eng, _ := newCrawlEngine(t)
	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer eng.Stop(ctx) //nolint:errcheck // test cleanup
	if err := eng.Start(ctx); !errors.Is(err, cascade.ErrAlreadyStarted) {
		t.Errorf("second Start = %v, want ErrAlreadyStarted", err)
	}
}
