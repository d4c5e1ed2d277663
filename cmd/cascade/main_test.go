package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/cron"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/store/memory"
)

func run(t *testing.T, s store.Store, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(context.Context, *globals) (store.Store, error) { return s, nil })
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func seed(t *testing.T, s *memory.Store, jobs ...*job.Job) {
	t.Helper()
	for _, j := range jobs {
		if _, _, err := s.InsertJob(context.Background(), j); err != nil {
			t.Fatal(err)
		}
	}
}

func newJob(jobType string) *job.Job {
	return &job.Job{ID: id.NewJobID(), JobType: jobType, MaxRetries: 3, Args: []byte(`{"domain":"example.com"}`)}
}

func deadLetter(t *testing.T, s *memory.Store) *job.Job {
	t.Helper()
	ctx := context.Background()
	workerID := id.NewWorkerID()
	claimed, err := s.ClaimJobs(ctx, workerID, 1, time.Minute)
	if err != nil || len(claimed) != 1 {
		t.Fatalf("claim = %d, %v", len(claimed), err)
	}
	if err := s.DeadLetterJob(ctx, claimed[0].ID, workerID, "parse failed", job.KindFatal, job.ReasonFatal); err != nil {
		t.Fatal(err)
	}
	return claimed[0]
}

func TestJobsList(t *testing.T) {
	s := memory.New()
	a, b := newJob("crawl_site"), newJob("extract_posts")
	seed(t, s, a, b)

	out, err := run(t, s, "jobs", "list", "--type", "crawl_site")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, a.ID.String()) || strings.Contains(out, b.ID.String()) {
		t.Errorf("list output:\n%s", out)
	}

	out, err = run(t, s, "jobs", "list", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var listed []*job.Job
	if err := json.Unmarshal([]byte(out), &listed); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if len(listed) != 2 {
		t.Errorf("listed %d jobs, want 2", len(listed))
	}

	if _, err := run(t, s, "jobs", "list", "--status", "bogus"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestJobsGetAndCount(t *testing.T) {
	s := memory.New()
	j := newJob("crawl_site")
	seed(t, s, j, newJob("crawl_site"))

	out, err := run(t, s, "jobs", "get", j.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "crawl_site") || !strings.Contains(out, "example.com") {
		t.Errorf("get output:\n%s", out)
	}

	if _, err := run(t, s, "jobs", "get", "not-an-id"); err == nil {
		t.Error("expected parse error")
	}
	if _, err := run(t, s, "jobs", "get", id.NewJobID().String()); !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}

	out, err = run(t, s, "jobs", "count", "-o", "json")
	if err != nil {
		t.Fatal(err)
	}
	var counts map[string]int64
	if err := json.Unmarshal([]byte(out), &counts); err != nil {
		t.Fatal(err)
	}
	if counts["pending"] != 2 || counts["dead_letter"] != 0 {
		t.Errorf("counts = %v", counts)
	}
}

func TestDLQListAndReplay(t *testing.T) {
	s := memory.New()
	seed(t, s, newJob("crawl_site"))
	dead := deadLetter(t, s)

	out, err := run(t, s, "dlq", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, dead.ID.String()) || !strings.Contains(out, job.ReasonFatal) {
		t.Errorf("dlq list output:\n%s", out)
	}

	if _, err := run(t, s, "dlq", "replay"); err == nil {
		t.Error("expected error without job ID or --all")
	}

	out, err = run(t, s, "dlq", "replay", dead.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "replayed "+dead.ID.String()) {
		t.Errorf("replay output: %q", out)
	}

	got, err := s.GetJob(context.Background(), dead.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != job.StatusPending || got.RetryCount != 0 {
		t.Errorf("after replay: status=%s retries=%d", got.Status, got.RetryCount)
	}
}

func TestDLQReplayAll(t *testing.T) {
	s := memory.New()
	seed(t, s, newJob("crawl_site"))
	deadLetter(t, s)
	seed(t, s, newJob("crawl_site"))
	deadLetter(t, s)

	out, err := run(t, s, "dlq", "replay", "--all", "--type", "crawl_site")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "replayed 2 job(s)") {
		t.Errorf("replay-all output: %q", out)
	}
}

func TestRecurringToggle(t *testing.T) {
	s := memory.New()
	j := newJob("refresh_feeds")
	j.Frequency = "@hourly"
	j.IdempotencyKey = cron.RecurringKey("refresh_feeds")
	seed(t, s, j)

	if _, err := run(t, s, "recurring", "disable", "refresh_feeds"); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetJob(context.Background(), j.ID)
	if !got.Disabled() {
		t.Fatal("job not disabled")
	}

	out, err := run(t, s, "recurring", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "(disabled)") {
		t.Errorf("recurring list output:\n%s", out)
	}

	if _, err := run(t, s, "recurring", "enable", "refresh_feeds"); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetJob(context.Background(), j.ID)
	if got.Disabled() {
		t.Fatal("job still disabled")
	}

	if _, err := run(t, s, "recurring", "disable", "missing"); !errors.Is(err, cascade.ErrRecurringNotFound) {
		t.Errorf("err = %v, want ErrRecurringNotFound", err)
	}
}

func TestMigrate(t *testing.T) {
	out, err := run(t, memory.New(), "migrate")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "ok" {
		t.Errorf("migrate output: %q", out)
	}
}

func TestGlobalFlagValidation(t *testing.T) {
	s := memory.New()
	if _, err := run(t, s, "jobs", "list", "-o", "yaml"); err == nil {
		t.Error("expected error for unknown output format")
	}
	if _, err := run(t, s, "jobs", "list", "--log-format", "xml"); err == nil {
		t.Error("expected error for unknown log format")
	}
}

func TestDefaultOpenerRequiresBackend(t *testing.T) {
	t.Setenv(envDatabaseURL, "")
	t.Setenv(envRedisAddr, "")
	cmd := newRootCmd(defaultOpener)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"jobs", "list"})
	if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, errNoBackend) {
		t.Errorf("err = %v, want errNoBackend", err)
	}
}
