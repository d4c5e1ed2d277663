package dlq_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/cascade/dlq"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/store/memory"
	"github.com/xraph/cascade/store/storetest"
)

// deadLetter inserts a job and drives it to dead_letter.
func deadLetter(t *testing.T, s *memory.Store, jobType, key string) id.JobID {
	t.Helper()
	ctx := context.Background()
	j := storetest.NewJob(jobType, func(j *job.Job) {
		j.IdempotencyKey = key
		j.Args = []byte(`{"domain":"example.org"}`)
	})
	jobID, _, err := s.InsertJob(ctx, j)
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	w := id.NewWorkerID()
	if _, err := s.ClaimJobs(ctx, w, 1, storetest.Lease); err != nil {
		t.Fatalf("ClaimJobs: %v", err)
	}
	if err := s.DeadLetterJob(ctx, jobID, w, "smtp timeout", job.KindRetryable, job.ReasonMaxRetries); err != nil {
		t.Fatalf("DeadLetterJob: %v", err)
	}
	return jobID
}

func TestService_ListGetCount(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s)
	ctx := context.Background()

	crawl := deadLetter(t, s, "crawl_site", "")
	deadLetter(t, s, "sync_posts", "")
	if _, _, err := s.InsertJob(ctx, storetest.NewJob("crawl_site")); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	entries, err := svc.List(ctx, dlq.ListOpts{JobType: "crawl_site"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("List = %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.JobID.String() != crawl.String() || e.Error != "smtp timeout" || e.Reason != job.ReasonMaxRetries {
		t.Errorf("entry = %+v", e)
	}
	if string(e.Payload) != `{"domain":"example.org"}` || e.DeadLetteredAt.IsZero() {
		t.Errorf("entry payload/time = %q %v", e.Payload, e.DeadLetteredAt)
	}

	n, err := svc.Count(ctx, "")
	if err != nil || n != 2 {
		t.Errorf("Count = %d, %v; want 2", n, err)
	}

	if _, err := svc.Get(ctx, crawl); err != nil {
		t.Errorf("Get: %v", err)
	}
}

func TestService_GetRejectsActiveJob(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s)

	jobID, _, _ := s.InsertJob(context.Background(), storetest.NewJob("crawl_site"))
	if _, err := svc.Get(context.Background(), jobID); !errors.Is(err, job.ErrNotDeadLettered) {
		t.Errorf("Get(pending) = %v, want ErrNotDeadLettered", err)
	}
	if _, err := svc.Get(context.Background(), id.NewJobID()); !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("Get(missing) = %v, want ErrJobNotFound", err)
	}
}

func TestService_Replay(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s)
	ctx := context.Background()

	jobID := deadLetter(t, s, "crawl_site", "crawl:example.org")
	got, err := svc.Replay(ctx, jobID)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if got.String() != jobID.String() {
		t.Errorf("Replay = %s, want %s", got, jobID)
	}

	j, _ := s.GetJob(ctx, jobID)
	if j.Status != job.StatusPending || j.RetryCount != 0 || j.ErrorMessage != "" || j.DeadLetteredAt != nil {
		t.Errorf("replayed job = %+v", j)
	}
	if _, err := svc.Replay(ctx, jobID); !errors.Is(err, job.ErrNotDeadLettered) {
		t.Errorf("second Replay = %v, want ErrNotDeadLettered", err)
	}
}

func TestService_ReplaySupersededByActiveJob(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s)
	ctx := context.Background()

	dead := deadLetter(t, s, "crawl_site", "crawl:example.org")
	active, inserted, err := s.InsertJob(ctx, storetest.NewJob("crawl_site", func(j *job.Job) {
		j.IdempotencyKey = "crawl:example.org"
	}))
	if err != nil || !inserted {
		t.Fatalf("InsertJob = %v, %v", inserted, err)
	}

	got, err := svc.Replay(ctx, dead)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if got.String() != active.String() {
		t.Errorf("Replay = %s, want active job %s", got, active)
	}
	if e, err := svc.Get(ctx, dead); err != nil || e == nil {
		t.Errorf("superseded dead letter should stay: %v", err)
	}
}

func TestService_ReplayAll(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s)
	ctx := context.Background()

	for range 3 {
		deadLetter(t, s, "crawl_site", "")
	}
	deadLetter(t, s, "sync_posts", "")

	n, err := svc.ReplayAll(ctx, "crawl_site")
	if err != nil || n != 3 {
		t.Fatalf("ReplayAll = %d, %v; want 3", n, err)
	}
	left, _ := svc.Count(ctx, "")
	if left != 1 {
		t.Errorf("remaining dead letters = %d, want 1", left)
	}
}

func TestService_ReplayAllPagesPastSuperseded(t *testing.T) {
	s := memory.New()
	svc := dlq.NewService(s)
	ctx := context.Background()

	// A full page of dead letters whose key another job now holds.
	for range 100 {
		deadLetter(t, s, "crawl_site", "crawl:example.org")
	}
	time.Sleep(2 * time.Millisecond)
	later := deadLetter(t, s, "crawl_site", "")
	if _, inserted, err := s.InsertJob(ctx, storetest.NewJob("crawl_site", func(j *job.Job) {
		j.IdempotencyKey = "crawl:example.org"
	})); err != nil || !inserted {
		t.Fatalf("InsertJob = %v, %v", inserted, err)
	}

	n, err := svc.ReplayAll(ctx, "crawl_site")
	if err != nil || n != 1 {
		t.Fatalf("ReplayAll = %d, %v; want 1", n, err)
	}
	j, _ := s.GetJob(ctx, later)
	if j.Status != job.StatusPending {
		t.Errorf("later dead letter status = %s, want pending", j.Status)
	}
	if left, _ := svc.Count(ctx, "crawl_site"); left != 100 {
		t.Errorf("remaining dead letters = %d, want 100", left)
	}
}
