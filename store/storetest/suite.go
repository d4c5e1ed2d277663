// Package storetest holds the behavioural suite every job store backend
// must pass. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/store"
)

// Factory returns a fresh, empty, migrated store.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertAndGet", testInsertAndGet},
		{"IdempotentInsert", testIdempotentInsert},
		{"KeyReleasedOnTerminal", testKeyReleasedOnTerminal},
		{"ClaimOrdering", testClaimOrdering},
		{"ClaimSkipsFutureAndDisabled", testClaimSkipsFutureAndDisabled},
		{"ExclusiveClaim", testExclusiveClaim},
		{"LeaseReclamation", testLeaseReclamation},
		{"HeartbeatProtectsLease", testHeartbeatProtectsLease},
		{"StaleWorkerRejected", testStaleWorkerRejected},
		{"RetryAndDeadLetter", testRetryAndDeadLetter},
		{"Reschedule", testReschedule},
		{"Release", testRelease},
		{"Requeue", testRequeue},
		{"ListAndCount", testListAndCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

// Lease is the lease used by suite claims. Stores with second-granularity
// clocks must still honour it.
const Lease = 2 * time.Second

// NewJob builds a pending job due now.
func NewJob(jobType string, opts ...func(*job.Job)) *job.Job {
	j := &job.Job{
		Entity:     cascade.NewEntity(),
		ID:         id.NewJobID(),
		JobType:    jobType,
		Version:    1,
		Args:       []byte(`{"n":1}`),
		Status:     job.StatusPending,
		MaxRetries: 3,
		NextRunAt:  time.Now().UTC().Add(-time.Second),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func insert(t *testing.T, s store.Store, j *job.Job) id.JobID {
	t.Helper()
	jobID, inserted, err := s.InsertJob(context.Background(), j)
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if !inserted {
		t.Fatalf("InsertJob: job %s unexpectedly deduplicated", j.ID)
	}
	return jobID
}

func claimOne(t *testing.T, s store.Store, workerID id.WorkerID) *job.Job {
	t.Helper()
	claimed, err := s.ClaimJobs(context.Background(), workerID, 1, Lease)
	if err != nil {
		t.Fatalf("ClaimJobs: %v", err)
	}
	if len(claimed) != 1 {
		t.Fatalf("ClaimJobs returned %d jobs, want 1", len(claimed))
	}
	return claimed[0]
}

func get(t *testing.T, s store.Store, jobID id.JobID) *job.Job {
	t.Helper()
	j, err := s.GetJob(context.Background(), jobID)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", jobID, err)
	}
	return j
}

func testInsertAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("send_email", func(j *job.Job) {
		j.ReferenceID = "user-1"
		j.Priority = 4
		j.Frequency = "@daily"
	})
	jobID := insert(t, s, j)

	got := get(t, s, jobID)
	if got.JobType != "send_email" || got.Status != job.StatusPending {
		t.Errorf("got %s/%s, want send_email/pending", got.JobType, got.Status)
	}
	if string(got.Args) != `{"n":1}` {
		t.Errorf("Args = %s", got.Args)
	}
	if got.ReferenceID != "user-1" || got.Priority != 4 || got.Frequency != "@daily" || got.MaxRetries != 3 {
		t.Errorf("metadata not persisted: %+v", got)
	}

	if _, err := s.GetJob(ctx, id.NewJobID()); !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("GetJob(unknown) = %v, want ErrJobNotFound", err)
	}
}

func testIdempotentInsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := NewJob("crawl", func(j *job.Job) { j.IdempotencyKey = "crawl:example.org" })
	firstID := insert(t, s, first)

	second := NewJob("crawl", func(j *job.Job) { j.IdempotencyKey = "crawl:example.org" })
	gotID, inserted, err := s.InsertJob(ctx, second)
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if inserted {
		t.Fatal("second insert with same key should be deduplicated")
	}
	if gotID.String() != firstID.String() {
		t.Errorf("dedup returned %s, want %s", gotID, firstID)
	}

	n, err := s.CountJobs(ctx, job.CountOpts{JobType: "crawl"})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("CountJobs = %d, want 1", n)
	}

	// Still deduplicated while running.
	w := id.NewWorkerID()
	claimOne(t, s, w)
	_, inserted, err = s.InsertJob(ctx, NewJob("crawl", func(j *job.Job) { j.IdempotencyKey = "crawl:example.org" }))
	if err != nil || inserted {
		t.Fatalf("insert while running: inserted=%v err=%v", inserted, err)
	}

	byKey, err := s.GetJobByKey(ctx, "crawl:example.org")
	if err != nil {
		t.Fatalf("GetJobByKey: %v", err)
	}
	if byKey.ID.String() != firstID.String() {
		t.Errorf("GetJobByKey = %s, want %s", byKey.ID, firstID)
	}
}

func testKeyReleasedOnTerminal(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := id.NewWorkerID()
	firstID := insert(t, s, NewJob("crawl", func(j *job.Job) { j.IdempotencyKey = "k" }))
	claimOne(t, s, w)
	if err := s.CompleteJob(ctx, firstID, w); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	secondID, inserted, err := s.InsertJob(ctx, NewJob("crawl", func(j *job.Job) { j.IdempotencyKey = "k" }))
	if err != nil {
		t.Fatalf("InsertJob: %v", err)
	}
	if !inserted || secondID.String() == firstID.String() {
		t.Fatalf("key should be free after success: inserted=%v id=%s", inserted, secondID)
	}
	if _, err := s.GetJobByKey(ctx, "unknown"); !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("GetJobByKey(unknown) = %v, want ErrJobNotFound", err)
	}
}

func testClaimOrdering(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	low := insert(t, s, NewJob("a", func(j *job.Job) { j.NextRunAt = now.Add(-3 * time.Second) }))
	high := insert(t, s, NewJob("a", func(j *job.Job) { j.Priority = 10; j.NextRunAt = now.Add(-time.Second) }))
	older := insert(t, s, NewJob("a", func(j *job.Job) { j.NextRunAt = now.Add(-5 * time.Second) }))

	claimed, err := s.ClaimJobs(ctx, id.NewWorkerID(), 10, Lease)
	if err != nil {
		t.Fatalf("ClaimJobs: %v", err)
	}
	want := []id.JobID{high, older, low}
	if len(claimed) != len(want) {
		t.Fatalf("claimed %d jobs, want %d", len(claimed), len(want))
	}
	for i, w := range want {
		if claimed[i].ID.String() != w.String() {
			t.Errorf("claimed[%d] = %s, want %s", i, claimed[i].ID, w)
		}
		if claimed[i].Status != job.StatusRunning || claimed[i].LeaseExpiresAt == nil || claimed[i].LastRunAt == nil {
			t.Errorf("claimed[%d] not leased: %+v", i, claimed[i])
		}
	}
}

func testClaimSkipsFutureAndDisabled(t *testing.T, s store.Store) {
	ctx := context.Background()
	insert(t, s, NewJob("later", func(j *job.Job) { j.NextRunAt = time.Now().UTC().Add(time.Hour) }))
	disabled := insert(t, s, NewJob("off"))
	if err := s.SetJobDisabled(ctx, disabled, true); err != nil {
		t.Fatalf("SetJobDisabled: %v", err)
	}

	claimed, err := s.ClaimJobs(ctx, id.NewWorkerID(), 10, Lease)
	if err != nil {
		t.Fatalf("ClaimJobs: %v", err)
	}
	if len(claimed) != 0 {
		t.Fatalf("claimed %d jobs, want 0", len(claimed))
	}

	if err := s.SetJobDisabled(ctx, disabled, false); err != nil {
		t.Fatalf("SetJobDisabled(false): %v", err)
	}
	got := claimOne(t, s, id.NewWorkerID())
	if got.ID.String() != disabled.String() {
		t.Errorf("claimed %s, want re-enabled %s", got.ID, disabled)
	}
}

func testExclusiveClaim(t *testing.T, s store.Store) {
	const (
		jobs    = 40
		workers = 8
	)
	for i := range jobs {
		insert(t, s, NewJob(fmt.Sprintf("j%d", i)))
	}

	var (
		mu   sync.Mutex
		seen = make(map[string]int)
		wg   sync.WaitGroup
		errs = make(chan error, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := id.NewWorkerID()
			for {
				claimed, err := s.ClaimJobs(context.Background(), w, 3, time.Minute)
				if err != nil {
					errs <- err
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, j := range claimed {
					seen[j.ID.String()]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("ClaimJobs: %v", err)
	}

	if len(seen) != jobs {
		t.Errorf("claimed %d distinct jobs, want %d", len(seen), jobs)
	}
	for jobID, n := range seen {
		if n != 1 {
			t.Errorf("job %s claimed %d times", jobID, n)
		}
	}
}

func testLeaseReclamation(t *testing.T, s store.Store) {
	ctx := context.Background()
	insert(t, s, NewJob("slow"))

	a, b := id.NewWorkerID(), id.NewWorkerID()
	if _, err := s.ClaimJobs(ctx, a, 1, 500*time.Millisecond); err != nil {
		t.Fatalf("ClaimJobs(a): %v", err)
	}
	if claimed, _ := s.ClaimJobs(ctx, b, 1, Lease); len(claimed) != 0 {
		t.Fatal("job claimed twice while lease valid")
	}

	time.Sleep(1500 * time.Millisecond)

	got := claimOne(t, s, b)
	if got.WorkerID.String() != b.String() {
		t.Errorf("WorkerID = %s, want %s", got.WorkerID, b)
	}
}

func testHeartbeatProtectsLease(t *testing.T, s store.Store) {
	ctx := context.Background()
	jobID := insert(t, s, NewJob("slow"))

	a, b := id.NewWorkerID(), id.NewWorkerID()
	if _, err := s.ClaimJobs(ctx, a, 1, time.Second); err != nil {
		t.Fatalf("ClaimJobs(a): %v", err)
	}
	time.Sleep(500 * time.Millisecond)
	if err := s.HeartbeatJob(ctx, jobID, a, 5*time.Second); err != nil {
		t.Fatalf("HeartbeatJob: %v", err)
	}
	time.Sleep(1200 * time.Millisecond)

	claimed, err := s.ClaimJobs(ctx, b, 1, Lease)
	if err != nil {
		t.Fatalf("ClaimJobs(b): %v", err)
	}
	if len(claimed) != 0 {
		t.Fatal("heartbeat did not protect the lease")
	}
}

func testStaleWorkerRejected(t *testing.T, s store.Store) {
	ctx := context.Background()
	jobID := insert(t, s, NewJob("x"))
	owner := id.NewWorkerID()
	claimOne(t, s, owner)

	stranger := id.NewWorkerID()
	checks := map[string]error{
		"heartbeat":   s.HeartbeatJob(ctx, jobID, stranger, Lease),
		"complete":    s.CompleteJob(ctx, jobID, stranger),
		"retry":       s.RetryJob(ctx, jobID, stranger, time.Now(), "x", job.KindRetryable),
		"dead letter": s.DeadLetterJob(ctx, jobID, stranger, "x", job.KindFatal, job.ReasonFatal),
		"reschedule":  s.RescheduleJob(ctx, jobID, stranger, time.Now()),
		"release":     s.ReleaseJob(ctx, jobID, stranger, time.Now()),
	}
	for name, err := range checks {
		if !errors.Is(err, job.ErrLeaseLost) {
			t.Errorf("%s by stranger = %v, want ErrLeaseLost", name, err)
		}
	}

	if got := get(t, s, jobID); got.Status != job.StatusRunning {
		t.Errorf("Status = %s, want running", got.Status)
	}
	if err := s.CompleteJob(ctx, id.NewJobID(), owner); !errors.Is(err, job.ErrJobNotFound) && !errors.Is(err, job.ErrLeaseLost) {
		t.Errorf("CompleteJob(unknown) = %v", err)
	}
}

func testRetryAndDeadLetter(t *testing.T, s store.Store) {
	ctx := context.Background()
	jobID := insert(t, s, NewJob("flaky", func(j *job.Job) { j.IdempotencyKey = "flaky" }))
	w := id.NewWorkerID()

	claimOne(t, s, w)
	if err := s.RetryJob(ctx, jobID, w, time.Now().UTC().Add(-time.Millisecond), "timeout", job.KindRetryable); err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	got := get(t, s, jobID)
	if got.Status != job.StatusPending || got.RetryCount != 1 || got.ErrorMessage != "timeout" || got.ErrorKind != job.KindRetryable {
		t.Fatalf("after retry: %+v", got)
	}
	if got.LeaseExpiresAt != nil || !got.WorkerID.IsNil() {
		t.Errorf("lease not cleared: %+v", got)
	}

	claimOne(t, s, w)
	if err := s.DeadLetterJob(ctx, jobID, w, "bad payload", job.KindFatal, job.ReasonFatal); err != nil {
		t.Fatalf("DeadLetterJob: %v", err)
	}
	got = get(t, s, jobID)
	if got.Status != job.StatusDeadLetter || got.DeadLetteredAt == nil || got.DeadLetterReason != job.ReasonFatal {
		t.Fatalf("after dead letter: %+v", got)
	}
	if got.ErrorKind != job.KindFatal || got.ErrorMessage != "bad payload" {
		t.Errorf("error not recorded: %+v", got)
	}
	if claimed, _ := s.ClaimJobs(ctx, w, 10, Lease); len(claimed) != 0 {
		t.Error("dead-lettered job was claimed")
	}
	if _, inserted, _ := s.InsertJob(ctx, NewJob("flaky", func(j *job.Job) { j.IdempotencyKey = "flaky" })); !inserted {
		t.Error("dead-lettered job should release its key")
	}
}

func testReschedule(t *testing.T, s store.Store) {
	ctx := context.Background()
	jobID := insert(t, s, NewJob("digest", func(j *job.Job) { j.Frequency = "@daily"; j.IdempotencyKey = "recurring:digest" }))
	w := id.NewWorkerID()

	claimOne(t, s, w)
	if err := s.RetryJob(ctx, jobID, w, time.Now().UTC().Add(-time.Millisecond), "flake", job.KindRetryable); err != nil {
		t.Fatalf("RetryJob: %v", err)
	}
	claimOne(t, s, w)

	next := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	if err := s.RescheduleJob(ctx, jobID, w, next); err != nil {
		t.Fatalf("RescheduleJob: %v", err)
	}
	got := get(t, s, jobID)
	if got.Status != job.StatusPending || got.RetryCount != 0 || got.ErrorMessage != "" {
		t.Errorf("after reschedule: %+v", got)
	}
	if !got.NextRunAt.Equal(next) {
		t.Errorf("NextRunAt = %v, want %v", got.NextRunAt, next)
	}
	if _, inserted, _ := s.InsertJob(ctx, NewJob("digest", func(j *job.Job) { j.IdempotencyKey = "recurring:digest" })); inserted {
		t.Error("rescheduled job should keep its key")
	}
}

func testRelease(t *testing.T, s store.Store) {
	ctx := context.Background()
	jobID := insert(t, s, NewJob("throttled"))
	w := id.NewWorkerID()
	claimOne(t, s, w)

	if err := s.ReleaseJob(ctx, jobID, w, time.Now().UTC().Add(-time.Millisecond)); err != nil {
		t.Fatalf("ReleaseJob: %v", err)
	}
	got := get(t, s, jobID)
	if got.Status != job.StatusPending || got.RetryCount != 0 {
		t.Errorf("after release: %+v", got)
	}
	claimOne(t, s, id.NewWorkerID())
}

func testRequeue(t *testing.T, s store.Store) {
	ctx := context.Background()
	jobID := insert(t, s, NewJob("dead", func(j *job.Job) { j.IdempotencyKey = "dead" }))
	w := id.NewWorkerID()

	if _, err := s.RequeueJob(ctx, jobID, time.Now()); !errors.Is(err, job.ErrNotDeadLettered) {
		t.Errorf("RequeueJob(pending) = %v, want ErrNotDeadLettered", err)
	}

	claimOne(t, s, w)
	if err := s.DeadLetterJob(ctx, jobID, w, "boom", job.KindFatal, job.ReasonFatal); err != nil {
		t.Fatalf("DeadLetterJob: %v", err)
	}
	gotID, err := s.RequeueJob(ctx, jobID, time.Now().UTC().Add(-time.Millisecond))
	if err != nil {
		t.Fatalf("RequeueJob: %v", err)
	}
	if gotID.String() != jobID.String() {
		t.Errorf("RequeueJob = %s, want %s", gotID, jobID)
	}
	got := get(t, s, jobID)
	if got.Status != job.StatusPending || got.RetryCount != 0 || got.DeadLetteredAt != nil || got.ErrorMessage != "" {
		t.Errorf("after requeue: %+v", got)
	}
	if _, inserted, _ := s.InsertJob(ctx, NewJob("dead", func(j *job.Job) { j.IdempotencyKey = "dead" })); inserted {
		t.Error("requeued job should hold its key again")
	}
	if _, err := s.RequeueJob(ctx, id.NewJobID(), time.Now()); !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("RequeueJob(unknown) = %v, want ErrJobNotFound", err)
	}
}

func testListAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i := range 5 {
		insert(t, s, NewJob("list", func(j *job.Job) { j.ReferenceID = fmt.Sprintf("ref-%d", i%2) }))
	}
	insert(t, s, NewJob("other"))

	all, err := s.ListJobs(ctx, job.ListOpts{JobType: "list"})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("ListJobs = %d, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].ID.Compare(all[i].ID) > 0 {
			t.Error("ListJobs not ordered by creation")
		}
	}

	page, err := s.ListJobs(ctx, job.ListOpts{JobType: "list", Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListJobs(page): %v", err)
	}
	if len(page) != 2 || page[0].ID.String() != all[1].ID.String() {
		t.Errorf("page = %d jobs starting %v", len(page), page)
	}

	byRef, err := s.ListJobs(ctx, job.ListOpts{ReferenceID: "ref-0"})
	if err != nil {
		t.Fatalf("ListJobs(ref): %v", err)
	}
	if len(byRef) != 3 {
		t.Errorf("ListJobs(ref-0) = %d, want 3", len(byRef))
	}

	n, err := s.CountJobs(ctx, job.CountOpts{Status: job.StatusPending})
	if err != nil {
		t.Fatalf("CountJobs: %v", err)
	}
	if n != 6 {
		t.Errorf("CountJobs(pending) = %d, want 6", n)
	}
}
