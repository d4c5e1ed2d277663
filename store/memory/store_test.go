package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/store"
	"github.com/xraph/cascade/store/memory"
	"github.com/xraph/cascade/store/storetest"
)

func TestStore(t *testing.T) {
	t.Parallel()
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestStore_LeaseExpiryWithClock(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := memory.New(memory.WithClock(func() time.Time { return now }))

	j := storetest.NewJob("slow", func(j *job.Job) { j.NextRunAt = now })
	if _, _, err := s.InsertJob(ctx, j); err != nil {
		t.Fatalf("InsertJob: %v", err)
	}

	a, b := id.NewWorkerID(), id.NewWorkerID()
	if got, _ := s.ClaimJobs(ctx, a, 1, 30*time.Second); len(got) != 1 {
		t.Fatalf("claim(a) = %d jobs, want 1", len(got))
	}

	now = now.Add(29 * time.Second)
	if got, _ := s.ClaimJobs(ctx, b, 1, 30*time.Second); len(got) != 0 {
		t.Fatal("claimed before lease expiry")
	}

	now = now.Add(2 * time.Second)
	got, _ := s.ClaimJobs(ctx, b, 1, 30*time.Second)
	if len(got) != 1 {
		t.Fatal("expected reclaim after lease expiry")
	}
	if !got[0].LeaseExpiresAt.Equal(now.Add(30 * time.Second)) {
		t.Errorf("LeaseExpiresAt = %v, want %v", got[0].LeaseExpiresAt, now.Add(30*time.Second))
	}

	if err := s.CompleteJob(ctx, j.ID, a); err == nil {
		t.Error("original worker completed a reclaimed job")
	}
}
