package cascade_test

import (
	"testing"
	"time"

	"github.com/xraph/cascade"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := cascade.NewConfig()
	want := cascade.DefaultConfig()
	if cfg != want {
		t.Fatalf("NewConfig() = %+v, want %+v", cfg, want)
	}
}

func TestNewConfig_HeartbeatDerivedFromLease(t *testing.T) {
	cfg := cascade.NewConfig(cascade.WithLease(9*time.Second, 0))
	if cfg.HeartbeatInterval != 3*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 3s", cfg.HeartbeatInterval)
	}

	cfg = cascade.NewConfig(cascade.WithLease(6*time.Second, 10*time.Second))
	if cfg.HeartbeatInterval != 2*time.Second {
		t.Errorf("HeartbeatInterval = %v, want 2s when heartbeat exceeds lease", cfg.HeartbeatInterval)
	}
}

func TestNewConfig_BatchFollowsConcurrency(t *testing.T) {
	cfg := cascade.NewConfig(cascade.WithConcurrency(4), cascade.WithBatchSize(0))
	if cfg.BatchSize != 4 {
		t.Errorf("BatchSize = %d, want 4", cfg.BatchSize)
	}
}

func TestNewEntity(t *testing.T) {
	e := cascade.NewEntity()
	if e.CreatedAt.IsZero() || !e.CreatedAt.Equal(e.UpdatedAt) {
		t.Fatalf("NewEntity() = %+v, want equal non-zero timestamps", e)
	}
	before := e.UpdatedAt
	time.Sleep(time.Millisecond)
	e.Touch()
	if !e.UpdatedAt.After(before) {
		t.Error("Touch did not advance UpdatedAt")
	}
}
