package machine_test

import (
	"testing"
	"time"

	"github.com/xraph/cascade/command"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/machine"
)

type siteCrawled struct{ Domain string }

func (siteCrawled) EventType() string { return "site_crawled" }

type other struct{}

func (other) EventType() string { return "other" }

type extractPosts struct {
	command.BackgroundMode
	Domain string
}

func (extractPosts) JobType() string { return "extract_posts" }

func TestFunc_Decide(t *testing.T) {
	m := machine.Func(func(evt event.Event) command.Command {
		if e, ok := evt.(siteCrawled); ok {
			return extractPosts{Domain: e.Domain}
		}
		return nil
	})

	cmd := m.Decide(siteCrawled{Domain: "example.org"})
	if got, ok := cmd.(extractPosts); !ok || got.Domain != "example.org" {
		t.Errorf("Decide = %#v", cmd)
	}
	if cmd := m.Decide(other{}); cmd != nil {
		t.Errorf("Decide(other) = %#v, want nil", cmd)
	}
}

func TestPending_MarkAndClear(t *testing.T) {
	p := machine.NewPending()

	if !p.Mark("example.org") {
		t.Fatal("first Mark should succeed")
	}
	if p.Mark("example.org") {
		t.Fatal("second Mark should report already pending")
	}
	if !p.Has("example.org") || p.Len() != 1 {
		t.Fatal("key should be pending")
	}

	p.Clear("example.org")
	if p.Has("example.org") {
		t.Fatal("key should be cleared")
	}
	if !p.Mark("example.org") {
		t.Fatal("Mark after Clear should succeed")
	}
}

func TestPending_TTL(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	p := machine.NewPending(
		machine.WithTTL(time.Minute),
		machine.WithClock(func() time.Time { return now }),
	)

	p.Mark("a")
	p.Mark("b")
	now = now.Add(30 * time.Second)
	p.Mark("b") // still pending, timestamp unchanged
	if p.Mark("a") {
		t.Fatal("unexpired key should stay pending")
	}

	now = now.Add(31 * time.Second)
	if p.Has("a") || p.Has("b") {
		t.Fatal("keys should expire after the TTL")
	}
	if p.Len() != 0 {
		t.Errorf("Len = %d, want 0", p.Len())
	}
	if !p.Mark("a") {
		t.Fatal("expired key should be markable again")
	}
}
