package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/xraph/cascade/codec"
	"github.com/xraph/cascade/event"
	redistransport "github.com/xraph/cascade/event/redis"
)

type postsExtracted struct {
	Domain string `json:"domain"`
	Count  int    `json:"count"`
}

func (postsExtracted) EventType() string { return "posts_extracted" }

func newTransport(t *testing.T) *redistransport.Transport {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	reg := event.NewRegistry(codec.JSON{})
	event.Register[postsExtracted](reg)
	tr := redistransport.New(client, reg, redistransport.WithChannel("test:events"))
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestTransport_RoundTrip(t *testing.T) {
	tr := newTransport(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub, err := tr.Subscribe(ctx)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	env, err := event.Wrap(postsExtracted{Domain: "example.org", Count: 3}, codec.JSON{})
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}
	if err := tr.Publish(ctx, env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case got := <-sub.C():
		if got.ID.String() != env.ID.String() {
			t.Errorf("ID = %s, want %s", got.ID, env.ID)
		}
		pe, ok := got.Event.(postsExtracted)
		if !ok {
			t.Fatalf("Event = %#v, want decoded postsExtracted", got.Event)
		}
		if pe.Domain != "example.org" || pe.Count != 3 {
			t.Errorf("decoded %+v", pe)
		}
	case <-ctx.Done():
		t.Fatal("no envelope received")
	}
}

func TestTransport_CloseEndsSubscription(t *testing.T) {
	tr := newTransport(t)
	sub, err := tr.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}
