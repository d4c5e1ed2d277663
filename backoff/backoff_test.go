package backoff_test

import (
	"math"
	"testing"
	"time"

	"github.com/xraph/cascade/backoff"
)

func TestConstant_ReturnsFixedDelay(t *testing.T) {
	c := backoff.NewConstant(5 * time.Second)
	for attempt := 1; attempt <= 10; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, 5*time.Second)
		}
	}
}

func TestLinear(t *testing.T) {
	l := backoff.NewLinear(time.Second, 5*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 1 * time.Second},
		{3, 3 * time.Second},
		{10, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := l.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_DoublesUntilCap(t *testing.T) {
	e := backoff.NewExponential(time.Second, 10*time.Second)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{500, 10 * time.Second},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponential_UncappedDoesNotOverflow(t *testing.T) {
	e := backoff.NewExponential(time.Second, 0)
	if got := e.Delay(200); got != time.Duration(math.MaxInt64) {
		t.Errorf("Delay(200) = %v, want the saturated duration", got)
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 2000; attempt++ {
		got := e.Delay(attempt)
		if got < prev {
			t.Fatalf("Delay(%d) = %v, below Delay(%d) = %v", attempt, got, attempt-1, prev)
		}
		prev = got
	}

	j := backoff.NewExponentialWithJitter(time.Second, 0)
	for attempt := 30; attempt <= 200; attempt++ {
		if got := j.Delay(attempt); got < 0 {
			t.Fatalf("jittered Delay(%d) = %v, want non-negative", attempt, got)
		}
	}
}

func TestExponentialWithJitter_WithinBounds(t *testing.T) {
	e := backoff.NewExponentialWithJitter(time.Second, 10*time.Second)

	for attempt := 1; attempt <= 5; attempt++ {
		for range 100 {
			got := e.Delay(attempt)
			if got < 0 || got > 10*time.Second {
				t.Fatalf("Delay(%d) = %v, want within [0, 10s]", attempt, got)
			}
		}
	}
}

func TestDefaultStrategy_IsMonotonic(t *testing.T) {
	s := backoff.DefaultStrategy()
	if got := s.Delay(1); got != time.Second {
		t.Errorf("Delay(1) = %v, want 1s", got)
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 30; attempt++ {
		d := s.Delay(attempt)
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		if d > time.Hour {
			t.Fatalf("Delay(%d) = %v exceeds 1h cap", attempt, d)
		}
		prev = d
	}
}

func TestFunc(t *testing.T) {
	s := backoff.Func(func(n int) time.Duration { return time.Duration(n) * time.Millisecond })
	if got := s.Delay(7); got != 7*time.Millisecond {
		t.Errorf("Delay(7) = %v, want 7ms", got)
	}
}
