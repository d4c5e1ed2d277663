// Package backoff computes retry delays for failed jobs.
//
// The queue asks a Strategy for the delay before attempt n, where n is the
// retry count after the failure being handled (1 for the first retry).
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry attempt.
type Strategy interface {
	// Delay returns how long to wait before retry attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to a Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// Linear grows as Initial * attempt, capped at Max.
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	d := l.Initial * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// Exponential doubles the delay each attempt: Initial * 2^(attempt-1),
// capped at Max. The sequence is monotonically non-decreasing.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	return exponential(e.Initial, e.Max, attempt)
}

// ExponentialWithJitter applies full jitter to an exponential base: a
// random value in [0, min(Initial * 2^(attempt-1), Max)]. Spreads retries
// of a burst of failures apart at the cost of monotonicity.
type ExponentialWithJitter struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponentialWithJitter creates an exponential backoff with full jitter.
func NewExponentialWithJitter(initial, maxDelay time.Duration) *ExponentialWithJitter {
	return &ExponentialWithJitter{Initial: initial, Max: maxDelay}
}

// Delay returns a random duration in [0, min(Initial * 2^(attempt-1), Max)].
func (e *ExponentialWithJitter) Delay(attempt int) time.Duration {
	base := exponential(e.Initial, e.Max, attempt)
	return time.Duration(rand.Float64() * float64(base)) //nolint:gosec // jitter does not need crypto rand
}

// exponential returns Initial * 2^(attempt-1), capped at Max and at the
// largest representable Duration.
func exponential(initial, maxDelay time.Duration, attempt int) time.Duration {
	attempt = max(attempt, 1)
	d := float64(initial) * math.Pow(2, float64(attempt-1))
	if maxDelay > 0 && d >= float64(maxDelay) {
		return maxDelay
	}
	// float64(MaxInt64) rounds up to 2^63, which does not fit a Duration.
	if d >= float64(math.MaxInt64) || math.IsNaN(d) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// DefaultStrategy returns the backoff used when none is configured:
// exponential base 2 starting at one second, capped at one hour.
func DefaultStrategy() Strategy {
	return NewExponential(1*time.Second, 1*time.Hour)
}
