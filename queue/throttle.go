package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limit defines per-job-type rate limiting and concurrency.
type Limit struct {
	// JobType is the job type the limit applies to.
	JobType string

	// MaxConcurrency limits how many jobs of this type may run at once in
	// the local worker pool. Zero means no type-specific limit.
	MaxConcurrency int

	// RateLimit is the maximum sustained starts per second. Zero disables
	// rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst. Defaults to 1 when RateLimit is
	// set.
	RateBurst int
}

type limitState struct {
	limit   Limit
	limiter *rate.Limiter
	active  int
}

func newLimitState(l Limit) *limitState {
	ls := &limitState{limit: l}
	if l.RateLimit > 0 {
		burst := l.RateBurst
		if burst <= 0 {
			burst = 1
		}
		ls.limiter = rate.NewLimiter(rate.Limit(l.RateLimit), burst)
	}
	return ls
}

// Throttle enforces per-job-type limits. A nil *Throttle admits everything.
// It is safe for concurrent use.
type Throttle struct {
	mu     sync.Mutex
	limits map[string]*limitState
}

// NewThrottle creates a Throttle. Job types not listed have no limits.
func NewThrottle(limits ...Limit) *Throttle {
	t := &Throttle{limits: make(map[string]*limitState, len(limits))}
	for _, l := range limits {
		t.limits[l.JobType] = newLimitState(l)
	}
	return t
}

// Acquire reports whether a job of jobType may start now. On true the
// caller must call Release when the job finishes.
func (t *Throttle) Acquire(jobType string) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	ls := t.limits[jobType]
	if ls == nil {
		return true
	}
	if ls.limit.MaxConcurrency > 0 && ls.active >= ls.limit.MaxConcurrency {
		return false
	}
	if ls.limiter != nil && !ls.limiter.Allow() {
		return false
	}
	ls.active++
	return true
}

// Release frees a slot taken by Acquire.
func (t *Throttle) Release(jobType string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if ls := t.limits[jobType]; ls != nil && ls.active > 0 {
		ls.active--
	}
}

// SetLimit adds or replaces a limit, keeping the current active count.
func (t *Throttle) SetLimit(l Limit) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ls := newLimitState(l)
	if existing := t.limits[l.JobType]; existing != nil {
		ls.active = existing.active
	}
	t.limits[l.JobType] = ls
}

// ActiveCount returns how many jobs of jobType hold a slot.
func (t *Throttle) ActiveCount(jobType string) int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if ls := t.limits[jobType]; ls != nil {
		return ls.active
	}
	return 0
}
