package machine

import (
	"sync"
	"time"
)

// Pending is a best-effort set of in-flight keys, e.g. "extraction for
// site X is outstanding". Marks optionally expire so a lost completion
// event cannot block a key forever.
type Pending struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]time.Time
}

// PendingOption configures a Pending set.
type PendingOption func(*Pending)

// WithTTL expires marks after d. Zero keeps marks until cleared.
func WithTTL(d time.Duration) PendingOption {
	return func(p *Pending) { p.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) PendingOption {
	return func(p *Pending) { p.now = now }
}

// NewPending returns an empty set.
func NewPending(opts ...PendingOption) *Pending {
	p := &Pending{now: time.Now, entries: make(map[string]time.Time)}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Mark records key as in flight. It returns false if key was already
// marked and has not expired, in which case the caller should not
// trigger again.
func (p *Pending) Mark(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if at, ok := p.entries[key]; ok && !p.expired(at, now) {
		return false
	}
	p.entries[key] = now
	return true
}

// Has reports whether key is marked and unexpired.
func (p *Pending) Has(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	at, ok := p.entries[key]
	return ok && !p.expired(at, p.now())
}

// Clear removes key.
func (p *Pending) Clear(key string) {
	p.mu.Lock()
	delete(p.entries, key)
	p.mu.Unlock()
}

// Len returns the number of unexpired marks, pruning expired ones.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for k, at := range p.entries {
		if p.expired(at, now) {
			delete(p.entries, k)
		}
	}
	return len(p.entries)
}

func (p *Pending) expired(at, now time.Time) bool {
	return p.ttl > 0 && now.Sub(at) >= p.ttl
}
