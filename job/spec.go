package job

import "time"

// NoRetries as MaxRetries dead-letters a job on its first failure.
const NoRetries = -1

// Spec carries the optional scheduling metadata of a background command.
type Spec struct {
	// IdempotencyKey deduplicates active jobs. Empty disables dedup.
	IdempotencyKey string

	// MaxRetries bounds retries after the first attempt. Zero is unset
	// and takes the queue default (3 unless configured), so a job gets 4
	// attempts. Use NoRetries for a single attempt.
	MaxRetries int

	// Priority orders claims. Higher values run first.
	Priority int

	// Version is the payload schema version. Zero is treated as 1.
	Version int

	// ReferenceID names the domain entity the job concerns.
	ReferenceID string

	// Frequency makes the job recurring. See the cron package for syntax.
	Frequency string

	// RunAt defers the first run. Zero means now.
	RunAt time.Time
}

// SpecOption configures a Spec.
type SpecOption func(*Spec)

// NewSpec builds a Spec from options.
func NewSpec(opts ...SpecOption) *Spec {
	s := &Spec{}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// With returns a copy of s with opts applied. A nil receiver starts empty.
func (s *Spec) With(opts ...SpecOption) *Spec {
	out := &Spec{}
	if s != nil {
		*out = *s
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

// RetryBudget resolves MaxRetries against the queue default.
func (s *Spec) RetryBudget(def int) int {
	switch {
	case s == nil || s.MaxRetries == 0:
		return def
	case s.MaxRetries < 0:
		return 0
	default:
		return s.MaxRetries
	}
}

// PayloadVersion resolves the payload version, defaulting to 1.
func (s *Spec) PayloadVersion() int {
	if s == nil || s.Version <= 0 {
		return 1
	}
	return s.Version
}

// WithIdempotencyKey sets the dedup key.
func WithIdempotencyKey(key string) SpecOption {
	return func(s *Spec) { s.IdempotencyKey = key }
}

// WithMaxRetries sets the retry budget. Zero keeps the queue default; pass
// NoRetries for a single attempt.
func WithMaxRetries(n int) SpecOption {
	return func(s *Spec) { s.MaxRetries = n }
}

// WithPriority sets the claim priority.
func WithPriority(p int) SpecOption {
	return func(s *Spec) { s.Priority = p }
}

// WithVersion sets the payload schema version.
func WithVersion(v int) SpecOption {
	return func(s *Spec) { s.Version = v }
}

// WithReferenceID sets the domain reference.
func WithReferenceID(ref string) SpecOption {
	return func(s *Spec) { s.ReferenceID = ref }
}

// WithFrequency makes the job recurring.
func WithFrequency(freq string) SpecOption {
	return func(s *Spec) { s.Frequency = freq }
}

// WithRunAt defers the first run.
func WithRunAt(t time.Time) SpecOption {
	return func(s *Spec) { s.RunAt = t }
}
