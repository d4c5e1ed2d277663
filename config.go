package cascade

import "time"

// Config holds configuration for an engine and its worker pool.
type Config struct {
	// Concurrency is the maximum number of jobs processed concurrently by
	// one worker pool.
	Concurrency int

	// BatchSize caps how many jobs a single claim round may take.
	BatchSize int

	// PollInterval is how often the worker polls the store for ready jobs.
	PollInterval time.Duration

	// LeaseDuration is how long a claim stays valid without a heartbeat.
	// A job whose lease expires is eligible to be claimed again.
	LeaseDuration time.Duration

	// HeartbeatInterval is how often running jobs extend their lease. It
	// must be comfortably shorter than LeaseDuration.
	HeartbeatInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// DefaultMaxRetries applies to jobs whose spec leaves MaxRetries unset.
	DefaultMaxRetries int

	// MaxCascadeDepth bounds how many inline command/event rounds a single
	// dispatch may trigger.
	MaxCascadeDepth int

	// RequestTimeout is the default wait for request/response bridging.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:       10,
		BatchSize:         10,
		PollInterval:      1 * time.Second,
		LeaseDuration:     30 * time.Second,
		HeartbeatInterval: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
		DefaultMaxRetries: 3,
		MaxCascadeDepth:   32,
		RequestTimeout:    30 * time.Second,
	}
}

// NewConfig returns DefaultConfig with opts applied.
func NewConfig(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.normalize()
	return cfg
}

func (c *Config) normalize() {
	d := DefaultConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.BatchSize <= 0 {
		c.BatchSize = c.Concurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.LeaseDuration <= 0 {
		c.LeaseDuration = d.LeaseDuration
	}
	if c.HeartbeatInterval <= 0 || c.HeartbeatInterval >= c.LeaseDuration {
		c.HeartbeatInterval = c.LeaseDuration / 3
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.DefaultMaxRetries < 0 {
		c.DefaultMaxRetries = 0
	}
	if c.MaxCascadeDepth <= 0 {
		c.MaxCascadeDepth = d.MaxCascadeDepth
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
}
