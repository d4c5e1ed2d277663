package cascade

import "time"

// Option configures a Config.
type Option func(*Config)

// WithConcurrency sets the maximum number of concurrent job processors.
func WithConcurrency(n int) Option {
	return func(c *Config) { c.Concurrency = n }
}

// WithBatchSize sets the maximum number of jobs claimed per poll.
func WithBatchSize(n int) Option {
	return func(c *Config) { c.BatchSize = n }
}

// WithPollInterval sets how often the worker polls for ready jobs.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) { c.PollInterval = d }
}

// WithLease sets the lease duration and heartbeat interval together.
// A zero heartbeat derives one third of the lease.
func WithLease(lease, heartbeat time.Duration) Option {
	return func(c *Config) {
		c.LeaseDuration = lease
		c.HeartbeatInterval = heartbeat
	}
}

// WithShutdownTimeout sets the graceful shutdown deadline.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) { c.ShutdownTimeout = d }
}

// WithDefaultMaxRetries sets the retry budget for jobs that do not set one.
func WithDefaultMaxRetries(n int) Option {
	return func(c *Config) { c.DefaultMaxRetries = n }
}

// WithMaxCascadeDepth bounds inline cascade recursion.
func WithMaxCascadeDepth(n int) Option {
	return func(c *Config) { c.MaxCascadeDepth = n }
}

// WithRequestTimeout sets the default request/response wait.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}
