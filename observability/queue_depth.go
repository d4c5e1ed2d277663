package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/cascade/job"
)

var _ prometheus.Collector = (*QueueDepthCollector)(nil)

// depthStatuses are the statuses reported as cascade_jobs gauges.
var depthStatuses = []job.Status{
	job.StatusPending,
	job.StatusRunning,
	job.StatusDeadLetter,
}

// QueueDepthCollector reports job counts per status from a store at scrape
// time. Counting is O(n) on some backends, so keep scrape intervals
// generous on large queues.
type QueueDepthCollector struct {
	store   job.Store
	timeout time.Duration
	logger  *slog.Logger

	jobs *prometheus.Desc
	up   *prometheus.Desc
}

// NewQueueDepthCollector creates a collector over store. Each scrape is
// bounded by timeout.
func NewQueueDepthCollector(store job.Store, timeout time.Duration, logger *slog.Logger) *QueueDepthCollector {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &QueueDepthCollector{
		store:   store,
		timeout: timeout,
		logger:  logger,
		jobs: prometheus.NewDesc("cascade_jobs",
			"Number of jobs currently in each status.", []string{"status"}, nil),
		up: prometheus.NewDesc("cascade_store_up",
			"Whether the last store count succeeded.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *QueueDepthCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
	ch <- c.up
}

// Collect implements prometheus.Collector.
func (c *QueueDepthCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	up := 1.0
	for _, st := range depthStatuses {
		n, err := c.store.CountJobs(ctx, job.CountOpts{Status: st})
		if err != nil {
			c.logger.Warn("queue depth: count failed",
				slog.String("status", string(st)),
				slog.String("error", err.Error()),
			)
			up = 0
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(n), string(st))
	}
	ch <- prometheus.MustNewConstMetric(c.up, prometheus.GaugeValue, up)
}
