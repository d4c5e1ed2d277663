package effect

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/cascade/job"
)

// DefaultErrorBudget is the failure ratio a batch tolerates by default.
const DefaultErrorBudget = 0.5

// ItemFailure records one failed batch item.
type ItemFailure struct {
	Key string
	Err error
}

// Report summarizes a batch run.
type Report struct {
	Total    int
	Failures []ItemFailure
}

// Failed returns the number of failed items.
func (r Report) Failed() int { return len(r.Failures) }

// Succeeded returns the number of items that completed.
func (r Report) Succeeded() int { return r.Total - len(r.Failures) }

// FailureRatio returns Failed/Total, or 0 for an empty batch.
func (r Report) FailureRatio() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(len(r.Failures)) / float64(r.Total)
}

// BudgetExceededError is returned, marked fatal, when a batch fails more
// items than its budget allows.
type BudgetExceededError struct {
	Report Report
	Budget float64
}

func (e *BudgetExceededError) Error() string {
	msg := fmt.Sprintf("cascade: batch error budget exceeded: %d/%d items failed (budget %.0f%%)",
		e.Report.Failed(), e.Report.Total, e.Budget*100)
	if len(e.Report.Failures) > 0 {
		first := e.Report.Failures[0]
		msg += fmt.Sprintf("; first failure %q: %v", first.Key, first.Err)
	}
	return msg
}

// BatchOption configures Batch.
type BatchOption func(*batchOptions)

type batchOptions struct {
	budget      float64
	concurrency int
}

// WithErrorBudget sets the tolerated failure ratio in [0, 1]. A budget of
// 0 fails the batch on the first item failure; 1 never fails it.
func WithErrorBudget(ratio float64) BatchOption {
	return func(o *batchOptions) { o.budget = min(max(ratio, 0), 1) }
}

// WithBatchConcurrency processes up to n items at once. The default is 1.
func WithBatchConcurrency(n int) BatchOption {
	return func(o *batchOptions) { o.concurrency = max(n, 1) }
}

// Batch runs fn for every item and reports per-item outcomes. It returns
// an error only when the failure ratio exceeds the budget, or when ctx
// ends before every item ran. Items already processed keep their effects
// in either case, so fn must be idempotent per item.
func Batch[I any](ctx context.Context, items []I, key func(I) string, fn func(context.Context, I) error, opts ...BatchOption) (Report, error) {
	o := batchOptions{budget: DefaultErrorBudget, concurrency: 1}
	for _, opt := range opts {
		opt(&o)
	}

	report := Report{Total: len(items)}
	var mu sync.Mutex

	g := new(errgroup.Group)
	g.SetLimit(o.concurrency)
	for _, item := range items {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := fn(ctx, item); err != nil {
				mu.Lock()
				report.Failures = append(report.Failures, ItemFailure{Key: key(item), Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if report.FailureRatio() > o.budget {
		return report, job.Fatal(&BudgetExceededError{Report: report, Budget: o.budget})
	}
	return report, nil
}
