// Package middleware provides composable middleware for background job
// execution.
//
// A [Middleware] wraps the handler that decodes and runs a claimed job.
// Middleware are composed into a chain using [Chain] and applied around
// every execution. The first middleware in the slice is the outermost
// wrapper.
//
//	// recover → logging → handler
//	chain := middleware.Chain(middleware.Recover(logger), middleware.Logging(logger))
//
// # Built-in Middleware
//
//   - [Recover] converts handler panics into errors
//   - [Logging] logs job type, attempt, duration and outcome
//   - [Timeout] bounds each execution with a per-job-type deadline
//   - [Tracing] wraps execution in an OpenTelemetry span
//   - [Metrics] records per-job-type duration and outcome
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting. Returned errors keep their job.Fatal / job.Retryable
// markers, so wrap with %w when annotating.
package middleware
