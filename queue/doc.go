// Package queue is the write and resolve path of the job store.
//
// [Queue] turns an encoded command into a persisted job (honouring
// idempotency keys and deferred start), hands leases to workers, and
// resolves finished attempts: success, recurring rebirth, retry with
// backoff, or dead-letter.
//
// # Retry policy
//
// A failure classified retryable is retried while retry_count is below
// max_retries, after backoff.Delay(retry_count+1). With the default
// strategy the delays run 1s, 2s, 4s and so on, capped at one hour. A
// fatal failure, or a retryable one with the budget spent, dead-letters
// the job. A job therefore runs at most max_retries+1 times.
//
// # Throttling
//
// [Throttle] caps per-job-type concurrency and dequeue rate inside one
// worker process:
//
//	queue.NewThrottle(
//	    queue.Limit{JobType: "crawl_site", MaxConcurrency: 4},
//	    queue.Limit{JobType: "llm_extract", RateLimit: 2, RateBurst: 5},
//	)
//
// A job the throttle turns away is released back to pending without
// consuming an attempt.
package queue
