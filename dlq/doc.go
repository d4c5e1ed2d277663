// Package dlq inspects and replays dead-lettered jobs.
//
// Dead-lettering does not move a job anywhere: the job row stays in the
// job store with status dead_letter, its final error, error kind, reason
// and timestamp. This package is a read-and-replay view over those rows.
//
//	svc := dlq.NewService(store)
//
//	entries, _ := svc.List(ctx, dlq.ListOpts{JobType: "crawl_site", Limit: 50})
//	n, _ := svc.Count(ctx, "")
//
//	// Replay returns the job to pending with a fresh retry budget.
//	jobID, _ := svc.Replay(ctx, entries[0].JobID)
//
// Replaying a job whose idempotency key is now held by another active job
// leaves the dead letter in place and returns the active job's ID.
package dlq
