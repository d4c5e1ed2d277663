// Package audithook is a cascade extension that bridges lifecycle moments
// to an append-only audit trail.
//
// Every job, command and event hook emits a structured audit event through
// the [Recorder] interface. Severity follows the outcome: info for normal
// operation, warning for retries and lease loss, critical for dead
// letters. Metadata carries the job type, reference ID, attempt and error.
//
// # Usage
//
//	audithook.New(audithook.RecorderFunc(func(ctx context.Context, evt *audithook.AuditEvent) error {
//	    return auditLog.Append(ctx, evt.Action, evt.ResourceID, evt.Metadata)
//	}))
//
// # Selective filtering
//
//	audithook.New(recorder,
//	    audithook.WithActions(
//	        audithook.ActionJobDeadLettered,
//	        audithook.ActionJobLeaseLost,
//	    ),
//	)
package audithook
