package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

const jobColumns = `
	id, job_type, version, args, status, priority, max_retries, retry_count,
	idempotency_key, reference_id, frequency, next_run_at, last_run_at,
	worker_id, lease_expires_at, error_message, error_kind,
	dead_lettered_at, dead_letter_reason, disabled_at, created_at, updated_at`

// insertAttempts bounds the insert/lookup loop when a key holder finishes
// between the conflicting insert and the lookup.
const insertAttempts = 3

// InsertJob persists j as pending unless an active job holds its
// idempotency key.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) (id.JobID, bool, error) {
	var nextRunAt *time.Time
	if !j.NextRunAt.IsZero() {
		t := j.NextRunAt
		nextRunAt = &t
	}

	for range insertAttempts {
		var inserted string
		err := s.pool.QueryRow(ctx, `
			INSERT INTO cascade_jobs (
				id, job_type, version, args, status, priority, max_retries, retry_count,
				idempotency_key, reference_id, frequency, next_run_at, disabled_at
			) VALUES (
				$1, $2, $3, COALESCE($4, ''::bytea), 'pending', $5, $6, $7,
				$8, $9, $10, COALESCE($11, NOW()), $12
			)
			ON CONFLICT (idempotency_key)
				WHERE idempotency_key IS NOT NULL AND status IN ('pending', 'running')
				DO NOTHING
			RETURNING id`,
			j.ID.String(), j.JobType, j.Version, j.Args, j.Priority, j.MaxRetries, j.RetryCount,
			nullString(j.IdempotencyKey), nullString(j.ReferenceID), nullString(j.Frequency),
			nextRunAt, j.DisabledAt,
		).Scan(&inserted)
		if err == nil {
			return j.ID, true, nil
		}
		if !isNoRows(err) {
			return id.Nil, false, fmt.Errorf("cascade/postgres: insert job: %w", err)
		}

		holder, err := s.GetJobByKey(ctx, j.IdempotencyKey)
		if err == nil {
			return holder.ID, false, nil
		}
		if !errors.Is(err, job.ErrJobNotFound) {
			return id.Nil, false, err
		}
	}
	return id.Nil, false, fmt.Errorf("cascade/postgres: insert job: key %q contended", j.IdempotencyKey)
}

// ClaimJobs atomically leases up to limit claimable jobs to workerID.
// Concurrent claimers skip each other's locked rows.
func (s *Store) ClaimJobs(ctx context.Context, workerID id.WorkerID, limit int, lease time.Duration) ([]*job.Job, error) {
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := s.pool.Query(ctx, `
		WITH candidates AS (
			SELECT id FROM cascade_jobs
			WHERE disabled_at IS NULL
			  AND ((status IN ('pending', 'failed') AND next_run_at <= NOW())
			    OR (status = 'running' AND lease_expires_at < NOW()))
			ORDER BY priority DESC, next_run_at ASC, id ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE cascade_jobs j SET
			status = 'running',
			worker_id = $1,
			last_run_at = NOW(),
			lease_expires_at = NOW() + $3::bigint * INTERVAL '1 millisecond',
			updated_at = NOW()
		FROM candidates c
		WHERE j.id = c.id
		RETURNING `+prefixed("j.", jobColumns),
		workerID.String(), lim, lease.Milliseconds(),
	)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: claim jobs: %w", err)
	}
	defer rows.Close()

	claimed, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}
	sort.Slice(claimed, func(a, b int) bool { return job.Less(claimed[a], claimed[b]) })
	return claimed, nil
}

// HeartbeatJob extends the lease held by workerID.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	return s.held(ctx, "heartbeat", jobID, workerID, `
		lease_expires_at = NOW() + $3::bigint * INTERVAL '1 millisecond'`, lease.Milliseconds())
}

// CompleteJob marks a job succeeded.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	return s.held(ctx, "complete", jobID, workerID, `
		status = 'succeeded', error_message = NULL, error_kind = NULL,
		worker_id = NULL, lease_expires_at = NULL`)
}

// RescheduleJob returns a recurring job to pending at nextRunAt.
func (s *Store) RescheduleJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, nextRunAt time.Time) error {
	return s.held(ctx, "reschedule", jobID, workerID, `
		status = 'pending', next_run_at = $3, retry_count = 0,
		error_message = NULL, error_kind = NULL,
		worker_id = NULL, lease_expires_at = NULL`, nextRunAt)
}

// RetryJob returns a failed job to pending at nextRunAt.
func (s *Store) RetryJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, nextRunAt time.Time, errMsg string, kind job.ErrorKind) error {
	return s.held(ctx, "retry", jobID, workerID, `
		status = 'pending', next_run_at = $3, retry_count = retry_count + 1,
		error_message = $4, error_kind = $5,
		worker_id = NULL, lease_expires_at = NULL`, nextRunAt, errMsg, string(kind))
}

// DeadLetterJob moves a job to dead_letter.
func (s *Store) DeadLetterJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, kind job.ErrorKind, reason string) error {
	return s.held(ctx, "dead letter", jobID, workerID, `
		status = 'dead_letter', error_message = $3, error_kind = $4,
		dead_lettered_at = NOW(), dead_letter_reason = $5,
		worker_id = NULL, lease_expires_at = NULL`, errMsg, string(kind), reason)
}

// ReleaseJob returns a claimed job to pending without counting an attempt.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, runAt time.Time) error {
	return s.held(ctx, "release", jobID, workerID, `
		status = 'pending', next_run_at = $3,
		worker_id = NULL, lease_expires_at = NULL`, runAt)
}

// RequeueJob moves a dead-lettered job back to pending.
func (s *Store) RequeueJob(ctx context.Context, jobID id.JobID, runAt time.Time) (id.JobID, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return id.Nil, fmt.Errorf("cascade/postgres: requeue begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	var (
		status string
		key    *string
	)
	err = tx.QueryRow(ctx,
		`SELECT status, idempotency_key FROM cascade_jobs WHERE id = $1 FOR UPDATE`,
		jobID.String(),
	).Scan(&status, &key)
	if isNoRows(err) {
		return id.Nil, job.ErrJobNotFound
	}
	if err != nil {
		return id.Nil, fmt.Errorf("cascade/postgres: requeue lookup: %w", err)
	}
	if job.Status(status) != job.StatusDeadLetter {
		return id.Nil, job.ErrNotDeadLettered
	}

	_, err = tx.Exec(ctx, `
		UPDATE cascade_jobs SET
			status = 'pending', next_run_at = $2, retry_count = 0,
			error_message = NULL, error_kind = NULL,
			dead_lettered_at = NULL, dead_letter_reason = NULL,
			updated_at = NOW()
		WHERE id = $1`,
		jobID.String(), runAt,
	)
	if isDuplicateKey(err) {
		// Another active job took the key after this one was dead-lettered.
		holder, getErr := s.GetJobByKey(ctx, deref(key))
		if getErr != nil {
			return id.Nil, getErr
		}
		return holder.ID, nil
	}
	if err != nil {
		return id.Nil, fmt.Errorf("cascade/postgres: requeue job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return id.Nil, fmt.Errorf("cascade/postgres: requeue commit: %w", err)
	}
	return jobID, nil
}

// SetJobDisabled suspends or resumes claims for a job.
func (s *Store) SetJobDisabled(ctx context.Context, jobID id.JobID, disabled bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE cascade_jobs SET
			disabled_at = CASE WHEN $2 THEN COALESCE(disabled_at, NOW()) ELSE NULL END,
			updated_at = NOW()
		WHERE id = $1`,
		jobID.String(), disabled,
	)
	if err != nil {
		return fmt.Errorf("cascade/postgres: set disabled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM cascade_jobs WHERE id = $1`, jobID.String())
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("cascade/postgres: get job: %w", err)
	}
	return j, nil
}

// GetJobByKey returns the active job holding key.
func (s *Store) GetJobByKey(ctx context.Context, key string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM cascade_jobs
		WHERE idempotency_key = $1 AND status IN ('pending', 'running')`, key)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, job.ErrJobNotFound
		}
		return nil, fmt.Errorf("cascade/postgres: get job by key: %w", err)
	}
	return j, nil
}

// ListJobs returns jobs matching opts ordered by creation.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	where, args := filter(string(opts.Status), opts.JobType, opts.ReferenceID)
	query := `SELECT ` + jobColumns + ` FROM cascade_jobs` + where + ` ORDER BY id ASC`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if opts.Offset > 0 {
		args = append(args, opts.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	where, args := filter(string(opts.Status), opts.JobType, "")
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cascade_jobs`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("cascade/postgres: count jobs: %w", err)
	}
	return n, nil
}

// held applies set to a job only while workerID holds its lease. Extra
// arguments are numbered from $3.
func (s *Store) held(ctx context.Context, op string, jobID id.JobID, workerID id.WorkerID, set string, extra ...any) error {
	args := append([]any{jobID.String(), workerID.String()}, extra...)
	tag, err := s.pool.Exec(ctx, `
		UPDATE cascade_jobs SET `+set+`, updated_at = NOW()
		WHERE id = $1 AND status = 'running' AND worker_id = $2`, args...)
	if err != nil {
		return fmt.Errorf("cascade/postgres: %s job: %w", op, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM cascade_jobs WHERE id = $1)`, jobID.String(),
	).Scan(&exists); err != nil {
		return fmt.Errorf("cascade/postgres: %s job: %w", op, err)
	}
	if !exists {
		return job.ErrJobNotFound
	}
	return job.ErrLeaseLost
}

func filter(status, jobType, referenceID string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(col, v string) {
		if v == "" {
			return
		}
		args = append(args, v)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	add("status", status)
	add("job_type", jobType)
	add("reference_id", referenceID)
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func prefixed(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j                             job.Job
		idStr, statusStr              string
		key, ref, freq, worker        *string
		errMsg, errKind, deadLetterBy *string
	)
	err := row.Scan(
		&idStr, &j.JobType, &j.Version, &j.Args, &statusStr, &j.Priority, &j.MaxRetries, &j.RetryCount,
		&key, &ref, &freq, &j.NextRunAt, &j.LastRunAt,
		&worker, &j.LeaseExpiresAt, &errMsg, &errKind,
		&j.DeadLetteredAt, &deadLetterBy, &j.DisabledAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, err := id.ParseJobID(idStr)
	if err != nil {
		return nil, fmt.Errorf("cascade/postgres: parse job id %q: %w", idStr, err)
	}
	j.ID = parsedID
	j.Status = job.Status(statusStr)
	j.IdempotencyKey = deref(key)
	j.ReferenceID = deref(ref)
	j.Frequency = deref(freq)
	j.ErrorMessage = deref(errMsg)
	j.ErrorKind = job.ErrorKind(deref(errKind))
	j.DeadLetterReason = deref(deadLetterBy)
	if w := deref(worker); w != "" {
		if parsed, err := id.ParseWorkerID(w); err == nil {
			j.WorkerID = parsed
		}
	}
	j.NextRunAt = j.NextRunAt.UTC()
	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("cascade/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cascade/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
