package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
)

// InsertJob stores j as a Hash and queues it unless an active job holds
// its idempotency key.
func (s *Store) InsertJob(ctx context.Context, j *job.Job) (id.JobID, bool, error) {
	cp := *j
	cp.Status = job.StatusPending
	now := s.now()
	if cp.NextRunAt.IsZero() {
		cp.NextRunAt = now
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	jID := cp.ID.String()
	args := []any{jID, cp.IdempotencyKey, millis(cp.NextRunAt)}
	args = append(args, jobToFields(&cp)...)

	res, err := insertScript.Run(ctx, s.client,
		[]string{jobKey(jID), pendingKey, activeKeysKey, jobIDsKey}, args...).Slice()
	if err != nil {
		return id.Nil, false, fmt.Errorf("cascade/redis: insert job: %w", err)
	}
	code, holder := pair(res)
	if code == codeOK {
		return cp.ID, true, nil
	}
	existing, err := id.ParseJobID(holder)
	if err != nil {
		return id.Nil, false, fmt.Errorf("cascade/redis: parse key holder: %w", err)
	}
	return existing, false, nil
}

// ClaimJobs leases up to limit claimable jobs to workerID.
func (s *Store) ClaimJobs(ctx context.Context, workerID id.WorkerID, limit int, lease time.Duration) ([]*job.Job, error) {
	if limit <= 0 {
		limit = ScanWindow
	}
	now := s.now()
	res, err := claimScript.Run(ctx, s.client, []string{pendingKey, leasedKey},
		millis(now), limit, millis(now.Add(lease)), workerID.String(), jobKey(""), ScanWindow,
	).Slice()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: claim jobs: %w", err)
	}

	claimed := make([]*job.Job, 0, len(res))
	for _, raw := range res {
		flat, ok := raw.([]any)
		if !ok {
			continue
		}
		j, err := fieldsToJob(flatToMap(flat))
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// HeartbeatJob extends the lease held by workerID.
func (s *Store) HeartbeatJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, lease time.Duration) error {
	now := s.now()
	return s.held(ctx, heartbeatScript, jobID, workerID, now, millis(now.Add(lease)))
}

// CompleteJob marks a job succeeded and frees its idempotency key.
func (s *Store) CompleteJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID) error {
	return s.held(ctx, completeScript, jobID, workerID, s.now())
}

// RescheduleJob returns a recurring job to pending at nextRunAt.
func (s *Store) RescheduleJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, nextRunAt time.Time) error {
	return s.held(ctx, rescheduleScript, jobID, workerID, s.now(), millis(nextRunAt))
}

// RetryJob returns a failed job to pending at nextRunAt.
func (s *Store) RetryJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, nextRunAt time.Time, errMsg string, kind job.ErrorKind) error {
	return s.held(ctx, retryScript, jobID, workerID, s.now(), millis(nextRunAt), errMsg, string(kind))
}

// DeadLetterJob moves a job to dead_letter.
func (s *Store) DeadLetterJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, errMsg string, kind job.ErrorKind, reason string) error {
	return s.held(ctx, deadLetterScript, jobID, workerID, s.now(), errMsg, string(kind), reason)
}

// ReleaseJob returns a claimed job to pending without counting an attempt.
func (s *Store) ReleaseJob(ctx context.Context, jobID id.JobID, workerID id.WorkerID, runAt time.Time) error {
	return s.held(ctx, releaseScript, jobID, workerID, s.now(), millis(runAt))
}

// RequeueJob moves a dead-lettered job back to pending.
func (s *Store) RequeueJob(ctx context.Context, jobID id.JobID, runAt time.Time) (id.JobID, error) {
	res, err := requeueScript.Run(ctx, s.client,
		[]string{jobKey(jobID.String()), pendingKey, activeKeysKey},
		millis(s.now()), millis(runAt),
	).Slice()
	if err != nil {
		return id.Nil, fmt.Errorf("cascade/redis: requeue job: %w", err)
	}
	code, holder := pair(res)
	switch code {
	case codeNotFound:
		return id.Nil, job.ErrJobNotFound
	case codeNotDeadLettered:
		return id.Nil, job.ErrNotDeadLettered
	}
	return id.ParseJobID(holder)
}

// SetJobDisabled suspends or resumes claims for a job.
func (s *Store) SetJobDisabled(ctx context.Context, jobID id.JobID, disabled bool) error {
	flag := "0"
	if disabled {
		flag = "1"
	}
	code, err := disableScript.Run(ctx, s.client, []string{jobKey(jobID.String())}, millis(s.now()), flag).Int()
	if err != nil {
		return fmt.Errorf("cascade/redis: set disabled: %w", err)
	}
	if code == codeNotFound {
		return job.ErrJobNotFound
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(jobID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, job.ErrJobNotFound
	}
	return fieldsToJob(vals)
}

// GetJobByKey returns the active job holding key.
func (s *Store) GetJobByKey(ctx context.Context, key string) (*job.Job, error) {
	jID, err := s.client.HGet(ctx, activeKeysKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: get job by key: %w", err)
	}
	jobID, err := id.ParseJobID(jID)
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: parse key holder: %w", err)
	}
	return s.GetJob(ctx, jobID)
}

// ListJobs returns jobs matching opts, oldest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var result []*job.Job
	for _, j := range all {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.JobType != "" && j.JobType != opts.JobType {
			continue
		}
		if opts.ReferenceID != "" && j.ReferenceID != opts.ReferenceID {
			continue
		}
		result = append(result, j)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(result) {
			return nil, nil
		}
		result = result[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}
	return result, nil
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, j := range all {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.JobType != "" && j.JobType != opts.JobType {
			continue
		}
		n++
	}
	return n, nil
}

// held runs a lease-conditional script and maps its result code.
func (s *Store) held(ctx context.Context, script *redis.Script, jobID id.JobID, workerID id.WorkerID, now time.Time, extra ...any) error {
	args := append([]any{workerID.String(), millis(now)}, extra...)
	code, err := script.Run(ctx, s.client,
		[]string{jobKey(jobID.String()), pendingKey, leasedKey, activeKeysKey}, args...).Int()
	if err != nil {
		return fmt.Errorf("cascade/redis: %w", err)
	}
	switch code {
	case codeNotFound:
		return job.ErrJobNotFound
	case codeLeaseLost:
		return job.ErrLeaseLost
	}
	return nil
}

// scan loads every job in creation order.
func (s *Store) scan(ctx context.Context) ([]*job.Job, error) {
	ids, err := s.client.ZRange(ctx, jobIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: list job ids: %w", err)
	}
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, jID := range ids {
		cmds[i] = pipe.HGetAll(ctx, jobKey(jID))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("cascade/redis: load jobs: %w", err)
		}
	}
	jobs := make([]*job.Job, 0, len(ids))
	for _, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) == 0 {
			continue
		}
		j, err := fieldsToJob(vals)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func jobToFields(j *job.Job) []any {
	disabledAt := ""
	if j.DisabledAt != nil {
		disabledAt = millis(*j.DisabledAt)
	}
	return []any{
		"id", j.ID.String(),
		"job_type", j.JobType,
		"version", strconv.Itoa(j.Version),
		"args", string(j.Args),
		"status", string(j.Status),
		"priority", strconv.Itoa(j.Priority),
		"max_retries", strconv.Itoa(j.MaxRetries),
		"retry_count", strconv.Itoa(j.RetryCount),
		"idempotency_key", j.IdempotencyKey,
		"reference_id", j.ReferenceID,
		"frequency", j.Frequency,
		"next_run_at", millis(j.NextRunAt),
		"worker_id", "",
		"lease_expires_at", "",
		"last_run_at", "",
		"error_message", j.ErrorMessage,
		"error_kind", string(j.ErrorKind),
		"dead_lettered_at", "",
		"dead_letter_reason", "",
		"disabled_at", disabledAt,
		"created_at", millis(j.CreatedAt),
		"updated_at", millis(j.UpdatedAt),
	}
}

func fieldsToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("cascade/redis: parse job id: %w", err)
	}

	version, _ := strconv.Atoi(m["version"])        //nolint:errcheck // best-effort parse from trusted Redis data
	priority, _ := strconv.Atoi(m["priority"])      //nolint:errcheck // best-effort parse from trusted Redis data
	maxRetries, _ := strconv.Atoi(m["max_retries"]) //nolint:errcheck // best-effort parse from trusted Redis data
	retryCount, _ := strconv.Atoi(m["retry_count"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: cascade.Entity{
			CreatedAt: fromMillis(m["created_at"]),
			UpdatedAt: fromMillis(m["updated_at"]),
		},
		ID:               jID,
		JobType:          m["job_type"],
		Version:          version,
		Args:             []byte(m["args"]),
		Status:           job.Status(m["status"]),
		Priority:         priority,
		MaxRetries:       maxRetries,
		RetryCount:       retryCount,
		IdempotencyKey:   m["idempotency_key"],
		ReferenceID:      m["reference_id"],
		Frequency:        m["frequency"],
		NextRunAt:        fromMillis(m["next_run_at"]),
		LastRunAt:        optMillis(m["last_run_at"]),
		LeaseExpiresAt:   optMillis(m["lease_expires_at"]),
		ErrorMessage:     m["error_message"],
		ErrorKind:        job.ErrorKind(m["error_kind"]),
		DeadLetteredAt:   optMillis(m["dead_lettered_at"]),
		DeadLetterReason: m["dead_letter_reason"],
		DisabledAt:       optMillis(m["disabled_at"]),
	}
	if wid := m["worker_id"]; wid != "" {
		j.WorkerID, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	return j, nil
}

func millis(t time.Time) string { return strconv.FormatInt(t.UnixMilli(), 10) }

func fromMillis(v string) time.Time {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func optMillis(v string) *time.Time {
	if v == "" {
		return nil
	}
	t := fromMillis(v)
	return &t
}

// flatToMap turns an HGETALL reply returned from Lua into a map.
func flatToMap(flat []any) map[string]string {
	m := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		m[k] = v
	}
	return m
}

// pair decodes a {code, id} script reply.
func pair(res []any) (int64, string) {
	if len(res) != 2 {
		return codeNotFound, ""
	}
	code, _ := res[0].(int64)
	holder, _ := res[1].(string)
	return code, holder
}
