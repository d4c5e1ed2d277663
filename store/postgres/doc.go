// Package postgres implements the job store using pgx/v5 with raw SQL.
// Claims use a FOR UPDATE SKIP LOCKED CTE, idempotency keys are enforced
// by a partial unique index over active jobs, and migrations are embedded
// SQL files. Times come from the database clock.
package postgres
