// Package cron parses recurrence frequencies for self-rescheduling jobs.
//
// A frequency is any of:
//   - a standard 5-field cron expression ("0 9 * * 1-5")
//   - a descriptor ("@daily", "@hourly", "@every 30m")
//   - a bare alias ("daily", "hourly", "weekly", "monthly", "yearly")
//
// "hourly", "daily" and "weekly" are fixed intervals from the previous
// run; "monthly" and "yearly" follow the calendar like their descriptors.
//
// A recurring job is never copied. When it succeeds the queue moves the
// same row back to pending at [Next] with its retry state cleared, so one
// idempotency key ([RecurringKey]) covers every occurrence.
package cron
