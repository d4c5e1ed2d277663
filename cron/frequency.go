package cron

import (
	"fmt"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/cascade"
)

var parser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Bare aliases are intervals counted from the last run, so "daily" means
// 24h after the previous success. The @-descriptors keep their calendar
// meaning ("@daily" is the next midnight).
var aliases = map[string]string{
	"yearly":   "@yearly",
	"annually": "@yearly",
	"monthly":  "@monthly",
	"weekly":   "@every 168h",
	"daily":    "@every 24h",
	"midnight": "@midnight",
	"hourly":   "@every 1h",
}

var (
	cacheMu sync.RWMutex
	cache   = map[string]cronlib.Schedule{}
)

// Normalize expands bare aliases into descriptors and trims whitespace.
func Normalize(freq string) string {
	f := strings.TrimSpace(freq)
	if d, ok := aliases[strings.ToLower(f)]; ok {
		return d
	}
	return f
}

// Parse parses a frequency. Parsed schedules are cached.
func Parse(freq string) (cronlib.Schedule, error) {
	expr := Normalize(freq)

	cacheMu.RLock()
	sched, ok := cache[expr]
	cacheMu.RUnlock()
	if ok {
		return sched, nil
	}

	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", cascade.ErrInvalidFrequency, freq, err)
	}

	cacheMu.Lock()
	cache[expr] = sched
	cacheMu.Unlock()
	return sched, nil
}

// Validate reports whether freq parses.
func Validate(freq string) error {
	_, err := Parse(freq)
	return err
}

// Next returns the first occurrence of freq strictly after from.
func Next(freq string, from time.Time) (time.Time, error) {
	sched, err := Parse(freq)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

// RecurringKey is the idempotency key shared by every occurrence of a
// recurring job type.
func RecurringKey(jobType string) string {
	return "recurring:" + jobType
}
