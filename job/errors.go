package job

import "errors"

var (
	// ErrJobNotFound is returned when no job has the requested ID.
	ErrJobNotFound = errors.New("cascade: job not found")

	// ErrLeaseLost is returned when a heartbeat or resolution names a
	// worker that no longer holds the job's lease.
	ErrLeaseLost = errors.New("cascade: job lease lost")

	// ErrNotDeadLettered is returned when requeueing a job that is not in
	// dead_letter.
	ErrNotDeadLettered = errors.New("cascade: job is not dead-lettered")
)

// ErrorKind classifies a handler failure.
type ErrorKind string

const (
	// KindRetryable failures are retried with backoff until the budget runs out.
	KindRetryable ErrorKind = "retryable"
	// KindFatal failures are dead-lettered immediately.
	KindFatal ErrorKind = "fatal"
)

// ClassifiedError marks an error with an explicit ErrorKind.
type ClassifiedError struct {
	Kind ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Fatal marks err as non-retryable. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindFatal, Err: err}
}

// Retryable marks err as transient. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Kind: KindRetryable, Err: err}
}

// Classifier maps a handler error to an ErrorKind.
type Classifier func(err error) ErrorKind

// Classify is the default classifier. The outermost explicit marker wins.
// Unmarked errors are retryable, including deadlines and cancellations,
// because a retry on a healthy worker may succeed.
func Classify(err error) ErrorKind {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindRetryable
}
