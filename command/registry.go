package command

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/codec"
	"github.com/xraph/cascade/job"
)

// Handler executes one typed command with shared dependencies D.
type Handler[T Command, D any] func(ctx context.Context, cmd T, deps D) error

// Upcaster rewrites a payload written at an older version into the
// current version's shape.
type Upcaster func(payload []byte, fromVersion int) ([]byte, error)

// RegisterOption configures a registration.
type RegisterOption func(*registerOptions)

type registerOptions struct {
	version  int
	upcaster Upcaster
}

// WithVersion declares the newest payload version the handler reads.
// Jobs written at a newer version are dead-lettered as fatal.
func WithVersion(v int) RegisterOption {
	return func(o *registerOptions) { o.version = v }
}

// WithUpcaster migrates payloads older than the registered version before
// decoding. Without one, older payloads are decoded as-is.
func WithUpcaster(u Upcaster) RegisterOption {
	return func(o *registerOptions) { o.upcaster = u }
}

type registration[D any] struct {
	jobType  string
	version  int
	upcaster Upcaster
	exec     func(ctx context.Context, payload []byte, deps D) error
	invoke   func(ctx context.Context, cmd Command, deps D) error
}

// Registry maps job types to typed handlers. D is the dependency bundle
// every handler receives. It is safe for concurrent use.
type Registry[D any] struct {
	codec codec.Codec

	mu   sync.RWMutex
	regs map[string]*registration[D]
}

// NewRegistry creates an empty registry. A nil codec means JSON.
func NewRegistry[D any](c codec.Codec) *Registry[D] {
	if c == nil {
		c = codec.JSON{}
	}
	return &Registry[D]{codec: c, regs: make(map[string]*registration[D])}
}

// Codec returns the payload codec.
func (r *Registry[D]) Codec() codec.Codec { return r.codec }

// Register binds handler to jobType. Registering a job type twice panics;
// it is a wiring bug, not a runtime condition.
func Register[T Command, D any](r *Registry[D], jobType string, handler Handler[T, D], opts ...RegisterOption) {
	o := registerOptions{version: 1}
	for _, opt := range opts {
		opt(&o)
	}

	reg := &registration[D]{
		jobType:  jobType,
		version:  o.version,
		upcaster: o.upcaster,
		exec: func(ctx context.Context, payload []byte, deps D) error {
			var cmd T
			if len(payload) > 0 {
				if err := r.codec.Unmarshal(payload, &cmd); err != nil {
					return job.Fatal(fmt.Errorf("%w for %q: %w", cascade.ErrMalformedPayload, jobType, err))
				}
			}
			return handler(ctx, cmd, deps)
		},
		invoke: func(ctx context.Context, cmd Command, deps D) error {
			typed, ok := cmd.(T)
			if !ok {
				return fmt.Errorf("%w: %q registered for %T, got %T", cascade.ErrUnknownCommand, jobType, *new(T), cmd)
			}
			return handler(ctx, typed, deps)
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.regs[jobType]; exists {
		panic(fmt.Sprintf("command: job type %q registered twice", jobType))
	}
	r.regs[jobType] = reg
}

// Has reports whether jobType has a handler.
func (r *Registry[D]) Has(jobType string) bool {
	_, ok := r.lookup(jobType)
	return ok
}

// Names returns all registered job types, sorted.
func (r *Registry[D]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.regs))
	for name := range r.regs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Version returns the registered payload version for jobType.
func (r *Registry[D]) Version(jobType string) int {
	if reg, ok := r.lookup(jobType); ok {
		return reg.version
	}
	return 0
}

// Encode serializes cmd with the registry codec.
func (r *Registry[D]) Encode(cmd Command) ([]byte, error) {
	data, err := r.codec.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command %q: %w", cmd.JobType(), err)
	}
	return data, nil
}

// Execute decodes a claimed job's payload and runs its handler. Unknown
// job types, unsupported versions and undecodable payloads come back as
// fatal errors. Handler errors are returned unchanged for the caller to
// classify.
func (r *Registry[D]) Execute(ctx context.Context, j *job.Job, deps D) error {
	reg, ok := r.lookup(j.JobType)
	if !ok {
		return job.Fatal(fmt.Errorf("%w: %q", cascade.ErrUnknownCommand, j.JobType))
	}

	version := max(j.Version, 1)
	payload := j.Args
	switch {
	case version > reg.version:
		return job.Fatal(fmt.Errorf("%w: %q v%d, handler reads up to v%d",
			cascade.ErrUnsupportedVersion, j.JobType, version, reg.version))
	case version < reg.version && reg.upcaster != nil:
		upcast, err := reg.upcaster(payload, version)
		if err != nil {
			return job.Fatal(fmt.Errorf("%w for %q: upcast from v%d: %w",
				cascade.ErrMalformedPayload, j.JobType, version, err))
		}
		payload = upcast
	}

	return reg.exec(WithJob(ctx, j), payload, deps)
}

// Invoke runs cmd's handler in-process without encoding it.
func (r *Registry[D]) Invoke(ctx context.Context, cmd Command, deps D) error {
	reg, ok := r.lookup(cmd.JobType())
	if !ok {
		return fmt.Errorf("%w: %q", cascade.ErrUnknownCommand, cmd.JobType())
	}
	return reg.invoke(ctx, cmd, deps)
}

func (r *Registry[D]) lookup(jobType string) (*registration[D], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.regs[jobType]
	return reg, ok
}
