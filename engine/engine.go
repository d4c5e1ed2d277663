package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xraph/cascade"
	"github.com/xraph/cascade/backoff"
	"github.com/xraph/cascade/codec"
	"github.com/xraph/cascade/command"
	"github.com/xraph/cascade/dlq"
	"github.com/xraph/cascade/effect"
	"github.com/xraph/cascade/event"
	"github.com/xraph/cascade/ext"
	"github.com/xraph/cascade/id"
	"github.com/xraph/cascade/job"
	"github.com/xraph/cascade/machine"
	mw "github.com/xraph/cascade/middleware"
	"github.com/xraph/cascade/observability"
	"github.com/xraph/cascade/queue"
	"github.com/xraph/cascade/worker"
)

const instrumentationName = "github.com/xraph/cascade"

// Engine drives cascades for handlers that share dependencies D.
type Engine[D any] struct {
	config        cascade.Config
	deps          D
	store         job.Store
	queue         *queue.Queue
	commands      *command.Registry[D]
	events        *event.Registry
	transport     event.Transport
	ownsTransport bool
	extensions    *ext.Registry
	pool          *worker.Pool
	dlq           *dlq.Service
	logger        *slog.Logger

	machinesMu sync.RWMutex
	machines   []*machineSlot
}

// machineSlot serializes Decide calls for one machine.
type machineSlot struct {
	mu   sync.Mutex
	name string
	m    machine.Machine
}

// DispatchResult reports where a dispatched command went.
type DispatchResult struct {
	Mode command.Mode
	// JobID is set for Background commands. It is the existing job's ID
	// when the idempotency key was already held.
	JobID id.JobID
}

// New builds an engine over store. deps is handed to every handler.
func New[D any](store job.Store, deps D, opts ...Option) (*Engine[D], error) {
	if store == nil {
		return nil, cascade.ErrNoStore
	}

	o := options{config: cascade.DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.codec == nil {
		o.codec = codec.JSON{}
	}
	if o.backoff == nil {
		o.backoff = backoff.DefaultStrategy()
	}
	cfg := cascade.NewConfig(func(c *cascade.Config) { *c = o.config })

	eng := &Engine[D]{
		config:     cfg,
		deps:       deps,
		store:      store,
		commands:   command.NewRegistry[D](o.codec),
		events:     event.NewRegistry(o.codec),
		transport:  o.transport,
		extensions: ext.NewRegistry(o.logger),
		logger:     o.logger,
	}
	if eng.transport == nil {
		eng.transport = event.NewBroker()
		eng.ownsTransport = true
	}

	if o.meterProvider != nil {
		eng.extensions.Register(observability.NewMetricsExtensionWithMeter(
			o.meterProvider.Meter(instrumentationName + "/observability")))
	} else {
		eng.extensions.Register(observability.NewMetricsExtension())
	}
	for _, e := range o.extensions {
		eng.extensions.Register(e)
	}

	eng.queue = queue.New(store,
		queue.WithBackoff(o.backoff),
		queue.WithLease(cfg.LeaseDuration),
		queue.WithDefaultMaxRetries(cfg.DefaultMaxRetries),
		queue.WithExtensions(eng.extensions),
		queue.WithLogger(o.logger),
	)
	eng.dlq = dlq.NewService(store, dlq.WithLogger(o.logger))

	executorOpts := []worker.ExecutorOption{worker.WithMiddleware(defaultMiddleware(o)...)}
	if o.classifier != nil {
		executorOpts = append(executorOpts, worker.WithClassifier(o.classifier))
	}
	executor := worker.NewExecutor(eng.queue, eng.runJob, eng.extensions, o.logger, executorOpts...)
	eng.pool = worker.NewPool(eng.queue, executor, eng.extensions, o.logger,
		worker.WithConfig(cfg),
		worker.WithThrottle(o.throttle),
	)

	return eng, nil
}

// defaultMiddleware builds recover → tracing → metrics → logging →
// timeout → user middleware.
func defaultMiddleware(o options) []mw.Middleware {
	tracing := mw.Tracing()
	if o.tracerProvider != nil {
		tracing = mw.TracingWithTracer(o.tracerProvider.Tracer(instrumentationName))
	}
	metrics := mw.Metrics()
	if o.meterProvider != nil {
		metrics = mw.MetricsWithMeter(o.meterProvider.Meter(instrumentationName))
	}

	mws := []mw.Middleware{
		mw.Recover(o.logger),
		tracing,
		metrics,
		mw.Logging(o.logger),
	}
	if o.timeout > 0 || len(o.timeoutPerType) > 0 {
		mws = append(mws, mw.Timeout(o.logger, o.timeout, o.timeoutPerType))
	}
	return append(mws, o.middleware...)
}

func (eng *Engine[D]) runJob(ctx context.Context, j *job.Job) error {
	return eng.commands.Execute(ctx, j, eng.deps)
}

// Register binds a plain handler to jobType. The handler produces no event.
func Register[T command.Command, D any](eng *Engine[D], jobType string, h command.Handler[T, D], opts ...command.RegisterOption) {
	command.Register(eng.commands, jobType, h, opts...)
}

// RegisterEffect binds eff to jobType. After eff succeeds its event is
// emitted into the cascade. An emission failure fails the step, so the
// effect may run again and must be idempotent.
func RegisterEffect[T command.Command, D any](eng *Engine[D], jobType string, eff effect.Effect[T, D], opts ...command.RegisterOption) {
	command.Register(eng.commands, jobType, func(ctx context.Context, cmd T, deps D) error {
		evt, err := eff.Execute(ctx, cmd, deps)
		if err != nil {
			return err
		}
		if evt == nil {
			return nil
		}
		if err := eng.Emit(ctx, evt); err != nil {
			if errors.Is(err, cascade.ErrCascadeTooDeep) {
				return job.Fatal(err)
			}
			return fmt.Errorf("emit %q: %w", evt.EventType(), err)
		}
		return nil
	}, opts...)
}

// RegisterEvent lets the engine decode T when it arrives from a remote
// transport.
func RegisterEvent[T event.Event, D any](eng *Engine[D]) {
	event.Register[T](eng.events)
}

// RegisterMachine appends m to the machines consulted on every emitted
// event. Machines run in registration order.
func (eng *Engine[D]) RegisterMachine(name string, m machine.Machine) {
	eng.machinesMu.Lock()
	eng.machines = append(eng.machines, &machineSlot{name: name, m: m})
	eng.machinesMu.Unlock()
}

// Dispatch runs cmd according to its ExecutionMode. Inline commands run
// now in the caller's goroutine and their cascade runs with them.
// Background commands are enqueued, honoring the idempotency key of their
// JobSpec.
func (eng *Engine[D]) Dispatch(ctx context.Context, cmd command.Command) (DispatchResult, error) {
	jobType := cmd.JobType()
	if !eng.commands.Has(jobType) {
		return DispatchResult{}, fmt.Errorf("%w: %q", cascade.ErrUnknownCommand, jobType)
	}

	mode := cmd.ExecutionMode()
	if mode == command.Inline {
		if err := eng.commands.Invoke(ctx, cmd, eng.deps); err != nil {
			return DispatchResult{Mode: mode}, err
		}
		eng.extensions.EmitCommandDispatched(ctx, jobType, id.Nil)
		return DispatchResult{Mode: mode}, nil
	}

	jobID, err := eng.enqueue(ctx, cmd, cmd.JobSpec())
	if err != nil {
		return DispatchResult{Mode: mode}, err
	}
	eng.extensions.EmitCommandDispatched(ctx, jobType, jobID)
	return DispatchResult{Mode: mode, JobID: jobID}, nil
}

func (eng *Engine[D]) enqueue(ctx context.Context, cmd command.Command, spec *job.Spec) (id.JobID, error) {
	payload, err := eng.commands.Encode(cmd)
	if err != nil {
		return id.Nil, err
	}
	if spec == nil || spec.Version == 0 {
		spec = spec.With(job.WithVersion(eng.commands.Version(cmd.JobType())))
	}
	return eng.queue.Enqueue(ctx, cmd.JobType(), payload, spec)
}

// Emit publishes evt and runs every machine against it. Commands decided
// by machines are dispatched in order. Publishing is best effort: a
// transport failure is logged and does not stop local machines. Dispatch
// failures are joined and returned after every machine has run.
func (eng *Engine[D]) Emit(ctx context.Context, evt event.Event) error {
	depth := depthFrom(ctx)
	if depth >= eng.config.MaxCascadeDepth {
		return fmt.Errorf("%w: %q at depth %d", cascade.ErrCascadeTooDeep, evt.EventType(), depth)
	}

	env, err := event.Wrap(evt, eng.events.Codec())
	if err != nil {
		return err
	}
	eng.extensions.EmitEventEmitted(ctx, env)
	if err := eng.transport.Publish(ctx, env); err != nil {
		eng.logger.Warn("event publish failed",
			slog.String("event_type", env.Type),
			slog.String("event_id", env.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	eng.machinesMu.RLock()
	slots := append([]*machineSlot(nil), eng.machines...)
	eng.machinesMu.RUnlock()

	next := withDepth(ctx, depth+1)
	var errs []error
	for _, s := range slots {
		s.mu.Lock()
		cmd := s.m.Decide(evt)
		s.mu.Unlock()
		if cmd == nil {
			continue
		}

		eng.logger.Debug("machine reacted",
			slog.String("machine", s.name),
			slog.String("event_type", env.Type),
			slog.String("job_type", cmd.JobType()),
		)
		if _, err := eng.Dispatch(next, cmd); err != nil {
			errs = append(errs, fmt.Errorf("machine %s: dispatch %q: %w", s.name, cmd.JobType(), err))
		}
	}
	return errors.Join(errs...)
}

// Start starts the worker pool.
func (eng *Engine[D]) Start(ctx context.Context) error {
	eng.machinesMu.RLock()
	machines := len(eng.machines)
	eng.machinesMu.RUnlock()

	eng.logger.Info("cascade engine starting",
		slog.Any("job_types", eng.commands.Names()),
		slog.Int("machines", machines),
	)
	return eng.pool.Start(ctx)
}

// Stop drains the worker pool and closes the engine-owned transport.
func (eng *Engine[D]) Stop(ctx context.Context) error {
	err := eng.pool.Stop(ctx)
	if eng.ownsTransport {
		if cerr := eng.transport.Close(); cerr != nil {
			eng.logger.Warn("transport close error", slog.String("error", cerr.Error()))
		}
	}
	return err
}

// Config returns the normalized configuration.
func (eng *Engine[D]) Config() cascade.Config { return eng.config }

// Deps returns the dependency bundle handed to handlers.
func (eng *Engine[D]) Deps() D { return eng.deps }

// Store returns the job store.
func (eng *Engine[D]) Store() job.Store { return eng.store }

// Queue returns the job queue.
func (eng *Engine[D]) Queue() *queue.Queue { return eng.queue }

// Commands returns the command registry.
func (eng *Engine[D]) Commands() *command.Registry[D] { return eng.commands }

// Events returns the event registry.
func (eng *Engine[D]) Events() *event.Registry { return eng.events }

// Transport returns the event transport emitted events are published on.
func (eng *Engine[D]) Transport() event.Transport { return eng.transport }

// Extensions returns the extension registry.
func (eng *Engine[D]) Extensions() *ext.Registry { return eng.extensions }

// Pool returns the worker pool.
func (eng *Engine[D]) Pool() *worker.Pool { return eng.pool }

// DLQ returns the dead-letter service.
func (eng *Engine[D]) DLQ() *dlq.Service { return eng.dlq }
