package totml

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/pkg/adapters/openai"
	"github.com/botasky11/totml/pkg/config"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/observability"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/botasky11/totml/pkg/prompts"
	"github.com/botasky11/totml/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// InterpreterFactory builds the sandbox for an experiment workspace.
type InterpreterFactory func(workspace string) ports.Interpreter

// Engine is the high-level entry point of the library.
// It wires the configured store, backend, sandbox and prompts into a
// session.Manager and runs experiments through it.
type Engine struct {
	cfg     config.Config
	manager *session.Manager
	backend ports.Backend
	prompts *prompts.Loader

	store       ports.ExperimentStore
	locker      ports.DistributedLocker
	closeStore  func() error
	interpreter InterpreterFactory

	registry *prometheus.Registry
	metrics  *observability.Metrics
	hooks    domain.LifecycleHooks
	logger   *slog.Logger

	stopEvents func()
	eventsDone chan struct{}
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBackend injects a generative backend, bypassing the OpenAI-compatible adapter.
func WithBackend(b ports.Backend) Option {
	return func(e *Engine) {
		e.backend = b
	}
}

// WithStore injects an experiment store, bypassing the configured one.
// The caller keeps ownership and must close it.
func WithStore(s ports.ExperimentStore) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithLocker enables distributed experiment locks.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithInterpreter overrides how experiment sandboxes are built.
func WithInterpreter(f InterpreterFactory) Option {
	return func(e *Engine) {
		e.interpreter = f
	}
}

// WithPrompts sets the prompt templates, bypassing agent.prompts_dir.
func WithPrompts(l *prompts.Loader) Option {
	return func(e *Engine) {
		e.prompts = l
	}
}

// WithLifecycleHooks registers observability hooks on every agent.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = hooks
	}
}

// WithRegistry registers the search metrics with reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// New initializes an engine from a validated configuration.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.registry == nil {
		e.registry = prometheus.NewRegistry()
	}
	e.metrics = observability.NewMetrics(e.registry)

	if e.store == nil {
		st, err := openStore(cfg.Store, e.logger)
		if err != nil {
			return nil, err
		}
		e.store = st.store
		e.closeStore = st.close
		if e.locker == nil {
			e.locker = st.locker
		}
	}

	if e.prompts == nil {
		l, err := loadPrompts(cfg.Agent, e.logger)
		if err != nil {
			e.Close()
			return nil, err
		}
		e.prompts = l
	}

	if e.backend == nil {
		backendOpts := []openai.Option{
			openai.WithLogger(e.logger),
			openai.WithRateLimit(cfg.Backend.RateLimit, cfg.Backend.Burst),
			openai.WithRetries(cfg.Backend.MaxRetries, cfg.Backend.RetryBase),
		}
		if cfg.Backend.HTTPTimeout > 0 {
			backendOpts = append(backendOpts, openai.WithHTTPClient(&http.Client{Timeout: cfg.Backend.HTTPTimeout}))
		}
		e.backend = openai.New(backendOpts...)
	}

	if e.interpreter == nil {
		e.interpreter = processInterpreter(cfg.Exec, e.logger)
	}

	managerOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(e.locker))
	}
	e.manager = session.NewManager(e.store, managerOpts...)

	events, stop := e.manager.Subscribe("")
	e.stopEvents = stop
	e.eventsDone = make(chan struct{})
	go func() {
		defer close(e.eventsDone)
		for ev := range events {
			e.metrics.ObserveExperiment(ev)
		}
	}()

	return e, nil
}

// Close stops event forwarding and closes the store the engine opened.
func (e *Engine) Close() error {
	if e.stopEvents != nil {
		e.stopEvents()
		<-e.eventsDone
		e.stopEvents = nil
	}
	if e.closeStore != nil {
		err := e.closeStore()
		e.closeStore = nil
		return err
	}
	return nil
}

// Manager returns the experiment manager, e.g. for transports.
func (e *Engine) Manager() *session.Manager { return e.manager }

// Registry returns the registry holding the search metrics.
func (e *Engine) Registry() *prometheus.Registry { return e.registry }

// Config returns the configuration the engine was built from.
func (e *Engine) Config() config.Config { return e.cfg }

// Create stores a new pending experiment for task, sized by experiment.steps.
func (e *Engine) Create(ctx context.Context, name string, task domain.Task) (*domain.Experiment, error) {
	if task.Goal == "" {
		return nil, fmt.Errorf("%w: experiment goal is required", domain.ErrInvalidConfig)
	}
	if task.DataDir == "" {
		task.DataDir = e.cfg.Experiment.DataDir
	}
	return e.manager.Create(ctx, name, task, e.cfg.Experiment.Steps, e.cfg.Snapshot())
}

// Run drives the experiment to completion, resuming from its stored journal.
func (e *Engine) Run(ctx context.Context, id string) (*domain.Experiment, error) {
	return e.manager.Run(ctx, id, e.factory)
}

// RunBatch runs independent experiments concurrently, at most limit at a
// time (unlimited when limit <= 0). The first failure cancels the others.
func (e *Engine) RunBatch(ctx context.Context, ids []string, limit int) ([]*domain.Experiment, error) {
	results := make([]*domain.Experiment, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, id := range ids {
		g.Go(func() error {
			exp, err := e.Run(gctx, id)
			if err != nil {
				return fmt.Errorf("experiment %s: %w", id, err)
			}
			results[i] = exp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Delete removes a stored experiment and its metric series.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := e.manager.Delete(ctx, id); err != nil {
		return err
	}
	e.metrics.Forget(id)
	return nil
}

// Best returns the best working node of a stored experiment.
func (e *Engine) Best(ctx context.Context, id string) (*domain.Node, error) {
	j, err := e.manager.Journal(ctx, id)
	if err != nil {
		return nil, err
	}
	best := j.BestNode(true)
	if best == nil {
		return nil, ErrNoSolution
	}
	return best, nil
}

// ErrNoSolution is returned by Best when no node ran without bugs.
var ErrNoSolution = errors.New("no working solution found")
