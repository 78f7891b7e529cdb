package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/oklog/ulid/v2"
)

// Stepper advances a search by one node.
type Stepper interface {
	Step(ctx context.Context, exec ports.Interpreter) (*domain.Node, error)
}

// Factory builds the agent and sandbox for an experiment around its restored journal.
type Factory func(ctx context.Context, exp *domain.Experiment, journal *domain.Journal) (Stepper, ports.Interpreter, error)

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates experiment access and execution.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.ExperimentStore

	mu      sync.Mutex
	locks   map[string]*lockEntry
	running map[string]context.CancelFunc

	subMu  sync.RWMutex
	subs   map[int]subscriber
	nextID int

	locker   ports.DistributedLocker
	lockTTL  time.Duration
	runLease time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

type subscriber struct {
	experimentID string
	ch           chan domain.ExperimentEvent
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the distributed lock TTL for short operations.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithRunLease sets how long a distributed lock taken by Run survives a crashed holder.
func WithRunLease(ttl time.Duration) Option {
	return func(m *Manager) {
		m.runLease = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager over the given store.
func NewManager(store ports.ExperimentStore, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		locks:    make(map[string]*lockEntry),
		running:  make(map[string]context.CancelFunc),
		subs:     make(map[int]subscriber),
		lockTTL:  30 * time.Second,
		runLease: 24 * time.Hour,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store returns the underlying experiment store.
func (m *Manager) Store() ports.ExperimentStore {
	return m.store
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu, and then call release(id) after unlocking.
func (m *Manager) acquire(id string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		entry = &lockEntry{}
		m.locks[id] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[id]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, id)
	}
}

// WithLock executes fn while holding the lock for the experiment.
func (m *Manager) WithLock(ctx context.Context, id string, fn func(context.Context) error) error {
	return m.withLock(ctx, id, m.lockTTL, fn)
}

func (m *Manager) withLock(ctx context.Context, id string, ttl time.Duration, fn func(context.Context) error) error {
	entry := m.acquire(id)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(id)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, id, ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"experiment_id", id,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

// Create stores a new pending experiment and returns it.
func (m *Manager) Create(ctx context.Context, name string, task domain.Task, steps int, config map[string]any) (*domain.Experiment, error) {
	if steps < 1 {
		return nil, fmt.Errorf("%w: steps must be at least 1, got %d", domain.ErrInvalidConfig, steps)
	}
	now := m.now().UTC()
	exp := &domain.Experiment{
		ID:         ulid.Make().String(),
		Name:       name,
		Task:       task,
		Status:     domain.StatusPending,
		TotalSteps: steps,
		Config:     config,
		Journal:    domain.JournalSnapshot{Nodes: []domain.Node{}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if exp.Name == "" {
		exp.Name = "experiment-" + exp.ID
	}

	if err := m.WithLock(ctx, exp.ID, func(ctx context.Context) error {
		return m.store.Save(ctx, exp)
	}); err != nil {
		return nil, fmt.Errorf("failed to create experiment: %w", err)
	}
	m.logger.Info("experiment created", "experiment_id", exp.ID, "name", exp.Name, "steps", steps)
	return exp, nil
}

// Get reads the latest persisted record. It does not wait for a running search.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Experiment, error) {
	return m.store.Load(ctx, id)
}

// Journal restores the journal of a stored experiment.
func (m *Manager) Journal(ctx context.Context, id string) (*domain.Journal, error) {
	exp, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return domain.RestoreJournal(exp.Journal)
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Delete removes an experiment. Experiments running in this process must be
// cancelled first.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if m.IsRunning(id) {
		return fmt.Errorf("%w: %s", domain.ErrExperimentRunning, id)
	}
	return m.WithLock(ctx, id, func(ctx context.Context) error {
		return m.store.Delete(ctx, id)
	})
}

// IsRunning reports whether Run is active for id in this process.
func (m *Manager) IsRunning(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.running[id]
	return ok
}

// Cancel stops a running experiment. It reports whether one was running.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	cancel, ok := m.running[id]
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Run drives the experiment until TotalSteps nodes exist, persisting the
// record after every node. A failed or interrupted experiment resumes from its
// stored journal. The final record is returned even when the run fails.
func (m *Manager) Run(ctx context.Context, id string, factory Factory) (*domain.Experiment, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	if _, busy := m.running[id]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", domain.ErrExperimentRunning, id)
	}
	m.running[id] = cancel
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.running, id)
		m.mu.Unlock()
	}()

	var exp *domain.Experiment
	err := m.withLock(ctx, id, m.runLease, func(ctx context.Context) error {
		var err error
		exp, err = m.store.Load(ctx, id)
		if err != nil {
			return err
		}
		return m.run(ctx, exp, factory)
	})
	return exp, err
}

func (m *Manager) run(ctx context.Context, exp *domain.Experiment, factory Factory) error {
	if exp.Status == domain.StatusCompleted {
		return nil
	}

	journal, err := domain.RestoreJournal(exp.Journal)
	if err != nil {
		return m.fail(ctx, exp, fmt.Errorf("failed to restore journal: %w", err))
	}
	exp.CurrentStep = journal.Len()

	agent, interp, err := factory(ctx, exp, journal)
	if err != nil {
		return m.fail(ctx, exp, fmt.Errorf("failed to build agent: %w", err))
	}

	exp.Status = domain.StatusRunning
	exp.ErrorMessage = ""
	if err := m.save(ctx, exp); err != nil {
		return err
	}
	m.publish(exp, domain.EventExperimentStarted, nil)
	m.logger.Info("experiment started", "experiment_id", exp.ID, "step", exp.CurrentStep, "total_steps", exp.TotalSteps)

	for exp.CurrentStep < exp.TotalSteps {
		node, err := agent.Step(ctx, interp)
		if err != nil {
			return m.fail(ctx, exp, err)
		}

		exp.CurrentStep = journal.Len()
		exp.Progress = float64(exp.CurrentStep) / float64(exp.TotalSteps)
		exp.Journal = journal.Snapshot()
		exp.RecordBest(journal)
		if err := m.save(ctx, exp); err != nil {
			return m.fail(ctx, exp, err)
		}
		m.publish(exp, domain.EventExperimentStep, node)
	}

	completed := m.now().UTC()
	exp.Status = domain.StatusCompleted
	exp.Progress = 1
	exp.CompletedAt = &completed
	if err := m.save(ctx, exp); err != nil {
		return err
	}
	m.publish(exp, domain.EventExperimentCompleted, nil)
	m.logger.Info("experiment completed", "experiment_id", exp.ID, "nodes", exp.CurrentStep, "best_node", exp.BestNodeID)
	return nil
}

// fail records cause on the experiment. The record is saved even when ctx is
// already cancelled.
func (m *Manager) fail(ctx context.Context, exp *domain.Experiment, cause error) error {
	exp.Status = domain.StatusFailed
	exp.ErrorMessage = cause.Error()
	if errors.Is(cause, context.Canceled) {
		exp.ErrorMessage = "cancelled"
	}
	if err := m.save(context.WithoutCancel(ctx), exp); err != nil {
		m.logger.Error("failed to persist experiment failure", "experiment_id", exp.ID, "err", err)
	}
	m.publish(exp, domain.EventExperimentFailed, nil)
	m.logger.Error("experiment failed", "experiment_id", exp.ID, "step", exp.CurrentStep, "err", cause)
	return cause
}

func (m *Manager) save(ctx context.Context, exp *domain.Experiment) error {
	exp.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, exp); err != nil {
		return fmt.Errorf("failed to save experiment %s: %w", exp.ID, err)
	}
	return nil
}

// Subscribe streams events for experimentID, or for every experiment when it
// is empty. Slow subscribers miss events rather than stall the search. The
// returned function cancels the subscription and closes the channel.
func (m *Manager) Subscribe(experimentID string) (<-chan domain.ExperimentEvent, func()) {
	ch := make(chan domain.ExperimentEvent, 64)

	m.subMu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = subscriber{experimentID: experimentID, ch: ch}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, id)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) publish(exp *domain.Experiment, t domain.EventType, node *domain.Node) {
	ev := domain.ExperimentEvent{
		EventBase:  domain.NewEventBase(t, exp.ID),
		Status:     string(exp.Status),
		Step:       exp.CurrentStep,
		TotalSteps: exp.TotalSteps,
		Progress:   exp.Progress,
		BestMetric: exp.BestMetric,
		Error:      exp.ErrorMessage,
	}
	if node != nil {
		ev.NodeID = node.ID
		ev.Buggy = node.Buggy
	}

	m.subMu.RLock()
	defer m.subMu.RUnlock()
	for _, s := range m.subs {
		if s.experimentID != "" && s.experimentID != exp.ID {
			continue
		}
		select {
		case s.ch <- ev:
		default:
			m.logger.Debug("dropping event for slow subscriber", "experiment_id", exp.ID, "type", t)
		}
	}
}
