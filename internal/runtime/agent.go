package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/botasky11/totml/internal/logging"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/botasky11/totml/pkg/prompts"
)

// ModelConfig selects the backend model for one kind of query.
type ModelConfig struct {
	Model       string
	Temperature *float64
}

// Config holds everything the agent needs besides its collaborators.
type Config struct {
	Search SearchConfig

	// Code is used for plan+code generation, Feedback for reviews.
	Code     ModelConfig
	Feedback ModelConfig
	// MaxTokens is passed through to the backend; 0 leaves the model default.
	MaxTokens int

	// ExecTimeout is advertised to the model in the implementation guideline.
	ExecTimeout      time.Duration
	ExposePrediction bool
	KFoldValidation  int
	// DataPreview includes the data overview in draft and debug prompts.
	DataPreview bool

	// ExtractionRetries bounds plan+code queries per step (default 3).
	ExtractionRetries int
}

// PreviewFunc produces the data overview text.
type PreviewFunc func(ctx context.Context) (string, error)

// Agent drives the tree search for one experiment.
// Step must not be called concurrently; the journal may be read at any time.
type Agent struct {
	task    string
	cfg     Config
	journal *domain.Journal
	backend ports.Backend
	prompts *prompts.Loader

	rng          Rand
	hooks        domain.LifecycleHooks
	logger       *slog.Logger
	experimentID string

	previewSource PreviewFunc
	dataPreview   string
	hasPreview    bool

	reviewSpec ports.FunctionSpec
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger
	}
}

// WithRand injects the random source used by the policy and package shuffling.
func WithRand(r Rand) AgentOption {
	return func(a *Agent) {
		a.rng = r
	}
}

// WithSeed seeds a private PCG random source.
func WithSeed(seed uint64) AgentOption {
	return func(a *Agent) {
		a.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) AgentOption {
	return func(a *Agent) {
		a.hooks = hooks
	}
}

// WithPrompts sets the prompt template loader. Defaults to the embedded templates.
func WithPrompts(l *prompts.Loader) AgentOption {
	return func(a *Agent) {
		a.prompts = l
	}
}

// WithPreviewSource sets the function used to (re)build the data overview.
func WithPreviewSource(fn PreviewFunc) AgentOption {
	return func(a *Agent) {
		a.previewSource = fn
	}
}

// WithExperimentID tags emitted events and log lines.
func WithExperimentID(id string) AgentOption {
	return func(a *Agent) {
		a.experimentID = id
	}
}

// NewAgent creates an agent working on task, appending to journal.
func NewAgent(task string, cfg Config, journal *domain.Journal, backend ports.Backend, opts ...AgentOption) (*Agent, error) {
	if err := cfg.Search.Validate(); err != nil {
		return nil, err
	}
	if cfg.ExtractionRetries <= 0 {
		cfg.ExtractionRetries = 3
	}
	if journal == nil {
		journal = domain.NewJournal()
	}

	a := &Agent{
		task:    task,
		cfg:     cfg,
		journal: journal,
		backend: backend,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.rng == nil {
		a.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if a.prompts == nil {
		l, err := prompts.Default(prompts.WithLogger(a.logger))
		if err != nil {
			return nil, fmt.Errorf("load default prompts: %w", err)
		}
		a.prompts = l
	}
	if a.experimentID != "" {
		a.logger = a.logger.With("experiment", a.experimentID)
	}

	spec, err := a.prompts.FuncSpec(prompts.AgentTemplate, "review")
	if err != nil {
		return nil, fmt.Errorf("review function spec: %w", err)
	}
	a.reviewSpec = spec

	return a, nil
}

// Journal returns the journal the agent appends to.
func (a *Agent) Journal() *domain.Journal { return a.journal }

// UpdateDataPreview replaces the data overview text.
func (a *Agent) UpdateDataPreview(preview string) {
	a.dataPreview = preview
	a.hasPreview = true
}

func (a *Agent) refreshPreview(ctx context.Context) {
	if !a.cfg.DataPreview || a.previewSource == nil {
		return
	}
	if a.hasPreview && a.journal.Len() > 0 {
		return
	}
	preview, err := a.previewSource(ctx)
	if err != nil {
		a.logger.Warn("data preview failed", "error", err)
		return
	}
	a.UpdateDataPreview(preview)
}

// Step runs one search iteration: select, generate, execute, review, append.
//
// Execution faults and malformed reviews are recorded on the node. Errors
// are returned for backend transport failures, interpreter infrastructure
// failures, cancellation and journal structural violations; in every such
// case no node is appended.
func (a *Agent) Step(ctx context.Context, exec ports.Interpreter) (*domain.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.refreshPreview(ctx)

	decision, err := Decide(a.journal, a.cfg.Search, a.rng)
	if err != nil {
		return nil, err
	}
	a.emitDecision(ctx, decision)

	node, err := a.generate(ctx, decision)
	if err != nil {
		return nil, err
	}

	res, err := exec.Run(ctx, node.Code, true)
	if err != nil {
		return nil, fmt.Errorf("execute node %s: %w", node.ID, err)
	}
	if err := node.AbsorbExecResult(res); err != nil {
		return nil, err
	}
	a.emitNode(ctx, a.hooks.OnNodeExecuted, domain.EventNodeExecuted, node)

	if err := a.review(ctx, node); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := a.journal.Append(node); err != nil {
		return nil, err
	}
	a.logger.Info("node appended",
		"node", node.ID, "step", node.Step, "kind", node.Kind,
		"buggy", node.Buggy, "metric", node.Metric.String())
	a.emitNode(ctx, a.hooks.OnNodeAppended, domain.EventNodeAppended, node)

	return node, nil
}

func (a *Agent) emitDecision(ctx context.Context, d domain.Decision) {
	parentID := ""
	if d.Parent != nil {
		parentID = d.Parent.ID
	}
	a.logger.Debug("search policy decision", "action", d.Action, "parent", parentID)
	if a.hooks.OnDecision != nil {
		a.hooks.OnDecision(ctx, &domain.DecisionEvent{
			EventBase: domain.NewEventBase(domain.EventDecision, a.experimentID),
			Action:    d.Action,
			ParentID:  parentID,
		})
	}
}

func (a *Agent) emitNode(ctx context.Context, hook func(context.Context, *domain.NodeEvent), t domain.EventType, n *domain.Node) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.NodeEvent{
		EventBase: domain.NewEventBase(t, a.experimentID),
		Node:      n,
		Duplicate: a.isDuplicate(n),
	})
}

func (a *Agent) isDuplicate(n *domain.Node) bool {
	for _, other := range a.journal.Nodes() {
		if other.ID != n.ID && other.CodeHash == n.CodeHash {
			return true
		}
	}
	return false
}
