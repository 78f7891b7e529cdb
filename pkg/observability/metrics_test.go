package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/botasky11/totml/internal/testutils"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	hooks := m.Hooks()
	ctx := context.Background()

	draft := testutils.ReviewedNode("draft", "print(1)", nil, true, domain.WorstMetric())
	draft.ExecTime = 2 * time.Second
	fix := testutils.ReviewedNode("fix", "print(2)", draft, false, domain.NewMetric(0.9, true))

	hooks.OnDecision(ctx, &domain.DecisionEvent{Action: domain.ActionDraft})
	hooks.OnExtractionRetry(ctx, &domain.GenerationEvent{Action: domain.ActionDraft, Attempt: 1})
	hooks.OnNodeExecuted(ctx, &domain.NodeEvent{Node: draft})
	hooks.OnReviewMalformed(ctx, &domain.NodeEvent{Node: draft})
	hooks.OnNodeAppended(ctx, &domain.NodeEvent{Node: draft})
	hooks.OnNodeAppended(ctx, &domain.NodeEvent{Node: fix, Duplicate: true})

	expected := `
# HELP totml_duplicate_candidates_total Appended nodes whose code already existed in the journal.
# TYPE totml_duplicate_candidates_total counter
totml_duplicate_candidates_total 1
# HELP totml_extraction_retries_total Completions without an extractable plan and code block.
# TYPE totml_extraction_retries_total counter
totml_extraction_retries_total{action="draft"} 1
# HELP totml_nodes_total Nodes appended to journals, by kind and verdict.
# TYPE totml_nodes_total counter
totml_nodes_total{kind="debug",verdict="good"} 1
totml_nodes_total{kind="draft",verdict="buggy"} 1
# HELP totml_policy_decisions_total Search policy decisions, by action.
# TYPE totml_policy_decisions_total counter
totml_policy_decisions_total{action="draft"} 1
# HELP totml_review_malformed_total Reviews whose structured answer could not be decoded.
# TYPE totml_review_malformed_total counter
totml_review_malformed_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"totml_duplicate_candidates_total",
		"totml_extraction_retries_total",
		"totml_nodes_total",
		"totml_policy_decisions_total",
		"totml_review_malformed_total",
	))

	count, err := testutil.GatherAndCount(reg, "totml_exec_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_ObserveExperiment(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	best := 0.42
	m.ObserveExperiment(domain.ExperimentEvent{
		EventBase:  domain.NewEventBase(domain.EventExperimentStep, "exp-1"),
		Progress:   0.5,
		BestMetric: &best,
	})

	expected := `
# HELP totml_best_metric Best validation metric per experiment.
# TYPE totml_best_metric gauge
totml_best_metric{experiment="exp-1"} 0.42
# HELP totml_experiment_progress_ratio Completed fraction of each experiment's step budget.
# TYPE totml_experiment_progress_ratio gauge
totml_experiment_progress_ratio{experiment="exp-1"} 0.5
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"totml_best_metric", "totml_experiment_progress_ratio"))

	m.Forget("exp-1")
	count, err := testutil.GatherAndCount(reg, "totml_best_metric")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoggingHooks(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	hooks := observability.LoggingHooks(logger)
	ctx := context.Background()

	n := testutils.ReviewedNode("draft", "print(1)", nil, false, domain.NewMetric(0.5, true))
	hooks.OnDecision(ctx, &domain.DecisionEvent{Action: domain.ActionDraft})
	hooks.OnNodeAppended(ctx, &domain.NodeEvent{EventBase: domain.NewEventBase(domain.EventNodeAppended, "exp-1"), Node: n})

	out := buf.String()
	assert.NotContains(t, out, "policy_decision", "decisions are debug-level")
	assert.Contains(t, out, "node_appended")
	assert.Contains(t, out, "experiment=exp-1")
	assert.Contains(t, out, "kind=draft")
}
