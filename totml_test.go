package totml_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/botasky11/totml"
	"github.com/botasky11/totml/internal/testutils"
	"github.com/botasky11/totml/pkg/config"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	data := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(data, "train.csv"), []byte("x,y\n1,2\n3,4\n"), 0644))

	cfg := config.Default()
	cfg.Experiment.Goal = "Predict y from x."
	cfg.Experiment.Eval = "RMSE"
	cfg.Experiment.DataDir = data
	cfg.Experiment.WorkspaceDir = t.TempDir()
	cfg.Experiment.Steps = 2
	cfg.Agent.NumDrafts = 1
	cfg.Agent.DebugProb = 0
	cfg.Agent.Seed = 7
	cfg.Store.Kind = "memory"
	return cfg
}

func newEngine(t *testing.T, cfg config.Config, backend ports.Backend, interp *testutils.FakeInterpreter) *totml.Engine {
	t.Helper()
	eng, err := totml.New(cfg,
		totml.WithBackend(backend),
		totml.WithInterpreter(func(string) ports.Interpreter { return interp }),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func TestEngine_RunDraftThenImprove(t *testing.T) {
	cfg := testConfig(t)
	backend := testutils.NewFakeBackend().
		Completion(testutils.Completion("Linear regression.", "print(0.5)")).
		Review(testutils.GoodReview(0.5, true)).
		Completion(testutils.Completion("Add features.", "print(0.3)")).
		Review(testutils.GoodReview(0.3, true))
	eng := newEngine(t, cfg, backend, &testutils.FakeInterpreter{})

	ctx := context.Background()
	exp, err := eng.Create(ctx, "", cfg.Task())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, exp.Status)
	assert.Equal(t, 2, exp.TotalSteps)

	exp, err = eng.Run(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, exp.Status)
	assert.Equal(t, 2, exp.CurrentStep)
	require.NotNil(t, exp.BestMetric)
	assert.InDelta(t, 0.3, *exp.BestMetric, 1e-9)
	assert.Equal(t, "print(0.3)", exp.BestCode)

	require.Len(t, exp.Journal.Nodes, 2)
	improve := exp.Journal.Nodes[1]
	assert.Equal(t, domain.KindImprove, improve.Kind)
	assert.Equal(t, exp.Journal.Nodes[0].ID, improve.ParentID)

	draft := backend.Requests[0].System.Markdown()
	assert.Contains(t, draft, "Predict y from x.")
	assert.Contains(t, draft, "train.csv has 2 rows and 2 columns", "data overview should describe files behind the input link")

	best, err := eng.Best(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, exp.BestNodeID, best.ID)

	series, err := testutil.GatherAndCount(eng.Registry(), "totml_nodes_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one series per kind")
}

func TestEngine_WorkspaceLayout(t *testing.T) {
	cfg := testConfig(t)
	backend := testutils.NewFakeBackend().
		Completion(testutils.Completion("plan", "print(1)")).
		Review(testutils.GoodReview(1, false))
	cfg.Experiment.Steps = 1
	eng := newEngine(t, cfg, backend, &testutils.FakeInterpreter{})

	ctx := context.Background()
	exp, err := eng.Create(ctx, "layout", cfg.Task())
	require.NoError(t, err)
	_, err = eng.Run(ctx, exp.ID)
	require.NoError(t, err)

	ws := filepath.Join(cfg.Experiment.WorkspaceDir, exp.ID)
	for _, dir := range []string{"working", "submission"} {
		info, err := os.Stat(filepath.Join(ws, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	_, err = os.Stat(filepath.Join(ws, "input", "train.csv"))
	assert.NoError(t, err, "input should expose the data directory")
}

func TestEngine_NoWorkingSolution(t *testing.T) {
	cfg := testConfig(t)
	cfg.Experiment.Steps = 1
	backend := testutils.NewFakeBackend().
		Completion(testutils.Completion("plan", "raise ValueError")).
		Review(testutils.BugReview())
	interp := (&testutils.FakeInterpreter{}).Then(testutils.Crash("ValueError", "boom"))
	eng := newEngine(t, cfg, backend, interp)

	ctx := context.Background()
	exp, err := eng.Create(ctx, "buggy", cfg.Task())
	require.NoError(t, err)
	exp, err = eng.Run(ctx, exp.ID)
	require.NoError(t, err)
	assert.Nil(t, exp.BestMetric)

	_, err = eng.Best(ctx, exp.ID)
	assert.ErrorIs(t, err, totml.ErrNoSolution)
}

func TestEngine_BackendFailureFailsExperiment(t *testing.T) {
	cfg := testConfig(t)
	backend := testutils.NewFakeBackend().Fail(assert.AnError)
	eng := newEngine(t, cfg, backend, &testutils.FakeInterpreter{})

	ctx := context.Background()
	exp, err := eng.Create(ctx, "down", cfg.Task())
	require.NoError(t, err)

	_, err = eng.Run(ctx, exp.ID)
	require.ErrorIs(t, err, assert.AnError)

	stored, err := eng.Manager().Get(ctx, exp.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, stored.Status)
	assert.Empty(t, stored.Journal.Nodes, "a failed step appends nothing")
}

func TestEngine_RunBatch(t *testing.T) {
	cfg := testConfig(t)
	cfg.Experiment.Steps = 1
	backend := testutils.NewFakeBackend()
	for range 3 {
		backend.Completion(testutils.Completion("plan", "print(1)")).Review(testutils.GoodReview(0.9, false))
	}
	eng := newEngine(t, cfg, backend, &testutils.FakeInterpreter{})

	ctx := context.Background()
	var ids []string
	for range 3 {
		exp, err := eng.Create(ctx, "", cfg.Task())
		require.NoError(t, err)
		ids = append(ids, exp.ID)
	}

	results, err := eng.RunBatch(ctx, ids, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, exp := range results {
		assert.Equal(t, ids[i], exp.ID)
		assert.Equal(t, domain.StatusCompleted, exp.Status)
	}
}

func TestEngine_CreateRequiresGoal(t *testing.T) {
	cfg := testConfig(t)
	eng := newEngine(t, cfg, testutils.NewFakeBackend(), &testutils.FakeInterpreter{})

	_, err := eng.Create(context.Background(), "", domain.Task{})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Agent.DebugProb = 2

	_, err := totml.New(cfg, totml.WithBackend(testutils.NewFakeBackend()))
	assert.Error(t, err)
}
