package ports

import (
	"context"
	"testing"
	"time"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// contractJournal builds a small tree: a buggy draft, its fix and a second draft.
func contractJournal(t *testing.T) *domain.Journal {
	t.Helper()
	j := domain.NewJournal()

	add := func(plan string, parent *domain.Node, buggy bool, metric domain.MetricValue) *domain.Node {
		n := domain.NewNode(plan, "print('"+plan+"')", parent)
		require.NoError(t, n.AbsorbExecResult(domain.ExecutionResult{TermOut: plan, Duration: time.Second}))
		require.NoError(t, n.AbsorbReview("analysis "+plan, buggy, metric))
		require.NoError(t, j.Append(n))
		return n
	}

	root := add("draft-1", nil, true, domain.WorstMetric())
	add("fix-1", root, false, domain.NewMetric(0.75, true))
	add("draft-2", nil, false, domain.NewMetric(0.5, true))
	return j
}

// RunExperimentStoreContract runs a suite of tests to verify that an
// ExperimentStore implementation adheres to the defined interface contract.
func RunExperimentStoreContract(t *testing.T, store ExperimentStore) {
	ctx := context.Background()
	expID := "contract-test-exp-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		j := contractJournal(t)
		exp := &domain.Experiment{
			ID:          expID,
			Name:        "contract",
			Task:        domain.Task{Goal: "predict y", Eval: "accuracy"},
			Status:      domain.StatusRunning,
			CurrentStep: 3,
			TotalSteps:  10,
			Progress:    0.3,
			Config:      map[string]any{"num_drafts": 2},
			Journal:     j.Snapshot(),
			CreatedAt:   time.Now().UTC(),
			UpdatedAt:   time.Now().UTC(),
		}
		exp.RecordBest(j)

		require.NoError(t, store.Save(ctx, exp), "Save should not return error")

		loaded, err := store.Load(ctx, expID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, exp.Name, loaded.Name)
		assert.Equal(t, exp.Task, loaded.Task)
		assert.Equal(t, domain.StatusRunning, loaded.Status)
		assert.Equal(t, 3, loaded.CurrentStep)
		assert.Equal(t, exp.BestNodeID, loaded.BestNodeID)
		require.NotNil(t, loaded.BestMetric)
		assert.InDelta(t, 0.75, *loaded.BestMetric, 1e-9)
		assert.NotNil(t, loaded.Config["num_drafts"])

		restored, err := domain.RestoreJournal(loaded.Journal)
		require.NoError(t, err, "stored journal must restore cleanly")
		assert.Equal(t, j.Len(), restored.Len())
		assert.Equal(t, exp.BestNodeID, restored.BestNode(true).ID)
		assert.Len(t, restored.BuggyNodes(), 1)
		assert.True(t, restored.BuggyNodes()[0].Metric.IsWorst())
	})

	t.Run("Overwrite", func(t *testing.T) {
		exp := &domain.Experiment{ID: expID, Name: "contract", Status: domain.StatusCompleted}
		require.NoError(t, store.Save(ctx, exp))

		loaded, err := store.Load(ctx, expID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusCompleted, loaded.Status)
		assert.Empty(t, loaded.Journal.Nodes)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+expID)
		assert.ErrorIs(t, err, domain.ErrExperimentNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, &domain.Experiment{ID: expID}))

		require.NoError(t, store.Delete(ctx, expID), "Delete should not return error")

		_, err := store.Load(ctx, expID)
		assert.ErrorIs(t, err, domain.ErrExperimentNotFound, "Load after Delete should return ErrExperimentNotFound")
		assert.NoError(t, store.Delete(ctx, expID), "Deleting twice is not an error")
	})

	t.Run("List", func(t *testing.T) {
		id1 := expID + "-1"
		id2 := expID + "-2"
		require.NoError(t, store.Save(ctx, &domain.Experiment{ID: id1}))
		require.NoError(t, store.Save(ctx, &domain.Experiment{ID: id2}))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, id1)
		assert.Contains(t, ids, id2)
	})
}
