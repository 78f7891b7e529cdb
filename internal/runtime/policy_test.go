package runtime_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/botasky11/totml/internal/runtime"
	"github.com/botasky11/totml/internal/testutils"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendAll(t *testing.T, j *domain.Journal, nodes ...*domain.Node) {
	t.Helper()
	for _, n := range nodes {
		require.NoError(t, j.Append(n))
	}
}

func TestDecide_InvalidConfig(t *testing.T) {
	j := domain.NewJournal()
	r := &testutils.ScriptedRand{}

	for _, cfg := range []runtime.SearchConfig{
		{NumDrafts: -1},
		{DebugProb: 1.5},
		{DebugProb: -0.1},
		{DebugProb: math.NaN()},
		{MaxDebugDepth: -2},
	} {
		_, err := runtime.Decide(j, cfg, r)
		assert.ErrorIs(t, err, domain.ErrInvalidConfig, "%+v", cfg)
	}
}

func TestDecide_DraftsFirst(t *testing.T) {
	j := domain.NewJournal()
	cfg := runtime.SearchConfig{NumDrafts: 2, DebugProb: 1, MaxDebugDepth: 3}
	r := &testutils.ScriptedRand{}

	d, err := runtime.Decide(j, cfg, r)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDraft, d.Action)
	assert.Nil(t, d.Parent)

	appendAll(t, j, testutils.ReviewedNode("a", "a", nil, true, domain.WorstMetric()))
	d, err = runtime.Decide(j, cfg, r)
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDraft, d.Action, "one draft is fewer than two, even with a buggy leaf")
}

func TestDecide_Debug(t *testing.T) {
	j := domain.NewJournal()
	good := testutils.ReviewedNode("good", "g", nil, false, domain.NewMetric(0.5, true))
	bug1 := testutils.ReviewedNode("bug1", "b1", nil, true, domain.WorstMetric())
	bug2 := testutils.ReviewedNode("bug2", "b2", nil, true, domain.WorstMetric())
	appendAll(t, j, good, bug1, bug2)
	cfg := runtime.SearchConfig{NumDrafts: 3, DebugProb: 0.5, MaxDebugDepth: 3}

	t.Run("Draw below probability picks uniformly among buggy leaves", func(t *testing.T) {
		d, err := runtime.Decide(j, cfg, &testutils.ScriptedRand{Floats: []float64{0.49}, Ints: []int{1}})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionDebug, d.Action)
		assert.Equal(t, bug2, d.Parent)
	})

	t.Run("Draw at probability improves instead", func(t *testing.T) {
		d, err := runtime.Decide(j, cfg, &testutils.ScriptedRand{Floats: []float64{0.5}})
		require.NoError(t, err)
		assert.Equal(t, domain.ActionImprove, d.Action)
		assert.Equal(t, good, d.Parent)
	})
}

func TestDecide_DebugCandidates(t *testing.T) {
	j := domain.NewJournal()
	good := testutils.ReviewedNode("good", "g", nil, false, domain.NewMetric(0.5, true))
	root := testutils.ReviewedNode("root", "r", nil, true, domain.WorstMetric())
	appendAll(t, j, good, root)

	parent := root
	for i := 0; i < 3; i++ {
		n := testutils.ReviewedNode("fix", "f", parent, true, domain.WorstMetric())
		appendAll(t, j, n)
		parent = n
	}
	require.Equal(t, 3, parent.DebugDepth)
	cfg := runtime.SearchConfig{NumDrafts: 1, DebugProb: 1, MaxDebugDepth: 2}

	d, err := runtime.Decide(j, cfg, &testutils.ScriptedRand{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionImprove, d.Action, "only buggy leaf is too deep, inner buggy nodes are not leaves")
	assert.Equal(t, good, d.Parent)

	cfg.MaxDebugDepth = 3
	d, err = runtime.Decide(j, cfg, &testutils.ScriptedRand{})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDebug, d.Action)
	assert.Equal(t, parent, d.Parent)
}

func TestDecide_NoGoodNodesDrafts(t *testing.T) {
	j := domain.NewJournal()
	appendAll(t, j, testutils.ReviewedNode("bug", "b", nil, true, domain.WorstMetric()))
	cfg := runtime.SearchConfig{NumDrafts: 1, DebugProb: 0, MaxDebugDepth: 3}

	d, err := runtime.Decide(j, cfg, &testutils.ScriptedRand{Floats: []float64{0.9}})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionDraft, d.Action)
}

func TestDecide_ImprovesBest(t *testing.T) {
	j := domain.NewJournal()
	low := testutils.ReviewedNode("a", "a", nil, false, domain.NewMetric(0.6, true))
	high := testutils.ReviewedNode("b", "b", nil, false, domain.NewMetric(0.8, true))
	appendAll(t, j, low, high)

	d, err := runtime.Decide(j, runtime.SearchConfig{NumDrafts: 2}, &testutils.ScriptedRand{Floats: []float64{0.3}})
	require.NoError(t, err)
	assert.Equal(t, domain.ActionImprove, d.Action)
	assert.Equal(t, high, d.Parent)
}

func TestDecide_DeterministicForSeed(t *testing.T) {
	j := domain.NewJournal()
	appendAll(t, j,
		testutils.ReviewedNode("g", "g", nil, false, domain.NewMetric(1, true)),
		testutils.ReviewedNode("b1", "b1", nil, true, domain.WorstMetric()),
		testutils.ReviewedNode("b2", "b2", nil, true, domain.WorstMetric()),
	)
	cfg := runtime.SearchConfig{NumDrafts: 1, DebugProb: 0.5, MaxDebugDepth: 3}

	run := func() []string {
		r := rand.New(rand.NewPCG(7, 11))
		var out []string
		for i := 0; i < 20; i++ {
			d, err := runtime.Decide(j, cfg, r)
			require.NoError(t, err)
			out = append(out, string(d.Action)+":"+d.Parent.ID)
		}
		return out
	}
	assert.Equal(t, run(), run())
}

func TestDecide_Scenarios(t *testing.T) {
	cases := []struct {
		name       string
		build      func(t *testing.T, j *domain.Journal)
		cfg        runtime.SearchConfig
		rand       *testutils.ScriptedRand
		wantAction domain.Action
	}{
		{
			name: "Lone buggy leaf beyond max depth falls back to draft",
			build: func(t *testing.T, j *domain.Journal) {
				root := testutils.ReviewedNode("draft", "d", nil, true, domain.WorstMetric())
				appendAll(t, j, root)
				leaf := testutils.ReviewedNode("fix", "f", root, true, domain.WorstMetric())
				require.Equal(t, 1, leaf.DebugDepth)
				appendAll(t, j, leaf)
			},
			cfg:        runtime.SearchConfig{NumDrafts: 1, DebugProb: 1, MaxDebugDepth: 0},
			rand:       &testutils.ScriptedRand{Floats: []float64{0}},
			wantAction: domain.ActionDraft,
		},
		{
			name: "Lone buggy leaf within max depth is debugged",
			build: func(t *testing.T, j *domain.Journal) {
				root := testutils.ReviewedNode("draft", "d", nil, true, domain.WorstMetric())
				appendAll(t, j, root)
				appendAll(t, j, testutils.ReviewedNode("fix", "f", root, true, domain.WorstMetric()))
			},
			cfg:        runtime.SearchConfig{NumDrafts: 1, DebugProb: 1, MaxDebugDepth: 1},
			rand:       &testutils.ScriptedRand{Floats: []float64{0}},
			wantAction: domain.ActionDebug,
		},
		{
			name: "Good draft below draft quota still drafts",
			build: func(t *testing.T, j *domain.Journal) {
				appendAll(t, j, testutils.ReviewedNode("a", "a", nil, false, domain.NewMetric(0.7, false)))
			},
			cfg:        runtime.SearchConfig{NumDrafts: 3, DebugProb: 1, MaxDebugDepth: 3},
			rand:       &testutils.ScriptedRand{},
			wantAction: domain.ActionDraft,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			j := domain.NewJournal()
			tc.build(t, j)

			d, err := runtime.Decide(j, tc.cfg, tc.rand)
			require.NoError(t, err)
			assert.Equal(t, tc.wantAction, d.Action)
			if tc.wantAction == domain.ActionDraft {
				assert.Nil(t, d.Parent)
			}
		})
	}
}
