package tui_test

import (
	"bytes"
	"testing"

	"github.com/botasky11/totml/internal/presentation/tui"
	"github.com/botasky11/totml/internal/testutils"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	j := domain.NewJournal()
	bug := testutils.ReviewedNode("first try", "import pandas", nil, true, domain.WorstMetric())
	require.NoError(t, j.Append(bug))
	fix := testutils.ReviewedNode("fix the import", "import pandas as pd", bug, false, domain.NewMetric(0.8, true))
	require.NoError(t, j.Append(fix))

	exp := &domain.Experiment{ID: "01ABC", Name: "titanic", Status: domain.StatusCompleted, CurrentStep: 2, TotalSteps: 2}
	out := tui.Report(exp, j)

	assert.Contains(t, out, "# titanic")
	assert.Contains(t, out, "**Status**: completed")
	assert.Contains(t, out, "1 good, 1 buggy")
	assert.Contains(t, out, "```python\nimport pandas as pd\n```")
	assert.Contains(t, out, "Design: fix the import")
}

func TestReport_NoGoodNodes(t *testing.T) {
	j := domain.NewJournal()
	require.NoError(t, j.Append(testutils.ReviewedNode("p", "c", nil, true, domain.WorstMetric())))

	out := tui.Report(&domain.Experiment{Name: "x", Status: domain.StatusFailed, ErrorMessage: "boom"}, j)
	assert.NotContains(t, out, "Best solution")
	assert.Contains(t, out, "**Error**: boom")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	tui.PrintBanner(&buf)
	assert.Contains(t, buf.String(), "|_|")
}

func TestRenderer(t *testing.T) {
	render := tui.NewRenderer(80)
	out, err := render("# Title\n\nbody")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
}
