package tui

import (
	"fmt"
	"strings"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/dustin/go-humanize"
)

// Report renders an experiment record as markdown: status, best node and the
// journal summary.
func Report(exp *domain.Experiment, j *domain.Journal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", exp.Name)
	fmt.Fprintf(&sb, "- **ID**: `%s`\n", exp.ID)
	fmt.Fprintf(&sb, "- **Status**: %s\n", exp.Status)
	fmt.Fprintf(&sb, "- **Steps**: %d / %d\n", exp.CurrentStep, exp.TotalSteps)
	if !exp.CreatedAt.IsZero() {
		fmt.Fprintf(&sb, "- **Created**: %s\n", humanize.Time(exp.CreatedAt))
	}
	if exp.ErrorMessage != "" {
		fmt.Fprintf(&sb, "- **Error**: %s\n", exp.ErrorMessage)
	}

	good, buggy := len(j.GoodNodes()), len(j.BuggyNodes())
	fmt.Fprintf(&sb, "- **Nodes**: %d good, %d buggy\n\n", good, buggy)

	if best := j.BestNode(true); best != nil {
		sb.WriteString("## Best solution\n\n")
		fmt.Fprintf(&sb, "Node `%s` (step %d, %s): %s\n\n", best.ID, best.Step, best.Kind, best.Metric)
		if best.Plan != "" {
			fmt.Fprintf(&sb, "%s\n\n", best.Plan)
		}
		fmt.Fprintf(&sb, "```python\n%s\n```\n\n", strings.TrimRight(best.Code, "\n"))
	}

	if summary := j.GenerateSummary(); summary != "" {
		sb.WriteString("## Journal summary\n\n")
		sb.WriteString(summary)
		sb.WriteString("\n")
	}
	return sb.String()
}
