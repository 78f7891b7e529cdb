package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/botasky11/totml/internal/presentation/graph"
	"github.com/botasky11/totml/pkg/session"
	"github.com/dustin/go-humanize"
)

// ListExperiments prints one line per stored experiment.
func ListExperiments(ctx context.Context, mgr *session.Manager, out io.Writer) error {
	ids, err := mgr.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(out, "No experiments found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tSTEPS\tBEST\tUPDATED")
	for _, id := range ids {
		exp, err := mgr.Get(ctx, id)
		if err != nil {
			continue
		}
		best := "-"
		if exp.BestMetric != nil {
			best = humanize.FtoaWithDigits(*exp.BestMetric, 6)
		}
		updated := "-"
		if !exp.UpdatedAt.IsZero() {
			updated = humanize.Time(exp.UpdatedAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			exp.ID, exp.Name, exp.Status, exp.CurrentStep, exp.TotalSteps, best, updated)
	}
	return tw.Flush()
}

// PrintBest prints the plan, metric and code of the best working node.
func PrintBest(ctx context.Context, mgr *session.Manager, id string, out io.Writer) error {
	j, err := mgr.Journal(ctx, id)
	if err != nil {
		return err
	}
	best := j.BestNode(true)
	if best == nil {
		return fmt.Errorf("experiment %s has no working solution yet", id)
	}
	fmt.Fprintf(out, "# node %s (step %d, metric %s)\n", best.ID, best.Step, best.Metric)
	fmt.Fprintf(out, "# plan: %s\n\n", best.Plan)
	_, err = fmt.Fprintln(out, best.Code)
	return err
}

// PrintSummary prints the journal digest shown to the agent.
func PrintSummary(ctx context.Context, mgr *session.Manager, id string, out io.Writer) error {
	j, err := mgr.Journal(ctx, id)
	if err != nil {
		return err
	}
	summary := j.GenerateSummary()
	if summary == "" {
		summary = "No attempts recorded yet."
	}
	_, err = fmt.Fprintln(out, summary)
	return err
}

// PrintTree prints the journal as a Mermaid graph.
func PrintTree(ctx context.Context, mgr *session.Manager, id string, out io.Writer) error {
	exp, err := mgr.Get(ctx, id)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(out, graph.GenerateMermaid(exp.Journal.Nodes, &graph.TreeOverlay{BestNodeID: exp.BestNodeID}))
	return err
}

// PrintReport prints the markdown report, rendered when out is a terminal.
func PrintReport(ctx context.Context, mgr *session.Manager, id string, out io.Writer) error {
	exp, err := mgr.Get(ctx, id)
	if err != nil {
		return err
	}
	return printReport(out, exp, IsTerminal(out))
}
