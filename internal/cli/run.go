package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/botasky11/totml"
	"github.com/botasky11/totml/internal/presentation/tui"
	"github.com/botasky11/totml/pkg/domain"
	"github.com/dustin/go-humanize"
)

// RunOptions configures a command-line experiment run.
type RunOptions struct {
	Name string
	// Resume continues a stored experiment instead of creating one.
	Resume string
	// Output receives the best solution's code; empty skips writing it.
	Output string
	Quiet  bool
}

// Run creates (or resumes) an experiment, streams its progress to out and
// prints the final report. An interrupted run is reported, not returned as an
// error, so it can be resumed later.
func Run(ctx context.Context, eng *totml.Engine, opts RunOptions, out io.Writer) (*domain.Experiment, error) {
	id := opts.Resume
	if id == "" {
		exp, err := eng.Create(ctx, opts.Name, eng.Config().Task())
		if err != nil {
			return nil, err
		}
		id = exp.ID
	}

	rich := IsTerminal(out)
	stop := func() {}
	if !opts.Quiet {
		if rich {
			tui.PrintBanner(out)
		}
		events, cancel := eng.Manager().Subscribe(id)
		done := make(chan struct{})
		go func() {
			defer close(done)
			printProgress(out, events, rich)
		}()
		stop = func() {
			cancel()
			<-done
		}
	}

	exp, err := eng.Run(ctx, id)
	stop()

	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(out, ">>> Interrupted. Resume with: totml run --resume %s\n", id)
		return exp, nil
	}
	if err != nil {
		return exp, err
	}

	if opts.Output != "" && exp.BestCode != "" {
		if err := os.WriteFile(opts.Output, []byte(exp.BestCode), 0644); err != nil {
			return exp, fmt.Errorf("write best solution: %w", err)
		}
		if !opts.Quiet {
			fmt.Fprintf(out, ">>> Best solution written to %s\n", opts.Output)
		}
	}

	if !opts.Quiet {
		if err := printReport(out, exp, rich); err != nil {
			return exp, err
		}
	}
	return exp, nil
}

func printProgress(w io.Writer, events <-chan domain.ExperimentEvent, color bool) {
	status := func(s string) string {
		if color {
			return tui.Status(s)
		}
		return s
	}
	for ev := range events {
		switch ev.Type {
		case domain.EventExperimentStarted:
			fmt.Fprintf(w, ">>> Experiment %s started at step %d/%d\n", ev.ExperimentID, ev.Step, ev.TotalSteps)
		case domain.EventExperimentStep:
			verdict := "good"
			if ev.Buggy {
				verdict = "buggy"
			}
			best := "none"
			if ev.BestMetric != nil {
				best = humanize.FtoaWithDigits(*ev.BestMetric, 6)
			}
			fmt.Fprintf(w, "[%d/%d] node %s %s, best %s (%.0f%%)\n",
				ev.Step, ev.TotalSteps, shortID(ev.NodeID), status(verdict), best, ev.Progress*100)
		case domain.EventExperimentCompleted:
			fmt.Fprintf(w, ">>> Experiment %s\n", status("completed"))
		case domain.EventExperimentFailed:
			fmt.Fprintf(w, ">>> Experiment %s: %s\n", status("failed"), ev.Error)
		}
	}
}

func printReport(w io.Writer, exp *domain.Experiment, rich bool) error {
	j, err := domain.RestoreJournal(exp.Journal)
	if err != nil {
		return err
	}
	report := tui.Report(exp, j)
	if rich {
		if rendered, err := tui.NewRenderer(TerminalWidth(w))(report); err == nil {
			report = rendered
		}
	}
	_, err = fmt.Fprintln(w, report)
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
