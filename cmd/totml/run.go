package main

import (
	"context"

	"github.com/botasky11/totml/internal/cli"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an experiment",
	Long: `Creates an experiment from the configuration and flags, runs the search for
the configured number of steps and writes the best solution to disk.
Interrupted runs can be continued with --resume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var o cli.Overrides
		o.Goal, _ = cmd.Flags().GetString("goal")
		o.Eval, _ = cmd.Flags().GetString("eval")
		o.DataDir, _ = cmd.Flags().GetString("data-dir")
		o.Steps, _ = cmd.Flags().GetInt("steps")

		eng, err := openEngine(cmd, o)
		if err != nil {
			return err
		}
		defer eng.Close()

		var opts cli.RunOptions
		opts.Name, _ = cmd.Flags().GetString("name")
		opts.Resume, _ = cmd.Flags().GetString("resume")
		opts.Output, _ = cmd.Flags().GetString("output")
		opts.Quiet, _ = cmd.Flags().GetBool("quiet")

		sc := cli.NewSignalContext(context.Background())
		defer sc.Cancel()

		_, err = cli.Run(sc, eng, opts, cmd.OutOrStdout())
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("goal", "", "Task goal (overrides experiment.goal)")
	runCmd.Flags().String("eval", "", "Evaluation metric description (overrides experiment.eval)")
	runCmd.Flags().String("data-dir", "", "Input data directory (overrides experiment.data_dir)")
	runCmd.Flags().Int("steps", 0, "Number of search steps (overrides experiment.steps)")
	runCmd.Flags().String("name", "", "Experiment name")
	runCmd.Flags().String("resume", "", "Resume the stored experiment with this ID")
	runCmd.Flags().StringP("output", "o", "best_solution.py", "Where to write the best solution; empty to skip")
	runCmd.Flags().BoolP("quiet", "q", false, "Print nothing but errors")
}
