package main

import (
	"github.com/botasky11/totml/internal/cli"
	"github.com/botasky11/totml/pkg/session"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspect stored experiments",
	Long:  `List stored experiments and show the best node, summary, tree or report of one of them.`,
}

// journalCommand builds a subcommand that reads one experiment.
func journalCommand(use, short string, print func(cmd *cobra.Command, mgr *session.Manager, id string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <experiment-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := openEngine(cmd, cli.Overrides{})
			if err != nil {
				return err
			}
			defer eng.Close()
			return print(cmd, eng.Manager(), args[0])
		},
	}
}

var journalLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored experiments",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(cmd, cli.Overrides{})
		if err != nil {
			return err
		}
		defer eng.Close()
		return cli.ListExperiments(cmd.Context(), eng.Manager(), cmd.OutOrStdout())
	},
}

var journalRmCmd = journalCommand("rm", "Delete a stored experiment", func(cmd *cobra.Command, mgr *session.Manager, id string) error {
	if err := mgr.Delete(cmd.Context(), id); err != nil {
		return err
	}
	cmd.Printf("Experiment %s deleted.\n", id)
	return nil
})

func init() {
	rootCmd.AddCommand(journalCmd)

	journalCmd.AddCommand(journalLsCmd, journalRmCmd,
		journalCommand("best", "Print the best working solution", func(cmd *cobra.Command, mgr *session.Manager, id string) error {
			return cli.PrintBest(cmd.Context(), mgr, id, cmd.OutOrStdout())
		}),
		journalCommand("summary", "Print the journal summary shown to the agent", func(cmd *cobra.Command, mgr *session.Manager, id string) error {
			return cli.PrintSummary(cmd.Context(), mgr, id, cmd.OutOrStdout())
		}),
		journalCommand("tree", "Print the solution tree as a Mermaid graph", func(cmd *cobra.Command, mgr *session.Manager, id string) error {
			return cli.PrintTree(cmd.Context(), mgr, id, cmd.OutOrStdout())
		}),
		journalCommand("report", "Print the experiment report", func(cmd *cobra.Command, mgr *session.Manager, id string) error {
			return cli.PrintReport(cmd.Context(), mgr, id, cmd.OutOrStdout())
		}),
	)
}
