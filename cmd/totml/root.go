package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/botasky11/totml"
	"github.com/botasky11/totml/internal/cli"
	"github.com/botasky11/totml/pkg/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "totml",
	Short: "totml searches for ML solutions with a tree of drafted, improved and debugged attempts",
	Long: `totml runs an agent that drafts Python solutions to a machine-learning task,
executes them, reviews the results and keeps improving the best working one
or debugging the broken ones. Every attempt is stored in an experiment journal.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().String("store", "", "Experiment store: memory, file, redis or badger")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
}

// loadConfig reads the persistent flags plus any command-specific overrides.
func loadConfig(cmd *cobra.Command, o cli.Overrides) (config.Config, *slog.Logger, error) {
	path, _ := cmd.Flags().GetString("config")
	o.Store, _ = cmd.Flags().GetString("store")
	o.LogLevel, _ = cmd.Flags().GetString("log-level")

	cfg, err := cli.LoadConfig(path, o)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := cli.NewLogger(cfg.Log)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}

// openEngine loads the configuration and builds the engine.
func openEngine(cmd *cobra.Command, o cli.Overrides) (*totml.Engine, error) {
	cfg, logger, err := loadConfig(cmd, o)
	if err != nil {
		return nil, err
	}
	return cli.OpenEngine(cfg, logger)
}
