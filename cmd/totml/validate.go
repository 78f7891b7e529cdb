package main

import (
	"errors"

	"github.com/botasky11/totml/internal/cli"
	"github.com/botasky11/totml/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration",
	Long:  `Loads the configuration file and environment overrides and reports every invalid field.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := cli.LoadConfig(path, cli.Overrides{})
		if err != nil {
			for _, e := range config.ValidationErrors(err) {
				cmd.PrintErrln(" -", e)
			}
			if len(config.ValidationErrors(err)) == 0 {
				return err
			}
			return errors.New("configuration is invalid")
		}
		cmd.Printf("Configuration is valid (store: %s, steps: %d, code model: %s)\n",
			cfg.Store.Kind, cfg.Experiment.Steps, cfg.Agent.Code.Model)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
