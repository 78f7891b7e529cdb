package main

import (
	"github.com/botasky11/totml"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of totml",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("totml version %s\n", totml.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
