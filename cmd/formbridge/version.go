package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/formbridge"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of formbridge",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "formbridge version %s\n", formbridge.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
