package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [mapping...]",
	Short: "Compile mapping definitions and report errors",
	Long:  `Loads every mapping (or only the named ones) and checks fields, transforms, hidden sources and schema.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		names := args
		if len(names) == 0 {
			if names, err = rt.Bridge.Mappings(cmd.Context()); err != nil {
				return err
			}
		}
		if len(names) == 0 {
			return errors.New("no mappings found in " + rt.Config.Dir)
		}

		out := cmd.OutOrStdout()
		var failed int
		for _, name := range names {
			if _, err := rt.Bridge.Plan(cmd.Context(), name); err != nil {
				failed++
				fmt.Fprintf(out, "✗ %s: %v\n", name, err)
				continue
			}
			fmt.Fprintf(out, "✓ %s\n", name)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d mappings are invalid", failed, len(names))
		}
		fmt.Fprintln(out, "All mappings are valid! ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
