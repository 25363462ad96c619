package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/aretw0/formbridge/internal/presentation/tui"
	"github.com/aretw0/formbridge/pkg/domain"
)

var mapCmd = &cobra.Command{
	Use:   "map <mapping> [data.json]",
	Short: "Preview the parameters a form would send",
	Long: `Reads a JSON object of form data from a file (or stdin) and prints the parameter batch
the mapping produces. With --all, the mapping argument is omitted and every field is sent.`,
	Args: cobra.RangeArgs(0, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")
		user, _ := cmd.Flags().GetString("user")
		device, _ := cmd.Flags().GetString("device")

		var name, path string
		switch {
		case all && len(args) > 1:
			return fmt.Errorf("--all takes at most one argument (the data file)")
		case all:
			if len(args) == 1 {
				path = args[0]
			}
		case len(args) == 0:
			return fmt.Errorf("mapping name is required")
		default:
			name = args[0]
			if len(args) == 2 {
				path = args[1]
			}
		}

		data, err := readFormData(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}

		rt, err := openRuntime(cmd)
		if err != nil {
			return err
		}
		defer rt.Close()

		var result any
		var params []domain.Parameter
		if all {
			if params, err = rt.Bridge.All(data); err != nil {
				return err
			}
			result = map[string]any{"parameters": params}
			name = "all fields"
		} else {
			batch, err := rt.Bridge.Preview(cmd.Context(), name, data, domain.Audit{UserID: user, Device: device})
			if err != nil {
				return err
			}
			params = batch.Parameters
			result = batch
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		render := tui.Plain
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			render = tui.NewRenderer()
		}
		text, err := render(tui.ParametersMarkdown(name, params))
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(out, text)
		return err
	},
}

func init() {
	rootCmd.AddCommand(mapCmd)

	mapCmd.Flags().Bool("all", false, "Send every field as an Input parameter instead of using a mapping")
	mapCmd.Flags().Bool("json", false, "Print the batch as JSON")
	mapCmd.Flags().String("user", "", "User ID for the user hidden source")
	mapCmd.Flags().String("device", "", "Device for the device hidden source")
}

// readFormData decodes a JSON object from path, or from stdin when path is empty or "-".
// Numbers are kept as json.Number so their text reaches the engine unchanged.
func readFormData(stdin io.Reader, path string) (domain.FormData, error) {
	var raw []byte
	var err error
	if path == "" || path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read form data: %w", err)
	}

	data := domain.FormData{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return data, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("form data must be a JSON object: %w", err)
	}
	return data, nil
}
