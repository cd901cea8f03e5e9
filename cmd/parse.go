// File: cmd/parse.go
package cmd

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/pilot/internal/protocol"
)

// newParseCmd creates the `parse` command. It never executes anything.
func newParseCmd() *cobra.Command {
	var first bool

	parseCmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parses a model turn and prints its parts as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, closeIn, err := openInput(cmd, args)
			if err != nil {
				return err
			}
			defer closeIn()

			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("failed to read turn: %w", err)
			}
			text := string(raw)

			var out any = protocol.Parse(text)
			if first {
				d, ok := protocol.ExtractAction(text)
				if !ok {
					return fmt.Errorf("turn contains no complete perform_action directive")
				}
				out = d
			}

			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	parseCmd.Flags().BoolVar(&first, "directive", false, "Print only the first directive, as it would be executed.")
	return parseCmd
}
