// File: cmd/select_row.go
package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/omenav/internal/command"
	"github.com/xkilldash9x/omenav/internal/observability"
)

func newSelectRowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select-row N",
		Short: "Select row N of the current window once, live or through the cached point",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			row, err := strconv.Atoi(args[0])
			if err != nil || row < 0 {
				return fmt.Errorf("row must be a non-negative integer, got %q", args[0])
			}
			o, err := newOneShot(cmd)
			if err != nil {
				return err
			}
			defer o.components.Shutdown()

			selector := command.NewSelector(o, o.components.Cache, 0, observability.GetLogger())
			mode, err := selector.SelectRow(cmd.Context(), row)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "selected row %d (%s)\n", row, mode)
			return nil
		},
	}
	addContextFlags(cmd)
	return cmd
}
