// File: cmd/refresh.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/omenav/internal/a11y"
)

func newRefreshCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Extract the navigation map of the target's current window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := newOneShot(cmd)
			if err != nil {
				return err
			}
			defer o.components.Shutdown()

			root := a11y.WindowRoot(o.handle.Root)
			entries, err := o.components.Cache.Refresh(o.nav, root, o.cfg.Cache().RefreshDepth)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %d entries in %s\n", len(entries), o.components.Store.Path(o.nav))
			return nil
		},
	}
	cmd.Flags().Int("depth", 0, "maximum crawl depth (overrides cache.refresh_depth)")
	addContextFlags(cmd)
	return cmd
}
