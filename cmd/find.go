// File: cmd/find.go
package cmd

import (
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/omenav/internal/elementcache"
	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/observability"
)

func newFindCmd() *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "find [LABEL]",
		Short: "Look up a stored navigation entry by logical id, path, title or label",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			store := navstore.New(cfg.Paths().NavDir, logger)

			if list || len(args) == 0 {
				contexts, err := store.Contexts()
				if err != nil {
					return err
				}
				for _, c := range contexts {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d entries\n", c, len(store.Load(c)))
				}
				return nil
			}

			nav := navContext(cmd, cfg)
			cache := elementcache.New(store, nil, cfg.Cache(), logger)
			entry, ok := cache.Lookup(nav, args[0])
			if !ok {
				return fmt.Errorf("%q not found in %s", args[0], nav)
			}
			out, err := json.MarshalIndent(entry, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list stored navigation contexts")
	addContextFlags(cmd)
	return cmd
}
