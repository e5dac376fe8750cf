// File: cmd/events.go
package cmd

import (
	"errors"
	"fmt"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/omenav/internal/journal"
	"github.com/xkilldash9x/omenav/internal/observability"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

func newEventsCmd() *cobra.Command {
	var follow bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print the watcher event journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path := cfg.Paths().JournalFile
			if path == "" {
				return errors.New("paths.journal_file is not configured")
			}

			emit := func(ev statewatch.Event) error {
				line, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(line))
				return nil
			}

			if follow {
				return journal.Follow(cmd.Context(), path, true, observability.GetLogger(), emit)
			}

			events, err := journal.ReadAll(path)
			if err != nil {
				return err
			}
			for _, ev := range events {
				if err := emit(ev); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing events as they are appended")
	return cmd
}
