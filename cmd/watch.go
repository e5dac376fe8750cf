// File: cmd/watch.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/observability"
	"github.com/xkilldash9x/omenav/internal/service"
)

func newWatchCmd() *cobra.Command {
	var noServer bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the window-state files and serve row selection commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if noServer {
				cfg.SetServerEnabled(false)
			}
			platform, err := loadPlatform(cmd)
			if err != nil {
				return err
			}

			logger := observability.GetLogger()
			components, err := service.New(cfg, platform, logger)
			if err != nil {
				return err
			}
			logger.Info("Watching.",
				zap.String("target_app_id", cfg.Watcher().TargetAppID),
				zap.String("state_dir", cfg.Paths().StateDir),
				zap.Bool("server", cfg.Server().Enabled))
			return components.Run(ctx)
		},
	}

	cmd.Flags().String("listen", "", "command server address (overrides server.listen_addr)")
	cmd.Flags().BoolVar(&noServer, "no-server", false, "run the watcher without the command server")
	return cmd
}
