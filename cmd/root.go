// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/a11y/fixture"
	"github.com/xkilldash9x/omenav/internal/config"
	"github.com/xkilldash9x/omenav/internal/observability"
)

type contextKey string

const configKey contextKey = "omenav.config"

// NewRootCommand builds a fresh command tree, so flag state never leaks
// between executions.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "omenav",
		Short:         "omenav keeps a mail client's accessibility tree addressable.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if err := bindFlags(cmd, v); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting omenav", zap.String("version", Version))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},
	}

	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	cmd.PersistentFlags().String("fixture", "", "accessibility tree file (JSON or YAML) used as the platform")
	cmd.PersistentFlags().String("target", "", "target application bundle id (overrides watcher.target_app_id)")

	cmd.AddCommand(
		newWatchCmd(),
		newSelectRowCmd(),
		newRefreshCmd(),
		newFindCmd(),
		newEventsCmd(),
		newConfigCmd(),
	)
	return cmd
}

// Execute runs the root command with ctx, logging failures.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	defer observability.Sync()
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

// initializeConfig reads the config file into v. A missing default file is
// fine; a missing explicit one is not.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// bindFlags maps the flags that override configuration keys.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	bindings := map[string]string{
		"target": "watcher.target_app_id",
		"listen": "server.listen_addr",
		"depth":  "cache.refresh_depth",
	}
	for flag, key := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in context")
	}
	return cfg, nil
}

// loadPlatform returns the accessibility platform the commands drive.
func loadPlatform(cmd *cobra.Command) (*fixture.Platform, error) {
	path, _ := cmd.Flags().GetString("fixture")
	if path == "" {
		return nil, errors.New("no accessibility platform configured, pass --fixture")
	}
	return fixture.LoadFile(path)
}
