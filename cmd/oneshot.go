// File: cmd/oneshot.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/config"
	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/observability"
	"github.com/xkilldash9x/omenav/internal/service"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

// oneShot is a command run outside the watcher: it acquires the target
// directly and addresses a fixed navigation context.
type oneShot struct {
	cfg        *config.Config
	components *service.Components
	handle     *a11y.Handle
	nav        navstore.Context
}

// Handle, CurrentContext and Snapshot let a oneShot stand in for the watcher.
func (o *oneShot) Handle() (*a11y.Handle, error) {
	if o.handle == nil {
		return nil, statewatch.ErrNoHandle
	}
	return o.handle, nil
}

func (o *oneShot) CurrentContext() navstore.Context { return o.nav }

func (o *oneShot) Snapshot() statewatch.TargetState {
	s := statewatch.TargetState{ActiveAppID: o.nav.AppID, Phase: statewatch.PhaseStopped}
	if o.handle != nil {
		s.Phase, s.AppRunning, s.Handle = statewatch.PhaseRunning, true, o.handle
	}
	return s
}

// newOneShot loads the platform, builds the core and acquires the target.
func newOneShot(cmd *cobra.Command) (*oneShot, error) {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return nil, err
	}
	cfg.SetServerEnabled(false)

	platform, err := loadPlatform(cmd)
	if err != nil {
		return nil, err
	}

	o := &oneShot{cfg: cfg, nav: navContext(cmd, cfg)}
	if o.components, err = service.New(cfg, platform, observability.GetLogger()); err != nil {
		return nil, err
	}
	if o.handle, err = acquireTarget(ctx, platform, o.nav.AppID); err != nil {
		return nil, err
	}
	return o, nil
}

func acquireTarget(ctx context.Context, platform a11y.Platform, appID string) (*a11y.Handle, error) {
	running, err := platform.IsRunning(ctx, appID)
	if err != nil {
		return nil, fmt.Errorf("checking %s: %w", appID, err)
	}
	if !running {
		return nil, fmt.Errorf("%s: %w", appID, a11y.ErrAppNotRunning)
	}
	return platform.Acquire(ctx, appID)
}

// navContext reads --app and --window, defaulting to the watcher config.
func navContext(cmd *cobra.Command, cfg *config.Config) navstore.Context {
	c := navstore.Context{AppID: cfg.Watcher().TargetAppID, WindowClass: cfg.Watcher().WindowRefPrefix}
	if f := cmd.Flags().Lookup("app"); f != nil && f.Changed {
		c.AppID = f.Value.String()
	}
	if f := cmd.Flags().Lookup("window"); f != nil && f.Changed {
		c.WindowClass = f.Value.String()
	}
	return c
}

func addContextFlags(cmd *cobra.Command) {
	cmd.Flags().String("app", "", "application id of the navigation map (default watcher.target_app_id)")
	cmd.Flags().String("window", "", "window class of the navigation map (default watcher.window_ref_prefix)")
}
