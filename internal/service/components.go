// File: internal/service/components.go
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/command"
	"github.com/xkilldash9x/omenav/internal/elementcache"
	"github.com/xkilldash9x/omenav/internal/journal"
	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

// Components holds the one core every entry point shares.
type Components struct {
	Registry *a11y.Registry
	Store    *navstore.Store
	Cache    *elementcache.Cache
	Watcher  *statewatch.Watcher
	Journal  *journal.Journal

	// Server is nil when the command server is disabled.
	Server *command.Server

	logger *zap.Logger
}

// Run runs the watcher and, if enabled, the command server until ctx is
// canceled or either fails. The registry is closed before returning.
func (c *Components) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := c.Watcher.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watcher: %w", err)
		}
		return nil
	})
	if c.Server != nil {
		g.Go(func() error { return c.Server.Run(gctx) })
	}

	runErr := g.Wait()
	if err := c.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown releases the observation subscriptions. It is safe to call more
// than once.
func (c *Components) Shutdown() error {
	c.logger.Debug("Beginning components shutdown sequence.")
	if err := c.Registry.Close(); err != nil {
		c.logger.Warn("Error releasing subscriptions.", zap.Error(err))
		return err
	}
	c.logger.Info("All components shut down successfully.")
	return nil
}
