// File: internal/service/factory.go
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/command"
	"github.com/xkilldash9x/omenav/internal/config"
	"github.com/xkilldash9x/omenav/internal/elementcache"
	"github.com/xkilldash9x/omenav/internal/humanoid"
	"github.com/xkilldash9x/omenav/internal/journal"
	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

// New wires the components against platform. Nothing runs until Run.
func New(cfg config.Interface, platform a11y.Platform, logger *zap.Logger) (*Components, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if platform == nil {
		return nil, errors.New("accessibility platform cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Components{
		Registry: a11y.NewRegistry(logger),
		Store:    navstore.New(cfg.Paths().NavDir, logger),
		logger:   logger.Named("service"),
	}

	clicker := humanoid.NewClicker(platform, cfg.Humanoid(), logger, rand.New(rand.NewSource(time.Now().UnixNano())))
	c.Cache = elementcache.New(c.Store, clicker, cfg.Cache(), logger)
	c.Watcher = statewatch.New(cfg.Watcher(), cfg.Paths(), platform, c.Registry, logger)

	c.Watcher.Subscribe(statewatch.HandlerFunc(Extractor(c.Watcher, c.Cache, cfg.Cache().RefreshDepth, logger)))
	if path := cfg.Paths().JournalFile; path != "" {
		c.Journal = journal.New(path, logger)
		c.Watcher.Subscribe(c.Journal)
	}

	if cfg.Server().Enabled {
		c.Server = command.NewServer(cfg.Server(), c.Watcher, c.Cache, logger)
	}

	logger.Debug("Components initialized.",
		zap.Bool("server", c.Server != nil),
		zap.Bool("journal", c.Journal != nil))
	return c, nil
}

// Extractor returns the handler that refreshes the navigation map when the
// watcher fires an extraction.
func Extractor(target command.Target, cache *elementcache.Cache, depth int, logger *zap.Logger) func(context.Context, statewatch.Event) error {
	logger = logger.Named("extractor")
	return func(ctx context.Context, ev statewatch.Event) error {
		if ev.Kind != statewatch.EventExtract {
			return nil
		}
		handle, err := target.Handle()
		if err != nil {
			return err
		}
		entries, err := cache.Refresh(ev.Context, a11y.WindowRoot(handle.Root), depth)
		if err != nil {
			return fmt.Errorf("refreshing %s: %w", ev.Context, err)
		}
		logger.Debug("Extraction complete.", zap.Stringer("context", ev.Context), zap.Int("entries", len(entries)), zap.String("reason", ev.Reason))
		return nil
	}
}
