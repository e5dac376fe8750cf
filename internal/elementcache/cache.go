// Package elementcache turns a logical identifier into something that can be
// acted on: a live element when its path still resolves, otherwise the cached
// click point recorded by the last crawl.
package elementcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/config"
	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/resolver"
)

// ErrAbsent is returned by Press for an Actionable with ModeAbsent.
var ErrAbsent = errors.New("element absent")

// Mode is the tier GetActionable settled on.
type Mode string

const (
	ModeLive        Mode = "live"
	ModeCachedPoint Mode = "cached_point"
	ModeAbsent      Mode = "absent"
)

// Actionable is the outcome of a lookup.
type Actionable struct {
	Mode Mode
	// Element is set for ModeLive.
	Element a11y.Element
	// Point is the live center for ModeLive (when the frame is readable) or
	// the cached point for ModeCachedPoint.
	Point *a11y.Point
	// Entry is the navigation record the lookup matched, if any.
	Entry *navstore.Entry
}

// Store is the part of navstore.Store the cache needs.
type Store interface {
	Load(c navstore.Context) []navstore.Entry
	Save(c navstore.Context, entries []navstore.Entry) error
}

// Clicker synthesizes a click at screen coordinates.
type Clicker interface {
	Click(ctx context.Context, x, y float64) error
}

// Cache combines the navigation store with live resolution.
type Cache struct {
	store   Store
	clicker Clicker
	cfg     config.CacheConfig
	logger  *zap.Logger
	now     func() time.Time
}

// New builds a Cache. clicker may be nil, in which case cached points cannot
// be pressed.
func New(store Store, clicker Clicker, cfg config.CacheConfig, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:   store,
		clicker: clicker,
		cfg:     cfg,
		logger:  logger.Named("elementcache"),
		now:     time.Now,
	}
}

// locate finds the entry for id. Each matcher is tried over the whole map
// before the next, looser one.
func locate(entries []navstore.Entry, id string) (navstore.Entry, bool) {
	for _, match := range []navstore.Matcher{
		navstore.MatchLogicalID(id),
		navstore.MatchPath(id),
		navstore.MatchTitle(id),
		navstore.MatchLabel(id),
	} {
		for _, e := range entries {
			if match(e) {
				return e, true
			}
		}
	}
	return navstore.Entry{}, false
}

// Lookup finds the stored entry for id in the map for ctx without touching
// the live tree.
func (c *Cache) Lookup(ctx navstore.Context, id string) (navstore.Entry, bool) {
	return locate(c.store.Load(ctx), id)
}

func (c *Cache) stale(e navstore.Entry) bool {
	if c.cfg.MaxPointAge <= 0 || e.CapturedAt.IsZero() {
		return false
	}
	return c.now().Sub(e.CapturedAt) > c.cfg.MaxPointAge
}

// GetActionable looks up logicalID in the map for ctx and tries the live tree
// first, then the cached point. A nil root skips live resolution.
func (c *Cache) GetActionable(ctx navstore.Context, root a11y.Element, logicalID string) Actionable {
	log := c.logger.With(zap.Stringer("context", ctx), zap.String("id", logicalID))

	entry, ok := locate(c.store.Load(ctx), logicalID)
	if !ok {
		log.Debug("No navigation entry for id.")
		return Actionable{Mode: ModeAbsent}
	}

	if root != nil {
		el, err := resolver.Resolve(root, entry.Path)
		if err == nil {
			a := Actionable{Mode: ModeLive, Element: el, Entry: &entry}
			if frame, ok := a11y.Frame(el); ok {
				center := frame.Center()
				a.Point = &center
			}
			return a
		}
		log.Debug("Live resolution missed.", zap.String("path", entry.JoinedPath()), zap.Error(err))
	}

	if entry.ClickPoint != nil {
		if !c.stale(entry) {
			point := *entry.ClickPoint
			return Actionable{Mode: ModeCachedPoint, Point: &point, Entry: &entry}
		}
		log.Debug("Cached point expired.", zap.Time("captured_at", entry.CapturedAt))
	}
	return Actionable{Mode: ModeAbsent, Entry: &entry}
}

// Press activates a: AXPress on a live element, falling back to a click at its
// center, or a click at the cached point.
func (c *Cache) Press(ctx context.Context, a Actionable) error {
	switch a.Mode {
	case ModeLive:
		err := a11y.Perform(a.Element, a11y.ActionPress)
		if err == nil {
			return nil
		}
		if a.Point == nil || c.clicker == nil {
			return fmt.Errorf("pressing live element: %w", err)
		}
		c.logger.Debug("Press action failed, clicking element center.", zap.Error(err))
		return c.click(ctx, *a.Point)
	case ModeCachedPoint:
		if a.Point == nil {
			return ErrAbsent
		}
		if c.clicker == nil {
			return errors.New("no clicker configured for cached points")
		}
		return c.click(ctx, *a.Point)
	default:
		return ErrAbsent
	}
}

func (c *Cache) click(ctx context.Context, p a11y.Point) error {
	if err := c.clicker.Click(ctx, p.X, p.Y); err != nil {
		return fmt.Errorf("clicking (%.0f, %.0f): %w", p.X, p.Y, err)
	}
	return nil
}
