package elementcache

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/resolver"
)

const cellRole = "AXCell"

// crawl carries the state of one Refresh walk.
type crawl struct {
	entries    []navstore.Entry
	rowRoles   map[string]bool
	maxDepth   int
	maxItems   int
	rows       int
	truncated  bool
	capturedAt time.Time
}

// Refresh walks the live tree under root depth-first, down to maxDepth levels
// below it, and replaces the map for ctx with one entry per visited node.
// maxDepth <= 0 uses the configured refresh depth.
func (c *Cache) Refresh(ctx navstore.Context, root a11y.Element, maxDepth int) ([]navstore.Entry, error) {
	if root == nil {
		return nil, errors.New("refresh: no root element")
	}
	if maxDepth <= 0 {
		maxDepth = c.cfg.RefreshDepth
	}

	roles := c.cfg.RowRoles
	if len(roles) == 0 {
		roles = []string{a11y.RoleRow}
	}
	w := &crawl{
		rowRoles:   make(map[string]bool, len(roles)),
		maxDepth:   maxDepth,
		maxItems:   c.cfg.MaxEntries,
		capturedAt: c.now().UTC(),
	}
	for _, r := range roles {
		w.rowRoles[r] = true
	}

	rootLabel := a11y.Title(root)
	if rootLabel == "" {
		rootLabel = "Window"
	}
	w.visit(root, []string{rootLabel}, 0, "", "")

	if w.truncated {
		c.logger.Warn("Navigation map truncated.", zap.Stringer("context", ctx), zap.Int("max_entries", w.maxItems))
	}
	if err := c.store.Save(ctx, w.entries); err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	c.logger.Info("Navigation map refreshed.",
		zap.Stringer("context", ctx),
		zap.Int("entries", len(w.entries)),
		zap.Int("rows", w.rows))
	return w.entries, nil
}

func (w *crawl) full() bool {
	return w.maxItems > 0 && len(w.entries) >= w.maxItems
}

func (w *crawl) visit(el a11y.Element, path []string, depth int, parentRole, parentDesc string) {
	if w.full() {
		w.truncated = true
		return
	}

	role := a11y.Role(el)
	desc := a11y.Description(el)
	e := navstore.Entry{
		Path:        path,
		Role:        role,
		Title:       a11y.Title(el),
		Description: desc,
		CapturedAt:  w.capturedAt,
		Extra:       extras(el),
	}
	if frame, ok := a11y.Frame(el); ok {
		center := frame.Center()
		e.ClickPoint = &center
	}
	if parentRole == cellRole && parentDesc != "" {
		setExtra(&e, navstore.ExtraParentDesc, parentDesc)
	}
	if w.rowRoles[role] {
		setExtra(&e, navstore.ExtraLogicalID, fmt.Sprintf("row %d", w.rows))
		// float64 so the entry equals its decoded form.
		setExtra(&e, navstore.ExtraRowIndex, float64(w.rows))
		w.rows++
	}
	w.entries = append(w.entries, e)

	if depth >= w.maxDepth {
		return
	}
	children := a11y.Children(el)
	for i, step := range stepLabels(children) {
		childPath := make([]string, len(path)+1)
		copy(childPath, path)
		childPath[len(path)] = step
		w.visit(children[i], childPath, depth+1, role, desc)
	}
}

// stepLabels names each child: its title when non-empty and unique among the
// siblings, otherwise its ordinal. Titles that look like ordinals are never
// used as labels.
func stepLabels(children []a11y.Element) []string {
	titles := make([]string, len(children))
	counts := make(map[string]int, len(children))
	for i, c := range children {
		titles[i] = a11y.Title(c)
		counts[titles[i]]++
	}
	steps := make([]string, len(children))
	for i, t := range titles {
		_, looksOrdinal := resolver.ParseOrdinal(t)
		if t != "" && counts[t] == 1 && !looksOrdinal {
			steps[i] = t
		} else {
			steps[i] = resolver.OrdinalStep(i)
		}
	}
	return steps
}

func extras(el a11y.Element) map[string]any {
	extra := map[string]any{}
	if id := a11y.StringAttr(el, a11y.AttrIdentifier); id != "" {
		extra[navstore.ExtraIdentifier] = id
	}
	if sc := a11y.StringAttr(el, a11y.AttrShortcut); sc != "" {
		extra[navstore.ExtraShortcut] = sc
	}
	if v, ok := a11y.BoolAttr(el, a11y.AttrEnabled); ok {
		extra[navstore.ExtraEnabled] = v
	}
	if v, ok := a11y.BoolAttr(el, a11y.AttrSelected); ok {
		extra[navstore.ExtraSelected] = v
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func setExtra(e *navstore.Entry, key string, v any) {
	if e.Extra == nil {
		e.Extra = map[string]any{}
	}
	e.Extra[key] = v
}
