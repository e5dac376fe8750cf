// Package a11y is the boundary to the platform accessibility bindings. The
// bindings themselves live outside this repository; everything here talks to
// them through Element and Platform.
package a11y

import (
	"context"
	"errors"
	"time"

	"github.com/xkilldash9x/omenav/internal/humanoid"
)

var (
	// ErrAttributeUnsupported is returned by Element.Attribute when the element
	// does not carry the attribute.
	ErrAttributeUnsupported = errors.New("attribute unsupported")
	// ErrAppNotRunning is returned by Platform.Acquire when the application has
	// no live process.
	ErrAppNotRunning = errors.New("application not running")
)

// Attribute names read from elements.
const (
	AttrRole          = "AXRole"
	AttrTitle         = "AXTitle"
	AttrDescription   = "AXDescription"
	AttrHelp          = "AXHelp"
	AttrIdentifier    = "AXIdentifier"
	AttrEnabled       = "AXEnabled"
	AttrSelected      = "AXSelected"
	AttrPosition      = "AXPosition"
	AttrSize          = "AXSize"
	AttrShortcut      = "AXMenuItemCmdChar"
	AttrFocusedWindow = "AXFocusedWindow"
	AttrWindows       = "AXWindows"
)

// ActionPress is the default activation action.
const ActionPress = "AXPress"

// RoleRow and RoleWindow are the roles the crawler and window lookup care about.
const (
	RoleRow    = "AXRow"
	RoleWindow = "AXWindow"
)

// Point is a screen coordinate.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size is a width and height in screen units.
type Size struct {
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// Rect is an element's bounding box.
type Rect struct {
	Origin Point
	Size   Size
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.Origin.X + r.Size.W/2, Y: r.Origin.Y + r.Size.H/2}
}

// Element is a live node in an application's accessibility tree. Any method may
// fail or panic once the underlying node is gone; callers should go through the
// Safe helpers.
type Element interface {
	// Attribute returns the value for name, or ErrAttributeUnsupported.
	Attribute(name string) (any, error)
	// Children returns the direct children in platform order.
	Children() ([]Element, error)
	// PerformAction invokes a named accessibility action.
	PerformAction(action string) error
}

// Handle is a reference to a running application's root element. It may expire
// when the application quits; holders re-acquire instead of repairing it.
type Handle struct {
	AppID      string
	PID        int
	Root       Element
	AcquiredAt time.Time
}

// Platform is the set of OS capabilities the core depends on.
type Platform interface {
	// IsRunning reports whether appID currently has a live process.
	IsRunning(ctx context.Context, appID string) (bool, error)
	// Acquire returns a fresh handle for a running application.
	Acquire(ctx context.Context, appID string) (*Handle, error)

	humanoid.Executor
}
