// Package fixture is an in-memory accessibility platform. Tests use it as the
// live tree, and the CLI loads one from a JSON or YAML file with --fixture.
package fixture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/xkilldash9x/omenav/internal/a11y"
)

// Frame is a node's bounding box in screen coordinates.
type Frame struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	W float64 `json:"w" yaml:"w"`
	H float64 `json:"h" yaml:"h"`
}

// Node is one element of a fixture tree.
type Node struct {
	Role        string  `json:"role" yaml:"role"`
	Title       string  `json:"title,omitempty" yaml:"title,omitempty"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Help        string  `json:"help,omitempty" yaml:"help,omitempty"`
	Identifier  string  `json:"identifier,omitempty" yaml:"identifier,omitempty"`
	Shortcut    string  `json:"shortcut,omitempty" yaml:"shortcut,omitempty"`
	Enabled     *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Selected    *bool   `json:"selected,omitempty" yaml:"selected,omitempty"`
	Focused     bool    `json:"focused,omitempty" yaml:"focused,omitempty"`
	Frame       *Frame  `json:"frame,omitempty" yaml:"frame,omitempty"`
	Nodes       []*Node `json:"children,omitempty" yaml:"children,omitempty"`

	// FailAttributes makes reads of the named attributes return an error.
	FailAttributes []string `json:"fail_attributes,omitempty" yaml:"fail_attributes,omitempty"`
	// PanicAttributes makes reads of the named attributes panic.
	PanicAttributes []string `json:"panic_attributes,omitempty" yaml:"panic_attributes,omitempty"`
	// PressError, when set, is returned from every AXPress.
	PressError string `json:"press_error,omitempty" yaml:"press_error,omitempty"`

	mu      sync.RWMutex
	presses int
}

var _ a11y.Element = (*Node)(nil)

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Attribute implements a11y.Element.
func (n *Node) Attribute(name string) (any, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	if contains(n.PanicAttributes, name) {
		panic(fmt.Sprintf("fixture: attribute %s panics", name))
	}
	if contains(n.FailAttributes, name) {
		return nil, fmt.Errorf("fixture: reading %s: %w", name, errors.New("element invalidated"))
	}

	switch name {
	case a11y.AttrRole:
		return n.Role, nil
	case a11y.AttrTitle:
		return optional(n.Title)
	case a11y.AttrDescription:
		return optional(n.Description)
	case a11y.AttrHelp:
		return optional(n.Help)
	case a11y.AttrIdentifier:
		return optional(n.Identifier)
	case a11y.AttrShortcut:
		return optional(n.Shortcut)
	case a11y.AttrEnabled:
		if n.Enabled == nil {
			return nil, a11y.ErrAttributeUnsupported
		}
		return *n.Enabled, nil
	case a11y.AttrSelected:
		if n.Selected == nil {
			return nil, a11y.ErrAttributeUnsupported
		}
		return *n.Selected, nil
	case a11y.AttrPosition:
		if n.Frame == nil {
			return nil, a11y.ErrAttributeUnsupported
		}
		return a11y.Point{X: n.Frame.X, Y: n.Frame.Y}, nil
	case a11y.AttrSize:
		if n.Frame == nil {
			return nil, a11y.ErrAttributeUnsupported
		}
		return a11y.Size{W: n.Frame.W, H: n.Frame.H}, nil
	case a11y.AttrFocusedWindow:
		for _, c := range n.Nodes {
			if c.Focused {
				return a11y.Element(c), nil
			}
		}
		return nil, a11y.ErrAttributeUnsupported
	case a11y.AttrWindows:
		var out []a11y.Element
		for _, c := range n.Nodes {
			if c.Role == a11y.RoleWindow {
				out = append(out, c)
			}
		}
		return out, nil
	}
	return nil, a11y.ErrAttributeUnsupported
}

func optional(s string) (any, error) {
	if s == "" {
		return nil, a11y.ErrAttributeUnsupported
	}
	return s, nil
}

// Children implements a11y.Element.
func (n *Node) Children() ([]a11y.Element, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if contains(n.FailAttributes, "AXChildren") {
		return nil, errors.New("fixture: children unavailable")
	}
	out := make([]a11y.Element, len(n.Nodes))
	for i, c := range n.Nodes {
		out[i] = c
	}
	return out, nil
}

// PerformAction implements a11y.Element. Only AXPress is supported.
func (n *Node) PerformAction(action string) error {
	if action != a11y.ActionPress {
		return fmt.Errorf("fixture: action %s unsupported", action)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.PressError != "" {
		return errors.New(n.PressError)
	}
	n.presses++
	return nil
}

// Presses returns how many successful AXPress actions the node received.
func (n *Node) Presses() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.presses
}

// SetTitle changes the node's title, simulating UI drift.
func (n *Node) SetTitle(title string) {
	n.mu.Lock()
	n.Title = title
	n.mu.Unlock()
}

// SetChildren replaces the node's children.
func (n *Node) SetChildren(children ...*Node) {
	n.mu.Lock()
	n.Nodes = children
	n.mu.Unlock()
}

// Find returns the first node in depth-first order whose title equals title.
func (n *Node) Find(title string) *Node {
	n.mu.RLock()
	if n.Title == title {
		n.mu.RUnlock()
		return n
	}
	children := n.Nodes
	n.mu.RUnlock()
	for _, c := range children {
		if found := c.Find(title); found != nil {
			return found
		}
	}
	return nil
}

// Bool returns a pointer to b, for the Enabled and Selected fields.
func Bool(b bool) *bool { return &b }
