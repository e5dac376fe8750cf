package a11y

import (
	"fmt"
	"strings"
)

// SafeAttribute reads name from el. Errors and panics from the bindings are
// both reported as ok == false.
func SafeAttribute(el Element, name string) (v any, ok bool) {
	if el == nil {
		return nil, false
	}
	defer func() {
		if r := recover(); r != nil {
			v, ok = nil, false
		}
	}()
	v, err := el.Attribute(name)
	if err != nil || v == nil {
		return nil, false
	}
	return v, true
}

// StringAttr returns a string attribute, or "" when it is absent.
func StringAttr(el Element, name string) string {
	v, ok := SafeAttribute(el, name)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	}
	return ""
}

// BoolAttr returns a boolean attribute and whether it was present.
func BoolAttr(el Element, name string) (value, ok bool) {
	v, present := SafeAttribute(el, name)
	if !present {
		return false, false
	}
	b, isBool := v.(bool)
	return b, isBool
}

// Title returns AXTitle, or "" when it is missing or unreadable.
func Title(el Element) string { return StringAttr(el, AttrTitle) }

// Role returns AXRole, or "".
func Role(el Element) string { return StringAttr(el, AttrRole) }

// Description returns AXDescription, or "".
func Description(el Element) string { return StringAttr(el, AttrDescription) }

// Frame combines AXPosition and AXSize. ok is false when either is missing or
// not a recognizable shape.
func Frame(el Element) (Rect, bool) {
	pv, ok := SafeAttribute(el, AttrPosition)
	if !ok {
		return Rect{}, false
	}
	sv, ok := SafeAttribute(el, AttrSize)
	if !ok {
		return Rect{}, false
	}
	pos, ok := asPair(pv)
	if !ok {
		return Rect{}, false
	}
	size, ok := asPair(sv)
	if !ok {
		return Rect{}, false
	}
	return Rect{Origin: Point{X: pos[0], Y: pos[1]}, Size: Size{W: size[0], H: size[1]}}, true
}

func asPair(v any) ([2]float64, bool) {
	switch p := v.(type) {
	case Point:
		return [2]float64{p.X, p.Y}, true
	case Size:
		return [2]float64{p.W, p.H}, true
	case [2]float64:
		return p, true
	case []float64:
		if len(p) == 2 {
			return [2]float64{p[0], p[1]}, true
		}
	}
	return [2]float64{}, false
}

// Children returns el's children, or nil when they cannot be read.
func Children(el Element) (children []Element) {
	if el == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			children = nil
		}
	}()
	c, err := el.Children()
	if err != nil {
		return nil
	}
	return c
}

// Perform invokes action on el, converting a panic into an error.
func Perform(el Element, action string) (err error) {
	if el == nil {
		return fmt.Errorf("perform %s: nil element", action)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("perform %s: panic: %v", action, r)
		}
	}()
	return el.PerformAction(action)
}

// WindowRoot returns the window whose tree commands and extraction operate on:
// the focused window, else the first AXWindow child, else app itself.
func WindowRoot(app Element) Element {
	if v, ok := SafeAttribute(app, AttrFocusedWindow); ok {
		if w, isEl := v.(Element); isEl {
			return w
		}
	}
	for _, c := range Children(app) {
		if Role(c) == RoleWindow {
			return c
		}
	}
	return app
}

// ContainsFold reports whether substr occurs in s, ignoring case.
func ContainsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
