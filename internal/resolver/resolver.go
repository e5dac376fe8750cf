// Package resolver walks a logical path down a live accessibility tree.
package resolver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/omenav/internal/a11y"
)

// ErrNotFound reports that a path no longer resolves against the live tree.
// It is an expected outcome, not a failure.
var ErrNotFound = errors.New("element not found")

const ordinalPrefix = "Child_"

// OrdinalStep returns the fallback step for the child at index i.
func OrdinalStep(i int) string {
	return ordinalPrefix + strconv.Itoa(i)
}

// ParseOrdinal reports whether step is an ordinal fallback and returns its index.
func ParseOrdinal(step string) (int, bool) {
	digits, ok := strings.CutPrefix(step, ordinalPrefix)
	if !ok || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	i, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return i, true
}

// Resolve follows path from root. Step 0 names the root itself and is not
// matched. Each later step is either an ordinal ("Child_3") indexing the live
// children, or a label compared exactly against each child's title. Children
// whose title cannot be read are skipped.
func Resolve(root a11y.Element, path []string) (a11y.Element, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrNotFound)
	}
	if len(path) == 0 {
		return nil, fmt.Errorf("%w: empty path", ErrNotFound)
	}

	current := root
	for depth, step := range path[1:] {
		next := child(current, step)
		if next == nil {
			return nil, fmt.Errorf("%w: step %d %q", ErrNotFound, depth+1, step)
		}
		current = next
	}
	return current, nil
}

func child(parent a11y.Element, step string) a11y.Element {
	children := a11y.Children(parent)
	if i, ok := ParseOrdinal(step); ok {
		if i >= len(children) {
			return nil
		}
		return children[i]
	}
	for _, c := range children {
		if a11y.Title(c) == step {
			return c
		}
	}
	return nil
}
