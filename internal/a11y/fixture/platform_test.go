package fixture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/omenav/internal/a11y"
)

const yamlFixture = `
apps:
  com.apple.mail:
    running: true
    pid: 311
    root:
      role: AXApplication
      title: Mail
      children:
        - role: AXWindow
          title: Inbox
          focused: true
          children:
            - role: AXButton
              title: Reply
              frame: {x: 10, y: 20, w: 30, h: 10}
`

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "tree.yaml")
		require.NoError(t, os.WriteFile(path, []byte(yamlFixture), 0o644))

		p, err := LoadFile(path)
		require.NoError(t, err)

		running, err := p.IsRunning(context.Background(), "com.apple.mail")
		require.NoError(t, err)
		assert.True(t, running)

		h, err := p.Acquire(context.Background(), "com.apple.mail")
		require.NoError(t, err)
		assert.Equal(t, 311, h.PID)

		win := a11y.WindowRoot(h.Root)
		assert.Equal(t, "Inbox", a11y.Title(win))
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "tree.json")
		body := `{"apps":{"com.example":{"running":false,"root":{"role":"AXApplication"}}}}`
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

		p, err := LoadFile(path)
		require.NoError(t, err)
		_, err = p.Acquire(context.Background(), "com.example")
		assert.ErrorIs(t, err, a11y.ErrAppNotRunning)
	})

	t.Run("missing root", func(t *testing.T) {
		path := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"apps":{"x":{"running":true}}}`), 0o644))
		_, err := LoadFile(path)
		assert.Error(t, err)
	})
}

func TestNodeAttributes(t *testing.T) {
	n := &Node{
		Role:            "AXButton",
		Title:           "Send",
		Enabled:         Bool(true),
		Frame:           &Frame{X: 0, Y: 0, W: 10, H: 20},
		FailAttributes:  []string{a11y.AttrDescription},
		PanicAttributes: []string{a11y.AttrHelp},
	}

	v, err := n.Attribute(a11y.AttrTitle)
	require.NoError(t, err)
	assert.Equal(t, "Send", v)

	_, err = n.Attribute(a11y.AttrDescription)
	assert.Error(t, err)

	assert.Panics(t, func() { _, _ = n.Attribute(a11y.AttrHelp) })

	_, err = n.Attribute(a11y.AttrIdentifier)
	assert.True(t, errors.Is(err, a11y.ErrAttributeUnsupported))

	frame, ok := a11y.Frame(n)
	require.True(t, ok)
	assert.Equal(t, a11y.Point{X: 5, Y: 10}, frame.Center())
}

func TestAcquireFailuresAndPresses(t *testing.T) {
	root := &Node{Role: "AXApplication", Nodes: []*Node{{Role: "AXButton", Title: "Go"}}}
	p := New()
	p.AddApp("app", &App{Running: true, Root: root})
	p.SetAcquireFailures("app", 2)

	ctx := context.Background()
	_, err := p.Acquire(ctx, "app")
	assert.Error(t, err)
	_, err = p.Acquire(ctx, "app")
	assert.Error(t, err)
	_, err = p.Acquire(ctx, "app")
	assert.NoError(t, err)
	assert.Equal(t, 3, p.Acquires("app"))

	btn := root.Find("Go")
	require.NotNil(t, btn)
	require.NoError(t, btn.PerformAction(a11y.ActionPress))
	assert.Equal(t, 1, btn.Presses())
	assert.Error(t, btn.PerformAction("AXShowMenu"))
}

func TestNodeChildren(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tree.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlFixture), 0o644))
	p, err := LoadFile(path)
	require.NoError(t, err)

	root := p.apps["com.apple.mail"].Root
	require.Len(t, root.Nodes, 1)

	kids, err := root.Children()
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "Inbox", a11y.Title(kids[0]))

	root.SetChildren(&Node{Role: "AXWindow", Title: "Drafts"})
	kids, err = root.Children()
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "Drafts", a11y.Title(kids[0]))
	assert.NotNil(t, root.Find("Drafts"))
}
