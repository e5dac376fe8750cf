package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/a11y/fixture"
	"github.com/xkilldash9x/omenav/internal/elementcache"
	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

var mailContext = navstore.Context{AppID: "com.apple.mail", WindowClass: "Mail.messageViewer"}

type fakeTarget struct {
	mu      sync.Mutex
	handle  *a11y.Handle
	handles int
}

func newFakeTarget(root a11y.Element) *fakeTarget {
	if root == nil {
		return &fakeTarget{}
	}
	return &fakeTarget{handle: &a11y.Handle{AppID: mailContext.AppID, PID: 88, Root: root}}
}

func (f *fakeTarget) Handle() (*a11y.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handles++
	if f.handle == nil {
		return nil, statewatch.ErrNoHandle
	}
	return f.handle, nil
}

func (f *fakeTarget) CurrentContext() navstore.Context { return mailContext }

func (f *fakeTarget) Snapshot() statewatch.TargetState {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := statewatch.TargetState{ActiveAppID: mailContext.AppID, Handle: f.handle}
	if f.handle != nil {
		s.Phase = statewatch.PhaseRunning
		s.AppRunning = true
	}
	return s
}

func (f *fakeTarget) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles
}

type mockActions struct {
	mock.Mock
}

func (m *mockActions) GetActionable(c navstore.Context, root a11y.Element, logicalID string) elementcache.Actionable {
	args := m.Called(c, root, logicalID)
	return args.Get(0).(elementcache.Actionable)
}

func (m *mockActions) Press(ctx context.Context, a elementcache.Actionable) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func windowRoot() *fixture.Node {
	return &fixture.Node{Role: a11y.RoleWindow, Title: "Inbox"}
}

func TestSelectRow(t *testing.T) {
	t.Run("presses the live row", func(t *testing.T) {
		root := windowRoot()
		actions := new(mockActions)
		live := elementcache.Actionable{Mode: elementcache.ModeLive, Element: root}
		actions.On("GetActionable", mailContext, a11y.Element(root), "row 3").Return(live)
		actions.On("Press", mock.Anything, live).Return(nil)

		s := NewSelector(newFakeTarget(root), actions, time.Second, zaptest.NewLogger(t))
		mode, err := s.SelectRow(context.Background(), 3)
		require.NoError(t, err)
		assert.Equal(t, elementcache.ModeLive, mode)
		actions.AssertExpectations(t)
	})

	t.Run("no handle", func(t *testing.T) {
		actions := new(mockActions)
		s := NewSelector(newFakeTarget(nil), actions, time.Second, zaptest.NewLogger(t))
		_, err := s.SelectRow(context.Background(), 0)
		assert.ErrorIs(t, err, statewatch.ErrNoHandle)
		actions.AssertNotCalled(t, "GetActionable", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("absent row", func(t *testing.T) {
		root := windowRoot()
		actions := new(mockActions)
		actions.On("GetActionable", mailContext, mock.Anything, "row 9").Return(elementcache.Actionable{Mode: elementcache.ModeAbsent})

		s := NewSelector(newFakeTarget(root), actions, time.Second, zaptest.NewLogger(t))
		mode, err := s.SelectRow(context.Background(), 9)
		assert.ErrorIs(t, err, elementcache.ErrAbsent)
		assert.Equal(t, elementcache.ModeAbsent, mode)
		actions.AssertNotCalled(t, "Press", mock.Anything, mock.Anything)
	})

	t.Run("press failure is wrapped", func(t *testing.T) {
		root := windowRoot()
		actions := new(mockActions)
		pt := a11y.Point{X: 10, Y: 20}
		cached := elementcache.Actionable{Mode: elementcache.ModeCachedPoint, Point: &pt}
		boom := errors.New("boom")
		actions.On("GetActionable", mailContext, mock.Anything, "row 1").Return(cached)
		actions.On("Press", mock.Anything, cached).Return(boom)

		s := NewSelector(newFakeTarget(root), actions, time.Second, zaptest.NewLogger(t))
		mode, err := s.SelectRow(context.Background(), 1)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, elementcache.ModeCachedPoint, mode)
	})

	t.Run("panic becomes an error and frees the slot", func(t *testing.T) {
		root := windowRoot()
		actions := new(mockActions)
		live := elementcache.Actionable{Mode: elementcache.ModeLive, Element: root}
		actions.On("GetActionable", mailContext, mock.Anything, "row 2").Return(live)
		actions.On("Press", mock.Anything, live).Panic("driver exploded").Once()
		actions.On("Press", mock.Anything, live).Return(nil).Once()

		s := NewSelector(newFakeTarget(root), actions, 0, zaptest.NewLogger(t))
		_, err := s.SelectRow(context.Background(), 2)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "driver exploded")

		_, err = s.SelectRow(context.Background(), 2)
		assert.NoError(t, err)
	})
}

func TestSelectRowSerializes(t *testing.T) {
	root := windowRoot()
	actions := new(mockActions)
	live := elementcache.Actionable{Mode: elementcache.ModeLive, Element: root}
	release := make(chan struct{})
	started := make(chan struct{})
	actions.On("GetActionable", mailContext, mock.Anything, mock.Anything).Return(live)
	actions.On("Press", mock.Anything, live).Run(func(mock.Arguments) {
		close(started)
		<-release
	}).Return(nil).Once()

	s := NewSelector(newFakeTarget(root), actions, 20*time.Millisecond, zaptest.NewLogger(t))

	done := make(chan error, 1)
	go func() {
		_, err := s.SelectRow(context.Background(), 0)
		done <- err
	}()
	<-started

	_, err := s.SelectRow(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)
}

func TestRowID(t *testing.T) {
	assert.Equal(t, "row 0", RowID(0))
	assert.Equal(t, "row 12", RowID(12))
}
