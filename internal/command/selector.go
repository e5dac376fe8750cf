package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/elementcache"
	"github.com/xkilldash9x/omenav/internal/navstore"
	"github.com/xkilldash9x/omenav/internal/statewatch"
)

// ErrBusy is returned when another command holds the execution slot for longer
// than the queue timeout.
var ErrBusy = errors.New("another command is in progress")

// Target exposes the watcher state commands run against.
type Target interface {
	Handle() (*a11y.Handle, error)
	CurrentContext() navstore.Context
	Snapshot() statewatch.TargetState
}

// Actions resolves and activates elements.
type Actions interface {
	GetActionable(c navstore.Context, root a11y.Element, logicalID string) elementcache.Actionable
	Press(ctx context.Context, a elementcache.Actionable) error
}

// Selector executes row selections one at a time.
type Selector struct {
	target       Target
	actions      Actions
	queueTimeout time.Duration
	sem          *semaphore.Weighted
	logger       *zap.Logger
}

// NewSelector builds a Selector. queueTimeout bounds how long a command waits
// for the one in flight; zero means it does not wait.
func NewSelector(target Target, actions Actions, queueTimeout time.Duration, logger *zap.Logger) *Selector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		target:       target,
		actions:      actions,
		queueTimeout: queueTimeout,
		sem:          semaphore.NewWeighted(1),
		logger:       logger.Named("selector"),
	}
}

// RowID is the logical id the crawler assigns to row n.
func RowID(n int) string {
	return fmt.Sprintf("row %d", n)
}

func (s *Selector) acquire(ctx context.Context) error {
	if s.queueTimeout <= 0 {
		if !s.sem.TryAcquire(1) {
			return ErrBusy
		}
		return nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.queueTimeout)
	defer cancel()
	if err := s.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrBusy
	}
	return nil
}

// SelectRow presses row n of the active window. It returns
// statewatch.ErrNoHandle, ErrBusy, elementcache.ErrAbsent, or a wrapped
// resolution or action error.
func (s *Selector) SelectRow(ctx context.Context, row int) (mode elementcache.Mode, err error) {
	if _, err := s.target.Handle(); err != nil {
		return "", err
	}
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.sem.Release(1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Row selection panicked.", zap.Int("row", row), zap.Any("panic_value", r))
			mode, err = "", fmt.Errorf("row selection panicked: %v", r)
		}
	}()

	// The handle may have been dropped while queued.
	handle, err := s.target.Handle()
	if err != nil {
		return "", err
	}
	nav := s.target.CurrentContext()
	root := a11y.WindowRoot(handle.Root)

	a := s.actions.GetActionable(nav, root, RowID(row))
	if a.Mode == elementcache.ModeAbsent {
		return elementcache.ModeAbsent, fmt.Errorf("row %d: %w", row, elementcache.ErrAbsent)
	}
	if err := s.actions.Press(ctx, a); err != nil {
		return a.Mode, fmt.Errorf("selecting row %d: %w", row, err)
	}
	s.logger.Info("Row selected.", zap.Int("row", row), zap.String("mode", string(a.Mode)), zap.Stringer("context", nav))
	return a.Mode, nil
}
