package humanoid

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/omenav/internal/config"
)

// Clicker synthesizes a left click at a screen point: move, press, a short
// randomized hold, then release.
type Clicker struct {
	exec   Executor
	cfg    config.HumanoidConfig
	logger *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewClicker returns a Clicker posting events through exec. A nil rng is
// replaced by a time-seeded source.
func NewClicker(exec Executor, cfg config.HumanoidConfig, logger *zap.Logger, rng *rand.Rand) *Clicker {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Clicker{
		exec:   exec,
		cfg:    cfg,
		logger: logger.Named("clicker"),
		rng:    rng,
	}
}

// holdDuration picks a hold time uniformly from [ClickHoldMinMs, ClickHoldMaxMs].
func (c *Clicker) holdDuration() time.Duration {
	lo, hi := c.cfg.ClickHoldMinMs, c.cfg.ClickHoldMaxMs
	if hi <= lo {
		return time.Duration(lo) * time.Millisecond
	}
	c.mu.Lock()
	ms := lo + c.rng.Intn(hi-lo+1)
	c.mu.Unlock()
	return time.Duration(ms) * time.Millisecond
}

// Click performs a left click at (x, y). If the press was dispatched the
// release is always attempted, even when the hold is cancelled, so the button
// is never left down.
func (c *Clicker) Click(ctx context.Context, x, y float64) error {
	move := MouseEventData{Type: MouseMove, X: x, Y: y, Button: ButtonNone}
	if err := c.exec.DispatchMouseEvent(ctx, move); err != nil {
		return fmt.Errorf("moving pointer to (%.0f, %.0f): %w", x, y, err)
	}

	press := MouseEventData{Type: MousePress, X: x, Y: y, Button: ButtonLeft, ClickCount: 1, Buttons: 1}
	if err := c.exec.DispatchMouseEvent(ctx, press); err != nil {
		return fmt.Errorf("pressing at (%.0f, %.0f): %w", x, y, err)
	}

	hold := c.holdDuration()
	holdErr := c.exec.Sleep(ctx, hold)

	release := MouseEventData{Type: MouseRelease, X: x, Y: y, Button: ButtonLeft, ClickCount: 1, Buttons: 0}
	// Use a context detached from cancellation for the release.
	if err := c.exec.DispatchMouseEvent(context.WithoutCancel(ctx), release); err != nil {
		return fmt.Errorf("releasing at (%.0f, %.0f): %w", x, y, err)
	}
	if holdErr != nil {
		return fmt.Errorf("click hold interrupted: %w", holdErr)
	}

	c.logger.Debug("Clicked point.", zap.Float64("x", x), zap.Float64("y", y), zap.Duration("hold", hold))
	return nil
}
