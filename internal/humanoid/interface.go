// Filename: internal/humanoid/interface.go
package humanoid

import (
	"context"
	"time"
)

// Executor is the platform layer that actually posts input events.
type Executor interface {
	// Sleep pauses execution, respecting context cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// DispatchMouseEvent posts one mouse event at screen coordinates.
	DispatchMouseEvent(ctx context.Context, data MouseEventData) error
}
