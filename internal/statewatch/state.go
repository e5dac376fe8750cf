package statewatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/omenav/internal/a11y"
	"github.com/xkilldash9x/omenav/internal/navstore"
)

// ErrNoHandle means there is no usable application handle right now.
var ErrNoHandle = errors.New("no application handle")

// Phase is the lifecycle state of the watched target.
type Phase string

const (
	// PhaseIdle means no target application is declared, or the declared
	// application is not the one being watched.
	PhaseIdle Phase = "IDLE"
	// PhaseRunning means the target runs and a handle is held.
	PhaseRunning Phase = "ACTIVE_RUNNING"
	// PhaseStopped means the target is declared but unusable: not running,
	// or its handle could not be acquired.
	PhaseStopped Phase = "ACTIVE_STOPPED"
)

// TargetState describes the currently active application.
type TargetState struct {
	ActiveAppID       string       `json:"active_app_id"`
	ActiveWindowRef   string       `json:"active_window_ref"`
	ActiveWindowTitle string       `json:"active_window_title"`
	AppRunning        bool         `json:"app_running"`
	Phase             Phase        `json:"phase"`
	Handle            *a11y.Handle `json:"-"`
}

// HasHandle reports whether commands can be executed against the target.
func (s TargetState) HasHandle() bool {
	return s.Phase == PhaseRunning && s.Handle != nil
}

// trigger records what has been extracted for the current app and window.
type trigger struct {
	extracted bool
	lastTitle string
	lastRef   string
}

// EventKind classifies watcher events.
type EventKind string

const (
	// EventExtract asks for the navigation map of the current window to be rebuilt.
	EventExtract    EventKind = "extract"
	EventAppRunning EventKind = "app_running"
	EventAppStopped EventKind = "app_stopped"
	EventAppChanged EventKind = "app_changed"
)

// Event is emitted by the watcher on the watcher goroutine.
type Event struct {
	ID          uuid.UUID        `json:"id"`
	Kind        EventKind        `json:"kind"`
	Reason      string           `json:"reason"`
	AppID       string           `json:"app_id"`
	WindowRef   string           `json:"window_ref,omitempty"`
	WindowTitle string           `json:"window_title,omitempty"`
	Context     navstore.Context `json:"context"`
	At          time.Time        `json:"at"`
}

// Handler consumes watcher events. Errors are logged by the watcher and do not
// stop it.
type Handler interface {
	HandleEvent(ctx context.Context, ev Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, ev Event) error

// HandleEvent calls f.
func (f HandlerFunc) HandleEvent(ctx context.Context, ev Event) error { return f(ctx, ev) }
