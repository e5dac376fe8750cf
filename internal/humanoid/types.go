// internal/humanoid/types.go
package humanoid

// MouseEventType defines the type of mouse event.
type MouseEventType string

const (
	MouseMove    MouseEventType = "mouseMoved"
	MousePress   MouseEventType = "mousePressed"
	MouseRelease MouseEventType = "mouseReleased"
)

// MouseButton defines the mouse button.
type MouseButton string

const (
	ButtonNone  MouseButton = "none"
	ButtonLeft  MouseButton = "left"
	ButtonRight MouseButton = "right"
)

// MouseEventData holds the data required to dispatch a mouse event in screen
// coordinates.
type MouseEventData struct {
	Type   MouseEventType
	X      float64
	Y      float64
	Button MouseButton
	// Number of consecutive clicks.
	ClickCount int
	// Buttons is a bitfield of the buttons held down after the event (1: Left, 2: Right).
	Buttons int64
}
