// Package events implements the typed publish/subscribe bus that connects the
// hardware layer, the orchestrator, and the running mini-app. All canonical
// event type names and payload shapes live here so every producer emits
// identical payloads regardless of which hardware backend is active.
package events

import "time"

// Canonical event types. Dotted lowercase, past tense for completed
// transitions. The legacy underscore forms from earlier firmware are not
// emitted anywhere.
const (
	TypeSwitchChanged  = "input.switch.changed"
	TypeButtonPressed  = "input.button.pressed"
	TypeButtonReleased = "input.button.released"

	TypeLEDStateChanged = "output.led.state_changed"
	TypeDisplayUpdated  = "output.display.updated"
	TypeScreenUpdated   = "output.screen.updated"

	TypeAppStarted        = "system.app.started"
	TypeAppStopped        = "system.app.stopped"
	TypeAppError          = "system.app.error"
	TypeShutdownInitiated = "system.shutdown.initiated"
	TypeSystemError       = "system.error"

	// TypeButtonEdge carries raw, ungated edges from a hardware backend to
	// the button gate. It is internal plumbing, not part of the public
	// taxonomy, and is never forwarded to the emulator surface.
	TypeButtonEdge = "hal.button.edge"
)

// Screen content descriptors for TypeScreenUpdated payloads.
const (
	ScreenContentText  = "text"
	ScreenContentImage = "image"
	ScreenContentClear = "clear"
)

// Edge directions for TypeButtonEdge payloads.
const (
	EdgePress   = "press"
	EdgeRelease = "release"
)

// Event is a single message on the bus.
type Event struct {
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
}

// SwitchChangedPayload builds the payload for input.switch.changed.
func SwitchChangedPayload(oldValue, newValue int) map[string]any {
	return map[string]any{"old_value": oldValue, "new_value": newValue}
}

// ButtonPayload builds the payload for input.button.pressed/released.
func ButtonPayload(button string) map[string]any {
	return map[string]any{"button": button}
}

// ButtonEdgePayload builds the payload for the internal raw edge event.
func ButtonEdgePayload(button, edge string) map[string]any {
	return map[string]any{"button": button, "edge": edge}
}

// LEDStatePayload builds the payload for output.led.state_changed.
func LEDStatePayload(color string, isOn bool, brightness float64) map[string]any {
	return map[string]any{"color": color, "is_on": isOn, "brightness": brightness}
}

// DisplayPayload builds the payload for output.display.updated. A nil value
// means the display was blanked.
func DisplayPayload(value *int) map[string]any {
	if value == nil {
		return map[string]any{"value": nil}
	}
	return map[string]any{"value": *value}
}

// ScreenPayload builds the payload for output.screen.updated.
func ScreenPayload(contentType, content string, options map[string]any) map[string]any {
	if options == nil {
		options = map[string]any{}
	}
	return map[string]any{"content_type": contentType, "content": content, "options": options}
}

// AppStartedPayload builds the payload for system.app.started.
func AppStartedPayload(appName string, switchValue int) map[string]any {
	return map[string]any{"app_name": appName, "switch_value": switchValue}
}

// AppStoppedPayload builds the payload for system.app.stopped.
func AppStoppedPayload(appName string, switchValue int, reason string) map[string]any {
	return map[string]any{"app_name": appName, "switch_value": switchValue, "reason": reason}
}

// AppErrorPayload builds the payload for system.app.error.
func AppErrorPayload(appName, errMsg string) map[string]any {
	return map[string]any{"app_name": appName, "error": errMsg}
}

// ShutdownPayload builds the payload for system.shutdown.initiated.
func ShutdownPayload(reason string) map[string]any {
	return map[string]any{"reason": reason}
}

// SystemErrorPayload builds the payload for system.error.
func SystemErrorPayload(code, message string) map[string]any {
	return map[string]any{"code": code, "message": message}
}
