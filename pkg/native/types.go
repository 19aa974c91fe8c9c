package native

import "time"

// Signal names the platform-origin events the bridge subscribes to.
type Signal string

const (
	// SignalRegistered carries a RegisteredEvent with the device token.
	SignalRegistered Signal = "Registered"
	// SignalFailedToRegister carries the registration error, verbatim.
	SignalFailedToRegister Signal = "FailedToRegister"
	// SignalReceived carries a remote notification Payload.
	SignalReceived Signal = "ReceivedRemoteNotification"
)

// CompletedNoData is the completion code passed to a notification's
// completion callback when the handler produced no new data.
const CompletedNoData = "noData"

// UserTextKey is the payload key carrying the user's typed text in a
// text-input action response.
const UserTextKey = "userText"

// Payload is a loose notification payload as delivered by the platform.
// Well-known keys: "action" (an Action), "completion" (a func(string)) and
// "foreground" (bool, false for cold-launch delivery).
type Payload = map[string]any

// PermissionSet holds the recognized notification capabilities.
type PermissionSet struct {
	Alert bool `json:"alert"`
	Sound bool `json:"sound"`
	Badge bool `json:"badge"`
}

// Category is an opaque notification-category descriptor owned by a separate
// model. The bridge never inspects it beyond asking for its wire payload.
type Category interface {
	Payload() Payload
}

// Action is the user interaction attached to a received notification.
// Completion, when non-nil, must be invoked exactly once by whoever consumes
// the action.
type Action struct {
	Identifier string
	// Text is the typed reply for text-input actions. It also appears in the
	// surrounding payload under UserTextKey.
	Text       string
	Completion func()
}

// RegisteredEvent is the payload of SignalRegistered.
type RegisteredEvent struct {
	DeviceToken string `json:"deviceToken"`
}

// DeliveredNotification is one entry of the platform's shown-notification
// history.
type DeliveredNotification struct {
	Identifier string    `json:"identifier"`
	Date       time.Time `json:"date"`
	Payload    Payload   `json:"payload"`
}
