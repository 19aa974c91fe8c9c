// Package native contains the public contracts and value shapes for the
// platform notification subsystem the bridge forwards to. The bridge never
// talks to a global singleton; it is constructed with these capabilities.
package native

import "context"

// Module defines the command surface of the platform notification subsystem.
// All callback-taking operations are asynchronous hand-offs: the module
// invokes the callback exactly once, at some later point, on its own
// execution context. Fire-and-forget operations carry no confirmation.
type Module interface {
	// ReceiveMissedEvents asks the module to replay signals that arrived
	// before any listener was registered.
	ReceiveMissedEvents()

	// ApplicationIconBadgeNumber invokes cb once with the current badge value.
	ApplicationIconBadgeNumber(cb func(int))

	// SetApplicationIconBadgeNumber updates the icon badge. Fire and forget.
	SetApplicationIconBadgeNumber(n int)

	// RequestPermissions asks for the given capability set, registering the
	// serialized categories alongside. Used on the fine-grained platform.
	// A denial propagates as the returned error, untouched.
	RequestPermissions(ctx context.Context, set PermissionSet, categories []Payload) (PermissionSet, error)

	// RequestPermissionsWithSenderID registers for push delivery under the
	// given sender ID. Used on the sender-ID platform.
	RequestPermissionsWithSenderID(ctx context.Context, senderID string) (PermissionSet, error)

	// DeliverInitialNotification replays the notification that launched the
	// application, if any, through the received signal with foreground=false.
	DeliverInitialNotification()

	// DeliveredNotifications invokes cb once with the list of notifications
	// the platform has already shown.
	DeliveredNotifications(cb func([]DeliveredNotification))

	// MarkNotificationAsSeen clears a single shown notification.
	MarkNotificationAsSeen(payload Payload)

	// MarkAllNotificationsAsSeen clears every shown notification.
	MarkAllNotificationsAsSeen()

	// FormatNotificationPayload normalizes a raw payload into the canonical
	// shape and invokes cb once with the result.
	FormatNotificationPayload(payload Payload, cb func(Payload))
}

// Handler receives a signal payload. The concrete type depends on the signal:
// RegisteredEvent for SignalRegistered, error for SignalFailedToRegister and
// Payload for SignalReceived.
type Handler func(payload any)

// Subscription is a registered signal listener. Remove detaches it; removing
// twice is a no-op.
type Subscription interface {
	Remove()
}

// SignalSource is the event half of the native layer. Signals are delivered
// at unpredictable times relative to Module commands; no ordering is
// guaranteed between a command's completion and an unrelated signal.
type SignalSource interface {
	Subscribe(signal Signal, handler Handler) Subscription
}
