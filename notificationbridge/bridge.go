// Package notificationbridge is the thin bridge between an application and
// the platform push-notification subsystem. It validates inputs, forwards
// commands to an injected native module and republishes native signals as a
// small fixed set of public events.
package notificationbridge

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-notification-bridge/internal/validate"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

// Bridge relays commands and events between an application and the native
// notification layer. Create one per logical session and Close it when the
// session ends.
type Bridge struct {
	module   native.Module
	platform Platform
	senderID string
	logger   *slog.Logger
	events   *Emitter

	mu          sync.Mutex
	destructing bool
	signalSubs  []native.Subscription
}

// New validates the sender ID for the chosen platform, subscribes to the
// three native signals and asks the native layer to replay missed events.
// The signal subscriptions persist until Close.
func New(
	mod native.Module,
	signals native.SignalSource,
	platform Platform,
	senderID string,
	logger *slog.Logger,
) (*Bridge, error) {
	if err := platform.validateSenderID(senderID); err != nil {
		return nil, err
	}

	b := &Bridge{
		module:   mod,
		platform: platform,
		senderID: senderID,
		logger:   logger.With("component", "NotificationBridge", "platform", platform.Name()),
		events:   &Emitter{},
	}

	b.signalSubs = []native.Subscription{
		signals.Subscribe(native.SignalRegistered, b.handleRegistered),
		signals.Subscribe(native.SignalFailedToRegister, b.handleRegistrationFailed),
		signals.Subscribe(native.SignalReceived, b.handleReceived),
	}

	mod.ReceiveMissedEvents()
	return b, nil
}

// On registers listener for one of the public bridge events.
func (b *Bridge) On(event Event, listener Listener) Subscription {
	return b.events.On(event, listener)
}

// Close unregisters the native signal listeners and stops all further event
// relay, including signals already in flight. Safe to call more than once.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.destructing = true
	subs := b.signalSubs
	b.signalSubs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Remove()
	}
	b.logger.Debug("Bridge closed, native listeners removed.")
}

// GetBadgeNumber asks the native layer for the icon badge value; cb is
// invoked once, asynchronously, with the result.
func (b *Bridge) GetBadgeNumber(cb func(int)) error {
	if cb == nil {
		return &native.InvalidArgumentError{Argument: "callback", Reason: "must be a non-nil function"}
	}
	b.module.ApplicationIconBadgeNumber(cb)
	return nil
}

// SetBadgeNumber forwards the badge value to the native layer. Fire and
// forget, no confirmation signal.
func (b *Bridge) SetBadgeNumber(n int) {
	b.module.SetApplicationIconBadgeNumber(n)
}

// RequestPermissions asks the platform for notification permissions. On the
// fine-grained platform permissions must be a non-empty mapping over the
// recognized keys and categories a homogeneous sequence of
// native.Category values; on the sender-ID platform both are ignored.
// A native denial propagates unchanged.
func (b *Bridge) RequestPermissions(ctx context.Context, permissions map[string]bool, categories []any) (native.PermissionSet, error) {
	return b.platform.requestPermissions(ctx, b.module, b.senderID, permissions, categories)
}

// DeliverInitialNotification asks the native layer to replay the
// notification that launched the application, if any. Delivery arrives later
// through EventReceived with foreground=false.
func (b *Bridge) DeliverInitialNotification() {
	b.module.DeliverInitialNotification()
}

// GetDeliveredNotifications asks for the shown-notification history; cb is
// invoked once with the records.
func (b *Bridge) GetDeliveredNotifications(cb func([]native.DeliveredNotification)) error {
	if cb == nil {
		return &native.InvalidArgumentError{Argument: "callback", Reason: "must be a non-nil function"}
	}
	b.module.DeliveredNotifications(cb)
	return nil
}

// MarkNotificationSeen emits EventSeen locally, then forwards the mark-seen
// command. The local emit happens before the native layer observes anything.
func (b *Bridge) MarkNotificationSeen(notification native.Payload) error {
	if err := validate.Payload("notification", notification); err != nil {
		return err
	}
	b.emit(EventSeen, nil)
	b.module.MarkNotificationAsSeen(notification)
	return nil
}

// MarkAllNotificationsSeen emits EventSeen, then forwards the mark-all-seen
// command.
func (b *Bridge) MarkAllNotificationsSeen() {
	b.emit(EventSeen, nil)
	b.module.MarkAllNotificationsAsSeen()
}

// FormatNotificationPayload forwards payload to the native formatter; cb is
// invoked once with the normalized result. Intended for internal use by the
// owning framework.
func (b *Bridge) FormatNotificationPayload(payload native.Payload, cb func(native.Payload)) error {
	if err := validate.Payload("payload", payload); err != nil {
		return err
	}
	if cb == nil {
		return &native.InvalidArgumentError{Argument: "callback", Reason: "must be a non-nil function"}
	}
	b.module.FormatNotificationPayload(payload, cb)
	return nil
}

// --- Signal relay ---

func (b *Bridge) handleRegistered(payload any) {
	ev, ok := payload.(native.RegisteredEvent)
	if !ok {
		b.reportRelayError(&native.InvalidArgumentError{
			Argument: "registered signal",
			Reason:   "payload is not a registration event",
		})
		return
	}
	b.emit(EventRegistered, ev.DeviceToken)
}

func (b *Bridge) handleRegistrationFailed(payload any) {
	err, ok := payload.(error)
	if !ok {
		b.reportRelayError(&native.InvalidArgumentError{
			Argument: "registration-fail signal",
			Reason:   "payload is not an error",
		})
		return
	}
	b.emit(EventRegistrationFailed, err)
}

func (b *Bridge) handleReceived(payload any) {
	notification, ok := payload.(native.Payload)
	if !ok || validate.Payload("notification", notification) != nil {
		// There is no caller positioned to catch a panic out of a signal
		// handler, so shape failures are reported as an event instead.
		b.reportRelayError(&native.InvalidArgumentError{
			Argument: "notification",
			Reason:   "received signal payload must be a non-empty object",
		})
		return
	}

	if action, ok := notification["action"].(native.Action); ok {
		if action.Completion != nil {
			action.Completion()
		}
	} else if completion, ok := notification["completion"].(func(string)); ok {
		completion(native.CompletedNoData)
	}

	b.emit(EventReceived, notification)
}

func (b *Bridge) reportRelayError(err error) {
	b.logger.Warn("Dropping malformed native signal.", "err", err)
	b.emit(EventError, err)
}

// emit suppresses all event relay once the bridge is destructing, covering
// native signals that were already in flight when Close ran.
func (b *Bridge) emit(event Event, arg any) {
	b.mu.Lock()
	closed := b.destructing
	b.mu.Unlock()
	if closed {
		return
	}
	b.events.Emit(event, arg)
}
