// Package memory provides an in-process native module for local development
// and tests. It keeps badge, history and queued signals in memory and fans
// signals out through a native.SignalHub.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

// Module is a complete native.Module and native.SignalSource backed by
// process memory. Callbacks are invoked synchronously, before the command
// returns, which keeps tests deterministic.
type Module struct {
	native.SignalHub

	logger *slog.Logger

	mu        sync.Mutex
	badge     int
	delivered []native.DeliveredNotification
	missed    []queuedSignal
	initial   native.Payload
	senderID  string
	granted   native.PermissionSet
}

type queuedSignal struct {
	signal  native.Signal
	payload any
}

var _ native.Module = (*Module)(nil)

func New(logger *slog.Logger) *Module {
	return &Module{logger: logger.With("component", "MemoryNativeModule")}
}

// QueueSignal stores a signal for later replay via ReceiveMissedEvents.
func (m *Module) QueueSignal(signal native.Signal, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missed = append(m.missed, queuedSignal{signal: signal, payload: payload})
}

// SetInitialNotification records the payload that "launched" the application.
func (m *Module) SetInitialNotification(payload native.Payload) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initial = payload
}

// Deliver shows a notification: it is appended to the delivered history,
// the badge is incremented and a received signal with foreground=true is
// published.
func (m *Module) Deliver(payload native.Payload) native.DeliveredNotification {
	record := native.DeliveredNotification{
		Identifier: uuid.NewString(),
		Date:       time.Now().UTC(),
		Payload:    payload,
	}

	m.mu.Lock()
	m.delivered = append(m.delivered, record)
	m.badge++
	m.mu.Unlock()

	live := clonePayload(payload)
	live["identifier"] = record.Identifier
	live["foreground"] = true
	m.Publish(native.SignalReceived, live)
	return record
}

func (m *Module) ReceiveMissedEvents() {
	m.mu.Lock()
	queued := m.missed
	m.missed = nil
	m.mu.Unlock()

	for _, q := range queued {
		m.Publish(q.signal, q.payload)
	}
}

func (m *Module) ApplicationIconBadgeNumber(cb func(int)) {
	m.mu.Lock()
	n := m.badge
	m.mu.Unlock()
	cb(n)
}

func (m *Module) SetApplicationIconBadgeNumber(n int) {
	m.mu.Lock()
	m.badge = n
	m.mu.Unlock()
}

// RequestPermissions grants exactly what was asked for. A headless module has
// no permission dialog to consult.
func (m *Module) RequestPermissions(_ context.Context, set native.PermissionSet, categories []native.Payload) (native.PermissionSet, error) {
	m.mu.Lock()
	m.granted = set
	m.mu.Unlock()
	m.logger.Debug("Permissions granted.", "alert", set.Alert, "sound", set.Sound, "badge", set.Badge, "categories", len(categories))
	return set, nil
}

func (m *Module) RequestPermissionsWithSenderID(_ context.Context, senderID string) (native.PermissionSet, error) {
	granted := native.PermissionSet{Alert: true, Sound: true, Badge: true}
	m.mu.Lock()
	m.senderID = senderID
	m.granted = granted
	m.mu.Unlock()
	return granted, nil
}

func (m *Module) DeliverInitialNotification() {
	m.mu.Lock()
	initial := m.initial
	m.mu.Unlock()
	if initial == nil {
		return
	}

	payload := clonePayload(initial)
	payload["foreground"] = false
	m.Publish(native.SignalReceived, payload)
}

func (m *Module) DeliveredNotifications(cb func([]native.DeliveredNotification)) {
	m.mu.Lock()
	records := make([]native.DeliveredNotification, len(m.delivered))
	copy(records, m.delivered)
	m.mu.Unlock()
	cb(records)
}

func (m *Module) MarkNotificationAsSeen(payload native.Payload) {
	id, _ := payload["identifier"].(string)
	if id == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.delivered[:0]
	for _, record := range m.delivered {
		if record.Identifier == id {
			if m.badge > 0 {
				m.badge--
			}
			continue
		}
		kept = append(kept, record)
	}
	m.delivered = kept
}

func (m *Module) MarkAllNotificationsAsSeen() {
	m.mu.Lock()
	m.delivered = nil
	m.badge = 0
	m.mu.Unlock()
}

// FormatNotificationPayload fills in the canonical keys: a generated
// identifier when missing and an explicit foreground flag.
func (m *Module) FormatNotificationPayload(payload native.Payload, cb func(native.Payload)) {
	formatted := clonePayload(payload)
	if id, _ := formatted["identifier"].(string); id == "" {
		formatted["identifier"] = uuid.NewString()
	}
	if _, ok := formatted["foreground"]; !ok {
		formatted["foreground"] = true
	}
	cb(formatted)
}

func clonePayload(p native.Payload) native.Payload {
	out := make(native.Payload, len(p)+2)
	for k, v := range p {
		out[k] = v
	}
	return out
}
