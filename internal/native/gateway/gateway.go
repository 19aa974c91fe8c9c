package gateway

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

const opTimeout = 5 * time.Second

// StateStore is the device-local notification state: badge counter,
// delivered history and the queue of signals that arrived while the daemon
// was down.
type StateStore interface {
	Badge(ctx context.Context) (int, error)
	SetBadge(ctx context.Context, n int) error
	AddDelivered(ctx context.Context, record native.DeliveredNotification) error
	Delivered(ctx context.Context) ([]native.DeliveredNotification, error)
	RemoveDelivered(ctx context.Context, identifier string) error
	ClearDelivered(ctx context.Context) error
	DrainMissed(ctx context.Context) ([][]byte, error)
}

// Registration is the record handed to the registration store on a
// successful permission request.
type Registration struct {
	DeviceToken string
	Platform    string
	SenderID    string
	Permissions native.PermissionSet
	Categories  []native.Payload
}

// RegistrationStore persists registrations so the provider side can look
// them up when fanning out notifications.
type RegistrationStore interface {
	Save(ctx context.Context, user urn.URN, reg Registration) error
}

// Config identifies the device and user this gateway instance serves.
type Config struct {
	User         urn.URN
	PlatformName string
}

// Gateway is the production native.Module. Its signal half is the
// SignalRelay passed at construction; the gateway itself listens on the
// relay to keep device state in step with incoming signals.
type Gateway struct {
	cfg           Config
	relay         *SignalRelay
	state         StateStore
	registrations RegistrationStore
	topics        *TopicManager // nil on the fine-grained platform
	logger        *slog.Logger

	mu          sync.Mutex
	deviceToken string
	senderID    string
}

var _ native.Module = (*Gateway)(nil)

func New(
	cfg Config,
	relay *SignalRelay,
	state StateStore,
	registrations RegistrationStore,
	topics *TopicManager,
	logger *slog.Logger,
) *Gateway {
	g := &Gateway{
		cfg:           cfg,
		relay:         relay,
		state:         state,
		registrations: registrations,
		topics:        topics,
		logger:        logger.With("component", "GatewayModule"),
	}

	// The gateway tracks its own relay: the device token from registration
	// signals, and history/badge for live deliveries.
	relay.Subscribe(native.SignalRegistered, g.onRegistered)
	relay.Subscribe(native.SignalReceived, g.onReceived)

	return g
}

// Close releases the sender topic subscription, if one was established.
func (g *Gateway) Close(ctx context.Context) error {
	g.mu.Lock()
	token, senderID := g.deviceToken, g.senderID
	g.mu.Unlock()

	if g.topics == nil || token == "" || senderID == "" {
		return nil
	}
	return g.topics.Unsubscribe(ctx, token, senderID)
}

// --- Relay bookkeeping ---

func (g *Gateway) onRegistered(payload any) {
	ev, ok := payload.(native.RegisteredEvent)
	if !ok {
		return
	}
	g.mu.Lock()
	g.deviceToken = ev.DeviceToken
	g.mu.Unlock()
	g.logger.Info("Device token recorded.", "token", ev.DeviceToken)
}

func (g *Gateway) onReceived(payload any) {
	notif, ok := payload.(native.Payload)
	if !ok {
		return
	}
	// Replayed deliveries (foreground=false) were already shown once; only
	// live traffic extends the history.
	if fg, _ := notif["foreground"].(bool); !fg {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	id, _ := notif["identifier"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	record := native.DeliveredNotification{
		Identifier: id,
		Date:       time.Now().UTC(),
		Payload:    notif,
	}
	if err := g.state.AddDelivered(ctx, record); err != nil {
		g.logger.Error("Failed to record delivered notification.", "err", err)
		return
	}

	badge, err := g.state.Badge(ctx)
	if err != nil {
		g.logger.Warn("Badge read failed after delivery.", "err", err)
		return
	}
	if err := g.state.SetBadge(ctx, badge+1); err != nil {
		g.logger.Warn("Badge update failed after delivery.", "err", err)
	}
}

// --- native.Module ---

// ReceiveMissedEvents drains the queued signal envelopes and replays them
// through the relay.
func (g *Gateway) ReceiveMissedEvents() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	entries, err := g.state.DrainMissed(ctx)
	if err != nil {
		g.logger.Error("Failed to drain missed signals.", "err", err)
		return
	}
	for _, raw := range entries {
		if err := g.relay.Replay(raw); err != nil {
			g.logger.Warn("Skipping unreadable queued signal.", "err", err)
		}
	}
	if len(entries) > 0 {
		g.logger.Info("Missed signals replayed.", "count", len(entries))
	}
}

func (g *Gateway) ApplicationIconBadgeNumber(cb func(int)) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	n, err := g.state.Badge(ctx)
	if err != nil {
		g.logger.Error("Badge read failed.", "err", err)
		cb(0)
		return
	}
	cb(n)
}

func (g *Gateway) SetApplicationIconBadgeNumber(n int) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := g.state.SetBadge(ctx, n); err != nil {
		g.logger.Error("Badge write failed.", "err", err)
	}
}

// RequestPermissions records the registration and grants the requested set.
// A headless deployment has no permission dialog to consult.
func (g *Gateway) RequestPermissions(ctx context.Context, set native.PermissionSet, categories []native.Payload) (native.PermissionSet, error) {
	err := g.registrations.Save(ctx, g.cfg.User, Registration{
		DeviceToken: g.currentDeviceToken(),
		Platform:    g.cfg.PlatformName,
		Permissions: set,
		Categories:  categories,
	})
	if err != nil {
		return native.PermissionSet{}, err
	}
	return set, nil
}

// RequestPermissionsWithSenderID subscribes the device token to the sender's
// broadcast topic and records the registration. The sender-ID platform has
// no fine-grained gating, so the full set is granted.
func (g *Gateway) RequestPermissionsWithSenderID(ctx context.Context, senderID string) (native.PermissionSet, error) {
	token := g.currentDeviceToken()

	if g.topics != nil && token != "" {
		if err := g.topics.EnsureSubscribed(ctx, token, senderID); err != nil {
			return native.PermissionSet{}, err
		}
	}

	granted := native.PermissionSet{Alert: true, Sound: true, Badge: true}
	err := g.registrations.Save(ctx, g.cfg.User, Registration{
		DeviceToken: token,
		Platform:    g.cfg.PlatformName,
		SenderID:    senderID,
		Permissions: granted,
	})
	if err != nil {
		return native.PermissionSet{}, err
	}

	g.mu.Lock()
	g.senderID = senderID
	g.mu.Unlock()
	return granted, nil
}

// DeliverInitialNotification republishes the most recent delivered record
// with foreground=false, the cold-launch marker.
func (g *Gateway) DeliverInitialNotification() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	records, err := g.state.Delivered(ctx)
	if err != nil {
		g.logger.Error("Failed to read history for initial notification.", "err", err)
		return
	}
	if len(records) == 0 {
		return
	}

	latest := records[len(records)-1]
	payload := make(native.Payload, len(latest.Payload)+2)
	for k, v := range latest.Payload {
		payload[k] = v
	}
	payload["identifier"] = latest.Identifier
	payload["foreground"] = false
	g.relay.Publish(native.SignalReceived, payload)
}

func (g *Gateway) DeliveredNotifications(cb func([]native.DeliveredNotification)) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	records, err := g.state.Delivered(ctx)
	if err != nil {
		g.logger.Error("Failed to read delivered history.", "err", err)
		cb(nil)
		return
	}
	cb(records)
}

func (g *Gateway) MarkNotificationAsSeen(payload native.Payload) {
	id, _ := payload["identifier"].(string)
	if id == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := g.state.RemoveDelivered(ctx, id); err != nil {
		g.logger.Warn("Failed to remove delivered record.", "identifier", id, "err", err)
		return
	}
	badge, err := g.state.Badge(ctx)
	if err == nil && badge > 0 {
		if err := g.state.SetBadge(ctx, badge-1); err != nil {
			g.logger.Warn("Badge decrement failed.", "err", err)
		}
	}
}

func (g *Gateway) MarkAllNotificationsAsSeen() {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := g.state.ClearDelivered(ctx); err != nil {
		g.logger.Warn("Failed to clear delivered history.", "err", err)
	}
	if err := g.state.SetBadge(ctx, 0); err != nil {
		g.logger.Warn("Badge reset failed.", "err", err)
	}
}

// FormatNotificationPayload normalizes a loose payload into the canonical
// shape the platform dispatches: structured content fields, a string data
// map, an identifier and an explicit foreground flag.
func (g *Gateway) FormatNotificationPayload(payload native.Payload, cb func(native.Payload)) {
	content := notification.NotificationContent{
		Title: stringField(payload, "title"),
		Body:  stringField(payload, "body"),
		Sound: stringField(payload, "sound"),
	}

	formatted := make(native.Payload, len(payload)+2)
	for k, v := range payload {
		formatted[k] = v
	}
	formatted["title"] = content.Title
	formatted["body"] = content.Body
	if content.Sound != "" {
		formatted["sound"] = content.Sound
	}
	if id, _ := formatted["identifier"].(string); id == "" {
		formatted["identifier"] = uuid.NewString()
	}
	if _, ok := formatted["foreground"]; !ok {
		formatted["foreground"] = true
	}
	cb(formatted)
}

func (g *Gateway) currentDeviceToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.deviceToken
}

func stringField(p native.Payload, key string) string {
	s, _ := p[key].(string)
	return s
}
