package gateway_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-bridge/internal/native/gateway"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// --- Mocks ---

type MockStateStore struct {
	mock.Mock
}

func (m *MockStateStore) Badge(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockStateStore) SetBadge(ctx context.Context, n int) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func (m *MockStateStore) AddDelivered(ctx context.Context, record native.DeliveredNotification) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockStateStore) Delivered(ctx context.Context) ([]native.DeliveredNotification, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]native.DeliveredNotification), args.Error(1)
}

func (m *MockStateStore) RemoveDelivered(ctx context.Context, identifier string) error {
	args := m.Called(ctx, identifier)
	return args.Error(0)
}

func (m *MockStateStore) ClearDelivered(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStateStore) DrainMissed(ctx context.Context) ([][]byte, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]byte), args.Error(1)
}

type MockRegistrationStore struct {
	mock.Mock
}

func (m *MockRegistrationStore) Save(ctx context.Context, user urn.URN, reg gateway.Registration) error {
	args := m.Called(ctx, user, reg)
	return args.Error(0)
}

// --- Test Setup ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type gatewayHarness struct {
	relay         *gateway.SignalRelay
	state         *MockStateStore
	registrations *MockRegistrationStore
	gateway       *gateway.Gateway
	user          urn.URN
}

func newGatewayHarness(t *testing.T) *gatewayHarness {
	t.Helper()
	logger := newTestLogger()
	user, err := urn.Parse("urn:sm:user:gateway-test")
	require.NoError(t, err)

	h := &gatewayHarness{
		relay:         gateway.NewDetachedSignalRelay(logger),
		state:         new(MockStateStore),
		registrations: new(MockRegistrationStore),
		user:          user,
	}
	h.gateway = gateway.New(
		gateway.Config{User: user, PlatformName: "fine-grained"},
		h.relay,
		h.state,
		h.registrations,
		nil,
		logger,
	)
	return h
}

// --- Tests ---

func TestGateway_BadgeOperations(t *testing.T) {
	t.Run("reads the badge through the callback", func(t *testing.T) {
		h := newGatewayHarness(t)
		h.state.On("Badge", mock.Anything).Return(7, nil).Once()

		var got int
		h.gateway.ApplicationIconBadgeNumber(func(n int) { got = n })

		assert.Equal(t, 7, got)
		h.state.AssertExpectations(t)
	})

	t.Run("reports zero when the store fails", func(t *testing.T) {
		h := newGatewayHarness(t)
		h.state.On("Badge", mock.Anything).Return(0, assert.AnError).Once()

		got := -1
		h.gateway.ApplicationIconBadgeNumber(func(n int) { got = n })

		assert.Equal(t, 0, got)
	})

	t.Run("writes the badge", func(t *testing.T) {
		h := newGatewayHarness(t)
		h.state.On("SetBadge", mock.Anything, 3).Return(nil).Once()

		h.gateway.SetApplicationIconBadgeNumber(3)

		h.state.AssertExpectations(t)
	})
}

func TestGateway_RequestPermissions(t *testing.T) {
	t.Run("persists the registration and grants the requested set", func(t *testing.T) {
		h := newGatewayHarness(t)
		// A registration signal has already delivered the device token.
		h.relay.Publish(native.SignalRegistered, native.RegisteredEvent{DeviceToken: "token-abc"})

		requested := native.PermissionSet{Alert: true, Badge: true}
		categories := []native.Payload{{"identifier": "reply"}}

		h.registrations.On("Save", mock.Anything, h.user, mock.MatchedBy(func(reg gateway.Registration) bool {
			return reg.DeviceToken == "token-abc" &&
				reg.Platform == "fine-grained" &&
				reg.Permissions == requested &&
				len(reg.Categories) == 1
		})).Return(nil).Once()

		granted, err := h.gateway.RequestPermissions(context.Background(), requested, categories)

		require.NoError(t, err)
		assert.Equal(t, requested, granted)
		h.registrations.AssertExpectations(t)
	})

	t.Run("surfaces store failures", func(t *testing.T) {
		h := newGatewayHarness(t)
		h.registrations.On("Save", mock.Anything, mock.Anything, mock.Anything).
			Return(assert.AnError).Once()

		_, err := h.gateway.RequestPermissions(context.Background(), native.PermissionSet{Alert: true}, nil)

		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestGateway_RequestPermissionsWithSenderID(t *testing.T) {
	t.Run("records the sender ID and grants everything", func(t *testing.T) {
		h := newGatewayHarness(t)

		h.registrations.On("Save", mock.Anything, h.user, mock.MatchedBy(func(reg gateway.Registration) bool {
			return reg.SenderID == "sender-42" &&
				reg.Permissions == native.PermissionSet{Alert: true, Sound: true, Badge: true}
		})).Return(nil).Once()

		granted, err := h.gateway.RequestPermissionsWithSenderID(context.Background(), "sender-42")

		require.NoError(t, err)
		assert.Equal(t, native.PermissionSet{Alert: true, Sound: true, Badge: true}, granted)
		h.registrations.AssertExpectations(t)
	})
}

func TestGateway_ReceivedSignalBookkeeping(t *testing.T) {
	t.Run("records a foreground delivery and bumps the badge", func(t *testing.T) {
		h := newGatewayHarness(t)

		h.state.On("AddDelivered", mock.Anything, mock.MatchedBy(func(rec native.DeliveredNotification) bool {
			return rec.Identifier == "notif-1" && rec.Payload["title"] == "Hello"
		})).Return(nil).Once()
		h.state.On("Badge", mock.Anything).Return(2, nil).Once()
		h.state.On("SetBadge", mock.Anything, 3).Return(nil).Once()

		h.relay.Publish(native.SignalReceived, native.Payload{
			"identifier": "notif-1",
			"title":      "Hello",
			"foreground": true,
		})

		h.state.AssertExpectations(t)
	})

	t.Run("ignores replayed background deliveries", func(t *testing.T) {
		h := newGatewayHarness(t)

		h.relay.Publish(native.SignalReceived, native.Payload{
			"identifier": "notif-2",
			"foreground": false,
		})

		h.state.AssertNotCalled(t, "AddDelivered", mock.Anything, mock.Anything)
	})
}

func TestGateway_ReceiveMissedEvents(t *testing.T) {
	t.Run("replays each queued envelope through the relay", func(t *testing.T) {
		h := newGatewayHarness(t)

		var tokens []string
		h.relay.Subscribe(native.SignalRegistered, func(payload any) {
			ev := payload.(native.RegisteredEvent)
			tokens = append(tokens, ev.DeviceToken)
		})

		h.state.On("DrainMissed", mock.Anything).Return([][]byte{
			[]byte(`{"signal":"Registered","deviceToken":"queued-token"}`),
			[]byte(`not json`),
		}, nil).Once()

		h.gateway.ReceiveMissedEvents()

		assert.Equal(t, []string{"queued-token"}, tokens)
		h.state.AssertExpectations(t)
	})
}

func TestGateway_DeliverInitialNotification(t *testing.T) {
	t.Run("republishes the latest record with the background marker", func(t *testing.T) {
		h := newGatewayHarness(t)

		h.state.On("Delivered", mock.Anything).Return([]native.DeliveredNotification{
			{Identifier: "old", Date: time.Now().Add(-time.Hour), Payload: native.Payload{"body": "old"}},
			{Identifier: "new", Date: time.Now(), Payload: native.Payload{"body": "new"}},
		}, nil).Once()

		var got native.Payload
		h.relay.Subscribe(native.SignalReceived, func(payload any) {
			got = payload.(native.Payload)
		})

		h.gateway.DeliverInitialNotification()

		require.NotNil(t, got)
		assert.Equal(t, "new", got["identifier"])
		assert.Equal(t, false, got["foreground"])
		assert.Equal(t, "new", got["body"])
	})

	t.Run("publishes nothing when the history is empty", func(t *testing.T) {
		h := newGatewayHarness(t)
		h.state.On("Delivered", mock.Anything).Return([]native.DeliveredNotification{}, nil).Once()

		published := false
		h.relay.Subscribe(native.SignalReceived, func(any) { published = true })

		h.gateway.DeliverInitialNotification()

		assert.False(t, published)
	})
}

func TestGateway_SeenOperations(t *testing.T) {
	t.Run("removes the record and decrements the badge", func(t *testing.T) {
		h := newGatewayHarness(t)
		h.state.On("RemoveDelivered", mock.Anything, "notif-9").Return(nil).Once()
		h.state.On("Badge", mock.Anything).Return(4, nil).Once()
		h.state.On("SetBadge", mock.Anything, 3).Return(nil).Once()

		h.gateway.MarkNotificationAsSeen(native.Payload{"identifier": "notif-9"})

		h.state.AssertExpectations(t)
	})

	t.Run("ignores payloads without an identifier", func(t *testing.T) {
		h := newGatewayHarness(t)

		h.gateway.MarkNotificationAsSeen(native.Payload{"title": "no id"})

		h.state.AssertNotCalled(t, "RemoveDelivered", mock.Anything, mock.Anything)
	})

	t.Run("clears the history and resets the badge", func(t *testing.T) {
		h := newGatewayHarness(t)
		h.state.On("ClearDelivered", mock.Anything).Return(nil).Once()
		h.state.On("SetBadge", mock.Anything, 0).Return(nil).Once()

		h.gateway.MarkAllNotificationsAsSeen()

		h.state.AssertExpectations(t)
	})
}

func TestGateway_FormatNotificationPayload(t *testing.T) {
	t.Run("fills in the canonical fields", func(t *testing.T) {
		h := newGatewayHarness(t)

		var got native.Payload
		h.gateway.FormatNotificationPayload(native.Payload{"title": "Ping", "body": "You got mail"}, func(p native.Payload) {
			got = p
		})

		require.NotNil(t, got)
		assert.Equal(t, "Ping", got["title"])
		assert.Equal(t, "You got mail", got["body"])
		assert.NotEmpty(t, got["identifier"])
		assert.Equal(t, true, got["foreground"])
	})

	t.Run("preserves an existing identifier", func(t *testing.T) {
		h := newGatewayHarness(t)

		var got native.Payload
		h.gateway.FormatNotificationPayload(native.Payload{"identifier": "keep-me"}, func(p native.Payload) {
			got = p
		})

		assert.Equal(t, "keep-me", got["identifier"])
	})
}
