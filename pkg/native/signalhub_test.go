package native_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

func TestSignalHub_FanOut(t *testing.T) {
	hub := &native.SignalHub{}

	var gotA, gotB []any
	hub.Subscribe(native.SignalRegistered, func(p any) { gotA = append(gotA, p) })
	hub.Subscribe(native.SignalRegistered, func(p any) { gotB = append(gotB, p) })
	hub.Subscribe(native.SignalReceived, func(p any) { t.Fatal("wrong signal delivered") })

	hub.Publish(native.SignalRegistered, native.RegisteredEvent{DeviceToken: "abc123"})

	require.Len(t, gotA, 1)
	require.Len(t, gotB, 1)
	assert.Equal(t, native.RegisteredEvent{DeviceToken: "abc123"}, gotA[0])
}

func TestSignalHub_Remove(t *testing.T) {
	hub := &native.SignalHub{}

	calls := 0
	sub := hub.Subscribe(native.SignalReceived, func(any) { calls++ })
	require.Equal(t, 1, hub.ListenerCount(native.SignalReceived))

	sub.Remove()
	assert.Equal(t, 0, hub.ListenerCount(native.SignalReceived))

	hub.Publish(native.SignalReceived, native.Payload{"title": "ignored"})
	assert.Equal(t, 0, calls)

	// Removing twice is a no-op.
	sub.Remove()
}

func TestSignalHub_PublishWithoutListeners(t *testing.T) {
	hub := &native.SignalHub{}
	// Must not panic.
	hub.Publish(native.SignalFailedToRegister, assert.AnError)
}
