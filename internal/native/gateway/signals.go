// Package gateway implements the production native module: signals arrive
// from the push gateway over Pub/Sub, device state lives in Redis and
// registrations are persisted for the provider side to look up.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
	"github.com/tinywideclouds/go-platform/pkg/notification/v1"
)

// SignalEnvelope is the wire form of a native signal as published by the
// push gateway. Exactly one of the signal-specific fields is populated,
// matching the Signal name.
type SignalEnvelope struct {
	Signal      string                            `json:"signal"`
	DeviceToken string                            `json:"deviceToken,omitempty"`
	Error       string                            `json:"error,omitempty"`
	Content     *notification.NotificationContent `json:"content,omitempty"`
	Data        map[string]string                 `json:"data,omitempty"`
	Payload     native.Payload                    `json:"payload,omitempty"`
	Foreground  bool                              `json:"foreground"`
}

// SignalEnvelopeTransformer safely unmarshals a raw message payload into a
// structured SignalEnvelope. Malformed messages are skipped so the streaming
// service can handle the Nack/DLQ logic.
func SignalEnvelopeTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*SignalEnvelope, bool, error) {
	var env SignalEnvelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal signal envelope from message %s: %w", msg.ID, err)
	}
	if env.Signal == "" {
		return nil, true, fmt.Errorf("signal envelope %s carries no signal name", msg.ID)
	}
	return &env, false, nil
}

// SignalRelay consumes gateway signal envelopes and fans them out to
// subscribed handlers as typed native signals. It is the daemon's
// native.SignalSource.
type SignalRelay struct {
	native.SignalHub

	pipeline *messagepipeline.StreamingService[SignalEnvelope]
	logger   *slog.Logger
}

// NewSignalRelay wires the consumer into a streaming pipeline whose processor
// dispatches envelopes onto the relay's signal hub.
func NewSignalRelay(
	consumer messagepipeline.MessageConsumer,
	numWorkers int,
	logger *slog.Logger,
) (*SignalRelay, error) {
	r := &SignalRelay{logger: logger.With("component", "SignalRelay")}

	pipeline, err := messagepipeline.NewStreamingService[SignalEnvelope](
		messagepipeline.StreamingServiceConfig{NumWorkers: numWorkers},
		consumer,
		SignalEnvelopeTransformer,
		r.process,
		logger,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create signal pipeline: %w", err)
	}

	r.pipeline = pipeline
	return r, nil
}

// NewDetachedSignalRelay builds a relay with no consuming pipeline. Signals
// only enter it through Replay or Publish.
func NewDetachedSignalRelay(logger *slog.Logger) *SignalRelay {
	return &SignalRelay{logger: logger.With("component", "SignalRelay")}
}

func (r *SignalRelay) Start(ctx context.Context) error {
	if r.pipeline == nil {
		return nil
	}
	return r.pipeline.Start(ctx)
}

func (r *SignalRelay) Stop(ctx context.Context) error {
	if r.pipeline == nil {
		return nil
	}
	return r.pipeline.Stop(ctx)
}

func (r *SignalRelay) process(_ context.Context, _ messagepipeline.Message, env *SignalEnvelope) error {
	r.Dispatch(env)
	return nil
}

// Replay feeds a stored envelope through the relay, used when draining the
// missed-signal queue.
func (r *SignalRelay) Replay(raw []byte) error {
	var env SignalEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to unmarshal queued signal: %w", err)
	}
	r.Dispatch(&env)
	return nil
}

// Dispatch converts the envelope into the typed payload each signal carries
// and publishes it to subscribers.
func (r *SignalRelay) Dispatch(env *SignalEnvelope) {
	switch native.Signal(env.Signal) {
	case native.SignalRegistered:
		r.Publish(native.SignalRegistered, native.RegisteredEvent{DeviceToken: env.DeviceToken})

	case native.SignalFailedToRegister:
		r.Publish(native.SignalFailedToRegister, errors.New(env.Error))

	case native.SignalReceived:
		r.Publish(native.SignalReceived, r.notificationPayload(env))

	default:
		r.logger.Warn("Dropping envelope with unknown signal.", "signal", env.Signal)
	}
}

// notificationPayload flattens the envelope into the loose payload shape the
// bridge relays: explicit payload entries first, then the structured content
// and data the provider published, then the foreground flag.
func (r *SignalRelay) notificationPayload(env *SignalEnvelope) native.Payload {
	payload := make(native.Payload, len(env.Payload)+len(env.Data)+4)
	for k, v := range env.Payload {
		payload[k] = v
	}
	if env.Content != nil {
		payload["title"] = env.Content.Title
		payload["body"] = env.Content.Body
		if env.Content.Sound != "" {
			payload["sound"] = env.Content.Sound
		}
	}
	for k, v := range env.Data {
		payload[k] = v
	}
	payload["foreground"] = env.Foreground
	return payload
}
