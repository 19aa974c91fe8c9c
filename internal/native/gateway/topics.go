package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"firebase.google.com/go/v4/messaging"
)

// TopicClient defines the subset of the Firebase Messaging API used for
// topic management. The interface allows mocking the client in unit tests;
// *messaging.Client satisfies it.
type TopicClient interface {
	SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
	UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error)
}

// TopicManager keeps the device token subscribed to its sender's broadcast
// topic on the sender-ID platform.
type TopicManager struct {
	client TopicClient
	logger *slog.Logger
}

func NewTopicManager(client TopicClient, logger *slog.Logger) *TopicManager {
	return &TopicManager{
		client: client,
		logger: logger.With("component", "TopicManager"),
	}
}

func (m *TopicManager) EnsureSubscribed(ctx context.Context, deviceToken, senderID string) error {
	topic := broadcastTopic(senderID)
	resp, err := m.client.SubscribeToTopic(ctx, []string{deviceToken}, topic)
	if err != nil {
		return fmt.Errorf("fcm topic subscribe failed: %w", err)
	}
	if resp.FailureCount > 0 {
		return fmt.Errorf("fcm rejected topic subscription: %s", resp.Errors[0].Reason)
	}
	m.logger.Info("Device subscribed to sender topic.", "topic", topic)
	return nil
}

func (m *TopicManager) Unsubscribe(ctx context.Context, deviceToken, senderID string) error {
	topic := broadcastTopic(senderID)
	resp, err := m.client.UnsubscribeFromTopic(ctx, []string{deviceToken}, topic)
	if err != nil {
		return fmt.Errorf("fcm topic unsubscribe failed: %w", err)
	}
	if resp.FailureCount > 0 {
		return fmt.Errorf("fcm rejected topic unsubscription: %s", resp.Errors[0].Reason)
	}
	return nil
}

func broadcastTopic(senderID string) string {
	return "sender-" + senderID
}
