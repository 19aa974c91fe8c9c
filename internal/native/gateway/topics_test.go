package gateway_test

import (
	"context"
	"testing"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-notification-bridge/internal/native/gateway"
)

type MockTopicClient struct {
	mock.Mock
}

func (m *MockTopicClient) SubscribeToTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	args := m.Called(ctx, tokens, topic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.TopicManagementResponse), args.Error(1)
}

func (m *MockTopicClient) UnsubscribeFromTopic(ctx context.Context, tokens []string, topic string) (*messaging.TopicManagementResponse, error) {
	args := m.Called(ctx, tokens, topic)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging.TopicManagementResponse), args.Error(1)
}

func TestTopicManager(t *testing.T) {
	ctx := context.Background()

	t.Run("subscribes the token under the sender topic", func(t *testing.T) {
		client := new(MockTopicClient)
		manager := gateway.NewTopicManager(client, newTestLogger())

		client.On("SubscribeToTopic", ctx, []string{"tok-1"}, "sender-42").
			Return(&messaging.TopicManagementResponse{SuccessCount: 1}, nil).Once()

		err := manager.EnsureSubscribed(ctx, "tok-1", "42")

		require.NoError(t, err)
		client.AssertExpectations(t)
	})

	t.Run("surfaces a per-token rejection", func(t *testing.T) {
		client := new(MockTopicClient)
		manager := gateway.NewTopicManager(client, newTestLogger())

		client.On("SubscribeToTopic", ctx, mock.Anything, mock.Anything).
			Return(&messaging.TopicManagementResponse{
				FailureCount: 1,
				Errors:       []*messaging.ErrorInfo{{Index: 0, Reason: "INVALID_ARGUMENT"}},
			}, nil).Once()

		err := manager.EnsureSubscribed(ctx, "bad-token", "42")

		require.Error(t, err)
		assert.Contains(t, err.Error(), "INVALID_ARGUMENT")
	})

	t.Run("unsubscribes the token", func(t *testing.T) {
		client := new(MockTopicClient)
		manager := gateway.NewTopicManager(client, newTestLogger())

		client.On("UnsubscribeFromTopic", ctx, []string{"tok-1"}, "sender-42").
			Return(&messaging.TopicManagementResponse{SuccessCount: 1}, nil).Once()

		err := manager.Unsubscribe(ctx, "tok-1", "42")

		require.NoError(t, err)
		client.AssertExpectations(t)
	})
}
