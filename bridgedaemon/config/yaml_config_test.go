package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-notification-bridge/bridgedaemon/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	logger := newTestLogger()

	t.Run("Success - maps all fields correctly", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:              "yaml-project",
			ListenAddr:             ":9000",
			TopicID:                "yaml-topic",
			SubscriptionID:         "yaml-subscription",
			SubscriptionDLQTopicID: "yaml-dlq",
			NumPipelineWorkers:     5,
			CorsConfig: config.YamlCorsConfig{
				AllowedOrigins: []string{"http://yaml.com"},
				Role:           "editor",
			},
			RedisConfig: config.YamlRedisConfig{
				Addr:    "localhost:6379",
				DB:      2,
				Enabled: true,
			},
			BridgeConfig: config.YamlBridgeConfig{
				Platform: "sender-id",
				SenderID: "yaml-sender",
				UserURN:  "urn:sm:user:yaml",
			},
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "yaml-project", cfg.ProjectID)
		assert.Equal(t, ":9000", cfg.ListenAddr)
		assert.Equal(t, "yaml-topic", cfg.TopicID)
		assert.Equal(t, "yaml-subscription", cfg.SubscriptionID)
		assert.Equal(t, "yaml-dlq", cfg.SubscriptionDLQTopicID)
		assert.Equal(t, 5, cfg.NumPipelineWorkers)

		assert.Equal(t, []string{"http://yaml.com"}, cfg.CorsConfig.AllowedOrigins)
		assert.Equal(t, middleware.CorsRoleEditor, cfg.CorsConfig.Role)

		assert.True(t, cfg.Redis.Enabled)
		assert.Equal(t, "localhost:6379", cfg.Redis.Addr)

		assert.Equal(t, config.PlatformSenderID, cfg.Bridge.Platform)
		assert.Equal(t, "yaml-sender", cfg.Bridge.SenderID)
		assert.Equal(t, "urn:sm:user:yaml", cfg.Bridge.UserURN)

		assert.NotNil(t, cfg.PubsubConsumerConfig)
	})

	t.Run("Success - Handles missing optional fields gracefully", func(t *testing.T) {
		yamlCfg := &config.YamlConfig{
			ProjectID:      "minimal-project",
			SubscriptionID: "minimal-sub",
		}

		cfg, err := config.NewConfigFromYaml(yamlCfg, logger)

		require.NoError(t, err)
		assert.Equal(t, "minimal-project", cfg.ProjectID)
		assert.Equal(t, 0, cfg.NumPipelineWorkers)
		assert.Empty(t, cfg.ListenAddr)
		assert.Empty(t, cfg.Bridge.Platform)
		assert.False(t, cfg.Redis.Enabled)
	})
}
