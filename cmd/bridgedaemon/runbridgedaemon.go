package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	firebase "firebase.google.com/go/v4"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"

	"github.com/tinywideclouds/go-notification-bridge/internal/native/gateway"
	"github.com/tinywideclouds/go-notification-bridge/internal/native/memory"
	"github.com/tinywideclouds/go-notification-bridge/internal/storage/cache"
	fsStore "github.com/tinywideclouds/go-notification-bridge/internal/storage/firestore"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"

	"github.com/tinywideclouds/go-notification-bridge/bridgedaemon"
	"github.com/tinywideclouds/go-notification-bridge/bridgedaemon/config"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gopkg.in/yaml.v3"
)

//go:embed local.yaml
var configFile []byte

func main() {
	var logLevel slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		logLevel = slog.LevelDebug
	case "info", "INFO":
		logLevel = slog.LevelInfo
	case "warn", "WARN":
		logLevel = slog.LevelWarn
	case "error", "ERROR":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})).With("service", "go-notification-bridge")
	slog.SetDefault(logger)

	ctx := context.Background()

	// --- Config Loading ---
	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(configFile, &yamlCfg); err != nil {
		logger.Error("Failed to unmarshal embedded yaml config", "err", err)
		os.Exit(1)
	}
	baseCfg, _ := config.NewConfigFromYaml(&yamlCfg, logger)
	cfg, err := config.UpdateConfigWithEnvOverrides(baseCfg, logger)
	if err != nil {
		logger.Error("Config failed", "err", err)
		os.Exit(1)
	}

	userURN, err := urn.Parse(cfg.Bridge.UserURN)
	if err != nil {
		logger.Error("Invalid user URN", "urn", cfg.Bridge.UserURN, "err", err)
		os.Exit(1)
	}

	// --- Native Module ---
	var (
		module  native.Module
		signals native.SignalSource
		relay   *gateway.SignalRelay
	)

	if cfg.Redis.Enabled {
		module, signals, relay, err = newGatewayModule(ctx, cfg, userURN, logger)
		if err != nil {
			logger.Error("Gateway module assembly failed", "err", err)
			os.Exit(1)
		}
		logger.Info("Native module initialized", "type", "gateway")
	} else {
		// Dev mode: everything lives in process.
		mem := memory.New(logger)
		module, signals = mem, mem
		logger.Info("Native module initialized", "type", "memory")
	}

	// --- Service ---
	service, err := bridgedaemon.New(cfg, module, signals, relay, logger)
	if err != nil {
		logger.Error("Service creation failed", "err", err)
		os.Exit(1)
	}

	logger.Info("Starting service...")
	if err := service.Start(ctx); err != nil {
		logger.Error("Service shutdown with error", "err", err)
		os.Exit(1)
	}
}

// newGatewayModule wires the production module: Pub/Sub signals, Redis
// device state, Firestore registrations and, on the sender-ID platform, FCM
// topic management.
func newGatewayModule(
	ctx context.Context,
	cfg *config.Config,
	userURN urn.URN,
	logger *slog.Logger,
) (native.Module, native.SignalSource, *gateway.SignalRelay, error) {

	psClient, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("pubsub client failed: %w", err)
	}

	fsClient, err := firestore.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("firestore client failed: %w", err)
	}

	logger.Info("Connecting to Redis...", "addr", cfg.Redis.Addr)
	redisClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("redis connection failed: %w", err)
	}
	stateStore := cache.NewDeviceStateStore(redisClient, userURN.String())

	var topics *gateway.TopicManager
	if cfg.Bridge.Platform == config.PlatformSenderID {
		fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("firebase app failed: %w", err)
		}
		fcmMessaging, err := fbApp.Messaging(ctx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("fcm messaging client failed: %w", err)
		}
		topics = gateway.NewTopicManager(fcmMessaging, logger)
	}

	consumer, err := newSignalConsumer(ctx, cfg, psClient, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	relay, err := gateway.NewSignalRelay(consumer, cfg.NumPipelineWorkers, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("signal relay failed: %w", err)
	}

	module := gateway.New(
		gateway.Config{User: userURN, PlatformName: cfg.Bridge.Platform},
		relay,
		stateStore,
		&registrationStoreAdapter{store: fsStore.NewRegistrationStore(fsClient)},
		topics,
		logger,
	)
	return module, relay, relay, nil
}

// registrationStoreAdapter maps the gateway's registration record onto the
// Firestore store's.
type registrationStoreAdapter struct {
	store *fsStore.RegistrationStore
}

func (a *registrationStoreAdapter) Save(ctx context.Context, user urn.URN, reg gateway.Registration) error {
	return a.store.Save(ctx, user, fsStore.Registration{
		DeviceToken: reg.DeviceToken,
		Platform:    reg.Platform,
		SenderID:    reg.SenderID,
		Permissions: reg.Permissions,
		Categories:  reg.Categories,
	})
}

func newSignalConsumer(ctx context.Context, cfg *config.Config, psClient *pubsub.Client, logger *slog.Logger) (messagepipeline.MessageConsumer, error) {
	sub := convertPubsub(cfg.ProjectID, cfg.PubsubConsumerConfig.SubscriptionID, "subscriptions")
	topicID := convertPubsub(cfg.ProjectID, cfg.TopicID, "topics")
	dlt := convertPubsub(cfg.ProjectID, cfg.SubscriptionDLQTopicID, "topics")

	subConfig := &pubsubpb.Subscription{
		Name:               sub,
		Topic:              topicID,
		AckDeadlineSeconds: 10,
		DeadLetterPolicy: &pubsubpb.DeadLetterPolicy{
			DeadLetterTopic:     dlt,
			MaxDeliveryAttempts: 5,
		},
		EnableMessageOrdering: false,
	}
	logger.Debug("Ensuring subscription exists", "sub", subConfig.Name, "topic", subConfig.Topic)
	_, err := psClient.SubscriptionAdminClient.CreateSubscription(ctx, subConfig)
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			logger.Debug("Subscription already exists, skipping creation", "sub", subConfig.Name)
		} else {
			logger.Error("Failed to create subscription", "sub", subConfig.Name, "err", err)
			return nil, fmt.Errorf("could not create sub: %s", sub)
		}
	}

	return messagepipeline.NewGooglePubsubConsumer(
		messagepipeline.NewGooglePubsubConsumerDefaults(subConfig.Name), psClient, logger,
	)
}

type PS string

func convertPubsub(project, id string, ps PS) string {
	return fmt.Sprintf("projects/%s/%s/%s", project, ps, id)
}
