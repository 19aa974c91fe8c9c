// Package bridgedaemon assembles the bridge, its native module and the HTTP
// API into a runnable service.
package bridgedaemon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-notification-bridge/bridgedaemon/config"
	"github.com/tinywideclouds/go-notification-bridge/internal/api"
	"github.com/tinywideclouds/go-notification-bridge/internal/native/gateway"
	"github.com/tinywideclouds/go-notification-bridge/notificationbridge"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

type Wrapper struct {
	*microservice.BaseServer
	bridge *notificationbridge.Bridge
	relay  *gateway.SignalRelay
	module native.Module
	logger *slog.Logger
}

// New assembles the daemon. The relay may be nil when the module sources its
// signals locally, as the in-memory module does.
func New(
	cfg *config.Config,
	module native.Module,
	signals native.SignalSource,
	relay *gateway.SignalRelay,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Bridge
	platform, err := notificationbridge.PlatformFromName(cfg.Bridge.Platform)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve platform: %w", err)
	}
	bridge, err := notificationbridge.New(module, signals, platform, cfg.Bridge.SenderID, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create bridge: %w", err)
	}

	// 3. API
	bridgeAPI := api.NewBridgeAPI(bridge, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(handlerFunc))
	}

	handle("GET /api/v1/badge", bridgeAPI.GetBadge)
	handle("PUT /api/v1/badge", bridgeAPI.SetBadge)
	handle("GET /api/v1/notifications", bridgeAPI.GetNotifications)
	handle("POST /api/v1/notifications/seen", bridgeAPI.MarkSeen)
	handle("POST /api/v1/notifications/seen-all", bridgeAPI.MarkAllSeen)
	handle("POST /api/v1/permissions", bridgeAPI.RequestPermissions)

	// CORS preflight for the API namespace
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	return &Wrapper{
		BaseServer: baseServer,
		bridge:     bridge,
		relay:      relay,
		module:     module,
		logger:     logger,
	}, nil
}

// Bridge exposes the assembled bridge so callers can subscribe to its events.
func (w *Wrapper) Bridge() *notificationbridge.Bridge {
	return w.bridge
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.relay != nil {
		w.logger.Info("Signal relay starting...")
		if err := w.relay.Start(ctx); err != nil {
			return fmt.Errorf("failed to start signal relay: %w", err)
		}
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error

	w.bridge.Close()

	if w.relay != nil {
		if err := w.relay.Stop(ctx); err != nil {
			w.logger.Error("Signal relay shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if gw, ok := w.module.(*gateway.Gateway); ok {
		if err := gw.Close(ctx); err != nil {
			w.logger.Error("Gateway shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
