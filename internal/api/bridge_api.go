// Package api exposes device notification state over HTTP so local tooling
// can inspect and drive the bridge.
package api

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-notification-bridge/notificationbridge"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

type BridgeAPI struct {
	Bridge *notificationbridge.Bridge
	Logger *slog.Logger
}

func NewBridgeAPI(bridge *notificationbridge.Bridge, logger *slog.Logger) *BridgeAPI {
	return &BridgeAPI{
		Bridge: bridge,
		Logger: logger,
	}
}

// RegisterRoutes mounts the API on the server mux.
func (api *BridgeAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/badge", api.GetBadge)
	mux.HandleFunc("PUT /api/v1/badge", api.SetBadge)
	mux.HandleFunc("GET /api/v1/notifications", api.GetNotifications)
	mux.HandleFunc("POST /api/v1/notifications/seen", api.MarkSeen)
	mux.HandleFunc("POST /api/v1/notifications/seen-all", api.MarkAllSeen)
	mux.HandleFunc("POST /api/v1/permissions", api.RequestPermissions)
}

type BadgeResponse struct {
	Badge int `json:"badge"`
}

func (api *BridgeAPI) GetBadge(w http.ResponseWriter, r *http.Request) {
	// The module invokes the callback on its own schedule; wait for it or
	// for the client to give up.
	result := make(chan int, 1)
	err := api.Bridge.GetBadgeNumber(func(n int) {
		result <- n
	})
	if err != nil {
		response.WriteJSONError(w, http.StatusInternalServerError, "badge read failed")
		return
	}

	select {
	case n := <-result:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(BadgeResponse{Badge: n})
	case <-r.Context().Done():
	}
}

func (api *BridgeAPI) SetBadge(w http.ResponseWriter, r *http.Request) {
	var req BadgeResponse
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Badge < 0 {
		response.WriteJSONError(w, http.StatusBadRequest, "badge must not be negative")
		return
	}

	api.Bridge.SetBadgeNumber(req.Badge)
	w.WriteHeader(http.StatusNoContent)
}

func (api *BridgeAPI) GetNotifications(w http.ResponseWriter, r *http.Request) {
	result := make(chan []native.DeliveredNotification, 1)
	err := api.Bridge.GetDeliveredNotifications(func(records []native.DeliveredNotification) {
		result <- records
	})
	if err != nil {
		response.WriteJSONError(w, http.StatusInternalServerError, "history read failed")
		return
	}

	select {
	case records := <-result:
		if records == nil {
			records = []native.DeliveredNotification{}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(records)
	case <-r.Context().Done():
	}
}

type MarkSeenRequest struct {
	Identifier string `json:"identifier"`
}

func (api *BridgeAPI) MarkSeen(w http.ResponseWriter, r *http.Request) {
	var req MarkSeenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Identifier == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing identifier")
		return
	}

	if err := api.Bridge.MarkNotificationSeen(native.Payload{"identifier": req.Identifier}); err != nil {
		api.Logger.Warn("failed to mark notification seen", "err", err)
		response.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *BridgeAPI) MarkAllSeen(w http.ResponseWriter, r *http.Request) {
	api.Bridge.MarkAllNotificationsSeen()
	w.WriteHeader(http.StatusNoContent)
}

type PermissionsRequest struct {
	Permissions map[string]bool `json:"permissions"`
}

type PermissionsResponse struct {
	Granted native.PermissionSet `json:"granted"`
}

func (api *BridgeAPI) RequestPermissions(w http.ResponseWriter, r *http.Request) {
	var req PermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	granted, err := api.Bridge.RequestPermissions(r.Context(), req.Permissions, nil)
	if err != nil {
		if native.IsInvalidArgument(err) {
			response.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		api.Logger.Error("permission request failed", "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "permission request failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(PermissionsResponse{Granted: granted})
}
