package handlers

import (
	"net/http"

	"devlink-realtime/internal/auth"
	"devlink-realtime/internal/config"
	ws "devlink-realtime/internal/websocket"
	"devlink-realtime/pkg/logger"
)

type PresenceHandlers struct {
	auth       Authenticator
	hub        *ws.Hub
	cookieName string
}

func NewPresenceHandlers(authenticator Authenticator, hub *ws.Hub, cfg *config.Config) *PresenceHandlers {
	return &PresenceHandlers{
		auth:       authenticator,
		hub:        hub,
		cookieName: cfg.Auth.CookieName,
	}
}

// GetOnlineUsers returns the registry snapshot to an authenticated caller.
func (h *PresenceHandlers) GetOnlineUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := h.auth.Authenticate(r.Context(), auth.HandshakeFromRequest(r, h.cookieName)); err != nil {
		writeError(w, http.StatusUnauthorized, rejectionMessage(err))
		return
	}

	entries, err := h.hub.Snapshot(r.Context())
	if err != nil {
		logger.Error("Get online users error: %v", err)
		writeError(w, http.StatusServiceUnavailable, "presence unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"online_users": entries,
		"count":        len(entries),
	})
}

// Health reports liveness of the hub loop.
func (h *PresenceHandlers) Health(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.hub.Done():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopped"})
		return
	default:
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"clients": h.hub.ClientCount(),
	})
}
