package handlers

import (
	"net/http"
	"time"

	"devlink-realtime/internal/config"
	ws "devlink-realtime/internal/websocket"
	"devlink-realtime/pkg/logger"

	"github.com/gorilla/websocket"
)

type WebSocketHandlers struct {
	gate     gate
	hub      *ws.Hub
	socket   config.SocketConfig
	opts     ws.Options
	upgrader websocket.Upgrader
}

func NewWebSocketHandlers(authenticator Authenticator, hub *ws.Hub, cfg *config.Config) *WebSocketHandlers {
	opts := ws.Options{
		PingInterval:    cfg.Socket.PingInterval,
		PongWait:        cfg.Socket.Liveness(),
		WriteWait:       10 * time.Second,
		MaxMessageBytes: cfg.Socket.MaxMessageBytes,
	}
	return &WebSocketHandlers{
		gate:   gate{auth: authenticator, cookieName: cfg.Auth.CookieName},
		hub:    hub,
		socket: cfg.Socket,
		opts:   opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: originChecker(cfg.Server.CORSOrigins),
		},
	}
}

// HandleWebSocket upgrades before answering the admission result so a
// rejected client receives connect_error over the socket it opened.
func (h *WebSocketHandlers) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity, admitErr := h.gate.admit(r, ws.TransportWebSocket)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Upgrade error: %v", err)
		return
	}

	if admitErr != nil {
		ws.Reject(conn, rejectionMessage(admitErr), h.opts.WriteWait)
		return
	}

	client := ws.NewClient(h.hub, identity.UserID, ws.TransportWebSocket, h.socket.SendBuffer)
	ws.ServeConn(conn, client, h.opts)
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(r *http.Request) bool { return true }
		}
		allowed[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
