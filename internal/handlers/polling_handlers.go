package handlers

import (
	"errors"
	"net/http"

	"devlink-realtime/internal/config"
	"devlink-realtime/internal/models"
	ws "devlink-realtime/internal/websocket"
	"devlink-realtime/pkg/logger"

	"github.com/goccy/go-json"
)

// maxBatchFrames bounds one POST body relative to the per-frame limit.
const maxBatchFrames = 16

type PollingHandlers struct {
	gate    gate
	hub     *ws.Hub
	polling *ws.PollingManager
	socket  config.SocketConfig
}

type pollHandshake struct {
	SID          string `json:"sid"`
	PingInterval int64  `json:"pingInterval"`
	PingTimeout  int64  `json:"pingTimeout"`
}

func NewPollingHandlers(authenticator Authenticator, hub *ws.Hub, polling *ws.PollingManager, cfg *config.Config) *PollingHandlers {
	return &PollingHandlers{
		gate:    gate{auth: authenticator, cookieName: cfg.Auth.CookieName},
		hub:     hub,
		polling: polling,
		socket:  cfg.Socket,
	}
}

// Poll answers GET: a handshake without sid, otherwise a long poll.
func (h *PollingHandlers) Poll(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		h.handshake(w, r)
		return
	}

	frames, err := h.polling.Poll(r.Context(), sid)
	if err != nil {
		h.sessionError(w, err)
		return
	}

	batch := make([]json.RawMessage, len(frames))
	for i, f := range frames {
		batch[i] = f
	}
	writeJSON(w, http.StatusOK, batch)
}

// Push answers POST with a JSON array of frames.
func (h *PollingHandlers) Push(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		writeError(w, http.StatusBadRequest, ws.ErrUnknownSession.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.socket.MaxMessageBytes*maxBatchFrames)
	var batch []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	frames := make([][]byte, len(batch))
	for i, f := range batch {
		frames[i] = f
	}
	if err := h.polling.Push(sid, frames); err != nil {
		h.sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Close answers DELETE.
func (h *PollingHandlers) Close(w http.ResponseWriter, r *http.Request) {
	if err := h.polling.Close(r.URL.Query().Get("sid")); err != nil {
		h.sessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PollingHandlers) handshake(w http.ResponseWriter, r *http.Request) {
	identity, err := h.gate.admit(r, ws.TransportPolling)
	if err != nil {
		frame, encErr := models.EncodeFrame(models.EventConnectError, models.ConnectError{Message: rejectionMessage(err)})
		if encErr != nil {
			logger.Error("Error encoding connect_error: %v", encErr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write(frame)
		return
	}

	client := ws.NewClient(h.hub, identity.UserID, ws.TransportPolling, h.socket.SendBuffer)
	if err := h.polling.Open(client); err != nil {
		writeError(w, http.StatusServiceUnavailable, "server shutting down")
		return
	}

	writeJSON(w, http.StatusOK, pollHandshake{
		SID:          client.ID(),
		PingInterval: h.socket.PingInterval.Milliseconds(),
		PingTimeout:  h.socket.PingTimeout.Milliseconds(),
	})
}

func (h *PollingHandlers) sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ws.ErrUnknownSession), errors.Is(err, ws.ErrSessionClosed):
		writeError(w, http.StatusBadRequest, ws.ErrUnknownSession.Error())
	case errors.Is(err, ws.ErrPollInFlight):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("Polling error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
