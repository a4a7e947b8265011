package websocket

import (
	"errors"

	"devlink-realtime/internal/metrics"
	"devlink-realtime/internal/models"
	"devlink-realtime/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Client is one admitted session, independent of the transport carrying it.
// The hub owns rooms and closes send when the client is removed.
type Client struct {
	hub       *Hub
	id        string
	userID    string
	transport string
	send      chan []byte
	rooms     map[string]struct{}
}

// NewClient creates a session for an authenticated user. It is not
// attached to the hub until Register is called.
func NewClient(hub *Hub, userID, transport string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 256
	}
	return &Client{
		hub:       hub,
		id:        uuid.NewString(),
		userID:    userID,
		transport: transport,
		send:      make(chan []byte, buffer),
		rooms:     make(map[string]struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// handleFrame decodes one inbound frame and hands it to the hub. Frames that
// fail decoding or validation are dropped.
func (c *Client) handleFrame(raw []byte) {
	ev, err := models.DecodeClientEvent(raw)
	if err != nil {
		event := "unknown"
		if errors.Is(err, models.ErrInvalidPayload) {
			event = peekEvent(raw)
		}
		metrics.RecordInvalidFrame(event)
		logger.Debug("Dropping frame from session %s: %v", c.id, err)
		return
	}
	c.hub.Dispatch(c, ev)
}

// peekEvent returns the event name of a frame whose payload failed
// validation, limited to known names to keep metric labels bounded.
func peekEvent(raw []byte) string {
	var f models.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "unknown"
	}
	switch f.Event {
	case models.EventNewUserAdd, models.EventSendMessage, models.EventJoinGroup, models.EventSendGroupMessage:
		return f.Event
	}
	return "unknown"
}
