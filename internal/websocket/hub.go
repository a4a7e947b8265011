package websocket

import (
	"context"
	"sync"

	"devlink-realtime/internal/metrics"
	"devlink-realtime/internal/models"
	"devlink-realtime/internal/presence"
	"devlink-realtime/pkg/logger"

	"github.com/goccy/go-json"
)

// Hub is the single owner of presence, rooms and the session table. Every
// mutation and lookup runs on the Serve goroutine; other goroutines talk to
// it through unbuffered channels, so events sent by one goroutine are
// applied in the order they were sent.
type Hub struct {
	registry *presence.Registry
	rooms    *Rooms
	clients  map[string]*Client
	mirror   presence.Mirror

	register   chan *Client
	unregister chan *Client
	ops        chan func()

	done     chan struct{}
	stopOnce sync.Once
}

func NewHub(registry *presence.Registry, mirror presence.Mirror) *Hub {
	if registry == nil {
		registry = presence.NewRegistry()
	}
	if mirror == nil {
		mirror = presence.NopMirror{}
	}
	return &Hub{
		registry:   registry,
		rooms:      NewRooms(),
		clients:    make(map[string]*Client),
		mirror:     mirror,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ops:        make(chan func()),
		done:       make(chan struct{}),
	}
}

// Serve runs the event loop until ctx is cancelled. On return every client
// queue is closed and the hub refuses further work.
func (h *Hub) Serve(ctx context.Context) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	defer h.stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Hub shutting down with %d clients", len(h.clients))
			return ctx.Err()

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case op := <-h.ops:
			op()
		}
	}
}

func (h *Hub) String() string {
	return "realtime-hub"
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Register attaches an admitted client. Returns false if the hub stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister detaches c and deregisters its presence. Safe to call more
// than once.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Dispatch applies a decoded client event on behalf of c.
func (h *Hub) Dispatch(c *Client, ev models.ClientEvent) bool {
	return h.do(func() { h.handle(c, ev) })
}

// Relay delivers message to receiverID's session as receive-message.
// A receiver with no presence entry is a silent miss: nothing is sent and
// false is returned.
func (h *Hub) Relay(receiverID string, message json.RawMessage) bool {
	result := make(chan bool, 1)
	if !h.do(func() { result <- h.relay(receiverID, message) }) {
		return false
	}
	return <-result
}

// Snapshot returns the presence entries in registration order.
func (h *Hub) Snapshot(ctx context.Context) ([]presence.Entry, error) {
	result := make(chan []presence.Entry, 1)
	op := func() { result <- h.registry.Snapshot() }
	select {
	case h.ops <- op:
	case <-h.done:
		return []presence.Entry{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return <-result, nil
}

// ClientCount returns the number of attached sessions.
func (h *Hub) ClientCount() int {
	result := make(chan int, 1)
	if !h.do(func() { result <- len(h.clients) }) {
		return 0
	}
	return <-result
}

// RoomSize returns the number of sessions in room.
func (h *Hub) RoomSize(room string) int {
	result := make(chan int, 1)
	if !h.do(func() { result <- h.rooms.Size(room) }) {
		return 0
	}
	return <-result
}

func (h *Hub) do(op func()) bool {
	select {
	case h.ops <- op:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) stop() {
	h.stopOnce.Do(func() {
		for id, c := range h.clients {
			close(c.send)
			metrics.ConnectionsActive.WithLabelValues(c.transport).Dec()
			delete(h.clients, id)
		}
		h.registry = presence.NewRegistry()
		h.rooms = NewRooms()
		metrics.PresenceEntries.Set(0)
		metrics.RoomsActive.Set(0)
		close(h.done)
	})
}

func (h *Hub) addClient(c *Client) {
	if _, exists := h.clients[c.id]; exists {
		return
	}
	h.clients[c.id] = c
	metrics.ConnectionsActive.WithLabelValues(c.transport).Inc()
	logger.Debug("Session %s connected for user %s over %s", c.id, c.userID, c.transport)
}

func (h *Hub) removeClient(c *Client) {
	if current, ok := h.clients[c.id]; !ok || current != c {
		return
	}
	delete(h.clients, c.id)
	h.rooms.LeaveAll(c)
	metrics.RoomsActive.Set(float64(h.rooms.Count()))
	close(c.send)
	metrics.ConnectionsActive.WithLabelValues(c.transport).Dec()

	removed := h.registry.Deregister(c.id)
	logger.Debug("Session %s disconnected for user %s (%d presence entries removed)", c.id, c.userID, removed)
	h.broadcastPresence()
}

func (h *Hub) attached(c *Client) bool {
	current, ok := h.clients[c.id]
	return ok && current == c
}

func (h *Hub) handle(c *Client, ev models.ClientEvent) {
	if !h.attached(c) {
		return
	}

	switch e := ev.(type) {
	case *models.AddUser:
		if e.UserID != c.userID {
			metrics.RecordInvalidFrame(models.EventNewUserAdd)
			logger.Warn("Session %s announced user %s but is authenticated as %s", c.id, e.UserID, c.userID)
			return
		}
		if h.registry.Register(e.UserID, c.id) {
			logger.Info("User %s is online on session %s", e.UserID, c.id)
		}
		h.broadcastPresence()

	case *models.SendMessage:
		h.relay(e.ReceiverID, e.Body)

	case *models.JoinGroup:
		if h.rooms.Join(c, e.GroupID) {
			metrics.RoomsActive.Set(float64(h.rooms.Count()))
		}
		h.broadcastRoom(e.GroupID, models.EventGroupNotification, models.JoinNotice(e.GroupID))

	case *models.SendGroupMessage:
		h.broadcastRoom(e.GroupID, models.EventReceiveGroupMessage, e.Outbound())
	}
}

func (h *Hub) relay(receiverID string, message json.RawMessage) bool {
	sessionID, ok := h.registry.Lookup(receiverID)
	if !ok {
		metrics.RecordRelay(false)
		return false
	}
	target, ok := h.clients[sessionID]
	if !ok {
		metrics.RecordRelay(false)
		logger.Error("Presence entry for %s points at unknown session %s", receiverID, sessionID)
		return false
	}

	frame, err := models.EncodeFrame(models.EventReceiveMessage, message)
	if err != nil {
		metrics.RecordRelay(false)
		logger.Error("Error encoding relayed message: %v", err)
		return false
	}
	h.fanOut([]*Client{target}, frame)
	metrics.RecordRelay(true)
	return true
}

func (h *Hub) broadcastPresence() {
	snapshot := h.registry.Snapshot()
	metrics.PresenceEntries.Set(float64(len(snapshot)))
	h.mirror.Publish(snapshot)

	frame, err := models.EncodeFrame(models.EventGetUsers, snapshot)
	if err != nil {
		logger.Error("Error marshaling presence update: %v", err)
		return
	}

	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.fanOut(targets, frame)
}

func (h *Hub) broadcastRoom(room, event string, payload interface{}) {
	frame, err := models.EncodeFrame(event, payload)
	if err != nil {
		logger.Error("Error marshaling %s for room %s: %v", event, room, err)
		return
	}
	metrics.RoomBroadcastsTotal.Inc()
	h.fanOut(h.rooms.Members(room), frame)
}

// fanOut queues frame for every target. Clients whose queue is full are
// removed after the pass, which triggers a presence rebroadcast.
func (h *Hub) fanOut(targets []*Client, frame []byte) {
	var slow []*Client
	for _, c := range targets {
		select {
		case c.send <- frame:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		metrics.SlowClientsTotal.Inc()
		logger.Warn("Dropping slow session %s for user %s", c.id, c.userID)
		h.removeClient(c)
	}
}
