package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"devlink-realtime/pkg/logger"
)

var (
	ErrUnknownSession = errors.New("unknown session")
	ErrPollInFlight   = errors.New("poll already in progress")
	ErrSessionClosed  = errors.New("session closed")
	ErrHubStopped     = errors.New("hub stopped")
)

type pollSession struct {
	client *Client

	mu       sync.Mutex
	lastSeen time.Time
	polling  bool
}

// PollingManager carries sessions over HTTP long-polling. A session whose
// client has not polled within liveness is expired and unregistered.
type PollingManager struct {
	hub      *Hub
	wait     time.Duration
	liveness time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*pollSession
}

func NewPollingManager(hub *Hub, wait, liveness time.Duration) *PollingManager {
	return &PollingManager{
		hub:      hub,
		wait:     wait,
		liveness: liveness,
		now:      time.Now,
		sessions: make(map[string]*pollSession),
	}
}

// Open registers an admitted client and starts tracking it.
func (m *PollingManager) Open(client *Client) error {
	if !m.hub.Register(client) {
		return ErrHubStopped
	}
	m.mu.Lock()
	m.sessions[client.id] = &pollSession{client: client, lastSeen: m.now()}
	m.mu.Unlock()
	return nil
}

// Poll waits up to the poll window for outbound frames and returns every
// frame queued so far. Only one Poll per session may be in flight.
func (m *PollingManager) Poll(ctx context.Context, sid string) ([][]byte, error) {
	s, ok := m.get(sid)
	if !ok {
		return nil, ErrUnknownSession
	}

	s.mu.Lock()
	if s.polling {
		s.mu.Unlock()
		return nil, ErrPollInFlight
	}
	s.polling = true
	s.lastSeen = m.now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.polling = false
		s.lastSeen = m.now()
		s.mu.Unlock()
	}()

	timer := time.NewTimer(m.wait)
	defer timer.Stop()

	var frames [][]byte
	select {
	case frame, ok := <-s.client.send:
		if !ok {
			m.forget(sid)
			return nil, ErrSessionClosed
		}
		frames = append(frames, frame)
	case <-timer.C:
		return [][]byte{}, nil
	case <-ctx.Done():
		return [][]byte{}, nil
	}

	for {
		select {
		case frame, ok := <-s.client.send:
			if !ok {
				m.forget(sid)
				return frames, nil
			}
			frames = append(frames, frame)
		default:
			return frames, nil
		}
	}
}

// Push hands inbound frames to the hub in order.
func (m *PollingManager) Push(sid string, frames [][]byte) error {
	s, ok := m.get(sid)
	if !ok {
		return ErrUnknownSession
	}
	s.mu.Lock()
	s.lastSeen = m.now()
	s.mu.Unlock()

	for _, raw := range frames {
		s.client.handleFrame(raw)
	}
	return nil
}

// Close ends the session as a disconnect.
func (m *PollingManager) Close(sid string) error {
	s, ok := m.get(sid)
	if !ok {
		return ErrUnknownSession
	}
	m.forget(sid)
	m.hub.Unregister(s.client)
	return nil
}

// Len returns the number of tracked sessions.
func (m *PollingManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Serve expires idle sessions until ctx is cancelled.
func (m *PollingManager) Serve(ctx context.Context) error {
	interval := m.liveness / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.reap()
		}
	}
}

func (m *PollingManager) String() string {
	return "polling-reaper"
}

func (m *PollingManager) reap() {
	now := m.now()
	var expired []*pollSession

	m.mu.Lock()
	for sid, s := range m.sessions {
		s.mu.Lock()
		idle := !s.polling && now.Sub(s.lastSeen) > m.liveness
		s.mu.Unlock()
		if idle {
			expired = append(expired, s)
			delete(m.sessions, sid)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		logger.Debug("Expiring idle polling session %s", s.client.id)
		m.hub.Unregister(s.client)
	}
}

func (m *PollingManager) get(sid string) (*pollSession, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	return s, ok
}

func (m *PollingManager) forget(sid string) {
	m.mu.Lock()
	delete(m.sessions, sid)
	m.mu.Unlock()
}
