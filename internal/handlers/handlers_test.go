package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"devlink-realtime/internal/auth"
	"devlink-realtime/internal/config"
	"devlink-realtime/internal/metrics"
	"devlink-realtime/internal/models"
	ws "devlink-realtime/internal/websocket"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var testSecret = []byte("handler-test-secret")

type memStore struct {
	users map[string]bool
}

func (s memStore) UserExists(ctx context.Context, userID string) (bool, error) {
	return s.users[userID], nil
}

func (memStore) Close() error { return nil }

type testEnv struct {
	server  *httptest.Server
	hub     *ws.Hub
	polling *ws.PollingManager
	auth    *auth.Service
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}},
		Socket: config.SocketConfig{
			PingInterval:    time.Second,
			PingTimeout:     time.Second,
			PollWait:        200 * time.Millisecond,
			SendBuffer:      16,
			MaxMessageBytes: 4096,
		},
		JWT:  config.JWTConfig{Secret: testSecret, ExpiresIn: time.Hour},
		Auth: config.AuthConfig{CookieName: "token", LookupTimeout: time.Second},
	}
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	authService := auth.NewService(memStore{users: map[string]bool{"A": true, "B": true, "C": true}}, cfg)
	hub := ws.NewHub(nil, nil)
	polling := ws.NewPollingManager(hub, cfg.Socket.PollWait, cfg.Socket.Liveness())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Serve(ctx)

	router := NewRouter(cfg,
		NewWebSocketHandlers(authService, hub, cfg),
		NewPollingHandlers(authService, hub, polling, cfg),
		NewPresenceHandlers(authService, hub, cfg),
	)
	server := httptest.NewServer(router)
	t.Cleanup(func() {
		server.Close()
		cancel()
		<-hub.Done()
	})

	return &testEnv{server: server, hub: hub, polling: polling, auth: authService}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := e.auth.IssueToken(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func (e *testEnv) dial(t *testing.T, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/socket" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	var f models.Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		t.Fatalf("bad frame %s: %v", raw, err)
	}
	return f
}

// readEvent returns the next frame with the given event, skipping presence
// broadcasts and anything else queued before it.
func readEvent(t *testing.T, conn *websocket.Conn, event string) models.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read error waiting for %s: %v", event, err)
		}
		var f models.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("bad frame %s: %v", raw, err)
		}
		if f.Event == event {
			return f
		}
	}
}

func expectRejected(t *testing.T, conn *websocket.Conn, message string) {
	t.Helper()
	f := readFrame(t, conn)
	if f.Event != models.EventConnectError {
		t.Fatalf("expected connect_error, got %s", f.Event)
	}
	var payload models.ConnectError
	if err := json.Unmarshal(f.Data, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Message != message {
		t.Fatalf("expected %q, got %q", message, payload.Message)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy violation close, got %v", err)
	}
}

func TestWebSocketAdmission(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("auth field", func(t *testing.T) {
		conn := env.dial(t, "?token="+env.token(t, "A"), nil)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"new-user-add","data":"A"}`))
		f := readEvent(t, conn, models.EventGetUsers)
		if !strings.Contains(string(f.Data), `"userId":"A"`) {
			t.Fatalf("expected A online, got %s", f.Data)
		}
	})

	t.Run("cookie", func(t *testing.T) {
		header := http.Header{}
		header.Set("Cookie", "token="+env.token(t, "B"))
		conn := env.dial(t, "", header)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-group","data":"g"}`))
		readEvent(t, conn, models.EventGroupNotification)
	})

	t.Run("bearer header", func(t *testing.T) {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+env.token(t, "C"))
		conn := env.dial(t, "", header)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-group","data":"g"}`))
		readEvent(t, conn, models.EventGroupNotification)
	})
}

func TestWebSocketRejection(t *testing.T) {
	env := newTestEnv(t, nil)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "A",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})
	expiredToken, err := expired.SignedString(testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name    string
		query   string
		label   string
		message string
	}{
		{"no token", "", "no_token", "Authentication error: token not provided"},
		{"garbage", "?token=not-a-jwt", "invalid_token", "Authentication error: invalid token"},
		{"expired", "?token=" + expiredToken, "token_expired", "Authentication error: token expired"},
		{"unknown user", "?token=" + env.token(t, "Z"), "unknown_user", "Authentication error: user not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(metrics.AdmissionsTotal.WithLabelValues(tt.label))
			conn := env.dial(t, tt.query, nil)
			expectRejected(t, conn, tt.message)
			if got := testutil.ToFloat64(metrics.AdmissionsTotal.WithLabelValues(tt.label)) - before; got != 1 {
				t.Errorf("expected 1 %s rejection, got %v", tt.label, got)
			}
		})
	}
}

func TestRejectedAttemptDoesNotBroadcast(t *testing.T) {
	env := newTestEnv(t, nil)

	observer := env.dial(t, "?token="+env.token(t, "A"), nil)
	observer.WriteMessage(websocket.TextMessage, []byte(`{"event":"new-user-add","data":"A"}`))
	readFrame(t, observer)

	rejected := env.dial(t, "", nil)
	expectRejected(t, rejected, "Authentication error: token not provided")

	if n := env.hub.ClientCount(); n != 1 {
		t.Fatalf("expected only the observer attached, got %d", n)
	}

	// A frame sent now is the next one the observer sees.
	observer.WriteMessage(websocket.TextMessage, []byte(`{"event":"join-group","data":"g"}`))
	if f := readFrame(t, observer); f.Event != models.EventGroupNotification {
		t.Fatalf("rejected attempt leaked %s to the observer", f.Event)
	}
}

func pollURL(e *testEnv, sid string) string {
	if sid == "" {
		return e.server.URL + "/socket/polling"
	}
	return e.server.URL + "/socket/polling?sid=" + sid
}

func handshake(t *testing.T, e *testEnv, userID string) pollHandshake {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, pollURL(e, ""), nil)
	req.Header.Set("Authorization", "Bearer "+e.token(t, userID))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("handshake: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var hs pollHandshake
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		t.Fatalf("decode handshake: %v", err)
	}
	return hs
}

func push(t *testing.T, e *testEnv, sid, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(pollURL(e, sid), "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	resp.Body.Close()
	return resp
}

func poll(t *testing.T, e *testEnv, sid string) []models.Frame {
	t.Helper()
	resp, err := http.Get(pollURL(e, sid))
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	var frames []models.Frame
	if err := json.NewDecoder(resp.Body).Decode(&frames); err != nil {
		t.Fatalf("decode frames: %v", err)
	}
	return frames
}

func TestPollingHandshake(t *testing.T) {
	env := newTestEnv(t, nil)

	hs := handshake(t, env, "A")
	if hs.SID == "" {
		t.Fatal("expected a session id")
	}
	if hs.PingInterval != 1000 || hs.PingTimeout != 1000 {
		t.Fatalf("unexpected intervals %+v", hs)
	}
	if n := env.hub.ClientCount(); n != 1 {
		t.Fatalf("expected 1 attached client, got %d", n)
	}
}

func TestPollingHandshakeRejected(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(pollURL(env, ""))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	var f models.Frame
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Event != models.EventConnectError || !strings.Contains(string(f.Data), "token not provided") {
		t.Fatalf("unexpected body %s %s", f.Event, f.Data)
	}
}

func TestPollingRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	hs := handshake(t, env, "A")

	resp := push(t, env, hs.SID, `[{"event":"new-user-add","data":"A"},{"event":"join-group","data":"g1"}]`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	frames := poll(t, env, hs.SID)
	if len(frames) != 2 || frames[0].Event != models.EventGetUsers || frames[1].Event != models.EventGroupNotification {
		t.Fatalf("unexpected frames %+v", frames)
	}

	if frames := poll(t, env, hs.SID); len(frames) != 0 {
		t.Fatalf("expected empty poll, got %+v", frames)
	}

	req, _ := http.NewRequest(http.MethodDelete, pollURL(env, hs.SID), nil)
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", del.StatusCode)
	}
	waitUntil(t, func() bool { return env.hub.ClientCount() == 0 })
}

func TestPollingUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(pollURL(env, "missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "unknown session" {
		t.Fatalf("unexpected body %v", body)
	}

	if resp := push(t, env, "missing", `[]`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 on push, got %d", resp.StatusCode)
	}
}

func TestPollingRejectsBadBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	hs := handshake(t, env, "A")

	if resp := push(t, env, hs.SID, `{"event":"new-user-add"}`); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestRelayAcrossTransports(t *testing.T) {
	env := newTestEnv(t, nil)

	hs := handshake(t, env, "B")
	push(t, env, hs.SID, `[{"event":"new-user-add","data":"B"}]`)
	poll(t, env, hs.SID)

	sender := env.dial(t, "?token="+env.token(t, "A"), nil)
	waitUntil(t, func() bool { return env.hub.ClientCount() == 2 })
	sender.WriteMessage(websocket.TextMessage, []byte(`{"event":"send-message","data":{"receiverId":"B","text":"over polling"}}`))

	var got []models.Frame
	waitUntil(t, func() bool {
		got = append(got, poll(t, env, hs.SID)...)
		return len(got) > 0
	})
	if got[0].Event != models.EventReceiveMessage || string(got[0].Data) != `{"receiverId":"B","text":"over polling"}` {
		t.Fatalf("unexpected relay %s %s", got[0].Event, got[0].Data)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/presence")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	hs := handshake(t, env, "A")
	push(t, env, hs.SID, `[{"event":"new-user-add","data":"A"}]`)
	poll(t, env, hs.SID)

	req, _ := http.NewRequest(http.MethodGet, env.server.URL+"/presence", nil)
	req.Header.Set("Authorization", "Bearer "+env.token(t, "B"))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body struct {
		OnlineUsers []map[string]string `json:"online_users"`
		Count       int                 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || body.OnlineUsers[0]["userId"] != "A" || body.OnlineUsers[0]["socketId"] != hs.SID {
		t.Fatalf("unexpected presence %+v", body)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := http.Get(env.server.URL + "/health")
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	metrics.RecordAdmission(metrics.AdmissionAccepted)
	resp, err = http.Get(env.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "realtime_admissions_total") {
		t.Fatal("expected admissions counter in exposition")
	}
}

func TestConnectionRateLimit(t *testing.T) {
	env := newTestEnv(t, func(cfg *config.Config) { cfg.Socket.RateLimit = 1 })

	first, err := http.Get(pollURL(env, ""))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Body.Close()
	if first.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", first.StatusCode)
	}

	second, err := http.Get(pollURL(env, ""))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second.Body.Close()
	if second.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.StatusCode)
	}

	// Polls on an open session are not connection attempts.
	unknown, err := http.Get(pollURL(env, "missing"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	unknown.Body.Close()
	if unknown.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", unknown.StatusCode)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"wildcard", []string{"*"}, "https://evil.example", true},
		{"listed", []string{"https://app.example"}, "https://app.example", true},
		{"unlisted", []string{"https://app.example"}, "https://evil.example", false},
		{"no origin header", []string{"https://app.example"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/socket", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.origins)(r); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
