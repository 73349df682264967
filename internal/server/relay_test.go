package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veilchat/relay/internal/directory"
)

// newRelayServer starts a full relay on an httptest server and returns it
// together with its hub. Origins are left open so the dialer can connect.
func newRelayServer(t *testing.T, customize func(cfg *Config)) (*httptest.Server, *Hub) {
	t.Helper()

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	if customize != nil {
		customize(cfg)
	}

	log := testLogger()
	hub := NewHub(log)
	go hub.Run()

	api := &directory.API{Store: directory.NewMemoryStore(), Log: log}
	ts := httptest.NewServer(SetupRoutes(cfg, log, hub, api))

	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})
	return ts, hub
}

// dialRoom opens a WebSocket to the given room and consumes the system
// notice so the caller starts from a registered, quiet connection.
func dialRoom(t *testing.T, ts *httptest.Server, room string) *websocket.Conn {
	t.Helper()

	conn := rawDial(t, ts, room, ts.URL)

	kind, msg := readEnvelope(t, conn)
	if kind != KindSystem || msg != "connected to server" {
		t.Fatalf("expected system notice first, got kind=%q message=%q", kind, msg)
	}
	return conn
}

func rawDial(t *testing.T, ts *httptest.Server, room, origin string) *websocket.Conn {
	t.Helper()

	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("failed to parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	u.Path = "/ws"
	if room != "" {
		u.Path = "/ws/" + room
	}

	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		t.Fatalf("failed to dial %s: %v", u.String(), err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = resp.Body.Close()
	return conn
}

// readEnvelope reads one frame and decodes the relay envelope fields.
func readEnvelope(t *testing.T, conn *websocket.Conn) (kind, message string) {
	t.Helper()

	raw := readFrame(t, conn)
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("frame is not a relay envelope: %s (%v)", raw, err)
	}
	return env.Kind, env.Message
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	return raw
}

// expectNoMessage asserts that nothing arrives on the connection within the
// timeout.
func expectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		t.Fatalf("failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, but received: %s", raw)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("unexpected error while waiting for absence of message: %v", err)
}

// TestSystemNoticeTargetsOnlyNewConnection verifies that the connection
// notice reaches the joining client alone and is never broadcast.
func TestSystemNoticeTargetsOnlyNewConnection(t *testing.T) {
	ts, _ := newRelayServer(t, nil)

	first := dialRoom(t, ts, "greetings")
	_ = dialRoom(t, ts, "greetings") // second join: its own notice, nothing for first

	expectNoMessage(t, first, 300*time.Millisecond)
}

// TestJSONBroadcastPreservesContent verifies that a valid JSON object sent by
// one member reaches every room member, sender included, with content intact.
func TestJSONBroadcastPreservesContent(t *testing.T) {
	ts, _ := newRelayServer(t, nil)

	sender := dialRoom(t, ts, "crypto")
	receiver := dialRoom(t, ts, "crypto")

	payload := `{"ciphertext":"c2VjcmV0","iv":"bm9uY2U=","from":"alice"}`
	if err := sender.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	var want map[string]any
	if err := json.Unmarshal([]byte(payload), &want); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"receiver": receiver, "sender echo": sender} {
		raw := readFrame(t, conn)
		var got map[string]any
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("%s received invalid JSON: %s", name, raw)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s received %v, want %v", name, got, want)
		}
	}
}

// TestPlainTextFallsBackToTextEnvelope verifies that non-JSON input is
// relayed as a text wrapper instead of being rejected.
func TestPlainTextFallsBackToTextEnvelope(t *testing.T) {
	ts, _ := newRelayServer(t, nil)

	sender := dialRoom(t, ts, "fallback")
	receiver := dialRoom(t, ts, "fallback")

	rawText := "hello {not json"
	if err := sender.WriteMessage(websocket.TextMessage, []byte(rawText)); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	for name, conn := range map[string]*websocket.Conn{"receiver": receiver, "sender echo": sender} {
		kind, message := readEnvelope(t, conn)
		if kind != KindText {
			t.Errorf("%s: expected kind %q, got %q", name, KindText, kind)
		}
		if message != rawText {
			t.Errorf("%s: raw text not preserved, got %q", name, message)
		}
	}
}

// TestRoomsAreIsolated verifies that two clients in different rooms never
// receive each other's broadcasts.
func TestRoomsAreIsolated(t *testing.T) {
	ts, _ := newRelayServer(t, nil)

	inRoomA := dialRoom(t, ts, "room-a")
	inRoomB := dialRoom(t, ts, "room-b")

	if err := inRoomA.WriteMessage(websocket.TextMessage, []byte(`{"secret":"for room a"}`)); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	// Sender gets its echo; the other room stays silent.
	_ = readFrame(t, inRoomA)
	expectNoMessage(t, inRoomB, 300*time.Millisecond)
}

// TestMissingRoomSegmentUsesDefault verifies that /ws without a room segment
// lands the client in the configured default room.
func TestMissingRoomSegmentUsesDefault(t *testing.T) {
	ts, _ := newRelayServer(t, func(cfg *Config) { cfg.DefaultRoom = "the-default" })

	implicit := dialRoom(t, ts, "")
	explicit := dialRoom(t, ts, "the-default")

	if err := implicit.WriteMessage(websocket.TextMessage, []byte(`{"hi":"there"}`)); err != nil {
		t.Fatalf("failed to send: %v", err)
	}

	raw := readFrame(t, explicit)
	if !strings.Contains(string(raw), `"hi"`) {
		t.Errorf("default-room peer did not receive the message, got %s", raw)
	}
}

// TestSenderOrderingPreserved verifies that messages from a single sender
// arrive at a receiver in the order they were sent.
func TestSenderOrderingPreserved(t *testing.T) {
	ts, _ := newRelayServer(t, nil)

	sender := dialRoom(t, ts, "ordered")
	receiver := dialRoom(t, ts, "ordered")

	const count = 10
	for i := 0; i < count; i++ {
		payload, _ := json.Marshal(map[string]int{"seq": i})
		if err := sender.WriteMessage(websocket.TextMessage, payload); err != nil {
			t.Fatalf("failed to send message %d: %v", i, err)
		}
	}

	for i := 0; i < count; i++ {
		raw := readFrame(t, receiver)
		var msg struct {
			Seq int `json:"seq"`
		}
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("bad frame %d: %s", i, raw)
		}
		if msg.Seq != i {
			t.Fatalf("out-of-order delivery: got seq %d at position %d", msg.Seq, i)
		}
	}
}

// TestDisconnectedClientNotDelivered verifies that a closed connection is
// deregistered and later broadcasts neither reach it nor fail the sender.
func TestDisconnectedClientNotDelivered(t *testing.T) {
	ts, hub := newRelayServer(t, nil)

	sender := dialRoom(t, ts, "churn")
	leaver := dialRoom(t, ts, "churn")

	if err := leaver.Close(); err != nil {
		t.Fatalf("failed to close leaver: %v", err)
	}

	// Wait for the hub to process the departure.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, clients := hub.Stats(); clients == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("hub never deregistered the closed connection")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := sender.WriteMessage(websocket.TextMessage, []byte(`{"still":"here"}`)); err != nil {
		t.Fatalf("failed to send after peer left: %v", err)
	}
	raw := readFrame(t, sender) // echo still arrives
	if !strings.Contains(string(raw), `"still"`) {
		t.Errorf("sender echo corrupted: %s", raw)
	}
}

// TestUpgradeRejectsNonGET verifies the relay endpoint only accepts GET.
func TestUpgradeRejectsNonGET(t *testing.T) {
	ts, _ := newRelayServer(t, nil)

	resp, err := http.Post(ts.URL+"/ws", "text/plain", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("failed to POST: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}

// TestDisallowedOriginBlocked verifies the origin allowlist is enforced on
// the WebSocket handshake.
func TestDisallowedOriginBlocked(t *testing.T) {
	ts, _ := newRelayServer(t, func(cfg *Config) {
		cfg.AllowedOrigins = []string{"http://allowed.example.com"}
	})

	u, _ := url.Parse(ts.URL)
	u.Scheme = "ws"
	u.Path = "/ws/blocked"

	header := http.Header{}
	header.Set("Origin", "http://evil.example.com")

	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err == nil {
		_ = conn.Close()
		t.Fatal("expected handshake to fail for disallowed origin")
	}
	if resp != nil {
		_ = resp.Body.Close()
	}
}

// TestStatsEndpoint verifies the stats handler reports rooms and clients.
func TestStatsEndpoint(t *testing.T) {
	ts, _ := newRelayServer(t, nil)

	_ = dialRoom(t, ts, "stats-a")
	_ = dialRoom(t, ts, "stats-b")

	resp, err := http.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("failed to GET /stats: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var stats map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("stats response is not JSON: %v", err)
	}
	if stats["rooms"] != 2 || stats["clients"] != 2 {
		t.Errorf("stats = %v, want 2 rooms / 2 clients", stats)
	}
}

// TestGracefulShutdownClosesClients verifies that hub shutdown disconnects
// every active client.
func TestGracefulShutdownClosesClients(t *testing.T) {
	cfg := NewConfig()
	cfg.AllowedOrigins = []string{"*"}
	log := testLogger()
	hub := NewHub(log)
	go hub.Run()

	api := &directory.API{Store: directory.NewMemoryStore(), Log: log}
	ts := httptest.NewServer(SetupRoutes(cfg, log, hub, api))
	defer ts.Close()

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dialRoom(t, ts, "doomed")
	}

	if err := hub.Shutdown(5 * time.Second); err != nil {
		t.Errorf("hub shutdown failed: %v", err)
	}

	for i, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		if _, _, err := conn.ReadMessage(); err == nil {
			t.Errorf("client %d still connected after shutdown", i)
		}
		_ = conn.Close()
	}
}
