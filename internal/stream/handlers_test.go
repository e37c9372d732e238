package stream

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backend-racehub/internal/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
)

func serve(t *testing.T, hub *Hub, snapshot SnapshotFunc) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, snapshot)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() { _ = app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func waitForClients(t *testing.T, hub *Hub, raceID string, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.ClientCount(raceID) != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients for %s", n, raceID)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil, logger.Nop()), nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/race-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Fatalf("expected 426 for non-websocket request, got %d", resp.StatusCode)
	}
}

func TestStreamHandlersWebsocketBroadcast(t *testing.T) {
	hub := NewHub(nil, logger.Nop())
	base := serve(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/race-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, "race-1", 1)

	hub.Broadcast("race-1", []byte("hello"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("unexpected message %q", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("client")); err != nil {
		t.Fatalf("write error: %v", err)
	}

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()
	waitForClients(t, hub, "race-1", 0)
}

func TestStreamHandlersSendsSnapshotOnConnect(t *testing.T) {
	hub := NewHub(nil, logger.Nop())
	base := serve(t, hub, func(raceID string) ([]byte, error) {
		return []byte(`{"race_id":"` + raceID + `"}`), nil
	})

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/race-9", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != `{"race_id":"race-9"}` {
		t.Fatalf("unexpected snapshot %q", msg)
	}
}

func TestStreamHandlersSnapshotErrorSkipped(t *testing.T) {
	hub := NewHub(nil, logger.Nop())
	base := serve(t, hub, func(string) ([]byte, error) { return nil, errors.New("no board") })

	conn, _, err := websocket.DefaultDialer.Dial(base+"/stream/ws/race-3", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, "race-3", 1)

	hub.Broadcast("race-3", []byte("first"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil || string(msg) != "first" {
		t.Fatalf("expected broadcast after failed snapshot: %v %q", err, msg)
	}
}
