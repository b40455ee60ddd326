package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/events"
	"github.com/gorilla/websocket"
)

// clearTLSEnv prevents TLS initialization from trying to load nonexistent certs.
func clearTLSEnv(t *testing.T) {
	t.Setenv("RAGFLOW_TLS_CERT", "")
	t.Setenv("RAGFLOW_TLS_KEY", "")
	t.Setenv("RAGFLOW_TLS_CERT_FILE", "")
	t.Setenv("RAGFLOW_TLS_KEY_FILE", "")
	SetTLSConfigForTest(nil)
}

// waitFor polls a condition until it returns true or timeout expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("timeout waiting for: %s", msg)
}

func dialEvents(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) events.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	var e events.Event
	if err := json.Unmarshal(msg, &e); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}
	return e
}

func TestWebSocketReceivesRecentEvents(t *testing.T) {
	clearTLSEnv(t)
	events.Clear()

	for i := 0; i < 5; i++ {
		events.Emit("info", "block.placed", "", map[string]interface{}{"i": i})
	}

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "")
	defer conn.Close()

	for i := 0; i < 5; i++ {
		e := readEvent(t, conn)
		if e.Name != "block.placed" {
			t.Errorf("expected 'block.placed', got '%s'", e.Name)
		}
	}
}

func TestWebSocketReceivesNewEvents(t *testing.T) {
	clearTLSEnv(t)
	events.Clear()

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "")
	defer conn.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "block.processed", "", map[string]interface{}{"block_id": "ai_model-1"})
	}()

	e := readEvent(t, conn)
	if e.Name != "block.processed" {
		t.Errorf("expected 'block.processed', got '%s'", e.Name)
	}
	if e.Fields["block_id"] != "ai_model-1" {
		t.Errorf("expected block_id 'ai_model-1', got '%v'", e.Fields["block_id"])
	}
}

func TestWebSocketFiltersBySessionAndPrefix(t *testing.T) {
	clearTLSEnv(t)
	events.Clear()

	events.Emit("info", "block.placed", "", map[string]interface{}{"session_id": "other"})
	events.Emit("info", "connection.created", "", map[string]interface{}{"session_id": "mine"})
	events.Emit("info", "block.placed", "", map[string]interface{}{"session_id": "mine", "n": 1})

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "?session=mine&prefix=block.")
	defer conn.Close()

	e := readEvent(t, conn)
	if e.Name != "block.placed" || e.Fields["session_id"] != "mine" {
		t.Fatalf("expected block.placed for session 'mine', got %s %v", e.Name, e.Fields)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "block.moved", "", map[string]interface{}{"session_id": "other"})
		events.Emit("info", "block.removed", "", map[string]interface{}{"session_id": "mine"})
	}()

	e = readEvent(t, conn)
	if e.Name != "block.removed" {
		t.Errorf("expected 'block.removed', got '%s'", e.Name)
	}
}

func TestWebSocketDisconnectCleansUp(t *testing.T) {
	clearTLSEnv(t)
	events.Clear()
	events.CloseAllSubscribers()

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn := dialEvents(t, server, "")

	go func() {
		time.Sleep(20 * time.Millisecond)
		events.Emit("info", "block.placed", "", map[string]interface{}{"test": "cleanup"})
	}()

	if e := readEvent(t, conn); e.Name != "block.placed" {
		t.Errorf("expected 'block.placed', got '%s'", e.Name)
	}

	conn.Close()

	// the writer only notices the close on its next write
	for i := 0; i < 5; i++ {
		events.Emit("info", "block.placed", "", nil)
		time.Sleep(50 * time.Millisecond)
	}

	waitFor(t, 5*time.Second, func() bool {
		return events.SubscriberCount() == 0
	}, "subscriber count to return to 0 after close")
}

func TestWebSocketMultipleClients(t *testing.T) {
	clearTLSEnv(t)
	events.Clear()

	server := httptest.NewServer(http.HandlerFunc(wsEventsHandler))
	defer server.Close()

	conn1 := dialEvents(t, server, "")
	defer conn1.Close()
	conn2 := dialEvents(t, server, "")
	defer conn2.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		events.Emit("info", "pipeline.run_completed", "", map[string]interface{}{"blocks": 3})
	}()

	if e := readEvent(t, conn1); e.Name != "pipeline.run_completed" {
		t.Errorf("client1: expected 'pipeline.run_completed', got '%s'", e.Name)
	}
	if e := readEvent(t, conn2); e.Name != "pipeline.run_completed" {
		t.Errorf("client2: expected 'pipeline.run_completed', got '%s'", e.Name)
	}
}
