package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/events"
	"github.com/gorilla/websocket"
)

const (
	// Number of recent events to send on connection
	recentEventsCount = 50

	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// eventFilter narrows the stream to one session and/or one event family,
// e.g. ?session=session-1&prefix=block.
type eventFilter struct {
	session string
	prefix  string
}

func filterFromRequest(r *http.Request) eventFilter {
	q := r.URL.Query()
	return eventFilter{session: q.Get("session"), prefix: q.Get("prefix")}
}

func (f eventFilter) match(e events.Event) bool {
	if f.prefix != "" && !strings.HasPrefix(e.Name, f.prefix) {
		return false
	}
	if f.session != "" {
		id, _ := e.Fields["session_id"].(string)
		if id != f.session {
			return false
		}
	}
	return true
}

// wsEventsHandler streams editor events: the recent backlog first, then
// live events, with pings to keep the connection open.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter := filterFromRequest(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}

	sub := events.Subscribe()
	closeAll := func() {
		events.Unsubscribe(sub)
		conn.Close()
	}

	write := func(e events.Event) error {
		data, err := json.Marshal(e)
		if err != nil {
			return nil
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for _, e := range events.RecentEvents(recentEventsCount) {
		if !filter.match(e) {
			continue
		}
		if err := write(e); err != nil {
			slog.Warn("ws write recent event failed", "error", err)
			closeAll()
			return
		}
	}

	done := make(chan struct{})

	// Reader handles pongs and close frames; the editor never sends data.
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			closeAll()
			return

		case e, ok := <-sub:
			if !ok {
				conn.Close()
				return
			}
			if !filter.match(e) {
				continue
			}
			if err := write(e); err != nil {
				slog.Warn("ws write event failed", "error", err)
				closeAll()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				closeAll()
				return
			}
		}
	}
}
