package ws

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/jmylchreest/keylight2mqtt/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The status API is read-only and unauthenticated.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var knownTypes = map[events.EventType]bool{
	events.LightDiscovered:   true,
	events.LightStateChanged: true,
	events.BusConnected:      true,
	events.BusDisconnected:   true,
}

// parseTypes reads the repeatable ?type= filter
func parseTypes(r *http.Request) ([]events.EventType, error) {
	var types []events.EventType
	for _, v := range r.URL.Query()["type"] {
		t := events.EventType(v)
		if !knownTypes[t] {
			return nil, fmt.Errorf("unknown event type %q", v)
		}
		types = append(types, t)
	}
	return types, nil
}

// Handler upgrades the request to a WebSocket and streams hub events to it.
// Repeating ?type=<event type> restricts the stream to those types.
func Handler(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		types, err := parseTypes(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("ws: upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
			return
		}

		client := hub.NewClient(conn, types...)
		if !hub.Register(client) {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			_ = conn.Close()
			return
		}

		go client.WritePump()
		go client.ReadPump()
	}
}
