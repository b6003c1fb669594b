package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// writeWait bounds each outbound event write; a client that cannot keep
// up is dropped rather than stalling the subscriber loop.
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	// The socket carries broadcast-only events and every API route is
	// bearer-checked, so cross-origin readers are acceptable here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

func registerWSRoute(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("ws upgrade error: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()

		if payload, err := json.Marshal(ConnectionEvent{
			Event:     newEvent("connection", time.Now().UTC()),
			Connected: true,
		}); err == nil {
			_ = writeWithDeadline(conn, payload)
		}

		// Clients never send events; the read loop exists to notice the
		// peer going away between broadcasts.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ch := hub.Subscribe()
		defer hub.Unsubscribe(ch)

		for {
			select {
			case <-closed:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := writeWithDeadline(conn, msg); err != nil {
					return
				}
			}
		}
	})
}

func writeWithDeadline(conn *websocket.Conn, msg []byte) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, msg)
}
