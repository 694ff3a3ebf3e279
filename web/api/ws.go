package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// wsHandler streams the same events as /api/stream over a WebSocket.
// Client messages are read only to notice disconnects.
func (s *Server) wsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Warn("WebSocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		client, leave := s.hub.subscribe(r.Context())
		defer leave()

		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
						s.log.Debug("WebSocket closed", "error", err)
					}
					return
				}
			}
		}()

		if err := writeWS(conn, StreamEvent{Type: EventClock, Data: s.Clock.State()}); err != nil {
			return
		}

		ping := time.NewTicker(wsPingPeriod)
		defer ping.Stop()

		for {
			select {
			case <-closed:
				return
			case event, ok := <-client:
				if !ok {
					conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
						time.Now().Add(wsWriteWait))
					return
				}
				if err := writeWS(conn, event); err != nil {
					return
				}
			case <-ping.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				conn.SetWriteDeadline(time.Time{})
				if err != nil {
					return
				}
			}
		}
	}
}

func writeWS(conn *websocket.Conn, event StreamEvent) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	defer conn.SetWriteDeadline(time.Time{})
	return conn.WriteJSON(event)
}
