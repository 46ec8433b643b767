package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lattice-exchange/core/pkg/hub"
	"go.uber.org/zap"
)

// writeWait and pongWait mirror the teacher's websocket.go ping/pong
// deadlines (pkg/api/websocket.go); CheckOrigin defers to the CORS layer
// wrapping the router, same as the teacher.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	pingEvery = 54 * time.Second
)

// handleWebSocket upgrades the connection, registers a new hub.Session, and
// starts its read/write pumps, the same split the teacher uses (pkg/api/
// websocket.go readPump/writePump) generalized from a broadcast-only feed to
// the Hub's authenticated request/response + topic protocol (§4.6).
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("api: websocket upgrade failed", zap.Error(err))
		return
	}

	sess := hub.NewSession()
	s.hub.Register(sess)

	go s.writePump(conn, sess)
	go s.readPump(conn, sess)
}

func (s *Server) readPump(conn *websocket.Conn, sess *hub.Session) {
	defer func() {
		s.hub.Unregister(sess)
		conn.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug("api: websocket read error", zap.Error(err))
			}
			return
		}
		s.hub.Dispatch(ctx, sess, message)
	}
}

func (s *Server) writePump(conn *websocket.Conn, sess *hub.Session) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sess.Outbox():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-sess.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
