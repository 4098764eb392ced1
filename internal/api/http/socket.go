package http

import (
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/huddle/internal/domain"
)

// SocketConfig holds the keepalive and sizing knobs for relay and broker
// sockets.
type SocketConfig struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	EventBuffer    int
	AllowedOrigins []string
}

func (c SocketConfig) withDefaults() SocketConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 * 1024
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 32
	}
	return c
}

func (c SocketConfig) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

func (c SocketConfig) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(c.AllowedOrigins) == 0 {
				return true
			}
			return slices.Contains(c.AllowedOrigins, "*") || slices.Contains(c.AllowedOrigins, origin)
		},
	}
}

// readLoop decodes messages until the socket fails. Handler errors are sent
// back to the client as error events and do not end the loop.
func readLoop(conn *websocket.Conn, peer *domain.Peer, cfg SocketConfig, log *slog.Logger, handle func(*domain.SignalMessage) error) {
	conn.SetReadLimit(cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		peer.Touch()
		return conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	for {
		var msg domain.SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Debug("socket read failed", slog.String("error", err.Error()))
			}
			return
		}
		if err := handle(&msg); err != nil {
			peer.EnqueueEvent(domain.ErrorMessage(err))
		}
	}
}

// writePump is the only writer on the socket. It exits when the peer's event
// queue is closed or a write fails, closing the socket either way.
func writePump(conn *websocket.Conn, peer *domain.Peer, cfg SocketConfig) {
	ticker := time.NewTicker(cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg, ok := <-peer.Events:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
