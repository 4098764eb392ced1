package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/service"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

type BrokerController struct {
	broker   service.BrokerInteractor
	upgrader websocket.Upgrader
	socket   SocketConfig
	log      *slog.Logger
}

func NewBrokerController(broker service.BrokerInteractor, socket SocketConfig, log *slog.Logger) *BrokerController {
	if log == nil {
		log = slog.Default()
	}
	socket = socket.withDefaults()
	return &BrokerController{
		broker:   broker,
		upgrader: socket.upgrader(),
		socket:   socket,
		log:      log,
	}
}

// Serve upgrades to the peer broker socket. Query parameters id and token
// reclaim a previous identity.
func (c *BrokerController) Serve(ctx *gin.Context) {
	const op = "api.broker.serve"

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Debug("failed to upgrade connection", slog.String("op", op), sl.Err(err))
		return
	}

	peer := domain.NewPeer(c.socket.EventBuffer)
	log := c.log.With(slog.String("op", op))

	if err := c.broker.Register(context.Background(), peer, ctx.Query("id"), ctx.Query("token")); err != nil {
		log.Info("registration refused", sl.Err(err))
		peer.EnqueueEvent(domain.ErrorMessage(err))
		peer.Close()
		writePump(conn, peer, c.socket)
		return
	}
	go writePump(conn, peer, c.socket)

	log = log.With(slog.String("peer_id", peer.ID))
	readLoop(conn, peer, c.socket, log, func(msg *domain.SignalMessage) error {
		return c.broker.HandleSignal(context.Background(), peer, msg)
	})

	if err := c.broker.Unregister(context.Background(), peer); err != nil {
		log.Error("failed to unregister peer", sl.Err(err))
	}
	peer.Close()
}
