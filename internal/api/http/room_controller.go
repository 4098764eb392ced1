package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/huddle/internal/api/http/converter"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/service"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

type RoomController struct {
	rooms    service.RoomInteractor
	upgrader websocket.Upgrader
	socket   SocketConfig
	log      *slog.Logger
}

func NewRoomController(rooms service.RoomInteractor, socket SocketConfig, log *slog.Logger) *RoomController {
	if log == nil {
		log = slog.Default()
	}
	socket = socket.withDefaults()
	return &RoomController{
		rooms:    rooms,
		upgrader: socket.upgrader(),
		socket:   socket,
		log:      log,
	}
}

func (c *RoomController) CreateRoom(ctx *gin.Context) {
	ctx.JSON(http.StatusCreated, gin.H{"room_id": c.rooms.NewRoomID()})
}

func (c *RoomController) GetRoom(ctx *gin.Context) {
	roomID := ctx.Param("roomID")
	if err := domain.ValidateRoomID(roomID); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}

	room, err := c.rooms.GetRoom(ctx.Request.Context(), roomID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, service.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{"room": converter.RoomToApi(room)})
}

// Relay upgrades to the room relay socket. The connection joins a room by
// sending join-room and may do so again after every reconnect.
func (c *RoomController) Relay(ctx *gin.Context) {
	const op = "api.room.relay"

	conn, err := c.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		c.log.Debug("failed to upgrade connection", slog.String("op", op), sl.Err(err))
		return
	}

	peer := domain.NewPeer(c.socket.EventBuffer)
	go writePump(conn, peer, c.socket)

	log := c.log.With(slog.String("op", op), slog.String("remote", ctx.Request.RemoteAddr))
	log.Debug("relay socket opened")

	readLoop(conn, peer, c.socket, log, func(msg *domain.SignalMessage) error {
		return c.rooms.HandleSignal(context.Background(), peer, msg)
	})

	if err := c.rooms.Leave(context.Background(), peer); err != nil {
		log.Error("failed to leave room", sl.Err(err))
	}
	peer.Close()
	log.Debug("relay socket closed", slog.String("peer_id", peer.ID))
}
