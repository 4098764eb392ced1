package service

import (
	"context"

	"github.com/immxrtalbeast/huddle/internal/domain"
)

type RoomInteractor interface {
	Join(ctx context.Context, peer *domain.Peer, roomID, peerID string) error
	Leave(ctx context.Context, peer *domain.Peer) error
	HandleSignal(ctx context.Context, peer *domain.Peer, message *domain.SignalMessage) error
	GetRoom(ctx context.Context, roomID string) (*domain.Room, error)
	NewRoomID() string
}

type BrokerInteractor interface {
	Register(ctx context.Context, peer *domain.Peer, requestedID, token string) error
	Unregister(ctx context.Context, peer *domain.Peer) error
	HandleSignal(ctx context.Context, peer *domain.Peer, message *domain.SignalMessage) error
}
