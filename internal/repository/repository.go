package repository

import (
	"context"

	"github.com/immxrtalbeast/huddle/internal/domain"
)

type RoomRepository interface {
	GetOrCreate(ctx context.Context, id string) (*domain.Room, error)
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	DeleteIfEmpty(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*domain.Room, error)
}

// PeerRepository holds the transport identities registered on the broker.
type PeerRepository interface {
	Register(ctx context.Context, peer *domain.Peer) error
	GetByID(ctx context.Context, id string) (*domain.Peer, error)
	Remove(ctx context.Context, peer *domain.Peer) error
}
