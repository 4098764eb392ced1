package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/immxrtalbeast/huddle/internal/domain"
)

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrPeerNotFound = errors.New("peer not found")
	ErrPeerIDTaken  = errors.New("peer id already taken")
)

type InMemoryRoomRepository struct {
	mu    sync.RWMutex
	rooms map[string]*domain.Room
}

func NewInMemoryRoomRepository() *InMemoryRoomRepository {
	return &InMemoryRoomRepository{
		rooms: make(map[string]*domain.Room),
	}
}

func (r *InMemoryRoomRepository) GetOrCreate(ctx context.Context, id string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[id]; ok {
		return room, nil
	}
	room := domain.NewRoom(id)
	r.rooms[id] = room
	return room, nil
}

func (r *InMemoryRoomRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}

	return room, nil
}

// DeleteIfEmpty drops the room when it has no members left and reports
// whether it did.
func (r *InMemoryRoomRepository) DeleteIfEmpty(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[id]
	if !ok {
		return false, ErrRoomNotFound
	}
	if room.Len() > 0 {
		return false, nil
	}

	delete(r.rooms, id)
	return true, nil
}

func (r *InMemoryRoomRepository) List(ctx context.Context) ([]*domain.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		result = append(result, room)
	}
	return result, nil
}

type InMemoryPeerRepository struct {
	mu    sync.RWMutex
	peers map[string]*domain.Peer
}

func NewInMemoryPeerRepository() *InMemoryPeerRepository {
	return &InMemoryPeerRepository{
		peers: make(map[string]*domain.Peer),
	}
}

func (r *InMemoryPeerRepository) Register(ctx context.Context, peer *domain.Peer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[peer.ID]; ok {
		return ErrPeerIDTaken
	}

	r.peers[peer.ID] = peer
	return nil
}

func (r *InMemoryPeerRepository) GetByID(ctx context.Context, id string) (*domain.Peer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[id]
	if !ok {
		return nil, ErrPeerNotFound
	}

	return peer, nil
}

// Remove deletes the registration only if it still belongs to the given
// peer, so a stale socket cannot evict a reconnected one.
func (r *InMemoryPeerRepository) Remove(ctx context.Context, peer *domain.Peer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.peers[peer.ID]
	if !ok || current != peer {
		return ErrPeerNotFound
	}

	delete(r.peers, peer.ID)
	return nil
}
