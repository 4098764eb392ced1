package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/repository"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrPeerNotFound      = errors.New("peer not found")
	ErrPeerIDRequired    = errors.New("peer id is required")
	ErrNotJoined         = errors.New("connection has not joined a room")
	ErrUnsupportedSignal = errors.New("unsupported signal type")
	ErrTargetRequired    = errors.New("target peer id is required")
	ErrPeerIDTaken       = errors.New("peer id already taken")
	ErrMessageRequired   = errors.New("message is required")
)

// RoomService is the room relay. It keeps room membership keyed by peer id
// and fans out membership and layout events to the members of a room.
type RoomService struct {
	rooms repository.RoomRepository
	log   *slog.Logger

	// mu serializes membership changes so a room cannot be dropped while a
	// join is adding to it.
	mu sync.Mutex
}

func NewRoomService(rooms repository.RoomRepository, log *slog.Logger) *RoomService {
	if log == nil {
		log = slog.Default()
	}
	return &RoomService{
		rooms: rooms,
		log:   log,
	}
}

func (s *RoomService) NewRoomID() string {
	return domain.NewRoomID()
}

func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*domain.Room, error) {
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// Join adds the connection to a room under the given peer id. Repeating the
// same join on the same connection is a no-op. A join for a peer id that is
// still bound to an older connection takes over that entry.
func (s *RoomService) Join(ctx context.Context, peer *domain.Peer, roomID, peerID string) error {
	const op = "service.room.join"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", roomID),
		slog.String("peer_id", peerID),
	)

	if err := domain.ValidateRoomID(roomID); err != nil {
		return err
	}
	if peerID == "" {
		return ErrPeerIDRequired
	}

	s.mu.Lock()

	if peer.RoomID == roomID && peer.ID == peerID {
		s.mu.Unlock()
		log.Debug("duplicate join ignored")
		return nil
	}
	if peer.RoomID != "" {
		previous, removed, err := s.leaveLocked(ctx, peer)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if removed {
			defer s.announceLeft(previous, peer.ID)
		}
	}

	room, err := s.rooms.GetOrCreate(ctx, roomID)
	if err != nil {
		s.mu.Unlock()
		log.Error("failed to get room", sl.Err(err))
		return err
	}

	room.Mutex.Lock()
	stale := room.Peers[peerID]
	room.Peers[peerID] = peer
	room.Mutex.Unlock()

	peer.ID = peerID
	peer.RoomID = roomID
	peer.SetStatus(domain.PeerStatusConnected)
	s.mu.Unlock()

	if stale != nil && stale != peer {
		log.Info("peer rejoined from a new connection")
		stale.Close()
	}

	s.broadcast(room, domain.SignalMessage{
		Type:   domain.EventUserConnected,
		Room:   roomID,
		PeerID: peerID,
	}, peerID)

	log.Info("peer joined", slog.Int("peers_count", room.Len()))
	return nil
}

// Leave removes the connection from its room and tells the remaining
// members. It is safe to call for connections that never joined.
func (s *RoomService) Leave(ctx context.Context, peer *domain.Peer) error {
	s.mu.Lock()
	room, removed, err := s.leaveLocked(ctx, peer)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if removed {
		s.announceLeft(room, peer.ID)
	}
	return nil
}

func (s *RoomService) leaveLocked(ctx context.Context, peer *domain.Peer) (*domain.Room, bool, error) {
	const op = "service.room.leave"
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", peer.RoomID),
		slog.String("peer_id", peer.ID),
	)

	if peer.RoomID == "" {
		return nil, false, nil
	}
	roomID := peer.RoomID
	peer.RoomID = ""

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}

	room.Mutex.Lock()
	removed := room.Peers[peer.ID] == peer
	if removed {
		delete(room.Peers, peer.ID)
	}
	room.Mutex.Unlock()

	if !removed {
		log.Debug("connection was already replaced")
		return room, false, nil
	}

	if deleted, err := s.rooms.DeleteIfEmpty(ctx, roomID); err != nil {
		log.Error("failed to drop empty room", sl.Err(err))
	} else if deleted {
		log.Info("room closed")
	}

	log.Info("peer left")
	return room, true, nil
}

func (s *RoomService) announceLeft(room *domain.Room, peerID string) {
	s.broadcast(room, domain.SignalMessage{
		Type:   domain.EventUserDisconnected,
		Room:   room.ID,
		PeerID: peerID,
	}, peerID)
}

func (s *RoomService) HandleSignal(ctx context.Context, peer *domain.Peer, message *domain.SignalMessage) error {
	const op = "service.room.signal"
	if message == nil {
		return ErrMessageRequired
	}
	log := s.log.With(
		slog.String("op", op),
		slog.String("room_id", peer.RoomID),
		slog.String("peer_id", peer.ID),
	)
	log.Debug("new signal", slog.String("type", message.Type))

	peer.Touch()

	switch message.Type {
	case domain.EventJoinRoom:
		return s.Join(ctx, peer, message.Room, message.PeerID)
	case domain.EventChangeLayout, domain.EventSurprise:
		if peer.RoomID == "" {
			return ErrNotJoined
		}
		room, err := s.GetRoom(ctx, peer.RoomID)
		if err != nil {
			return err
		}
		s.broadcastAll(room, domain.SignalMessage{
			Type:     message.Type,
			Room:     room.ID,
			PeerID:   message.PeerID,
			SenderID: peer.ID,
		})
	case domain.EventLeave:
		return s.Leave(ctx, peer)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSignal, message.Type)
	}

	return nil
}

// broadcast holds the room lock for the whole fan-out so every member
// observes room events in the same order.
func (s *RoomService) broadcast(room *domain.Room, msg domain.SignalMessage, exclude string) {
	room.Mutex.Lock()
	defer room.Mutex.Unlock()

	for id, peer := range room.Peers {
		if id == exclude {
			continue
		}
		if !peer.EnqueueEvent(msg) {
			s.log.Debug("dropping broadcast event", slog.String("peer", id), slog.String("type", msg.Type))
		}
	}
}

func (s *RoomService) broadcastAll(room *domain.Room, msg domain.SignalMessage) {
	s.broadcast(room, msg, "")
}
