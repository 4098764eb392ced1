package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/repository"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

// BrokerService assigns transport peer ids and routes directed negotiation
// messages between them. It remembers which connections are open between
// peers so that a dropped broker socket can be reported to the other side.
type BrokerService struct {
	peers repository.PeerRepository
	log   *slog.Logger

	mu sync.Mutex
	// links[peer][connectionID] = counterpart peer id
	links map[string]map[string]string
}

func NewBrokerService(peers repository.PeerRepository, log *slog.Logger) *BrokerService {
	if log == nil {
		log = slog.Default()
	}
	return &BrokerService{
		peers: peers,
		log:   log,
		links: make(map[string]map[string]string),
	}
}

// Register binds the socket to a peer id. An empty requested id gets a fresh
// one. A requested id that is still held is re-granted only when the token
// matches, which lets a client keep its identity across reconnects.
func (s *BrokerService) Register(ctx context.Context, peer *domain.Peer, requestedID, token string) error {
	const op = "service.broker.register"

	id := requestedID
	if id == "" {
		id = uuid.NewString()
	}
	if token == "" {
		token = uuid.NewString()
	}
	log := s.log.With(slog.String("op", op), slog.String("peer_id", id))

	peer.ID = id
	peer.Token = token

	err := s.peers.Register(ctx, peer)
	if errors.Is(err, repository.ErrPeerIDTaken) {
		current, getErr := s.peers.GetByID(ctx, id)
		if getErr != nil || current.Token != token {
			log.Info("peer id is held by another client")
			return ErrPeerIDTaken
		}
		if err := s.peers.Remove(ctx, current); err != nil {
			return err
		}
		current.Close()
		log.Info("peer id reclaimed by a new socket")
		err = s.peers.Register(ctx, peer)
	}
	if err != nil {
		if errors.Is(err, repository.ErrPeerIDTaken) {
			return ErrPeerIDTaken
		}
		log.Error("failed to register peer", sl.Err(err))
		return err
	}

	peer.SetStatus(domain.PeerStatusConnected)
	peer.EnqueueEvent(domain.SignalMessage{
		Type:     domain.EventOpen,
		PeerID:   id,
		Metadata: token,
	})
	log.Info("peer registered")
	return nil
}

// Unregister drops the registration and sends leave to every peer that still
// had an open connection with it. Stale sockets that lost their id to a
// reconnect are ignored.
func (s *BrokerService) Unregister(ctx context.Context, peer *domain.Peer) error {
	const op = "service.broker.unregister"
	log := s.log.With(slog.String("op", op), slog.String("peer_id", peer.ID))

	if err := s.peers.Remove(ctx, peer); err != nil {
		if errors.Is(err, repository.ErrPeerNotFound) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	links := s.links[peer.ID]
	delete(s.links, peer.ID)
	for connID, other := range links {
		if back := s.links[other]; back != nil {
			delete(back, connID)
			if len(back) == 0 {
				delete(s.links, other)
			}
		}
	}
	s.mu.Unlock()

	for connID, other := range links {
		target, err := s.peers.GetByID(ctx, other)
		if err != nil {
			continue
		}
		target.EnqueueEvent(domain.SignalMessage{
			Type:         domain.EventLeave,
			SenderID:     peer.ID,
			TargetID:     other,
			ConnectionID: connID,
		})
	}

	log.Info("peer unregistered", slog.Int("links_closed", len(links)))
	return nil
}

func (s *BrokerService) HandleSignal(ctx context.Context, peer *domain.Peer, message *domain.SignalMessage) error {
	const op = "service.broker.signal"
	if message == nil {
		return ErrMessageRequired
	}
	log := s.log.With(
		slog.String("op", op),
		slog.String("peer_id", peer.ID),
		slog.String("type", message.Type),
	)

	switch message.Type {
	case domain.EventOffer, domain.EventAnswer, domain.EventCandidate, domain.EventLeave:
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedSignal, message.Type)
	}
	if message.TargetID == "" {
		return ErrTargetRequired
	}

	peer.Touch()

	target, err := s.peers.GetByID(ctx, message.TargetID)
	if err != nil {
		if errors.Is(err, repository.ErrPeerNotFound) {
			log.Debug("target is gone", slog.String("target_id", message.TargetID))
			peer.EnqueueEvent(domain.SignalMessage{
				Type:         domain.EventExpire,
				PeerID:       message.TargetID,
				ConnectionID: message.ConnectionID,
			})
			return nil
		}
		return err
	}

	switch message.Type {
	case domain.EventOffer:
		s.link(peer.ID, target.ID, message.ConnectionID)
	case domain.EventLeave:
		s.unlink(peer.ID, target.ID, message.ConnectionID)
	}

	forward := *message
	forward.SenderID = peer.ID
	if !target.EnqueueEvent(forward) {
		log.Debug("dropping directed event", slog.String("target_id", target.ID))
	}
	return nil
}

func (s *BrokerService) link(a, b, connID string) {
	if connID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if s.links[pair[0]] == nil {
			s.links[pair[0]] = make(map[string]string)
		}
		s.links[pair[0]][connID] = pair[1]
	}
}

func (s *BrokerService) unlink(a, b, connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range []string{a, b} {
		if m := s.links[id]; m != nil {
			delete(m, connID)
			if len(m) == 0 {
				delete(s.links, id)
			}
		}
	}
}

// LinkCount reports how many open connections the broker tracks for a peer.
func (s *BrokerService) LinkCount(peerID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links[peerID])
}
