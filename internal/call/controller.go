package call

import (
	"fmt"
	"log/slog"

	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

// Controller drives each participant through Idle, Negotiating, Connected
// and Closed. Connection callbacks are re-checked against the participant
// table because they may arrive after the connection was replaced or torn
// down.
type Controller struct {
	s *Session
}

func (c *Controller) callOut(peerID string) {
	const op = "call.controller.callOut"
	s := c.s
	log := s.log.With(slog.String("op", op), slog.String("peer_id", peerID))

	if !s.active() || s.localStream == nil {
		return
	}
	s.applyMute()

	conn, err := s.transport.Call(peerID, s.localStream, s.screensharingPeerID)
	if err != nil {
		log.Warn("call failed", sl.Err(err))
		return
	}

	p := newParticipant(peerID, conn, Outbound)
	if err := p.negotiate(); err != nil {
		log.Error("cannot start negotiation", sl.Err(err))
		_ = conn.Close()
		return
	}
	s.tracker.add(p)
	c.watch(p)
	log.Info("calling", slog.String("metadata", s.screensharingPeerID))
}

func (c *Controller) incoming(conn Connection) {
	const op = "call.controller.incoming"
	s := c.s
	peerID := conn.PeerID()
	log := s.log.With(slog.String("op", op), slog.String("peer_id", peerID))

	if !s.active() || s.localStream == nil {
		_ = conn.Close()
		return
	}
	if old := s.tracker.get(peerID); old != nil {
		log.Info("replacing existing connection")
		c.teardown(old, "replaced")
	}

	p := newParticipant(peerID, conn, Inbound)
	if err := p.negotiate(); err != nil {
		log.Error("cannot start negotiation", sl.Err(err))
		_ = conn.Close()
		return
	}
	s.tracker.add(p)
	c.watch(p)

	if err := conn.Answer(s.localStream); err != nil {
		log.Warn("answer failed", sl.Err(err))
		c.teardown(p, "answer failed")
		return
	}
	log.Info("answered", slog.String("metadata", conn.Metadata()))
}

func (c *Controller) watch(p *Participant) {
	s := c.s
	peerID, conn := p.PeerID, p.Conn
	conn.OnStream(func(stream *media.Stream) {
		s.enqueue(func() { c.streamArrived(peerID, conn, stream) })
	})
	conn.OnClose(func() {
		s.enqueue(func() { c.closed(peerID, conn) })
	})
}

func (c *Controller) streamArrived(peerID string, conn Connection, stream *media.Stream) {
	const op = "call.controller.streamArrived"
	s := c.s
	log := s.log.With(slog.String("op", op), slog.String("peer_id", peerID))

	if !s.active() {
		return
	}
	p := s.tracker.get(peerID)
	if p == nil || p.Conn != conn {
		log.Debug("stream for a stale connection")
		return
	}
	if p.State() != domain.CallNegotiating {
		return
	}

	surface := s.renderer.Attach(peerID, stream)
	if err := p.connect(stream, surface); err != nil {
		s.renderer.Detach(surface)
		log.Error("cannot connect participant", sl.Err(err))
		return
	}
	log.Info("participant connected", slog.String("direction", p.Direction.String()))

	if p.Direction == Inbound {
		s.coordinator.remoteShareChanged(peerID, conn.Metadata(), claimFromMetadata)
	}
	if s.pendingShareClaim == peerID {
		s.pendingShareClaim = ""
		s.coordinator.remoteShareChanged(peerID, peerID, claimFromRelay)
	}
	s.coordinator.pushScreen(p)
	s.relayout()
}

func (c *Controller) closed(peerID string, conn Connection) {
	p := c.s.tracker.get(peerID)
	if p == nil || p.Conn != conn {
		return
	}
	c.teardown(p, "connection closed")
}

// teardown removes the participant before closing its connection so that
// a synchronous close callback finds nothing left to do.
func (c *Controller) teardown(p *Participant, reason string) {
	err := c.release(p)
	if err != nil {
		c.s.log.Debug("close connection", slog.String("peer_id", p.PeerID), sl.Err(err))
	}
	c.s.log.Info("participant removed", slog.String("peer_id", p.PeerID), slog.String("reason", reason))
	c.s.relayout()
}

func (c *Controller) release(p *Participant) error {
	s := c.s
	if s.tracker.get(p.PeerID) == p {
		s.tracker.remove(p.PeerID)
	}
	if surface, ok := p.close(); ok {
		s.renderer.Detach(surface)
	}
	if s.screensharingPeerID == p.PeerID && p.PeerID != s.myPeerID {
		s.screensharingPeerID = ""
	}
	return p.Conn.Close()
}

func (c *Controller) teardownAll() []error {
	var errs []error
	c.s.tracker.each(func(p *Participant) {
		if err := c.release(p); err != nil {
			errs = append(errs, fmt.Errorf("close connection to %s: %w", p.PeerID, err))
		}
	})
	return errs
}
