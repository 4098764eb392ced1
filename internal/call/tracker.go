package call

import (
	"log/slog"
	"sort"

	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

// Tracker owns room membership: it announces this client to the room and
// keeps the table of remote participants keyed by peer id.
type Tracker struct {
	s            *Session
	participants map[string]*Participant
	// deferred holds peers that joined while the transport was down. The
	// relay does not announce them again, so they are called on reopen.
	deferred map[string]struct{}
}

// join announces the local peer to the room. It is sent on every relay or
// transport (re)connection; the relay treats repeats as no-ops.
func (t *Tracker) join() {
	s := t.s
	if !s.active() || s.myPeerID == "" || !s.relayUp {
		return
	}
	if err := s.relay.JoinRoom(s.roomID, s.myPeerID); err != nil {
		s.log.Warn("failed to join room", slog.String("peer_id", s.myPeerID), sl.Err(err))
	}
}

func (t *Tracker) peerJoined(peerID string) {
	const op = "call.tracker.peerJoined"
	s := t.s
	log := s.log.With(slog.String("op", op), slog.String("peer_id", peerID))

	if !s.active() || peerID == "" || peerID == s.myPeerID {
		return
	}
	if t.live(peerID) {
		log.Debug("duplicate join ignored")
		return
	}
	if !s.transportUp {
		log.Info("transport is down, call deferred")
		t.deferred[peerID] = struct{}{}
		return
	}
	s.controller.callOut(peerID)
}

// callDeferred calls the peers that joined while the transport was down and
// are still in the room.
func (t *Tracker) callDeferred() {
	ids := make([]string, 0, len(t.deferred))
	for id := range t.deferred {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		delete(t.deferred, id)
		t.peerJoined(id)
	}
}

// peerLeft tears the participant down once; later reports for the same
// departure find nothing to do.
func (t *Tracker) peerLeft(peerID string) {
	s := t.s
	delete(t.deferred, peerID)
	if s.pendingShareClaim == peerID {
		s.pendingShareClaim = ""
	}
	p := t.get(peerID)
	if p == nil {
		return
	}
	s.controller.teardown(p, "left the room")
}

func (t *Tracker) get(peerID string) *Participant {
	return t.participants[peerID]
}

func (t *Tracker) live(peerID string) bool {
	p := t.participants[peerID]
	return p != nil && p.State().Live()
}

func (t *Tracker) add(p *Participant) {
	t.participants[p.PeerID] = p
}

func (t *Tracker) remove(peerID string) {
	delete(t.participants, peerID)
}

func (t *Tracker) connectedCount() int {
	n := 0
	for _, p := range t.participants {
		if p.State() == domain.CallConnected {
			n++
		}
	}
	return n
}

// each visits the participants in peer id order over a snapshot, so fn may
// remove entries.
func (t *Tracker) each(fn func(*Participant)) {
	ids := make([]string, 0, len(t.participants))
	for id := range t.participants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if p := t.participants[id]; p != nil {
			fn(p)
		}
	}
}
