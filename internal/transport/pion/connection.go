package pion

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/huddle/internal/call"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
	"github.com/pion/webrtc/v3"
)

// Connection is one peer connection with a remote peer id. Remote
// candidates that arrive before the remote description are held back, and
// local candidates are held until our offer or answer went out.
type Connection struct {
	t        *Transport
	id       string
	peerID   string
	metadata string
	pc       *webrtc.PeerConnection
	log      *slog.Logger

	remoteOffer *webrtc.SessionDescription

	mu            sync.Mutex
	senders       []*sender
	remote        *media.Stream
	onStream      func(*media.Stream)
	onClose       func()
	remoteSet     bool
	pendingRemote []webrtc.ICECandidateInit
	signaled      bool
	pendingLocal  []webrtc.ICECandidateInit
	closed        bool
}

var _ call.Connection = (*Connection)(nil)

func newConnection(t *Transport, connID, peerID, metadata string) (*Connection, error) {
	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	c := &Connection{
		t:        t,
		id:       connID,
		peerID:   peerID,
		metadata: metadata,
		pc:       pc,
		log:      t.log.With(slog.String("peer_id", peerID), slog.String("connection_id", connID)),
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.localCandidate(candidate.ToJSON())
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		c.log.Debug("connection state changed", slog.String("state", state.String()))
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			_ = c.closeWith(true)
		}
	})
	pc.OnTrack(c.remoteTrack)
	return c, nil
}

func (c *Connection) PeerID() string   { return c.peerID }
func (c *Connection) Metadata() string { return c.metadata }

// Answer binds stream to the connection and completes the negotiation
// started by the remote offer.
func (c *Connection) Answer(stream *media.Stream) error {
	if c.remoteOffer == nil {
		return errors.New("no remote offer to answer")
	}
	if err := c.addStream(stream); err != nil {
		return err
	}
	if err := c.setRemote(*c.remoteOffer); err != nil {
		return err
	}

	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	err = c.t.send(domain.SignalMessage{
		Type:         domain.EventAnswer,
		TargetID:     c.peerID,
		ConnectionID: c.id,
		SDP:          c.pc.LocalDescription(),
	})
	if err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	c.flushLocal()
	return nil
}

func (c *Connection) Senders() []call.Sender {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]call.Sender, 0, len(c.senders))
	for _, s := range c.senders {
		out = append(out, s)
	}
	return out
}

// OnStream registers fn for the remote stream. If the stream already
// arrived fn runs right away.
func (c *Connection) OnStream(fn func(*media.Stream)) {
	c.mu.Lock()
	c.onStream = fn
	remote := c.remote
	c.mu.Unlock()
	if remote != nil {
		fn(remote)
	}
}

func (c *Connection) OnClose(fn func()) {
	c.mu.Lock()
	closed := c.closed
	c.onClose = fn
	c.mu.Unlock()
	if closed {
		fn()
	}
}

// Close tells the remote side and releases the peer connection.
func (c *Connection) Close() error {
	return c.closeWith(true)
}

func (c *Connection) closeWith(notify bool) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	onClose := c.onClose
	remote := c.remote
	c.mu.Unlock()

	c.t.untrack(c)
	if notify {
		err := c.t.send(domain.SignalMessage{Type: domain.EventLeave, TargetID: c.peerID, ConnectionID: c.id})
		if err != nil {
			c.log.Debug("leave not delivered", sl.Err(err))
		}
	}
	if remote != nil {
		remote.Stop()
	}
	err := c.pc.Close()
	if onClose != nil {
		onClose()
	}
	return err
}

func (c *Connection) addStream(stream *media.Stream) error {
	if stream == nil {
		return nil
	}
	for _, track := range stream.Tracks() {
		lt, ok := track.(localTrack)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedTrack, track.ID())
		}
		rtp, err := c.pc.AddTrack(lt.Local())
		if err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
		s := &sender{rtp: rtp, track: track}
		go s.drain()

		c.mu.Lock()
		c.senders = append(c.senders, s)
		c.mu.Unlock()
	}
	return nil
}

func (c *Connection) offer() error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	err = c.t.send(domain.SignalMessage{
		Type:         domain.EventOffer,
		TargetID:     c.peerID,
		ConnectionID: c.id,
		Metadata:     c.metadata,
		SDP:          c.pc.LocalDescription(),
	})
	if err != nil {
		return fmt.Errorf("send offer: %w", err)
	}
	c.flushLocal()
	return nil
}

func (c *Connection) acceptAnswer(answer webrtc.SessionDescription) error {
	return c.setRemote(answer)
}

func (c *Connection) setRemote(desc webrtc.SessionDescription) error {
	if err := c.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}

	c.mu.Lock()
	c.remoteSet = true
	pending := c.pendingRemote
	c.pendingRemote = nil
	c.mu.Unlock()

	for _, candidate := range pending {
		if err := c.pc.AddICECandidate(candidate); err != nil {
			c.log.Debug("buffered candidate rejected", sl.Err(err))
		}
	}
	return nil
}

func (c *Connection) addCandidate(candidate webrtc.ICECandidateInit) error {
	c.mu.Lock()
	if !c.remoteSet {
		c.pendingRemote = append(c.pendingRemote, candidate)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.pc.AddICECandidate(candidate)
}

func (c *Connection) localCandidate(candidate webrtc.ICECandidateInit) {
	c.mu.Lock()
	if !c.signaled {
		c.pendingLocal = append(c.pendingLocal, candidate)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	c.sendCandidate(candidate)
}

func (c *Connection) flushLocal() {
	c.mu.Lock()
	c.signaled = true
	pending := c.pendingLocal
	c.pendingLocal = nil
	c.mu.Unlock()

	for _, candidate := range pending {
		c.sendCandidate(candidate)
	}
}

func (c *Connection) sendCandidate(candidate webrtc.ICECandidateInit) {
	err := c.t.send(domain.SignalMessage{
		Type:         domain.EventCandidate,
		TargetID:     c.peerID,
		ConnectionID: c.id,
		Candidate:    &candidate,
	})
	if err != nil {
		c.log.Debug("candidate not sent", sl.Err(err))
	}
}

// remoteTrack collects remote tracks into one stream. The stream is handed
// out with its first track; later tracks are added to it.
func (c *Connection) remoteTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	rt := newRemoteTrack(track)
	go rt.drain()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		rt.Stop()
		return
	}
	if c.remote != nil {
		c.remote.AddTrack(rt)
		c.mu.Unlock()
		return
	}
	c.remote = media.NewStream(track.StreamID(), rt)
	remote, fn := c.remote, c.onStream
	c.mu.Unlock()

	c.log.Info("remote stream arrived", slog.String("stream_id", track.StreamID()))
	if fn != nil {
		fn(remote)
	}
}
