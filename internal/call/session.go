package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

type sessionState int

const (
	sessionIdle sessionState = iota
	sessionActive
	sessionClosed
)

type Options struct {
	RoomID    string
	Relay     Relay
	Transport Transport
	Devices   MediaDevices
	Renderer  Renderer
	Log       *slog.Logger
}

// Session is the local side of a call in one room. It owns the local
// session state and every participant; all of it is touched only from the
// session loop, which adapters reach by posting events.
type Session struct {
	roomID              string
	myPeerID            string
	localStream         *media.Stream
	localScreenStream   *media.Stream
	isScreensharing     bool
	screensharingPeerID string

	// shareAcked is set once the relay echoed our own share claim.
	shareAcked   bool
	sharePending bool
	// pendingShareClaim is a relay share claim for a peer whose connection
	// is not live yet.
	pendingShareClaim string
	muted             bool
	state             sessionState
	relayUp           bool
	transportUp       bool

	tracker     *Tracker
	controller  *Controller
	coordinator *Coordinator

	relay     Relay
	transport Transport
	devices   MediaDevices
	renderer  Renderer
	log       *slog.Logger

	captureCtx context.Context
	loop       *loop
	post       func(func()) bool
	spawn      func(func())
	done       chan struct{}
	doneOnce   sync.Once
}

func NewSession(opts Options) (*Session, error) {
	if err := domain.ValidateRoomID(opts.RoomID); err != nil {
		return nil, err
	}
	if opts.Relay == nil || opts.Transport == nil || opts.Devices == nil || opts.Renderer == nil {
		return nil, errors.New("relay, transport, devices and renderer are required")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	s := &Session{
		roomID:     opts.RoomID,
		relay:      opts.Relay,
		transport:  opts.Transport,
		devices:    opts.Devices,
		renderer:   opts.Renderer,
		log:        log.With(slog.String("room_id", opts.RoomID)),
		captureCtx: context.Background(),
		loop:       newLoop(),
		done:       make(chan struct{}),
	}
	s.post = s.loop.post
	s.spawn = func(fn func()) { go fn() }
	s.tracker = &Tracker{
		s:            s,
		participants: make(map[string]*Participant),
		deferred:     make(map[string]struct{}),
	}
	s.controller = &Controller{s: s}
	s.coordinator = &Coordinator{s: s}
	return s, nil
}

// Run drives the session loop until the session is left or ctx is
// cancelled. Cancelling ctx leaves the call.
func (s *Session) Run(ctx context.Context) error {
	if err := s.loop.run(ctx, s.done); err != nil {
		if exitErr := s.exit(); exitErr != nil {
			s.log.Warn("leave finished with errors", sl.Err(exitErr))
		}
		s.finish()
		s.loop.shutdown()
	}
	return nil
}

// Done is closed after the session has been left.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start acquires the camera and microphone, then registers with the
// transport. Room membership follows once both the relay and the transport
// are up. A refused capture shows the blocked view and returns
// ErrMediaBlocked.
func (s *Session) Start(ctx context.Context) error {
	stream, err := s.devices.UserMedia(ctx)
	if err != nil {
		s.enqueue(func() { s.renderer.ShowMediaBlocked(err) })
		return fmt.Errorf("%w: %w", ErrMediaBlocked, err)
	}

	err = s.call(func() error { return s.begin(ctx, stream) })
	if err != nil {
		stream.Stop()
	}
	return err
}

func (s *Session) StartShare() error {
	return s.call(s.coordinator.startShare)
}

func (s *Session) StopShare() error {
	return s.call(func() error { return s.coordinator.stopShare(true) })
}

func (s *Session) ToggleShare() error {
	return s.call(func() error {
		if s.isScreensharing {
			return s.coordinator.stopShare(true)
		}
		return s.coordinator.startShare()
	})
}

// ToggleMute flips the local microphone and reports whether it is now
// muted.
func (s *Session) ToggleMute() (bool, error) {
	var muted bool
	err := s.call(func() error {
		if !s.active() {
			return ErrSessionClosed
		}
		s.muted = !s.muted
		s.applyMute()
		s.controls()
		muted = s.muted
		return nil
	})
	return muted, err
}

func (s *Session) SendSurprise() error {
	return s.call(func() error {
		if !s.active() || s.myPeerID == "" {
			return ErrSessionClosed
		}
		return s.relay.Surprise(s.myPeerID)
	})
}

// Leave ends the call: every track is stopped, every connection closed and
// both the relay and the transport are released. Calling it again is a
// no-op.
func (s *Session) Leave() error {
	err := s.call(s.exit)
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	return err
}

type ParticipantInfo struct {
	PeerID    string
	State     domain.CallState
	Direction Direction
}

type Snapshot struct {
	PeerID       string
	Active       bool
	Sharing      bool
	SharerID     string
	Muted        bool
	Participants []ParticipantInfo
}

func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.call(func() error {
		snap = Snapshot{
			PeerID:   s.myPeerID,
			Active:   s.active(),
			Sharing:  s.isScreensharing,
			SharerID: s.screensharingPeerID,
			Muted:    s.muted,
		}
		s.tracker.each(func(p *Participant) {
			snap.Participants = append(snap.Participants, ParticipantInfo{
				PeerID:    p.PeerID,
				State:     p.State(),
				Direction: p.Direction,
			})
		})
		return nil
	})
	return snap, err
}

func (s *Session) begin(ctx context.Context, stream *media.Stream) error {
	switch s.state {
	case sessionActive:
		return ErrSessionStarted
	case sessionClosed:
		return ErrSessionClosed
	}

	s.state = sessionActive
	s.captureCtx = context.WithoutCancel(ctx)
	s.localStream = stream
	s.applyMute()
	s.renderer.ShowSelf(stream, true)
	s.relayout()
	s.controls()

	listener := &events{s: s}
	s.relay.Subscribe(listener)
	if err := s.transport.Open(ctx, listener); err != nil {
		s.state = sessionIdle
		s.localStream = nil
		return fmt.Errorf("open transport: %w", err)
	}
	s.log.Info("session started")
	return nil
}

func (s *Session) exit() error {
	if s.state == sessionClosed {
		return nil
	}
	s.state = sessionClosed

	var errs []error
	if s.localScreenStream != nil {
		s.localScreenStream.Stop()
		s.localScreenStream = nil
	}
	s.isScreensharing = false
	s.shareAcked = false
	s.sharePending = false
	if s.localStream != nil {
		s.localStream.Stop()
	}

	errs = append(errs, s.controller.teardownAll()...)
	s.screensharingPeerID = ""
	s.pendingShareClaim = ""
	clear(s.tracker.deferred)

	if err := s.relay.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close relay: %w", err))
	}
	if err := s.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}

	s.log.Info("left the call", slog.Int("errors", len(errs)))
	return errors.Join(errs...)
}

func (s *Session) active() bool {
	return s.state == sessionActive
}

// enqueue posts fn to the loop and closes Done once fn has left the call.
func (s *Session) enqueue(fn func()) bool {
	return s.post(func() {
		fn()
		if s.state == sessionClosed {
			s.finish()
		}
	})
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// call runs fn on the loop and waits for its result.
func (s *Session) call(fn func() error) error {
	errc := make(chan error, 1)
	if !s.enqueue(func() { errc <- fn() }) {
		return ErrSessionClosed
	}
	select {
	case err := <-errc:
		return err
	case <-s.done:
		select {
		case err := <-errc:
			return err
		default:
			return ErrSessionClosed
		}
	}
}

func (s *Session) onRelayConnected() {
	if !s.active() {
		return
	}
	s.relayUp = true
	s.tracker.join()
}

func (s *Session) onRelayDisconnected() {
	s.relayUp = false
	s.log.Info("relay connection lost")
}

func (s *Session) onTransportOpened(peerID string) {
	if !s.active() {
		return
	}
	if s.myPeerID != "" && s.myPeerID != peerID {
		s.log.Warn("transport identity changed", slog.String("old", s.myPeerID), slog.String("new", peerID))
		if s.isScreensharing {
			s.screensharingPeerID = peerID
		}
	}
	s.myPeerID = peerID
	s.transportUp = true
	s.log.Info("transport open", slog.String("peer_id", peerID))
	s.tracker.join()
	s.tracker.callDeferred()
	s.relayout()
}

func (s *Session) onTransportDisconnected() {
	s.transportUp = false
	s.log.Info("transport connection lost, outbound calls deferred")
}

func (s *Session) onSurprised(peerID string) {
	if !s.active() {
		return
	}
	if peerID != s.myPeerID && !s.tracker.live(peerID) {
		return
	}
	s.renderer.Surprise(peerID)
}

func (s *Session) applyMute() {
	if s.localStream == nil {
		return
	}
	for _, t := range s.localStream.AudioTracks() {
		t.SetEnabled(!s.muted)
	}
}

func (s *Session) controls() {
	s.renderer.Controls(ControlState{
		Sharing:      s.isScreensharing,
		SharePending: s.sharePending,
		Muted:        s.muted,
	})
}

// relayout drops a sharer that is no longer valid and pushes the layout for
// the current state to the renderer.
func (s *Session) relayout() {
	switch sharer := s.screensharingPeerID; {
	case sharer == "":
	case sharer == s.myPeerID:
		if !s.isScreensharing {
			s.screensharingPeerID = ""
		}
	case !s.tracker.live(sharer):
		s.screensharingPeerID = ""
	}
	s.renderer.ApplyLayout(domain.ComputeLayout(s.tracker.connectedCount(), s.screensharingPeerID, s.myPeerID))
}

// events adapts relay and transport callbacks onto the session loop.
type events struct {
	s *Session
}

func (e *events) RelayConnected()    { e.s.enqueue(e.s.onRelayConnected) }
func (e *events) RelayDisconnected() { e.s.enqueue(e.s.onRelayDisconnected) }

func (e *events) UserConnected(peerID string) {
	e.s.enqueue(func() { e.s.tracker.peerJoined(peerID) })
}

func (e *events) UserDisconnected(peerID string) {
	e.s.enqueue(func() { e.s.tracker.peerLeft(peerID) })
}

func (e *events) LayoutChanged(senderID, peerID string) {
	e.s.enqueue(func() { e.s.coordinator.remoteShareChanged(senderID, peerID, claimFromRelay) })
}

func (e *events) Surprised(peerID string) {
	e.s.enqueue(func() { e.s.onSurprised(peerID) })
}

func (e *events) TransportOpened(peerID string) {
	e.s.enqueue(func() { e.s.onTransportOpened(peerID) })
}

func (e *events) TransportDisconnected() { e.s.enqueue(e.s.onTransportDisconnected) }

func (e *events) IncomingCall(conn Connection) {
	e.s.enqueue(func() { e.s.controller.incoming(conn) })
}
