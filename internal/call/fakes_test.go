package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/stretchr/testify/require"
)

type fakeTrack struct {
	id      string
	kind    media.Kind
	enabled bool
	stopped bool
	ended   []func()
}

func newFakeTrack(id string, kind media.Kind) *fakeTrack {
	return &fakeTrack{id: id, kind: kind, enabled: true}
}

func (t *fakeTrack) ID() string              { return t.id }
func (t *fakeTrack) Kind() media.Kind        { return t.kind }
func (t *fakeTrack) Enabled() bool           { return t.enabled }
func (t *fakeTrack) SetEnabled(enabled bool) { t.enabled = enabled }
func (t *fakeTrack) Stop()                   { t.stopped = true }
func (t *fakeTrack) OnEnded(fn func())       { t.ended = append(t.ended, fn) }

func (t *fakeTrack) end() {
	for _, fn := range t.ended {
		fn()
	}
}

type fakeSender struct {
	track    media.Track
	fail     error
	replaced int
}

func (s *fakeSender) Track() media.Track { return s.track }

func (s *fakeSender) ReplaceTrack(track media.Track) error {
	if s.fail != nil {
		return s.fail
	}
	s.track = track
	s.replaced++
	return nil
}

type fakeConn struct {
	peerID    string
	metadata  string
	stream    *media.Stream
	senders   []*fakeSender
	onStream  func(*media.Stream)
	onClose   func()
	closeRan  bool
	closed    int
	answered  *media.Stream
	answerErr error
}

func newFakeConn(peerID, metadata string, stream *media.Stream) *fakeConn {
	c := &fakeConn{peerID: peerID, metadata: metadata, stream: stream}
	c.bind(stream)
	return c
}

func (c *fakeConn) bind(stream *media.Stream) {
	if stream == nil {
		return
	}
	for _, t := range stream.Tracks() {
		c.senders = append(c.senders, &fakeSender{track: t})
	}
}

func (c *fakeConn) PeerID() string   { return c.peerID }
func (c *fakeConn) Metadata() string { return c.metadata }

func (c *fakeConn) Answer(stream *media.Stream) error {
	c.answered = stream
	c.bind(stream)
	return c.answerErr
}

func (c *fakeConn) Senders() []Sender {
	out := make([]Sender, 0, len(c.senders))
	for _, s := range c.senders {
		out = append(out, s)
	}
	return out
}

func (c *fakeConn) OnStream(fn func(*media.Stream)) { c.onStream = fn }
func (c *fakeConn) OnClose(fn func())               { c.onClose = fn }

func (c *fakeConn) Close() error {
	c.closed++
	c.fireClose()
	return nil
}

func (c *fakeConn) fireClose() {
	if c.closeRan || c.onClose == nil {
		return
	}
	c.closeRan = true
	c.onClose()
}

func (c *fakeConn) deliver(stream *media.Stream) {
	c.onStream(stream)
}

func (c *fakeConn) videoTrack() media.Track {
	for _, s := range c.senders {
		if s.track != nil && s.track.Kind() == media.KindVideo {
			return s.track
		}
	}
	return nil
}

func (c *fakeConn) videoSender() *fakeSender {
	for _, s := range c.senders {
		if s.track != nil && s.track.Kind() == media.KindVideo {
			return s
		}
	}
	return nil
}

type fakeTransport struct {
	listener TransportListener
	calls    []*fakeConn
	openErr  error
	callErr  error
	closed   int
}

func (t *fakeTransport) Open(_ context.Context, l TransportListener) error {
	t.listener = l
	return t.openErr
}

func (t *fakeTransport) Call(peerID string, stream *media.Stream, metadata string) (Connection, error) {
	if t.callErr != nil {
		return nil, t.callErr
	}
	c := newFakeConn(peerID, metadata, stream)
	t.calls = append(t.calls, c)
	return c, nil
}

func (t *fakeTransport) Close() error {
	t.closed++
	return nil
}

func (t *fakeTransport) callsTo(peerID string) []*fakeConn {
	var out []*fakeConn
	for _, c := range t.calls {
		if c.peerID == peerID {
			out = append(out, c)
		}
	}
	return out
}

func (t *fakeTransport) lastCallTo(peerID string) *fakeConn {
	calls := t.callsTo(peerID)
	if len(calls) == 0 {
		return nil
	}
	return calls[len(calls)-1]
}

type fakeRelay struct {
	listener  RelayListener
	joins     []string
	layouts   []string
	surprises []string
	closed    int
}

func (r *fakeRelay) Subscribe(l RelayListener) { r.listener = l }

func (r *fakeRelay) JoinRoom(roomID, peerID string) error {
	r.joins = append(r.joins, roomID+"/"+peerID)
	return nil
}

func (r *fakeRelay) ChangeLayout(peerID string) error {
	r.layouts = append(r.layouts, peerID)
	return nil
}

func (r *fakeRelay) Surprise(peerID string) error {
	r.surprises = append(r.surprises, peerID)
	return nil
}

func (r *fakeRelay) Close() error {
	r.closed++
	return nil
}

type fakeDevices struct {
	user       *media.Stream
	userErr    error
	display    *media.Stream
	displayErr error
	displays   int
}

func (d *fakeDevices) UserMedia(context.Context) (*media.Stream, error) {
	return d.user, d.userErr
}

func (d *fakeDevices) DisplayMedia(context.Context) (*media.Stream, error) {
	d.displays++
	if d.displayErr != nil {
		return nil, d.displayErr
	}
	return d.display, nil
}

type fakeRenderer struct {
	self      *media.Stream
	mirrored  bool
	next      int
	attached  map[Surface]string
	attaches  map[string]int
	detaches  map[string]int
	layouts   []domain.Layout
	blocked   error
	controls  []ControlState
	surprises []string
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		attached: make(map[Surface]string),
		attaches: make(map[string]int),
		detaches: make(map[string]int),
	}
}

func (r *fakeRenderer) ShowSelf(stream *media.Stream, mirrored bool) {
	r.self, r.mirrored = stream, mirrored
}

func (r *fakeRenderer) Attach(peerID string, _ *media.Stream) Surface {
	r.next++
	surface := Surface(fmt.Sprintf("%s#%d", peerID, r.next))
	r.attached[surface] = peerID
	r.attaches[peerID]++
	return surface
}

func (r *fakeRenderer) Detach(surface Surface) {
	peerID, ok := r.attached[surface]
	if !ok {
		panic("detach of unknown surface " + string(surface))
	}
	delete(r.attached, surface)
	r.detaches[peerID]++
}

func (r *fakeRenderer) ApplyLayout(layout domain.Layout) { r.layouts = append(r.layouts, layout) }
func (r *fakeRenderer) ShowMediaBlocked(err error)       { r.blocked = err }
func (r *fakeRenderer) Controls(state ControlState)      { r.controls = append(r.controls, state) }
func (r *fakeRenderer) Surprise(peerID string)           { r.surprises = append(r.surprises, peerID) }

func (r *fakeRenderer) layout() domain.Layout {
	if len(r.layouts) == 0 {
		return domain.Layout{}
	}
	return r.layouts[len(r.layouts)-1]
}

func (r *fakeRenderer) lastControls() ControlState {
	if len(r.controls) == 0 {
		return ControlState{}
	}
	return r.controls[len(r.controls)-1]
}

type harness struct {
	s         *Session
	relay     *fakeRelay
	transport *fakeTransport
	devices   *fakeDevices
	renderer  *fakeRenderer

	camera *fakeTrack
	mic    *fakeTrack
	screen *fakeTrack
}

const testRoom = "room-1"

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		relay:     &fakeRelay{},
		transport: &fakeTransport{},
		renderer:  newFakeRenderer(),
		camera:    newFakeTrack("camera", media.KindVideo),
		mic:       newFakeTrack("mic", media.KindAudio),
		screen:    newFakeTrack("screen", media.KindVideo),
	}
	h.devices = &fakeDevices{
		user:    media.NewStream("local", h.mic, h.camera),
		display: media.NewStream("display", h.screen),
	}

	s, err := NewSession(Options{
		RoomID:    testRoom,
		Relay:     h.relay,
		Transport: h.transport,
		Devices:   h.devices,
		Renderer:  h.renderer,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	s.post = func(fn func()) bool {
		fn()
		return true
	}
	s.spawn = func(fn func()) { fn() }
	h.s = s
	return h
}

// start brings the session up with both relay and transport connected.
func (h *harness) start(t *testing.T, myID string) {
	t.Helper()
	require.NoError(t, h.s.Start(context.Background()))
	h.relay.listener.RelayConnected()
	h.transport.listener.TransportOpened(myID)
}

func remoteStream(peerID string) *media.Stream {
	return media.NewStream("remote-"+peerID,
		newFakeTrack(peerID+"-audio", media.KindAudio),
		newFakeTrack(peerID+"-video", media.KindVideo),
	)
}

// connectOut plays a remote join followed by the remote stream arriving.
func (h *harness) connectOut(t *testing.T, peerID string) *fakeConn {
	t.Helper()
	h.relay.listener.UserConnected(peerID)
	conn := h.transport.lastCallTo(peerID)
	require.NotNil(t, conn, "no call placed to %s", peerID)
	conn.deliver(remoteStream(peerID))
	return conn
}

// connectIn plays an incoming call from peerID followed by its stream.
func (h *harness) connectIn(t *testing.T, peerID, metadata string) *fakeConn {
	t.Helper()
	conn := newFakeConn(peerID, metadata, nil)
	h.transport.listener.IncomingCall(conn)
	if conn.onStream != nil {
		conn.deliver(remoteStream(peerID))
	}
	return conn
}

func (h *harness) snapshot(t *testing.T) Snapshot {
	t.Helper()
	snap, err := h.s.Snapshot()
	require.NoError(t, err)
	return snap
}

func participantIDs(snap Snapshot) []string {
	ids := make([]string, 0, len(snap.Participants))
	for _, p := range snap.Participants {
		ids = append(ids, p.PeerID)
	}
	return ids
}

var errBoom = errors.New("boom")
