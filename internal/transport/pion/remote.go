package pion

import (
	"sync"
	"sync/atomic"

	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/pion/webrtc/v3"
)

// RemoteTrack is a track received from a peer. Packets are consumed as they
// arrive; the terminal renderer only reports them.
type RemoteTrack struct {
	remote  *webrtc.TrackRemote
	kind    media.Kind
	enabled atomic.Bool
	packets atomic.Uint64
	bytes   atomic.Uint64

	stopOnce sync.Once
	stopped  chan struct{}

	mu      sync.Mutex
	ended   bool
	onEnded []func()
}

func newRemoteTrack(track *webrtc.TrackRemote) *RemoteTrack {
	kind := media.KindVideo
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = media.KindAudio
	}
	t := &RemoteTrack{
		remote:  track,
		kind:    kind,
		stopped: make(chan struct{}),
	}
	t.enabled.Store(true)
	return t
}

func (t *RemoteTrack) ID() string              { return t.remote.ID() }
func (t *RemoteTrack) Kind() media.Kind        { return t.kind }
func (t *RemoteTrack) Enabled() bool           { return t.enabled.Load() }
func (t *RemoteTrack) SetEnabled(enabled bool) { t.enabled.Store(enabled) }

// Codec is the negotiated mime type, e.g. video/VP8.
func (t *RemoteTrack) Codec() string {
	return t.remote.Codec().MimeType
}

func (t *RemoteTrack) Packets() uint64 { return t.packets.Load() }
func (t *RemoteTrack) Bytes() uint64   { return t.bytes.Load() }

func (t *RemoteTrack) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

func (t *RemoteTrack) OnEnded(fn func()) {
	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		go fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
	t.mu.Unlock()
}

func (t *RemoteTrack) drain() {
	buf := make([]byte, 1500)
	for {
		n, _, err := t.remote.Read(buf)
		if err != nil {
			break
		}
		select {
		case <-t.stopped:
			continue
		default:
		}
		t.packets.Add(1)
		t.bytes.Add(uint64(n))
	}

	t.mu.Lock()
	t.ended = true
	fns := t.onEnded
	t.onEnded = nil
	t.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
