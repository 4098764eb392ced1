package media

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

// LocalTrack is a sample based track that can be bound to any number of
// peer connections at once.
type LocalTrack struct {
	local *webrtc.TrackLocalStaticSample
	kind  Kind

	enabled  atomic.Bool
	stopOnce sync.Once
	stopped  chan struct{}

	mu      sync.Mutex
	ended   bool
	onEnded []func()
}

func NewLocalTrack(kind Kind, id, streamID string) (*LocalTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
	if kind == KindAudio {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	}

	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}

	t := &LocalTrack{
		local:   local,
		kind:    kind,
		stopped: make(chan struct{}),
	}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) ID() string {
	return t.local.ID()
}

func (t *LocalTrack) Kind() Kind {
	return t.kind
}

// Local returns the pion track to bind to peer connections.
func (t *LocalTrack) Local() webrtc.TrackLocal {
	return t.local
}

func (t *LocalTrack) Enabled() bool {
	return t.enabled.Load()
}

func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}

func (t *LocalTrack) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

// Done is closed once the track is stopped or its source ended.
func (t *LocalTrack) Done() <-chan struct{} {
	return t.stopped
}

// OnEnded registers fn for the end of the source. A callback registered
// after the source already ended runs right away on its own goroutine.
func (t *LocalTrack) OnEnded(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ended {
		go fn()
		return
	}
	t.onEnded = append(t.onEnded, fn)
}

// End marks the source as finished, runs the OnEnded callbacks once and
// stops the track. It does nothing after Stop.
func (t *LocalTrack) End() {
	select {
	case <-t.stopped:
		return
	default:
	}

	t.mu.Lock()
	if t.ended {
		t.mu.Unlock()
		return
	}
	t.ended = true
	callbacks := t.onEnded
	t.mu.Unlock()

	t.Stop()
	for _, fn := range callbacks {
		fn()
	}
}

// WriteSample forwards a sample to every bound connection. Samples written
// while the track is disabled are dropped.
func (t *LocalTrack) WriteSample(s pionmedia.Sample) error {
	select {
	case <-t.stopped:
		return ErrTrackStopped
	default:
	}
	if !t.Enabled() {
		return nil
	}
	return t.local.WriteSample(s)
}
