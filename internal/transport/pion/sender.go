package pion

import (
	"fmt"
	"sync"

	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/pion/webrtc/v3"
)

// localTrack is a media track that can be bound to a peer connection.
type localTrack interface {
	media.Track
	Local() webrtc.TrackLocal
}

type sender struct {
	rtp *webrtc.RTPSender

	mu    sync.Mutex
	track media.Track
}

func (s *sender) Track() media.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// ReplaceTrack swaps the outgoing track on the existing transceiver, so
// the remote side keeps receiving on the same track without a new offer.
func (s *sender) ReplaceTrack(track media.Track) error {
	lt, ok := track.(localTrack)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedTrack, track.ID())
	}
	if err := s.rtp.ReplaceTrack(lt.Local()); err != nil {
		return fmt.Errorf("replace track: %w", err)
	}

	s.mu.Lock()
	s.track = track
	s.mu.Unlock()
	return nil
}

// drain reads RTCP so the interceptors keep working.
func (s *sender) drain() {
	buf := make([]byte, 1500)
	for {
		if _, _, err := s.rtp.Read(buf); err != nil {
			return
		}
	}
}
