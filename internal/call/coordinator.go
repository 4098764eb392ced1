package call

import (
	"log/slog"

	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

type claimSource int

const (
	claimFromRelay claimSource = iota
	claimFromMetadata
)

// Coordinator keeps one sharer for the whole room and swaps the outgoing
// video track on every connection when the local screen share starts or
// stops.
type Coordinator struct {
	s *Session
}

func (c *Coordinator) startShare() error {
	s := c.s
	switch {
	case !s.active():
		return ErrSessionClosed
	case s.myPeerID == "":
		return ErrNotRegistered
	case s.isScreensharing:
		return ErrAlreadySharing
	case s.sharePending:
		return ErrShareInProgress
	}

	s.sharePending = true
	s.controls()

	ctx := s.captureCtx
	s.spawn(func() {
		stream, err := s.devices.DisplayMedia(ctx)
		if !s.enqueue(func() { c.captureResolved(stream, err) }) && stream != nil {
			stream.Stop()
		}
	})
	return nil
}

func (c *Coordinator) captureResolved(stream *media.Stream, err error) {
	const op = "call.coordinator.captureResolved"
	s := c.s
	log := s.log.With(slog.String("op", op))

	s.sharePending = false
	if !s.active() {
		if stream != nil {
			stream.Stop()
		}
		return
	}
	if err != nil {
		log.Info("screen capture refused", sl.Err(err))
		s.controls()
		return
	}

	tracks := stream.VideoTracks()
	if len(tracks) == 0 {
		stream.Stop()
		log.Warn("screen capture failed", sl.Err(ErrNoVideoTrack))
		s.controls()
		return
	}
	screen := tracks[0]

	s.localScreenStream = stream
	s.isScreensharing = true
	s.shareAcked = false
	s.screensharingPeerID = s.myPeerID
	s.pendingShareClaim = ""

	s.tracker.each(func(p *Participant) { c.replaceVideo(p, screen) })

	screen.OnEnded(func() {
		s.enqueue(func() { c.captureEnded(stream) })
	})

	s.renderer.ShowSelf(stream, false)
	if err := s.relay.ChangeLayout(s.myPeerID); err != nil {
		log.Warn("failed to announce screen share", sl.Err(err))
	}
	s.relayout()
	s.controls()
	log.Info("screen share started")
}

func (c *Coordinator) captureEnded(stream *media.Stream) {
	if c.s.localScreenStream != stream {
		return
	}
	if err := c.stopShare(true); err != nil {
		c.s.log.Debug("stop after capture ended", sl.Err(err))
	}
}

// stopShare puts the camera back on every connection. With broadcast unset
// the room is not told, which is used when another peer took over.
func (c *Coordinator) stopShare(broadcast bool) error {
	const op = "call.coordinator.stopShare"
	s := c.s
	log := s.log.With(slog.String("op", op))

	if !s.active() {
		return ErrSessionClosed
	}
	if !s.isScreensharing {
		return ErrNotSharing
	}

	if cams := s.localStream.VideoTracks(); len(cams) > 0 {
		s.tracker.each(func(p *Participant) { c.replaceVideo(p, cams[0]) })
	}

	s.localScreenStream.Stop()
	s.localScreenStream = nil
	s.isScreensharing = false
	s.shareAcked = false
	if s.screensharingPeerID == s.myPeerID {
		s.screensharingPeerID = ""
	}

	s.renderer.ShowSelf(s.localStream, true)
	if broadcast {
		if err := s.relay.ChangeLayout(""); err != nil {
			log.Warn("failed to announce end of screen share", sl.Err(err))
		}
	}
	s.relayout()
	s.controls()
	log.Info("screen share stopped", slog.Bool("broadcast", broadcast))
	return nil
}

// pushScreen sends the current screen track to a connection that came up
// after the share started.
func (c *Coordinator) pushScreen(p *Participant) {
	s := c.s
	if !s.isScreensharing || s.localScreenStream == nil {
		return
	}
	if tracks := s.localScreenStream.VideoTracks(); len(tracks) > 0 {
		c.replaceVideo(p, tracks[0])
	}
}

// replaceVideo swaps the video sender's track. Failures stay local to the
// participant.
func (c *Coordinator) replaceVideo(p *Participant, track media.Track) {
	if !p.State().Live() {
		return
	}
	for _, sender := range p.Conn.Senders() {
		current := sender.Track()
		if current == nil || current.Kind() != media.KindVideo {
			continue
		}
		if current == track {
			return
		}
		if err := sender.ReplaceTrack(track); err != nil {
			c.s.log.Warn("replace track failed", slog.String("peer_id", p.PeerID), sl.Err(err))
		}
		return
	}
}

// remoteShareChanged applies a share claim. senderID is who made the claim
// and peerID is the claimed sharer, empty for "stopped sharing". A relay
// claim that is applied supersedes any claim still held for a peer that is
// not live yet.
func (c *Coordinator) remoteShareChanged(senderID, peerID string, source claimSource) {
	s := c.s
	if !s.active() {
		return
	}
	log := s.log.With(slog.String("sender_id", senderID), slog.String("sharer", peerID))
	supersede := func() {
		if source == claimFromRelay {
			s.pendingShareClaim = ""
		}
	}

	switch {
	case peerID == "":
		if source == claimFromMetadata || senderID == s.myPeerID {
			return
		}
		if s.screensharingPeerID == senderID {
			s.screensharingPeerID = ""
		}
		if s.pendingShareClaim == senderID {
			s.pendingShareClaim = ""
		}

	case peerID == s.myPeerID:
		if !s.isScreensharing {
			log.Debug("stale claim for the local peer ignored")
			return
		}
		if senderID == s.myPeerID {
			s.shareAcked = true
			supersede()
		}

	case !s.tracker.live(peerID):
		supersede()
		if source == claimFromRelay && senderID == peerID {
			s.pendingShareClaim = peerID
		}
		if !s.isScreensharing {
			s.screensharingPeerID = ""
		}

	case s.isScreensharing:
		if source == claimFromMetadata || !s.shareAcked {
			log.Debug("claim ordered before ours ignored")
			return
		}
		log.Info("remote peer took over the screen share")
		if err := c.stopShare(false); err != nil {
			log.Debug("yield share", sl.Err(err))
		}
		s.screensharingPeerID = peerID
		supersede()

	default:
		s.screensharingPeerID = peerID
		supersede()
	}

	s.relayout()
}
