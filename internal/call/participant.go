package call

import (
	"fmt"

	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
)

type Direction int

const (
	Outbound Direction = iota
	Inbound
)

func (d Direction) String() string {
	if d == Inbound {
		return "inbound"
	}
	return "outbound"
}

// Participant is a remote peer with a live connection. The stream and the
// surface are set only while Connected.
type Participant struct {
	PeerID    string
	Direction Direction
	Conn      Connection

	state   domain.CallState
	stream  *media.Stream
	surface Surface
}

func newParticipant(peerID string, conn Connection, dir Direction) *Participant {
	return &Participant{
		PeerID:    peerID,
		Direction: dir,
		Conn:      conn,
		state:     domain.CallIdle,
	}
}

func (p *Participant) State() domain.CallState {
	return p.state
}

func (p *Participant) Stream() *media.Stream {
	return p.stream
}

func (p *Participant) Surface() Surface {
	return p.surface
}

func (p *Participant) transition(to domain.CallState) error {
	if !p.state.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, p.state, to)
	}
	p.state = to
	return nil
}

func (p *Participant) negotiate() error {
	return p.transition(domain.CallNegotiating)
}

func (p *Participant) connect(stream *media.Stream, surface Surface) error {
	if err := p.transition(domain.CallConnected); err != nil {
		return err
	}
	p.stream = stream
	p.surface = surface
	return nil
}

// close moves the participant to Closed and hands back the surface that
// must be released, if any.
func (p *Participant) close() (Surface, bool) {
	if err := p.transition(domain.CallClosed); err != nil {
		return "", false
	}
	surface, had := p.surface, p.surface != ""
	p.stream = nil
	p.surface = ""
	return surface, had
}
