package call

import (
	"context"

	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
)

// Relay is the room relay connection. Subscribe must report RelayConnected
// right away when the connection is already up.
type Relay interface {
	Subscribe(l RelayListener)
	JoinRoom(roomID, peerID string) error
	ChangeLayout(peerID string) error
	Surprise(peerID string) error
	Close() error
}

type RelayListener interface {
	RelayConnected()
	RelayDisconnected()
	UserConnected(peerID string)
	UserDisconnected(peerID string)
	LayoutChanged(senderID, peerID string)
	Surprised(peerID string)
}

// Transport registers this client under a peer id and places or accepts
// media connections to other peer ids.
type Transport interface {
	Open(ctx context.Context, l TransportListener) error
	Call(peerID string, stream *media.Stream, metadata string) (Connection, error)
	Close() error
}

type TransportListener interface {
	TransportOpened(peerID string)
	TransportDisconnected()
	IncomingCall(conn Connection)
}

// Connection is one media connection to a remote peer. OnStream and OnClose
// handlers may run on any goroutine.
type Connection interface {
	PeerID() string
	Metadata() string
	Answer(stream *media.Stream) error
	Senders() []Sender
	OnStream(fn func(*media.Stream))
	OnClose(fn func())
	Close() error
}

// Sender swaps the outgoing track in place without renegotiation.
type Sender interface {
	Track() media.Track
	ReplaceTrack(track media.Track) error
}

type MediaDevices interface {
	UserMedia(ctx context.Context) (*media.Stream, error)
	DisplayMedia(ctx context.Context) (*media.Stream, error)
}

// Surface is the renderer's handle for a remote stream on screen.
type Surface string

type ControlState struct {
	Sharing      bool
	SharePending bool
	Muted        bool
}

type Renderer interface {
	ShowSelf(stream *media.Stream, mirrored bool)
	Attach(peerID string, stream *media.Stream) Surface
	Detach(surface Surface)
	ApplyLayout(layout domain.Layout)
	ShowMediaBlocked(err error)
	Controls(state ControlState)
	Surprise(peerID string)
}
