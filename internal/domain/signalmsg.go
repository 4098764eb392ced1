package domain

import "github.com/pion/webrtc/v3"

// Room relay events.
const (
	EventJoinRoom         = "join-room"
	EventUserConnected    = "user-connected"
	EventUserDisconnected = "user-disconnected"
	EventChangeLayout     = "change-layout"
	EventSurprise         = "surprise"
	EventLeave            = "leave"
	EventError            = "error"
)

// Peer broker events.
const (
	EventOpen      = "open"
	EventOffer     = "offer"
	EventAnswer    = "answer"
	EventCandidate = "candidate"
	EventExpire    = "expire"
)

// SignalMessage is the JSON envelope used on both the room relay socket and
// the peer broker socket. Unused fields are omitted on the wire.
type SignalMessage struct {
	Type         string                     `json:"type"`
	Room         string                     `json:"room,omitempty"`
	PeerID       string                     `json:"peer_id,omitempty"`
	SenderID     string                     `json:"sender_id,omitempty"`
	TargetID     string                     `json:"target_id,omitempty"`
	ConnectionID string                     `json:"connection_id,omitempty"`
	Metadata     string                     `json:"metadata,omitempty"`
	SDP          *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate    *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	Error        string                     `json:"error,omitempty"`
}

func ErrorMessage(err error) SignalMessage {
	return SignalMessage{Type: EventError, Error: err.Error()}
}
