package domain

import (
	"sync"
	"time"
)

type PeerStatus string

const (
	PeerStatusConnected    PeerStatus = "connected"
	PeerStatusConnecting   PeerStatus = "connecting"
	PeerStatusDisconnected PeerStatus = "disconnected"
)

// Peer is one websocket endpoint known to the relay: a room member on the
// relay socket or a registered transport identity on the broker socket.
type Peer struct {
	ID     string
	RoomID string
	// Token proves ownership of ID when a broker registration is reclaimed.
	Token    string
	Status   PeerStatus
	JoinedAt time.Time
	LastSeen time.Time
	Mutex    sync.RWMutex
	Events   chan SignalMessage

	closed bool
}

func NewPeer(buffer int) *Peer {
	if buffer <= 0 {
		buffer = 16
	}
	now := time.Now().UTC()
	return &Peer{
		Status:   PeerStatusConnecting,
		JoinedAt: now,
		LastSeen: now,
		Events:   make(chan SignalMessage, buffer),
	}
}

func (p *Peer) Touch() {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.LastSeen = time.Now().UTC()
}

// EnqueueEvent queues an outbound message without blocking. It reports false
// when the queue is full or the peer is already closed.
func (p *Peer) EnqueueEvent(event SignalMessage) bool {
	p.Mutex.RLock()
	defer p.Mutex.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.Events <- event:
		return true
	default:
		return false
	}
}

func (p *Peer) SetStatus(status PeerStatus) {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	p.Status = status
}

// Close marks the peer disconnected and closes its event queue once.
func (p *Peer) Close() {
	p.Mutex.Lock()
	defer p.Mutex.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.Status = PeerStatusDisconnected
	close(p.Events)
}
