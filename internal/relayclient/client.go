// Package relayclient speaks the room relay protocol over a reconnecting
// websocket.
package relayclient

import (
	"context"
	"log/slog"
	"sync"

	"github.com/immxrtalbeast/huddle/internal/call"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/wsconn"
)

type Client struct {
	ws  *wsconn.Client
	log *slog.Logger

	mu       sync.Mutex
	listener call.RelayListener
}

var _ call.Relay = (*Client)(nil)

func New(relayURL string, opts wsconn.Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	c := &Client{
		ws:  wsconn.New(relayURL, opts, log),
		log: log.With(slog.String("component", "relay")),
	}
	c.ws.OnConnect(func() {
		if l := c.current(); l != nil {
			l.RelayConnected()
		}
	})
	c.ws.OnDisconnect(func(error) {
		if l := c.current(); l != nil {
			l.RelayDisconnected()
		}
	})
	c.ws.OnMessage(c.handle)
	return c
}

// Run keeps the relay connection up until ctx is done or Close is called.
func (c *Client) Run(ctx context.Context) error {
	return c.ws.Run(ctx)
}

func (c *Client) Subscribe(l call.RelayListener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()

	if c.ws.Connected() {
		l.RelayConnected()
	}
}

func (c *Client) JoinRoom(roomID, peerID string) error {
	return c.ws.Send(domain.SignalMessage{Type: domain.EventJoinRoom, Room: roomID, PeerID: peerID})
}

// ChangeLayout announces peerID as the room's sharer; empty means the
// sender stopped sharing.
func (c *Client) ChangeLayout(peerID string) error {
	return c.ws.Send(domain.SignalMessage{Type: domain.EventChangeLayout, PeerID: peerID})
}

func (c *Client) Surprise(peerID string) error {
	return c.ws.Send(domain.SignalMessage{Type: domain.EventSurprise, PeerID: peerID})
}

func (c *Client) Close() error {
	return c.ws.Close()
}

func (c *Client) current() call.RelayListener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

func (c *Client) handle(msg domain.SignalMessage) {
	l := c.current()
	if l == nil {
		return
	}

	switch msg.Type {
	case domain.EventUserConnected:
		l.UserConnected(msg.PeerID)
	case domain.EventUserDisconnected:
		l.UserDisconnected(msg.PeerID)
	case domain.EventChangeLayout:
		l.LayoutChanged(msg.SenderID, msg.PeerID)
	case domain.EventSurprise:
		peerID := msg.PeerID
		if peerID == "" {
			peerID = msg.SenderID
		}
		l.Surprised(peerID)
	case domain.EventError:
		c.log.Warn("relay rejected a message", slog.String("error", msg.Error))
	default:
		c.log.Debug("unknown relay event", slog.String("type", msg.Type))
	}
}
