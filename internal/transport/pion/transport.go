// Package pion implements the call transport on pion/webrtc peer
// connections negotiated through the peer broker.
package pion

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/huddle/internal/call"
	"github.com/immxrtalbeast/huddle/internal/config"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/media"
	"github.com/immxrtalbeast/huddle/internal/wsconn"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
	"github.com/pion/ice/v2"
	"github.com/pion/webrtc/v3"
)

var (
	ErrUnsupportedTrack = errors.New("track cannot be sent over webrtc")
	ErrTransportClosed  = errors.New("transport closed")
)

// Transport registers with the peer broker and owns every peer connection
// it placed or accepted.
type Transport struct {
	ws     *wsconn.Client
	api    *webrtc.API
	config webrtc.Configuration
	log    *slog.Logger

	mu         sync.Mutex
	listener   call.TransportListener
	peerID     string
	token      string
	registered bool
	closed     bool
	conns      map[string]*Connection
}

var _ call.Transport = (*Transport)(nil)

func New(brokerURL string, cfg config.WebRTCConfig, opts wsconn.Options, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	t := &Transport{
		api:    NewAPI(cfg),
		config: webrtc.Configuration{ICEServers: ICEServers(cfg)},
		log:    log.With(slog.String("component", "transport")),
		conns:  make(map[string]*Connection),
	}
	opts.Query = t.credentials
	t.ws = wsconn.New(brokerURL, opts, log)
	t.ws.OnMessage(t.handle)
	t.ws.OnDisconnect(t.disconnected)
	return t
}

// NewAPI builds a pion API shared by every peer connection of the client.
func NewAPI(cfg config.WebRTCConfig) *webrtc.API {
	settings := webrtc.SettingEngine{}
	mode := ice.MulticastDNSModeQueryOnly
	if cfg.MDNSCandidates {
		mode = ice.MulticastDNSModeQueryAndGather
	}
	settings.SetICEMulticastDNSMode(mode)
	settings.SetICETimeouts(5*time.Second, 25*time.Second, 2*time.Second)

	return webrtc.NewAPI(webrtc.WithSettingEngine(settings))
}

func ICEServers(cfg config.WebRTCConfig) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if len(cfg.STUNServers) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: cfg.STUNServers})
	}
	if cfg.TURNServer != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:       []string{cfg.TURNServer},
			Username:   cfg.TURNUser,
			Credential: cfg.TURNPassword,
		})
	}
	return servers
}

// Open starts the broker connection in the background. The listener hears
// TransportOpened every time the broker (re)grants an id.
func (t *Transport) Open(ctx context.Context, l call.TransportListener) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	t.listener = l
	t.mu.Unlock()

	go func() {
		if err := t.ws.Run(ctx); err != nil {
			t.log.Warn("broker connection ended", sl.Err(err))
		}
	}()
	return nil
}

// PeerID is the id the broker granted last, empty before the first open.
func (t *Transport) PeerID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peerID
}

// Call places an outbound connection carrying stream. metadata travels with
// the offer.
func (t *Transport) Call(peerID string, stream *media.Stream, metadata string) (call.Connection, error) {
	const op = "transport.pion.Call"
	log := t.log.With(slog.String("op", op), slog.String("peer_id", peerID))

	t.mu.Lock()
	registered, closed := t.registered, t.closed
	t.mu.Unlock()
	switch {
	case closed:
		return nil, ErrTransportClosed
	case !registered:
		return nil, call.ErrNotRegistered
	}

	conn, err := newConnection(t, uuid.NewString(), peerID, metadata)
	if err != nil {
		return nil, err
	}
	if err := conn.addStream(stream); err != nil {
		_ = conn.closeWith(false)
		return nil, err
	}
	t.track(conn)

	if err := conn.offer(); err != nil {
		log.Warn("offer failed", sl.Err(err))
		_ = conn.Close()
		return nil, err
	}
	log.Debug("offer sent", slog.String("connection_id", conn.id))
	return conn, nil
}

// Close drops every peer connection and the broker socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conns := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := t.ws.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (t *Transport) credentials() url.Values {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := url.Values{}
	if t.peerID != "" {
		q.Set("id", t.peerID)
		q.Set("token", t.token)
	}
	return q
}

func (t *Transport) send(msg domain.SignalMessage) error {
	return t.ws.Send(msg)
}

func (t *Transport) track(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[c.id] = c
}

func (t *Transport) untrack(c *Connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[c.id] == c {
		delete(t.conns, c.id)
	}
}

func (t *Transport) lookup(connID string) *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conns[connID]
}

func (t *Transport) currentListener() call.TransportListener {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.listener
}

func (t *Transport) disconnected(error) {
	t.mu.Lock()
	wasRegistered := t.registered
	t.registered = false
	l := t.listener
	t.mu.Unlock()

	if wasRegistered && l != nil {
		l.TransportDisconnected()
	}
}

func (t *Transport) handle(msg domain.SignalMessage) {
	const op = "transport.pion.handle"
	log := t.log.With(slog.String("op", op), slog.String("type", msg.Type))

	switch msg.Type {
	case domain.EventOpen:
		t.mu.Lock()
		t.peerID, t.token, t.registered = msg.PeerID, msg.Metadata, true
		l := t.listener
		t.mu.Unlock()
		log.Info("registered with broker", slog.String("peer_id", msg.PeerID))
		if l != nil {
			l.TransportOpened(msg.PeerID)
		}

	case domain.EventOffer:
		t.incoming(msg)

	case domain.EventAnswer:
		c := t.lookup(msg.ConnectionID)
		if c == nil || msg.SDP == nil {
			log.Debug("answer for unknown connection", slog.String("connection_id", msg.ConnectionID))
			return
		}
		if err := c.acceptAnswer(*msg.SDP); err != nil {
			log.Warn("cannot apply answer", sl.Err(err))
			_ = c.Close()
		}

	case domain.EventCandidate:
		if c := t.lookup(msg.ConnectionID); c != nil && msg.Candidate != nil {
			if err := c.addCandidate(*msg.Candidate); err != nil {
				log.Debug("cannot add candidate", sl.Err(err))
			}
		}

	case domain.EventLeave, domain.EventExpire:
		if c := t.lookup(msg.ConnectionID); c != nil {
			_ = c.closeWith(false)
		}

	case domain.EventError:
		t.mu.Lock()
		if !t.registered {
			// The broker refused our id; ask for a fresh one on the next dial.
			t.peerID, t.token = "", ""
		}
		t.mu.Unlock()
		log.Warn("broker error", slog.String("error", msg.Error))

	default:
		log.Debug("unknown broker event")
	}
}

func (t *Transport) incoming(msg domain.SignalMessage) {
	const op = "transport.pion.incoming"
	log := t.log.With(slog.String("op", op), slog.String("peer_id", msg.SenderID))

	if msg.SDP == nil || msg.ConnectionID == "" || msg.SenderID == "" {
		log.Debug("malformed offer dropped")
		return
	}
	l := t.currentListener()
	if l == nil {
		return
	}

	conn, err := newConnection(t, msg.ConnectionID, msg.SenderID, msg.Metadata)
	if err != nil {
		log.Warn("cannot accept call", sl.Err(err))
		_ = t.send(domain.SignalMessage{Type: domain.EventLeave, TargetID: msg.SenderID, ConnectionID: msg.ConnectionID})
		return
	}
	conn.remoteOffer = msg.SDP
	t.track(conn)
	l.IncomingCall(conn)
}
