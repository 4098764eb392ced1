// Package wsconn is a reconnecting JSON websocket client shared by the relay
// and broker connections.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/lib/logger/sl"
)

var (
	ErrNotConnected  = errors.New("websocket is not connected")
	ErrSendQueueFull = errors.New("websocket send queue is full")
	ErrClosed        = errors.New("websocket client closed")
)

type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
	SendBuffer     int
	// Reconnect is the first delay between dial attempts. Zero disables
	// reconnecting: Run returns after the first connection ends.
	Reconnect  time.Duration
	MaxBackoff time.Duration
	// Query is evaluated before every dial and merged into the URL.
	Query func() url.Values
}

func (o Options) withDefaults() Options {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	return o
}

func (o Options) pingPeriod() time.Duration {
	return (o.PongWait * 9) / 10
}

// Client keeps one websocket open to serverURL. Callbacks run on the read
// goroutine and must not block for long.
type Client struct {
	serverURL string
	opts      Options
	log       *slog.Logger
	dialer    *websocket.Dialer

	onMessage    func(domain.SignalMessage)
	onConnect    func()
	onDisconnect func(error)

	mu      sync.Mutex
	current *session
	closed  bool
	stop    chan struct{}
}

type session struct {
	conn *websocket.Conn
	out  chan domain.SignalMessage
	done chan struct{}
	once sync.Once
}

func (s *session) close() {
	s.once.Do(func() { close(s.done) })
}

func New(serverURL string, opts Options, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		serverURL: serverURL,
		opts:      opts.withDefaults(),
		log:       log.With(slog.String("url", serverURL)),
		dialer:    websocket.DefaultDialer,
		stop:      make(chan struct{}),
	}
}

// OnMessage, OnConnect and OnDisconnect must be set before Run.
func (c *Client) OnMessage(fn func(domain.SignalMessage)) { c.onMessage = fn }
func (c *Client) OnConnect(fn func())                     { c.onConnect = fn }
func (c *Client) OnDisconnect(fn func(error))             { c.onDisconnect = fn }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Run dials and serves the connection until ctx is cancelled or Close is
// called, redialing with exponential backoff when the connection drops.
func (c *Client) Run(ctx context.Context) error {
	const op = "wsconn.client.Run"
	log := c.log.With(slog.String("op", op))

	backoff := c.opts.Reconnect
	for {
		connected, err := c.serve(ctx)
		switch {
		case ctx.Err() != nil, c.isClosed():
			return nil
		case c.opts.Reconnect <= 0:
			return err
		}

		if connected {
			backoff = c.opts.Reconnect
		}
		log.Info("connection lost, redialing", slog.Duration("in", backoff), sl.Err(err))
		select {
		case <-ctx.Done():
			return nil
		case <-c.stop:
			return nil
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.opts.MaxBackoff)
	}
}

// serve runs one connection and reports whether the dial succeeded.
func (c *Client) serve(ctx context.Context) (bool, error) {
	target, err := c.target()
	if err != nil {
		return false, err
	}
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	s := &session{
		conn: conn,
		out:  make(chan domain.SignalMessage, c.opts.SendBuffer),
		done: make(chan struct{}),
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return false, ErrClosed
	}
	c.current = s
	c.mu.Unlock()

	c.log.Info("connected")
	if c.onConnect != nil {
		c.onConnect()
	}

	go c.writePump(s)
	go func() {
		select {
		case <-ctx.Done():
		case <-c.stop:
		case <-s.done:
		}
		s.close()
	}()

	err = c.readPump(s)

	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
	s.close()
	_ = conn.Close()

	if c.onDisconnect != nil {
		c.onDisconnect(err)
	}
	return true, err
}

func (c *Client) target() (string, error) {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	if c.opts.Query != nil {
		q := u.Query()
		for k, vs := range c.opts.Query() {
			q.Del(k)
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) readPump(s *session) error {
	s.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		var msg domain.SignalMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if c.onMessage != nil {
			c.onMessage(msg)
		}
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump(s *session) {
	ticker := time.NewTicker(c.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case msg := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				c.log.Debug("write failed", sl.Err(err))
				s.close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// Send queues msg on the current connection. Messages are not kept across
// reconnects.
func (c *Client) Send(msg domain.SignalMessage) error {
	c.mu.Lock()
	s, closed := c.current, c.closed
	c.mu.Unlock()

	switch {
	case closed:
		return ErrClosed
	case s == nil:
		return ErrNotConnected
	}

	select {
	case <-s.done:
		return ErrNotConnected
	case s.out <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close stops Run and closes the current connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.stop)
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
