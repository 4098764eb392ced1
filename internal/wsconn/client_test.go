package wsconn

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer answers every message with itself. A message of type "drop"
// makes the server close the connection instead.
func echoServer(t *testing.T, queries chan<- url.Values) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if queries != nil {
			queries <- r.URL.Query()
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg domain.SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == "drop" {
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSendBeforeConnect(t *testing.T) {
	c := New("ws://127.0.0.1:1", Options{}, discard())
	assert.ErrorIs(t, c.Send(domain.SignalMessage{Type: "x"}), ErrNotConnected)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Send(domain.SignalMessage{Type: "x"}), ErrClosed)
}

func TestEchoRoundTrip(t *testing.T) {
	srv := echoServer(t, nil)
	c := New(wsURL(srv), Options{Reconnect: 10 * time.Millisecond}, discard())

	connected := make(chan struct{}, 1)
	received := make(chan domain.SignalMessage, 1)
	c.OnConnect(func() { connected <- struct{}{} })
	c.OnMessage(func(msg domain.SignalMessage) { received <- msg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(ctx) }()

	waitFor(t, connected)
	assert.True(t, c.Connected())
	require.NoError(t, c.Send(domain.SignalMessage{Type: domain.EventChangeLayout, PeerID: "A"}))

	select {
	case msg := <-received:
		assert.Equal(t, domain.EventChangeLayout, msg.Type)
		assert.Equal(t, "A", msg.PeerID)
	case <-time.After(2 * time.Second):
		t.Fatal("no echo")
	}

	require.NoError(t, c.Close())
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after close")
	}
}

func TestReconnectEvaluatesQueryPerDial(t *testing.T) {
	queries := make(chan url.Values, 4)
	srv := echoServer(t, queries)

	var dials atomic.Int32
	c := New(wsURL(srv)+"?keep=1", Options{
		Reconnect: 10 * time.Millisecond,
		Query: func() url.Values {
			n := dials.Add(1)
			return url.Values{"token": {strconv.Itoa(int(n))}}
		},
	}, discard())

	connected := make(chan struct{}, 2)
	disconnected := make(chan error, 2)
	c.OnConnect(func() { connected <- struct{}{} })
	c.OnDisconnect(func(err error) { disconnected <- err })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	waitFor(t, connected)
	first := <-queries
	assert.Equal(t, "1", first.Get("token"))
	assert.Equal(t, "1", first.Get("keep"))

	require.NoError(t, c.Send(domain.SignalMessage{Type: "drop"}))
	select {
	case <-disconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect not reported")
	}

	waitFor(t, connected)
	second := <-queries
	assert.Equal(t, "2", second.Get("token"))

	cancel()
}

func TestRunWithoutReconnectReturnsDialError(t *testing.T) {
	c := New("ws://127.0.0.1:1", Options{}, discard())
	err := c.Run(context.Background())
	assert.Error(t, err)
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
