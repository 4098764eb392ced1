package call

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsInPostOrder(t *testing.T) {
	l := newLoop()
	done := make(chan struct{})
	var got []int

	for i := 0; i < 50; i++ {
		i := i
		require.True(t, l.post(func() {
			got = append(got, i)
			if i == 10 {
				l.post(func() { got = append(got, 100) })
			}
		}))
	}
	l.post(func() { l.post(func() { close(done) }) })

	require.NoError(t, l.run(context.Background(), done))

	require.Len(t, got, 51)
	for i := 0; i < 50; i++ {
		assert.Equal(t, i, got[i])
	}
	assert.Equal(t, 100, got[50], "nested posts run after the queue drained")
	assert.False(t, l.post(func() {}), "post after shutdown is refused")
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	l := newLoop()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.run(ctx, make(chan struct{}))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionRunCancelLeavesCall(t *testing.T) {
	relay := &fakeRelay{}
	transport := &fakeTransport{}
	devices := &fakeDevices{user: remoteStream("self")}

	s, err := NewSession(Options{
		RoomID:    testRoom,
		Relay:     relay,
		Transport: transport,
		Devices:   devices,
		Renderer:  newFakeRenderer(),
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	require.NoError(t, s.Start(context.Background()))
	relay.listener.RelayConnected()
	transport.listener.TransportOpened("A")

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Equal(t, "A", snap.PeerID)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish after cancel")
	}
	require.NoError(t, <-runErr)

	assert.Equal(t, 1, relay.closed)
	assert.Equal(t, 1, transport.closed)
	assert.Equal(t, []string{testRoom + "/A"}, relay.joins)

	assert.NoError(t, s.Leave(), "leave after the loop stopped is a no-op")
	_, err = s.Snapshot()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestSessionLeaveStopsRun(t *testing.T) {
	relay := &fakeRelay{}
	transport := &fakeTransport{}
	s, err := NewSession(Options{
		RoomID:    testRoom,
		Relay:     relay,
		Transport: transport,
		Devices:   &fakeDevices{user: remoteStream("self")},
		Renderer:  newFakeRenderer(),
	})
	require.NoError(t, err)

	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(context.Background()) }()

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Leave())

	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after leave")
	}
	assert.Equal(t, 1, relay.closed)
}
