package relayclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apihttp "github.com/immxrtalbeast/huddle/internal/api/http"
	"github.com/immxrtalbeast/huddle/internal/repository"
	"github.com/immxrtalbeast/huddle/internal/service"
	"github.com/immxrtalbeast/huddle/internal/wsconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type event struct {
	kind   string
	sender string
	peer   string
}

type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 32)}
}

func (r *recorder) RelayConnected()                { r.events <- event{kind: "connected"} }
func (r *recorder) RelayDisconnected()             { r.events <- event{kind: "disconnected"} }
func (r *recorder) UserConnected(peerID string)    { r.events <- event{kind: "joined", peer: peerID} }
func (r *recorder) UserDisconnected(peerID string) { r.events <- event{kind: "left", peer: peerID} }
func (r *recorder) Surprised(peerID string)        { r.events <- event{kind: "surprise", peer: peerID} }

func (r *recorder) LayoutChanged(senderID, peerID string) {
	r.events <- event{kind: "layout", sender: senderID, peer: peerID}
}

func (r *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no relay event")
		return event{}
	}
}

// newRelay returns the relay socket URL and the REST base URL.
func newRelay(t *testing.T) (string, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	socket := apihttp.SocketConfig{EventBuffer: 16}
	rooms := apihttp.NewRoomController(service.NewRoomService(repository.NewInMemoryRoomRepository(), log), socket, log)
	broker := apihttp.NewBrokerController(service.NewBrokerService(repository.NewInMemoryPeerRepository(), log), socket, log)

	srv := httptest.NewServer(apihttp.SetupRouter(rooms, broker, nil))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", srv.URL
}

func waitMembers(t *testing.T, base, roomID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/api/rooms/" + roomID)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body struct {
			Room struct {
				Peers []json.RawMessage `json:"peers"`
			} `json:"room"`
		}
		if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		return len(body.Room.Peers) == n
	}, 5*time.Second, 10*time.Millisecond)
}

func connect(t *testing.T, url string) (*Client, *recorder) {
	t.Helper()
	c := New(url, wsconn.Options{Reconnect: 50 * time.Millisecond}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	rec := newRecorder()
	c.Subscribe(rec)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = c.Run(ctx) }()
	t.Cleanup(func() {
		_ = c.Close()
		cancel()
	})

	require.Equal(t, "connected", rec.next(t).kind)
	return c, rec
}

func TestRelayMembershipAndLayout(t *testing.T) {
	url, base := newRelay(t)
	a, recA := connect(t, url)
	b, recB := connect(t, url)

	require.NoError(t, a.JoinRoom("room-1", "A"))
	waitMembers(t, base, "room-1", 1)
	require.NoError(t, b.JoinRoom("room-1", "B"))

	assert.Equal(t, event{kind: "joined", peer: "B"}, recA.next(t))

	require.NoError(t, b.ChangeLayout("B"))
	assert.Equal(t, event{kind: "layout", sender: "B", peer: "B"}, recA.next(t))
	assert.Equal(t, event{kind: "layout", sender: "B", peer: "B"}, recB.next(t), "sender gets the echo")

	require.NoError(t, b.ChangeLayout(""))
	assert.Equal(t, event{kind: "layout", sender: "B"}, recA.next(t))
	recB.next(t)

	require.NoError(t, a.Surprise("A"))
	assert.Equal(t, event{kind: "surprise", peer: "A"}, recB.next(t))
	assert.Equal(t, event{kind: "surprise", peer: "A"}, recA.next(t))

	require.NoError(t, b.Close())
	assert.Equal(t, event{kind: "left", peer: "B"}, recA.next(t))
}

func TestSubscribeAfterConnectReportsConnected(t *testing.T) {
	url, _ := newRelay(t)
	c, _ := connect(t, url)

	late := newRecorder()
	c.Subscribe(late)
	assert.Equal(t, "connected", late.next(t).kind)
}
