package service

import (
	"context"
	"testing"

	"github.com/immxrtalbeast/huddle/internal/domain"
	"github.com/immxrtalbeast/huddle/internal/repository"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBroker() *BrokerService {
	return NewBrokerService(repository.NewInMemoryPeerRepository(), discardLogger())
}

func registered(t *testing.T, s *BrokerService, id, token string) *domain.Peer {
	t.Helper()
	p := domain.NewPeer(16)
	require.NoError(t, s.Register(context.Background(), p, id, token))
	return p
}

func TestRegisterAssignsID(t *testing.T) {
	s := newBroker()
	p := registered(t, s, "", "")

	got := drain(p)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventOpen, got[0].Type)
	assert.NotEmpty(t, got[0].PeerID)
	assert.Equal(t, p.ID, got[0].PeerID)
	assert.Equal(t, p.Token, got[0].Metadata)
}

func TestReclaimRequiresToken(t *testing.T) {
	s := newBroker()
	ctx := context.Background()
	old := registered(t, s, "A", "secret")

	intruder := domain.NewPeer(4)
	assert.ErrorIs(t, s.Register(ctx, intruder, "A", "guess"), ErrPeerIDTaken)

	fresh := domain.NewPeer(4)
	require.NoError(t, s.Register(ctx, fresh, "A", "secret"))
	assert.False(t, old.EnqueueEvent(domain.SignalMessage{Type: "x"}), "replaced socket is closed")

	require.NoError(t, s.Unregister(ctx, old))
	_ = drain(fresh)
	require.NoError(t, s.HandleSignal(ctx, registered(t, s, "B", ""), &domain.SignalMessage{
		Type: domain.EventOffer, TargetID: "A", ConnectionID: "c1",
	}))
	assert.Len(t, drain(fresh), 1, "stale unregister did not evict the new owner")
}

func TestDirectedRoutingStampsSender(t *testing.T) {
	s := newBroker()
	ctx := context.Background()
	a := registered(t, s, "A", "")
	b := registered(t, s, "B", "")
	drain(a)
	drain(b)

	offer := &domain.SignalMessage{
		Type:         domain.EventOffer,
		TargetID:     "B",
		SenderID:     "spoofed",
		ConnectionID: "c1",
		Metadata:     "A",
		SDP:          &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
	}
	require.NoError(t, s.HandleSignal(ctx, a, offer))

	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].SenderID)
	assert.Equal(t, "A", got[0].Metadata)
	assert.Equal(t, "v=0", got[0].SDP.SDP)
	assert.Equal(t, 1, s.LinkCount("A"))
	assert.Equal(t, 1, s.LinkCount("B"))
}

func TestUnknownTargetExpires(t *testing.T) {
	s := newBroker()
	a := registered(t, s, "A", "")
	drain(a)

	require.NoError(t, s.HandleSignal(context.Background(), a, &domain.SignalMessage{
		Type: domain.EventCandidate, TargetID: "ghost", ConnectionID: "c9",
	}))

	got := drain(a)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventExpire, got[0].Type)
	assert.Equal(t, "ghost", got[0].PeerID)
	assert.Equal(t, "c9", got[0].ConnectionID)
}

func TestUnregisterSendsLeaveToLinkedPeers(t *testing.T) {
	s := newBroker()
	ctx := context.Background()
	a := registered(t, s, "A", "")
	b := registered(t, s, "B", "")
	c := registered(t, s, "C", "")
	drain(b)
	drain(c)

	require.NoError(t, s.HandleSignal(ctx, a, &domain.SignalMessage{Type: domain.EventOffer, TargetID: "B", ConnectionID: "ab"}))
	require.NoError(t, s.HandleSignal(ctx, a, &domain.SignalMessage{Type: domain.EventOffer, TargetID: "C", ConnectionID: "ac"}))
	require.NoError(t, s.HandleSignal(ctx, a, &domain.SignalMessage{Type: domain.EventLeave, TargetID: "C", ConnectionID: "ac"}))
	drain(b)
	drain(c)

	require.NoError(t, s.Unregister(ctx, a))

	got := drain(b)
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventLeave, got[0].Type)
	assert.Equal(t, "A", got[0].SenderID)
	assert.Equal(t, "ab", got[0].ConnectionID)
	assert.Empty(t, drain(c), "closed link gets no second leave")
	assert.Zero(t, s.LinkCount("B"))
}

func TestBrokerRejectsUnknownTypes(t *testing.T) {
	s := newBroker()
	a := registered(t, s, "A", "")
	ctx := context.Background()

	assert.ErrorIs(t, s.HandleSignal(ctx, a, &domain.SignalMessage{Type: domain.EventChangeLayout, TargetID: "B"}), ErrUnsupportedSignal)
	assert.ErrorIs(t, s.HandleSignal(ctx, a, &domain.SignalMessage{Type: domain.EventOffer}), ErrTargetRequired)
}
