package converter

import (
	"sort"
	"time"

	"github.com/immxrtalbeast/huddle/internal/domain"
)

type RoomResponse struct {
	ID        string         `json:"id"`
	Peers     []PeerResponse `json:"peers"`
	CreatedAt time.Time      `json:"created_at"`
}

type PeerResponse struct {
	ID       string            `json:"id"`
	Status   domain.PeerStatus `json:"status"`
	JoinedAt time.Time         `json:"joined_at"`
}

func RoomToApi(r *domain.Room) *RoomResponse {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()

	ids := make([]string, 0, len(r.Peers))
	for id := range r.Peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	peers := make([]PeerResponse, 0, len(ids))
	for _, id := range ids {
		peer := r.Peers[id]
		peer.Mutex.RLock()
		peers = append(peers, PeerResponse{
			ID:       id,
			Status:   peer.Status,
			JoinedAt: peer.JoinedAt,
		})
		peer.Mutex.RUnlock()
	}

	return &RoomResponse{
		ID:        r.ID,
		Peers:     peers,
		CreatedAt: r.CreatedAt,
	}
}
