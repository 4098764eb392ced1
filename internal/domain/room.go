package domain

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const maxRoomIDLength = 128

var ErrInvalidRoomID = errors.New("invalid room id")

// Room is a relay-side set of members sharing a room id. Rooms exist only
// while they have members.
type Room struct {
	Mutex     sync.RWMutex
	ID        string
	Peers     map[string]*Peer
	CreatedAt time.Time
}

func NewRoom(id string) *Room {
	return &Room{
		ID:        id,
		Peers:     make(map[string]*Peer),
		CreatedAt: time.Now().UTC(),
	}
}

// NewRoomID returns a random room id suitable for sharing as a link.
func NewRoomID() string {
	return uuid.NewString()
}

func ValidateRoomID(id string) error {
	if id == "" || len(id) > maxRoomIDLength || strings.ContainsAny(id, " \t\r\n/") {
		return ErrInvalidRoomID
	}
	return nil
}

// PeerIDs returns the member ids in a stable order.
func (r *Room) PeerIDs() []string {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()

	ids := make([]string, 0, len(r.Peers))
	for id := range r.Peers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Room) Len() int {
	r.Mutex.RLock()
	defer r.Mutex.RUnlock()
	return len(r.Peers)
}
