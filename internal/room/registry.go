// Package room tracks which connections belong to which rooms.
package room

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Member is a connection handle the registry references but does not own.
// Deliver must not block: implementations buffer and drop when full.
type Member interface {
	ID() uuid.UUID
	Deliver(data []byte) bool
}

// Registry maps rooms to their member sets. All mutation is serialized by
// a single lock; reads used for fan-out return snapshots so a slow receiver
// cannot stall joins and leaves.
type Registry struct {
	logger *slog.Logger

	mu     sync.RWMutex
	rooms  map[int64]map[uuid.UUID]Member
	joined map[uuid.UUID]map[int64]struct{} // member id → rooms joined
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		logger: logger,
		rooms:  make(map[int64]map[uuid.UUID]Member),
		joined: make(map[uuid.UUID]map[int64]struct{}),
	}
}

// Join adds a member to a room. Idempotent: joining a room twice is a no-op.
// Rooms are created lazily on first join.
func (r *Registry) Join(m Member, roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[uuid.UUID]Member)
		r.rooms[roomID] = members
	}

	id := m.ID()
	if _, ok := members[id]; ok {
		return
	}
	members[id] = m

	if r.joined[id] == nil {
		r.joined[id] = make(map[int64]struct{})
	}
	r.joined[id][roomID] = struct{}{}

	r.logger.Debug("member joined room",
		"conn_id", id,
		"room_id", roomID,
		"members", len(members),
	)
}

// Leave removes a member from a room. Idempotent: leaving a room the member
// never joined is a no-op. A room is deleted when its last member leaves.
func (r *Registry) Leave(m Member, roomID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(m.ID(), roomID)
}

// LeaveAll removes a member from every room it belongs to. Called exactly
// once by the connection lifecycle on disconnect.
func (r *Registry) LeaveAll(m Member) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := m.ID()
	for roomID := range r.joined[id] {
		r.leaveLocked(id, roomID)
	}
	delete(r.joined, id)
}

func (r *Registry) leaveLocked(id uuid.UUID, roomID int64) {
	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := members[id]; !ok {
		return
	}

	delete(members, id)
	if len(members) == 0 {
		delete(r.rooms, roomID)
	}

	if joined := r.joined[id]; joined != nil {
		delete(joined, roomID)
		if len(joined) == 0 {
			delete(r.joined, id)
		}
	}

	r.logger.Debug("member left room",
		"conn_id", id,
		"room_id", roomID,
		"members", len(members),
	)
}

// Members returns a snapshot of the room's current member set. An unknown
// room yields an empty slice, not an error.
func (r *Registry) Members(roomID int64) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[roomID]
	out := make([]Member, 0, len(members))
	for _, m := range members {
		out = append(out, m)
	}
	return out
}

// IsMember reports whether the connection has joined the room.
func (r *Registry) IsMember(id uuid.UUID, roomID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.joined[id][roomID]
	return ok
}

// Rooms returns the rooms a connection currently belongs to.
func (r *Registry) Rooms(id uuid.UUID) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]int64, 0, len(r.joined[id]))
	for roomID := range r.joined[id] {
		out = append(out, roomID)
	}
	return out
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
