package memory

import (
	"context"
	"sync"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
)

type room struct {
	id        domain.RoomID
	occupants map[domain.ConnectionID]ports.Connection
	createdAt time.Time
}

// MemoryRoomRegistry keeps the room registry in process memory. A
// single mutex guards both maps so the occupancy check that triggers
// pairing is atomic with the insertion itself.
type MemoryRoomRegistry struct {
	rooms  map[domain.RoomID]*room
	byConn map[domain.ConnectionID]domain.RoomID
	mu     sync.Mutex
}

func NewMemoryRoomRegistry() *MemoryRoomRegistry {
	return &MemoryRoomRegistry{
		rooms:  make(map[domain.RoomID]*room),
		byConn: make(map[domain.ConnectionID]domain.RoomID),
	}
}

func (r *MemoryRoomRegistry) Join(ctx context.Context, roomID domain.RoomID, conn ports.Connection) ([]ports.Connection, bool, error) {
	if roomID == "" {
		return nil, false, domain.ErrEmptyRoomID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A connection's room is set once. Re-adding to the same set is a
	// no-op and never re-fires pairing; a join to a different room is
	// ignored for the same reason.
	if existing, ok := r.byConn[conn.ID()]; ok {
		if rm, ok := r.rooms[existing]; ok {
			return snapshot(rm), false, nil
		}
		return nil, false, domain.ErrRoomNotFound
	}

	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{
			id:        roomID,
			occupants: make(map[domain.ConnectionID]ports.Connection),
			createdAt: time.Now(),
		}
		r.rooms[roomID] = rm
	}

	rm.occupants[conn.ID()] = conn
	r.byConn[conn.ID()] = roomID

	// Pairing fires only on the 1->2 transition; a third occupant is
	// tolerated but never re-triggers it.
	paired := len(rm.occupants) == 2
	return snapshot(rm), paired, nil
}

func (r *MemoryRoomRegistry) Counterparts(ctx context.Context, conn ports.Connection) ([]ports.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byConn[conn.ID()]
	if !ok {
		return nil, domain.ErrNotInRoom
	}
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}

	others := make([]ports.Connection, 0, len(rm.occupants)-1)
	for id, c := range rm.occupants {
		if id != conn.ID() {
			others = append(others, c)
		}
	}
	return others, nil
}

func (r *MemoryRoomRegistry) Leave(ctx context.Context, conn ports.Connection) (domain.RoomID, []ports.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	roomID, ok := r.byConn[conn.ID()]
	if !ok {
		return "", nil, nil
	}
	delete(r.byConn, conn.ID())

	rm, ok := r.rooms[roomID]
	if !ok {
		return roomID, nil, nil
	}
	delete(rm.occupants, conn.ID())

	if len(rm.occupants) == 0 {
		delete(r.rooms, roomID)
		return roomID, nil, nil
	}
	return roomID, snapshot(rm), nil
}

func (r *MemoryRoomRegistry) Rooms(ctx context.Context) ([]domain.RoomInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]domain.RoomInfo, 0, len(r.rooms))
	for _, rm := range r.rooms {
		infos = append(infos, domain.RoomInfo{
			ID:        rm.id,
			Occupants: len(rm.occupants),
			CreatedAt: rm.createdAt,
		})
	}
	return infos, nil
}

func snapshot(rm *room) []ports.Connection {
	conns := make([]ports.Connection, 0, len(rm.occupants))
	for _, c := range rm.occupants {
		conns = append(conns, c)
	}
	return conns
}
