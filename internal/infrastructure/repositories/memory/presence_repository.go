package memory

import (
	"context"
	"sync"

	"watchparty/internal/core/domain"
)

// MemoryPresenceRepository is the single-instance fallback for room
// presence when Redis is disabled.
type MemoryPresenceRepository struct {
	occupancy map[domain.RoomID]int
	mu        sync.RWMutex
}

func NewMemoryPresenceRepository() *MemoryPresenceRepository {
	return &MemoryPresenceRepository{
		occupancy: make(map[domain.RoomID]int),
	}
}

func (r *MemoryPresenceRepository) SetOccupancy(ctx context.Context, roomID domain.RoomID, occupants int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.occupancy[roomID] = occupants
	return nil
}

func (r *MemoryPresenceRepository) Clear(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.occupancy, roomID)
	return nil
}

func (r *MemoryPresenceRepository) Snapshot(ctx context.Context) (map[domain.RoomID]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[domain.RoomID]int, len(r.occupancy))
	for id, n := range r.occupancy {
		out[id] = n
	}
	return out, nil
}
