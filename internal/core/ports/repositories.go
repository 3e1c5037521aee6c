package ports

import (
	"context"

	"watchparty/internal/core/domain"
)

// Connection is one transport-level link from a participant to the
// relay. Implementations are owned by the signaling server; the
// registry and services only route through this interface.
type Connection interface {
	ID() domain.ConnectionID
	// Send JSON-encodes a relay-generated notification.
	Send(v interface{}) error
	// SendRaw writes a frame exactly as it was received from another
	// occupant. Forwarded signal envelopes must stay byte-identical.
	SendRaw(data []byte) error
	IsOpen() bool
}

// RoomRegistry is the relay's shared mutable room state. All mutation
// is atomic with respect to the occupancy checks: concurrent joins to
// the same room observe the 1->2 transition exactly once.
type RoomRegistry interface {
	// Join registers conn under roomID, creating the room if absent.
	// A connection's room is set once; a repeated join is a no-op.
	// paired is true iff this call moved the occupancy to exactly 2.
	// The returned slice is a snapshot of the room's occupants taken
	// under the same critical section as the insertion.
	Join(ctx context.Context, roomID domain.RoomID, conn Connection) (occupants []Connection, paired bool, err error)

	// Counterparts returns the other occupants of conn's room.
	// ErrNotInRoom if conn never joined, ErrRoomNotFound if its room
	// has already been destroyed.
	Counterparts(ctx context.Context, conn Connection) ([]Connection, error)

	// Leave removes conn from its room, destroying the room when it
	// becomes empty, and returns the room it left plus the remaining
	// occupants. A connection that never joined leaves with an empty
	// room ID and no error.
	Leave(ctx context.Context, conn Connection) (roomID domain.RoomID, remaining []Connection, err error)

	// Rooms snapshots the active rooms for stats reporting.
	Rooms(ctx context.Context) ([]domain.RoomInfo, error)
}

// PresenceRepository mirrors room occupancy into an external store so
// operators can inspect a fleet of relays in one place. Best-effort;
// the live registry never depends on it.
type PresenceRepository interface {
	SetOccupancy(ctx context.Context, roomID domain.RoomID, occupants int) error
	Clear(ctx context.Context, roomID domain.RoomID) error
	Snapshot(ctx context.Context) (map[domain.RoomID]int, error)
}
