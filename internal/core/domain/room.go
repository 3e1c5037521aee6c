package domain

import "time"

type RoomID string

type ConnectionID string

// Role identifies which side of a watch session a peer plays.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Room lifecycle event names, published fleet-wide by relays that run
// with an event bus.
const (
	EventRoomCreated   = "room.created"
	EventPeersPaired   = "room.paired"
	EventPeerLeft      = "room.peer_left"
	EventRoomDestroyed = "room.destroyed"
)

// RoomInfo is a point-in-time snapshot of a room, used by stats and
// presence reporting. The live occupant set is owned by the registry.
type RoomInfo struct {
	ID        RoomID    `json:"id"`
	Occupants int       `json:"occupants"`
	CreatedAt time.Time `json:"created_at"`
}
