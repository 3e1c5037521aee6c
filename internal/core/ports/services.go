package ports

import (
	"context"

	"watchparty/internal/core/domain"
)

// RoomService pairs participants by room identifier and blindly
// forwards signaling frames between the occupants of a room.
type RoomService interface {
	// Join registers the connection and notifies both occupants with
	// "peer-joined" when the room reaches exactly two occupants.
	Join(ctx context.Context, conn Connection, roomID domain.RoomID) error

	// Forward relays a raw signal frame, unmodified, to every other
	// open occupant of the sender's room. Unroutable frames are
	// dropped silently: fire-and-forget, no delivery guarantees.
	Forward(ctx context.Context, conn Connection, raw []byte) error

	// Leave removes the connection on transport closure and notifies
	// any remaining occupant with "peer-left".
	Leave(ctx context.Context, conn Connection) error

	// Stats reports the active rooms.
	Stats(ctx context.Context) ([]domain.RoomInfo, error)
}

// EventPublisher broadcasts room lifecycle events beyond this relay
// instance, for fleet-wide observability. Best-effort; publish
// failures never affect room state.
type EventPublisher interface {
	PublishRoomEvent(ctx context.Context, eventType string, roomID domain.RoomID, occupants int) error
}

// MetricsCollector receives relay events for monitoring. Implemented
// by the Prometheus collector; components tolerate a nil collector.
type MetricsCollector interface {
	RoomCreated()
	RoomDestroyed()
	ConnectionOpened()
	ConnectionClosed()
	PeersPaired()
	EnvelopeForwarded(bytes int)
	EnvelopeDropped(reason string)
}
