package services

import (
	"context"
	"errors"
	"fmt"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"

	"go.uber.org/zap"
)

// RoomService pairs connections by room identifier and forwards signal
// frames between a room's occupants. It knows nothing about what the
// frames carry: negotiation payloads pass through as opaque bytes.
type RoomService struct {
	registry ports.RoomRegistry
	presence ports.PresenceRepository
	metrics  ports.MetricsCollector
	events   ports.EventPublisher
	logger   *zap.SugaredLogger
}

type RoomServiceOption func(*RoomService)

// WithEventPublisher attaches a fleet event bus. Room lifecycle events
// are announced on it best-effort.
func WithEventPublisher(events ports.EventPublisher) RoomServiceOption {
	return func(s *RoomService) {
		s.events = events
	}
}

func NewRoomService(registry ports.RoomRegistry, presence ports.PresenceRepository, metrics ports.MetricsCollector, logger *zap.SugaredLogger, opts ...RoomServiceOption) *RoomService {
	s := &RoomService{
		registry: registry,
		presence: presence,
		metrics:  metrics,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RoomService) Join(ctx context.Context, conn ports.Connection, roomID domain.RoomID) error {
	occupants, paired, err := s.registry.Join(ctx, roomID, conn)
	if err != nil {
		return fmt.Errorf("join room %q: %w", roomID, err)
	}

	s.logger.Infow("connection joined room",
		"connection_id", conn.ID(),
		"room", roomID,
		"occupants", len(occupants),
	)

	if len(occupants) == 1 {
		if s.metrics != nil {
			s.metrics.RoomCreated()
		}
		s.announce(ctx, domain.EventRoomCreated, roomID, 1)
	}

	s.trackPresence(ctx, roomID, len(occupants))

	if !paired {
		return nil
	}

	// Occupancy just moved 1->2: both sides learn their counterpart
	// arrived. Send failures are best-effort like every other delivery.
	if s.metrics != nil {
		s.metrics.PeersPaired()
	}
	s.announce(ctx, domain.EventPeersPaired, roomID, len(occupants))
	notification := domain.Envelope{Type: domain.EnvelopePeerJoined}
	for _, occupant := range occupants {
		if !occupant.IsOpen() {
			continue
		}
		if err := occupant.Send(notification); err != nil {
			s.logger.Warnw("failed to deliver peer-joined",
				"connection_id", occupant.ID(),
				"room", roomID,
				"error", err,
			)
		}
	}

	return nil
}

func (s *RoomService) Forward(ctx context.Context, conn ports.Connection, raw []byte) error {
	counterparts, err := s.registry.Counterparts(ctx, conn)
	if err != nil {
		// Unroutable forwards are dropped silently: the sender is not
		// told, by contract. Not-yet-paired peers simply miss frames.
		if errors.Is(err, domain.ErrNotInRoom) || errors.Is(err, domain.ErrRoomNotFound) {
			if s.metrics != nil {
				s.metrics.EnvelopeDropped("unroutable")
			}
			s.logger.Debugw("dropping unroutable signal frame",
				"connection_id", conn.ID(),
				"reason", err,
			)
			return nil
		}
		return fmt.Errorf("forward from %s: %w", conn.ID(), err)
	}

	for _, counterpart := range counterparts {
		if !counterpart.IsOpen() {
			continue
		}
		if err := counterpart.SendRaw(raw); err != nil {
			if s.metrics != nil {
				s.metrics.EnvelopeDropped("send_failed")
			}
			s.logger.Debugw("failed to forward signal frame",
				"from", conn.ID(),
				"to", counterpart.ID(),
				"error", err,
			)
			continue
		}
		if s.metrics != nil {
			s.metrics.EnvelopeForwarded(len(raw))
		}
	}

	return nil
}

func (s *RoomService) Leave(ctx context.Context, conn ports.Connection) error {
	roomID, remaining, err := s.registry.Leave(ctx, conn)
	if err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	if roomID == "" {
		return nil
	}

	if len(remaining) == 0 {
		s.logger.Infow("room destroyed", "room", roomID)
		if s.metrics != nil {
			s.metrics.RoomDestroyed()
		}
		s.announce(ctx, domain.EventRoomDestroyed, roomID, 0)
		s.clearPresence(ctx, roomID)
		return nil
	}

	s.logger.Infow("connection left room",
		"connection_id", conn.ID(),
		"room", roomID,
		"occupants", len(remaining),
	)
	s.trackPresence(ctx, roomID, len(remaining))
	s.announce(ctx, domain.EventPeerLeft, roomID, len(remaining))

	notification := domain.Envelope{Type: domain.EnvelopePeerLeft}
	for _, occupant := range remaining {
		if !occupant.IsOpen() {
			continue
		}
		if err := occupant.Send(notification); err != nil {
			s.logger.Warnw("failed to deliver peer-left",
				"connection_id", occupant.ID(),
				"room", roomID,
				"error", err,
			)
		}
	}

	return nil
}

func (s *RoomService) Stats(ctx context.Context) ([]domain.RoomInfo, error) {
	return s.registry.Rooms(ctx)
}

func (s *RoomService) announce(ctx context.Context, eventType string, roomID domain.RoomID, occupants int) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishRoomEvent(ctx, eventType, roomID, occupants); err != nil {
		s.logger.Warnw("failed to publish room event", "type", eventType, "room", roomID, "error", err)
	}
}

func (s *RoomService) trackPresence(ctx context.Context, roomID domain.RoomID, occupants int) {
	if s.presence == nil {
		return
	}
	if err := s.presence.SetOccupancy(ctx, roomID, occupants); err != nil {
		s.logger.Warnw("failed to record room presence", "room", roomID, "error", err)
	}
}

func (s *RoomService) clearPresence(ctx context.Context, roomID domain.RoomID) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Clear(ctx, roomID); err != nil {
		s.logger.Warnw("failed to clear room presence", "room", roomID, "error", err)
	}
}
