package reliability

import (
	"context"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/circuitbreaker"
	"watchparty/pkg/retry"

	"go.uber.org/zap"
)

// PresenceWrapper shields the relay from a flaky presence store: writes
// are retried with backoff, and a circuit breaker stops hammering the
// store while it is down. Presence stays best-effort either way; the
// live registry never waits on it.
type PresenceWrapper struct {
	inner  ports.PresenceRepository
	logger *zap.SugaredLogger

	retryConfig retry.Config
	breaker     *circuitbreaker.CircuitBreaker
}

func NewPresenceWrapper(
	inner ports.PresenceRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *PresenceWrapper {
	w := &PresenceWrapper{
		inner:       inner,
		logger:      logger,
		retryConfig: retryConfig,
		breaker:     circuitbreaker.New(cbConfig),
	}

	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Infow("presence store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})

	return w
}

func (w *PresenceWrapper) SetOccupancy(ctx context.Context, roomID domain.RoomID, occupants int) error {
	return retry.Do(ctx, w.retryConfig, func() error {
		return w.breaker.Execute(ctx, func() error {
			return w.inner.SetOccupancy(ctx, roomID, occupants)
		})
	})
}

func (w *PresenceWrapper) Clear(ctx context.Context, roomID domain.RoomID) error {
	return retry.Do(ctx, w.retryConfig, func() error {
		return w.breaker.Execute(ctx, func() error {
			return w.inner.Clear(ctx, roomID)
		})
	})
}

func (w *PresenceWrapper) Snapshot(ctx context.Context) (map[domain.RoomID]int, error) {
	// Reads go straight through the breaker, no retry: a stale snapshot
	// beats a slow stats endpoint.
	var snap map[domain.RoomID]int
	err := w.breaker.Execute(ctx, func() error {
		var innerErr error
		snap, innerErr = w.inner.Snapshot(ctx)
		return innerErr
	})
	return snap, err
}

// BreakerStats exposes the breaker counters for the stats endpoint.
func (w *PresenceWrapper) BreakerStats() circuitbreaker.Stats {
	return w.breaker.GetStats()
}
