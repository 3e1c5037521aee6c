package peer

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"watchparty/internal/core/domain"

	"go.uber.org/zap"
)

// DefaultEchoSuppressionWindow matches the deployed behavior: after a
// remote sync command is applied locally, local playback events are
// suppressed for this long so they do not bounce back as outgoing
// messages.
const DefaultEchoSuppressionWindow = 100 * time.Millisecond

// Player is the local playback surface the sync engine drives. The
// presentation itself (rendering, media element) is outside this core.
type Player interface {
	// Play sets the position to the given time in seconds and resumes.
	Play(position float64) error
	// Pause sets the position and halts.
	Pause(position float64) error
	// Seek sets the position without changing the play/pause state.
	Seek(position float64) error
	// Reload re-acquires the media source.
	Reload() error
}

// SyncEngine owns the playback-sync relationship over the direct
// channel: it applies incoming sync messages to the player and emits
// local playback events to the counterpart, with echo suppression in
// between.
type SyncEngine struct {
	player Player
	window time.Duration
	now    func() time.Time
	logger *zap.SugaredLogger

	mu            sync.Mutex
	send          func([]byte) error
	suppressUntil time.Time
}

type SyncOption func(*SyncEngine)

// WithClock injects the time source, so suppression windows are
// testable without real timers.
func WithClock(now func() time.Time) SyncOption {
	return func(e *SyncEngine) {
		e.now = now
	}
}

// WithSuppressionWindow overrides the echo suppression window.
func WithSuppressionWindow(window time.Duration) SyncOption {
	return func(e *SyncEngine) {
		e.window = window
	}
}

func NewSyncEngine(player Player, logger *zap.SugaredLogger, opts ...SyncOption) *SyncEngine {
	e := &SyncEngine{
		player: player,
		window: DefaultEchoSuppressionWindow,
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Bind attaches the direct channel's send function once the transport
// is connected.
func (e *SyncEngine) Bind(send func([]byte) error) {
	e.mu.Lock()
	e.send = send
	e.mu.Unlock()
}

// Unbind detaches the direct channel on transport loss. Local events
// become no-ops until a new counterpart connects.
func (e *SyncEngine) Unbind() {
	e.mu.Lock()
	e.send = nil
	e.mu.Unlock()
}

// Apply handles one incoming sync message: the command is applied to
// the player and the suppression window is armed before Apply returns,
// so the resulting local playback events never echo back out.
// Application is idempotent with respect to the final play/pause/
// position state.
func (e *SyncEngine) Apply(raw []byte) error {
	var msg domain.SyncMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("decode sync message: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	switch msg.Action {
	case domain.SyncPlay:
		err = e.player.Play(msg.Time)
	case domain.SyncPause:
		err = e.player.Pause(msg.Time)
	case domain.SyncSeek:
		err = e.player.Seek(msg.Time)
	case domain.SyncReload:
		err = e.player.Reload()
	default:
		e.logger.Debugw("ignoring sync message of unknown action", "action", msg.Action)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", msg.Action, err)
	}

	// Each suppression window restarts independently; a relative
	// delay, not an absolute deadline.
	e.suppressUntil = e.now().Add(e.window)
	return nil
}

// LocalEvent emits a local playback event to the counterpart, unless
// the suppression window is armed or no direct channel is bound.
// Fire-and-forget: delivery failures are logged, never retried.
func (e *SyncEngine) LocalEvent(action string, position float64) error {
	e.mu.Lock()
	send := e.send
	suppressed := e.now().Before(e.suppressUntil)
	e.mu.Unlock()

	if suppressed {
		return nil
	}
	if send == nil {
		return nil
	}

	raw, err := json.Marshal(domain.SyncMessage{Action: action, Time: position})
	if err != nil {
		return fmt.Errorf("encode sync message: %w", err)
	}
	if err := send(raw); err != nil {
		e.logger.Debugw("failed to send sync message", "action", action, "error", err)
	}
	return nil
}
