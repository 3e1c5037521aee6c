package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"watchparty/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// State is the session peer's position in the negotiation lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateJoining         State = "joining"
	StateWaitingForPeer  State = "waiting-for-peer"
	StateWaitingForOffer State = "waiting-for-offer"
	StateNegotiating     State = "negotiating"
	StateConnected       State = "connected"
)

// TransportFactory builds a fresh direct transport for one negotiation
// round. Tests substitute fakes.
type TransportFactory func(role domain.Role, sink MediaSink) (Transport, error)

// Peer drives one participant's role-specific negotiation sequence
// through the relay and owns the playback-sync relationship once the
// direct channel exists.
type Peer struct {
	role   domain.Role
	room   domain.RoomID
	link   RelayLink
	engine *SyncEngine
	logger *zap.SugaredLogger

	newTransport TransportFactory

	mu        sync.Mutex
	state     State
	transport Transport
	source    MediaSource
	sink      MediaSink
}

type PeerOption func(*Peer)

// WithTransportFactory overrides how direct transports are built.
func WithTransportFactory(factory TransportFactory) PeerOption {
	return func(p *Peer) {
		p.newTransport = factory
	}
}

// WithICEServers configures the production transport's ICE servers.
func WithICEServers(servers []webrtc.ICEServer) PeerOption {
	return func(p *Peer) {
		logger := p.logger
		p.newTransport = func(role domain.Role, sink MediaSink) (Transport, error) {
			return NewWebRTCTransport(servers, role, sink, logger)
		}
	}
}

// WithMediaSource sets the host's outgoing media source.
func WithMediaSource(source MediaSource) PeerOption {
	return func(p *Peer) {
		p.source = source
	}
}

// WithMediaSink sets the viewer's sink for remote media.
func WithMediaSink(sink MediaSink) PeerOption {
	return func(p *Peer) {
		p.sink = sink
	}
}

// WithSyncEngine replaces the default sync engine, mainly so tests can
// inject a fake clock.
func WithSyncEngine(engine *SyncEngine) PeerOption {
	return func(p *Peer) {
		p.engine = engine
	}
}

// NewPeer builds a session peer. Role comes from context: a host
// initiates a new room identifier, a viewer joins an existing one.
func NewPeer(role domain.Role, room domain.RoomID, link RelayLink, player Player, logger *zap.SugaredLogger, opts ...PeerOption) *Peer {
	p := &Peer{
		role:   role,
		room:   room,
		link:   link,
		engine: NewSyncEngine(player, logger),
		logger: logger,
		state:  StateIdle,
	}
	p.newTransport = func(role domain.Role, sink MediaSink) (Transport, error) {
		return NewWebRTCTransport(nil, role, sink, logger)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Sync exposes the sync engine so the local playback surface can feed
// play/pause/seek events into it.
func (p *Peer) Sync() *SyncEngine {
	return p.engine
}

func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run joins the room and processes relay envelopes until the context
// ends or the relay connection drops.
func (p *Peer) Run(ctx context.Context) error {
	p.setState(StateJoining)
	if err := p.link.Join(p.room); err != nil {
		return fmt.Errorf("join room %q: %w", p.room, err)
	}
	p.setState(p.waitingState())
	p.logger.Infow("joined room", "room", p.room, "role", p.role)

	go func() {
		<-ctx.Done()
		p.link.Close()
	}()
	defer p.teardownTransport()

	for {
		envelope, err := p.link.ReadEnvelope()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		p.handleEnvelope(ctx, envelope)
	}
}

// HandleEnvelope processes one relay envelope. Exposed for harnesses
// that own the read loop themselves.
func (p *Peer) HandleEnvelope(ctx context.Context, envelope domain.Envelope) {
	p.handleEnvelope(ctx, envelope)
}

func (p *Peer) handleEnvelope(ctx context.Context, envelope domain.Envelope) {
	switch envelope.Type {
	case domain.EnvelopePeerJoined:
		p.handlePeerJoined(ctx)

	case domain.EnvelopePeerLeft:
		p.handlePeerLeft()

	case domain.EnvelopeSignal:
		var payload domain.SignalPayload
		if err := json.Unmarshal(envelope.Signal, &payload); err != nil {
			p.logger.Warnw("dropping malformed signal payload", "error", err)
			return
		}
		p.handleSignal(ctx, payload)

	default:
		p.logger.Debugw("ignoring envelope of unknown type", "type", envelope.Type)
	}
}

// handlePeerJoined starts negotiation on the host side. A viewer keeps
// waiting for the host's offer.
func (p *Peer) handlePeerJoined(ctx context.Context) {
	p.mu.Lock()
	if p.role != domain.RoleHost || p.state != StateWaitingForPeer {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	p.logger.Infow("counterpart joined, sending offer", "room", p.room)
	if err := p.sendOffer(ctx); err != nil {
		p.logger.Errorw("failed to start negotiation", "error", err)
	}
}

func (p *Peer) sendOffer(ctx context.Context) error {
	transport, err := p.ensureTransport()
	if err != nil {
		return err
	}

	p.mu.Lock()
	source := p.source
	p.mu.Unlock()
	if source != nil {
		if _, err := transport.ReplaceMedia(source); err != nil {
			return fmt.Errorf("attach media: %w", err)
		}
	}

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		return err
	}
	if err := p.link.SendSignal(domain.SignalPayload{
		Type: domain.SignalOffer,
		SDP:  offer,
	}); err != nil {
		return err
	}

	p.setState(StateNegotiating)
	return nil
}

func (p *Peer) handleSignal(ctx context.Context, payload domain.SignalPayload) {
	switch payload.Type {
	case domain.SignalOffer:
		p.handleOffer(ctx, payload.SDP)
	case domain.SignalAnswer:
		p.handleAnswer(ctx, payload.SDP)
	case domain.SignalICE:
		p.handleCandidate(payload.Candidate)
	default:
		p.logger.Debugw("ignoring signal of unknown sub-kind", "type", payload.Type)
	}
}

func (p *Peer) handleOffer(ctx context.Context, offer json.RawMessage) {
	// An offer is only ever valid at the viewer; a host receiving one
	// ignores it. Offers while negotiating or connected renegotiate
	// the existing transport (media swap on the host side).
	p.mu.Lock()
	if p.role != domain.RoleViewer {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()

	transport, err := p.ensureTransport()
	if err != nil {
		p.logger.Errorw("failed to create transport for offer", "error", err)
		return
	}

	answer, err := transport.HandleOffer(ctx, offer)
	if err != nil {
		p.logger.Errorw("failed to answer offer", "error", err)
		return
	}
	if err := p.link.SendSignal(domain.SignalPayload{
		Type: domain.SignalAnswer,
		SDP:  answer,
	}); err != nil {
		p.logger.Errorw("failed to send answer", "error", err)
		return
	}

	p.setState(StateNegotiating)
}

func (p *Peer) handleAnswer(ctx context.Context, answer json.RawMessage) {
	p.mu.Lock()
	transport := p.transport
	valid := p.role == domain.RoleHost && p.state == StateNegotiating && transport != nil
	p.mu.Unlock()
	if !valid {
		// An answer arriving at a viewer, or outside negotiation, is
		// ignored rather than treated as an error.
		return
	}

	if err := transport.HandleAnswer(ctx, answer); err != nil {
		p.logger.Errorw("failed to apply answer", "error", err)
	}
}

func (p *Peer) handleCandidate(candidate json.RawMessage) {
	p.mu.Lock()
	transport := p.transport
	p.mu.Unlock()
	if transport == nil {
		return
	}

	if err := transport.AddICECandidate(candidate); err != nil {
		p.logger.Warnw("failed to apply ICE candidate", "error", err)
	}
}

// handlePeerLeft discards direct-channel state and goes back to
// waiting for a new counterpart in the same room. The relay session
// stays up.
func (p *Peer) handlePeerLeft() {
	p.logger.Infow("counterpart left", "room", p.room)
	p.teardownTransport()
	p.setState(p.waitingState())
}

// SetMediaSource swaps the host's outgoing media. When a direct
// channel is live, the track is replaced (with a fresh offer if the
// transport needs renegotiation) and the counterpart is told to reload.
func (p *Peer) SetMediaSource(ctx context.Context, source MediaSource) error {
	p.mu.Lock()
	p.source = source
	transport := p.transport
	state := p.state
	p.mu.Unlock()

	if transport == nil {
		return nil
	}

	renegotiate, err := transport.ReplaceMedia(source)
	if err != nil {
		return fmt.Errorf("replace media: %w", err)
	}

	if renegotiate {
		offer, err := transport.CreateOffer(ctx)
		if err != nil {
			return fmt.Errorf("renegotiate: %w", err)
		}
		if err := p.link.SendSignal(domain.SignalPayload{
			Type: domain.SignalOffer,
			SDP:  offer,
		}); err != nil {
			return fmt.Errorf("renegotiate: %w", err)
		}
		p.setState(StateNegotiating)
	}

	if state == StateConnected {
		return p.engine.LocalEvent(domain.SyncReload, 0)
	}
	return nil
}

// ensureTransport returns the current transport, building and wiring a
// fresh one when none exists.
func (p *Peer) ensureTransport() (Transport, error) {
	p.mu.Lock()
	if p.transport != nil {
		t := p.transport
		p.mu.Unlock()
		return t, nil
	}
	sink := p.sink
	p.mu.Unlock()

	transport, err := p.newTransport(p.role, sink)
	if err != nil {
		return nil, fmt.Errorf("create transport: %w", err)
	}

	transport.OnICECandidate(func(candidate json.RawMessage) {
		if err := p.link.SendSignal(domain.SignalPayload{
			Type:      domain.SignalICE,
			Candidate: candidate,
		}); err != nil {
			p.logger.Warnw("failed to send ICE candidate", "error", err)
		}
	})
	transport.OnMessage(func(data []byte) {
		if err := p.engine.Apply(data); err != nil {
			p.logger.Warnw("failed to apply sync message", "error", err)
		}
	})
	transport.OnConnectionStateChange(func(state TransportState) {
		p.onTransportState(transport, state)
	})

	p.mu.Lock()
	p.transport = transport
	p.mu.Unlock()
	return transport, nil
}

func (p *Peer) onTransportState(transport Transport, state TransportState) {
	p.mu.Lock()
	if p.transport != transport {
		// A stale callback from a transport already torn down.
		p.mu.Unlock()
		return
	}

	switch state {
	case TransportConnected:
		p.state = StateConnected
		p.transport = transport
		p.mu.Unlock()
		p.engine.Bind(transport.Send)
		p.logger.Infow("direct channel established", "room", p.room)

	case TransportDisconnected, TransportFailed, TransportClosed:
		p.transport = nil
		p.state = p.waitingState()
		p.mu.Unlock()
		p.engine.Unbind()
		transport.Close()
		p.logger.Infow("direct channel lost", "room", p.room, "transport_state", state)

	default:
		p.mu.Unlock()
	}
}

func (p *Peer) teardownTransport() {
	p.mu.Lock()
	transport := p.transport
	p.transport = nil
	p.mu.Unlock()

	p.engine.Unbind()
	if transport != nil {
		transport.Close()
	}
}

func (p *Peer) waitingState() State {
	if p.role == domain.RoleHost {
		return StateWaitingForPeer
	}
	return StateWaitingForOffer
}

func (p *Peer) setState(state State) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
}
