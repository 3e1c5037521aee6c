package peer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"watchparty/internal/core/domain"

	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"
)

const syncChannelLabel = "sync"

// DefaultICEServers is used when no ICE servers are configured.
var DefaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// webRTCTransport implements Transport over a pion peer connection
// with a "sync" data channel and at most one outgoing media track.
type webRTCTransport struct {
	pc     *webrtc.PeerConnection
	role   domain.Role
	sink   MediaSink
	logger *zap.SugaredLogger

	mu         sync.Mutex
	dataChan   *webrtc.DataChannel
	sender     *webrtc.RTPSender
	pumpCancel context.CancelFunc

	onMessage   func([]byte)
	onCandidate func(json.RawMessage)
	onState     func(TransportState)

	// Candidates that arrive before the remote description is set are
	// held back; pion rejects them otherwise.
	remoteSet         bool
	pendingCandidates []webrtc.ICECandidateInit
}

// NewWebRTCTransport builds the production transport. The host side
// owns the data channel and the outgoing track; the viewer receives
// both.
func NewWebRTCTransport(iceServers []webrtc.ICEServer, role domain.Role, sink MediaSink, logger *zap.SugaredLogger) (Transport, error) {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	t := &webRTCTransport{
		pc:     pc,
		role:   role,
		sink:   sink,
		logger: logger,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		blob, err := json.Marshal(c.ToJSON())
		if err != nil {
			t.logger.Warnw("failed to encode ICE candidate", "error", err)
			return
		}
		t.mu.Lock()
		fn := t.onCandidate
		t.mu.Unlock()
		if fn != nil {
			fn(blob)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.mu.Lock()
		fn := t.onState
		t.mu.Unlock()
		if fn != nil {
			fn(mapConnectionState(state))
		}
	})

	if role == domain.RoleHost {
		dc, err := pc.CreateDataChannel(syncChannelLabel, nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("create data channel: %w", err)
		}
		t.bindDataChannel(dc)
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			t.bindDataChannel(dc)
		})
		pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
			t.logger.Infow("remote track started",
				"track_id", track.ID(),
				"codec", track.Codec().MimeType,
			)
			go t.drainRemoteTrack(track)
		})
	}

	return t, nil
}

func (t *webRTCTransport) bindDataChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.dataChan = dc
	t.mu.Unlock()

	dc.OnOpen(func() {
		t.logger.Debugw("data channel open", "label", dc.Label())
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.Lock()
		fn := t.onMessage
		t.mu.Unlock()
		if fn != nil {
			fn(msg.Data)
		}
	})
}

func (t *webRTCTransport) CreateOffer(ctx context.Context) (json.RawMessage, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(t.pc.LocalDescription())
}

func (t *webRTCTransport) HandleOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(offer, &desc); err != nil {
		return nil, fmt.Errorf("decode offer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}
	t.flushPendingCandidates()

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	return json.Marshal(t.pc.LocalDescription())
}

func (t *webRTCTransport) HandleAnswer(ctx context.Context, answer json.RawMessage) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal(answer, &desc); err != nil {
		return fmt.Errorf("decode answer: %w", err)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	t.flushPendingCandidates()
	return nil
}

func (t *webRTCTransport) AddICECandidate(candidate json.RawMessage) error {
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(candidate, &init); err != nil {
		return fmt.Errorf("decode ICE candidate: %w", err)
	}

	t.mu.Lock()
	if !t.remoteSet {
		t.pendingCandidates = append(t.pendingCandidates, init)
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if err := t.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ICE candidate: %w", err)
	}
	return nil
}

func (t *webRTCTransport) flushPendingCandidates() {
	t.mu.Lock()
	pending := t.pendingCandidates
	t.pendingCandidates = nil
	t.remoteSet = true
	t.mu.Unlock()

	for _, init := range pending {
		if err := t.pc.AddICECandidate(init); err != nil {
			t.logger.Warnw("failed to apply buffered ICE candidate", "error", err)
		}
	}
}

func (t *webRTCTransport) OnICECandidate(fn func(json.RawMessage)) {
	t.mu.Lock()
	t.onCandidate = fn
	t.mu.Unlock()
}

func (t *webRTCTransport) OnConnectionStateChange(fn func(TransportState)) {
	t.mu.Lock()
	t.onState = fn
	t.mu.Unlock()
}

func (t *webRTCTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *webRTCTransport) Send(data []byte) error {
	t.mu.Lock()
	dc := t.dataChan
	t.mu.Unlock()

	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("data channel not open")
	}
	return dc.Send(data)
}

func (t *webRTCTransport) ReplaceMedia(source MediaSource) (bool, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: source.MimeType()},
		"video",
		"watchparty",
	)
	if err != nil {
		return false, fmt.Errorf("create local track: %w", err)
	}

	t.mu.Lock()
	sender := t.sender
	if t.pumpCancel != nil {
		t.pumpCancel()
		t.pumpCancel = nil
	}
	t.mu.Unlock()

	renegotiate := false
	if sender != nil {
		if err := sender.ReplaceTrack(track); err != nil {
			return false, fmt.Errorf("replace track: %w", err)
		}
	} else {
		newSender, err := t.pc.AddTrack(track)
		if err != nil {
			return false, fmt.Errorf("add track: %w", err)
		}
		sender = newSender
		// The counterpart has never seen this track; a fresh offer
		// has to travel through the relay.
		renegotiate = true
		go t.drainSenderRTCP(newSender)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.sender = sender
	t.pumpCancel = cancel
	t.mu.Unlock()

	go t.pumpSamples(pumpCtx, source, track)
	return renegotiate, nil
}

// pumpSamples feeds samples from the source into the outgoing track
// until the source ends or the media is swapped again.
func (t *webRTCTransport) pumpSamples(ctx context.Context, source MediaSource, track *webrtc.TrackLocalStaticSample) {
	for {
		sample, err := source.NextSample(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, io.EOF) {
				t.logger.Warnw("media source ended", "error", err)
			}
			return
		}
		if err := track.WriteSample(sample); err != nil {
			t.logger.Warnw("failed to write media sample", "error", err)
			return
		}
	}
}

// drainRemoteTrack moves RTP packets from the remote track into the
// sink. Without a sink the packets still have to be read to keep the
// interceptor pipeline moving.
func (t *webRTCTransport) drainRemoteTrack(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		if t.sink == nil {
			continue
		}
		if err := t.sink.WriteRTP(pkt); err != nil {
			t.logger.Warnw("media sink rejected packet", "error", err)
			return
		}
	}
}

// drainSenderRTCP reads receiver reports for the outgoing track so the
// host can see how the viewer is keeping up.
func (t *webRTCTransport) drainSenderRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		n, _, err := sender.Read(buf)
		if err != nil {
			return
		}
		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			t.logger.Debugw("failed to parse RTCP packet", "error", err)
			continue
		}
		for _, pkt := range packets {
			if report, ok := pkt.(*rtcp.ReceiverReport); ok {
				for _, r := range report.Reports {
					t.logger.Debugw("receiver report",
						"fraction_lost", r.FractionLost,
						"jitter", r.Jitter,
					)
				}
			}
		}
	}
}

func (t *webRTCTransport) Close() error {
	t.mu.Lock()
	if t.pumpCancel != nil {
		t.pumpCancel()
		t.pumpCancel = nil
	}
	t.mu.Unlock()
	return t.pc.Close()
}

func mapConnectionState(state webrtc.PeerConnectionState) TransportState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return TransportNew
	case webrtc.PeerConnectionStateConnecting:
		return TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return TransportFailed
	default:
		return TransportClosed
	}
}

// ensure interface compliance
var _ MediaSource = (*sampleFunc)(nil)

// sampleFunc adapts a plain function to MediaSource, handy for tests
// and synthetic sources.
type sampleFunc struct {
	mimeType string
	next     func(ctx context.Context) (media.Sample, error)
}

// SourceFunc wraps a sample-producing function as a MediaSource.
func SourceFunc(mimeType string, next func(ctx context.Context) (media.Sample, error)) MediaSource {
	return &sampleFunc{mimeType: mimeType, next: next}
}

func (s *sampleFunc) MimeType() string { return s.mimeType }

func (s *sampleFunc) NextSample(ctx context.Context) (media.Sample, error) {
	return s.next(ctx)
}
