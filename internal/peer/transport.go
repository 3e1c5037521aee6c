package peer

import (
	"context"
	"encoding/json"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media"
)

// TransportState mirrors the direct transport's connection lifecycle.
type TransportState string

const (
	TransportNew          TransportState = "new"
	TransportConnecting   TransportState = "connecting"
	TransportConnected    TransportState = "connected"
	TransportDisconnected TransportState = "disconnected"
	TransportFailed       TransportState = "failed"
	TransportClosed       TransportState = "closed"
)

// Transport is the peer-to-peer capability the session peer drives.
// Descriptions and candidates are opaque blobs: the state machine
// moves them through the relay without interpreting them.
type Transport interface {
	// CreateOffer produces this side's local description blob.
	CreateOffer(ctx context.Context) (json.RawMessage, error)
	// HandleOffer applies the counterpart's offer and produces the
	// local answer blob.
	HandleOffer(ctx context.Context, offer json.RawMessage) (json.RawMessage, error)
	// HandleAnswer applies the counterpart's answer.
	HandleAnswer(ctx context.Context, answer json.RawMessage) error
	// AddICECandidate applies a remote connectivity candidate.
	AddICECandidate(candidate json.RawMessage) error

	// OnICECandidate registers the callback for locally discovered
	// candidates. Callbacks fire asynchronously during negotiation.
	OnICECandidate(fn func(candidate json.RawMessage))
	// OnConnectionStateChange registers the transport state callback.
	OnConnectionStateChange(fn func(TransportState))
	// OnMessage registers the data-channel receive callback.
	OnMessage(fn func(data []byte))

	// Send writes to the direct data channel.
	Send(data []byte) error

	// ReplaceMedia swaps the outgoing media source. renegotiate is
	// true when the swap added a track the counterpart has not seen,
	// requiring a fresh offer over the relay.
	ReplaceMedia(source MediaSource) (renegotiate bool, err error)

	Close() error
}

// MediaSource produces encoded media samples for the outgoing track.
// Capture and encoding are outside this package; a source is a black
// box that yields samples at its own pace.
type MediaSource interface {
	// MimeType reports the sample codec, e.g. "video/VP8".
	MimeType() string
	// NextSample blocks until the next sample is available. Returning
	// an error ends the pump for this source.
	NextSample(ctx context.Context) (media.Sample, error)
}

// MediaSink consumes RTP packets from the remote track on the viewer
// side. Decoding and rendering are outside this package.
type MediaSink interface {
	WriteRTP(pkt *rtp.Packet) error
}
