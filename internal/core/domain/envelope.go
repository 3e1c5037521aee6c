package domain

import "encoding/json"

// Envelope kinds on the relay channel. Field names match the deployed
// wire protocol and must not change.
const (
	EnvelopeJoin       = "join"
	EnvelopeSignal     = "signal"
	EnvelopePeerJoined = "peer-joined"
	EnvelopePeerLeft   = "peer-left"
)

// Envelope is a relay-routed message. The relay only ever looks at Type
// and Room; Signal stays an opaque blob and is forwarded verbatim.
type Envelope struct {
	Type   string          `json:"type"`
	Room   RoomID          `json:"room,omitempty"`
	Signal json.RawMessage `json:"signal,omitempty"`
}

// Signal sub-kinds inside a "signal" envelope. The relay never inspects
// these; they are the session peers' negotiation vocabulary.
const (
	SignalOffer  = "offer"
	SignalAnswer = "answer"
	SignalICE    = "ice"
)

// SignalPayload is the negotiation payload exchanged between session
// peers through the relay. SDP and Candidate are transport-specific
// blobs and are never interpreted outside the peer transport.
type SignalPayload struct {
	Type      string          `json:"type"`
	SDP       json.RawMessage `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}
