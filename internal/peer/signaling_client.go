package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"watchparty/internal/core/domain"

	"github.com/gorilla/websocket"
)

// RelayLink is the session peer's channel to the relay service. The
// concrete implementation speaks websocket; tests substitute fakes.
type RelayLink interface {
	Join(room domain.RoomID) error
	SendSignal(payload domain.SignalPayload) error
	// ReadEnvelope blocks until the next relay envelope arrives.
	ReadEnvelope() (domain.Envelope, error)
	Close() error
}

// SignalingClient is the websocket RelayLink.
type SignalingClient struct {
	conn *websocket.Conn

	mu sync.Mutex // serializes writes
}

// DialRelay connects to a relay's /ws endpoint.
func DialRelay(ctx context.Context, url string) (*SignalingClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay %s: %w", url, err)
	}
	return &SignalingClient{conn: conn}, nil
}

func (c *SignalingClient) Join(room domain.RoomID) error {
	return c.writeJSON(domain.Envelope{
		Type: domain.EnvelopeJoin,
		Room: room,
	})
}

func (c *SignalingClient) SendSignal(payload domain.SignalPayload) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode signal payload: %w", err)
	}
	return c.writeJSON(domain.Envelope{
		Type:   domain.EnvelopeSignal,
		Signal: blob,
	})
}

func (c *SignalingClient) ReadEnvelope() (domain.Envelope, error) {
	var envelope domain.Envelope
	if err := c.conn.ReadJSON(&envelope); err != nil {
		return domain.Envelope{}, fmt.Errorf("read relay envelope: %w", err)
	}
	return envelope, nil
}

func (c *SignalingClient) Close() error {
	return c.conn.Close()
}

func (c *SignalingClient) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}
