package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer terminates relay connections and feeds their frames
// to the room service. It parses just enough of each frame to route it
// (type, room); signal payloads are forwarded as the raw bytes that
// arrived.
type WebSocketServer struct {
	rooms   ports.RoomService
	metrics ports.MetricsCollector

	pingInterval time.Duration
	pongTimeout  time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	messageRate    rate.Limit
	messageBurst   int
	maxMessageSize int64

	logger *zap.SugaredLogger
}

type Option func(*WebSocketServer)

// WithMessageRateLimit caps how many frames a single connection may
// send per second. Frames over the limit are dropped; the connection
// stays open.
func WithMessageRateLimit(perSecond float64, burst int) Option {
	return func(s *WebSocketServer) {
		s.messageRate = rate.Limit(perSecond)
		s.messageBurst = burst
	}
}

// WithMaxMessageSize bounds the size of a single frame.
func WithMaxMessageSize(bytes int64) Option {
	return func(s *WebSocketServer) {
		s.maxMessageSize = bytes
	}
}

func WithTimeouts(pingInterval, pongTimeout, readTimeout, writeTimeout time.Duration) Option {
	return func(s *WebSocketServer) {
		s.pingInterval = pingInterval
		s.pongTimeout = pongTimeout
		s.readTimeout = readTimeout
		s.writeTimeout = writeTimeout
	}
}

func NewWebSocketServer(rooms ports.RoomService, metrics ports.MetricsCollector, logger *zap.SugaredLogger, opts ...Option) *WebSocketServer {
	s := &WebSocketServer{
		rooms:        rooms,
		metrics:      metrics,
		pingInterval: 30 * time.Second,
		pongTimeout:  60 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer wsConn.Close()

	conn := newWSConnection(domain.ConnectionID(uuid.NewString()), wsConn, s.writeTimeout)

	if s.metrics != nil {
		s.metrics.ConnectionOpened()
	}
	s.logger.Infow("connection opened",
		"connection_id", conn.ID(),
		"remote_addr", wsConn.RemoteAddr().String(),
	)

	if s.maxMessageSize > 0 {
		wsConn.SetReadLimit(s.maxMessageSize)
	}
	wsConn.SetReadDeadline(time.Now().Add(s.readTimeout))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	// One reader goroutine per connection; frames are handled in
	// arrival order by the select loop below, so no two frames from
	// the same connection are ever processed out of order.
	messageChan := make(chan []byte, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			_, raw, err := wsConn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			wsConn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- raw
		}
	}()

	var limiter *rate.Limiter
	if s.messageRate > 0 {
		limiter = rate.NewLimiter(s.messageRate, s.messageBurst)
	}

	for {
		select {
		case raw := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				s.logger.Warnw("dropping frame over rate limit", "connection_id", conn.ID())
				continue
			}
			s.handleFrame(r.Context(), conn, raw)

		case <-pingTicker.C:
			if err := conn.writePing(); err != nil {
				s.logger.Infow("ping failed", "connection_id", conn.ID(), "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error", "connection_id", conn.ID(), "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	conn.markClosed()
	if s.metrics != nil {
		s.metrics.ConnectionClosed()
	}

	if err := s.rooms.Leave(context.Background(), conn); err != nil {
		s.logger.Warnw("leave failed", "connection_id", conn.ID(), "error", err)
	}
	s.logger.Infow("connection closed", "connection_id", conn.ID())
}

// handleFrame routes one raw frame. Malformed input is logged and
// dropped; it never reaches other participants and never terminates
// the connection.
func (s *WebSocketServer) handleFrame(ctx context.Context, conn *wsConnection, raw []byte) {
	var envelope domain.Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		s.logger.Warnw("dropping malformed frame",
			"connection_id", conn.ID(),
			"error", err,
		)
		return
	}

	ctx, span := tracing.TraceRelayMessage(ctx, envelope.Type, string(conn.ID()))
	defer span.End()

	switch envelope.Type {
	case domain.EnvelopeJoin:
		if err := s.rooms.Join(ctx, conn, envelope.Room); err != nil {
			tracing.RecordError(ctx, err)
			s.logger.Warnw("join failed",
				"connection_id", conn.ID(),
				"room", envelope.Room,
				"error", err,
			)
		}

	case domain.EnvelopeSignal:
		// The original frame goes out verbatim; the inner payload is
		// opaque to the relay.
		if err := s.rooms.Forward(ctx, conn, raw); err != nil {
			tracing.RecordError(ctx, err)
			s.logger.Warnw("forward failed", "connection_id", conn.ID(), "error", err)
		}

	default:
		s.logger.Debugw("dropping frame of unknown type",
			"connection_id", conn.ID(),
			"type", envelope.Type,
		)
	}
}
