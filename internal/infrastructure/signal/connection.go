package signal

import (
	"sync"
	"time"

	"watchparty/internal/core/domain"

	"github.com/gorilla/websocket"
)

// wsConnection wraps one websocket connection as a ports.Connection.
// Writes are serialized: notifications for a connection can originate
// from another occupant's handler goroutine.
type wsConnection struct {
	id           domain.ConnectionID
	conn         *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func newWSConnection(id domain.ConnectionID, conn *websocket.Conn, writeTimeout time.Duration) *wsConnection {
	return &wsConnection{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConnection) ID() domain.ConnectionID {
	return c.id
}

func (c *wsConnection) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrConnectionClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConnection) SendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrConnectionClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConnection) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// markClosed turns every later send into a no-op error instead of a
// write on a dead socket. Pending forwards become no-ops, not errors
// the sender sees.
func (c *wsConnection) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *wsConnection) writePing() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return domain.ErrConnectionClosed
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}
