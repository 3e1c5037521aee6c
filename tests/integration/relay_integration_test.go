package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"watchparty/internal/core/services"
	"watchparty/internal/infrastructure/repositories/memory"
	"watchparty/internal/infrastructure/signal"
)

func newRelayServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := zap.NewNop().Sugar()
	registry := memory.NewMemoryRoomRegistry()
	roomService := services.NewRoomService(registry, nil, nil, logger)
	wsServer := signal.NewWebSocketServer(roomService, nil, logger)

	ts := httptest.NewServer(http.HandlerFunc(wsServer.HandleWebSocket))
	t.Cleanup(ts.Close)
	return ts
}

func dialRelay(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + ts.URL[4:]
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func joinRoom(t *testing.T, conn *websocket.Conn, room string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "room": room}))
}

func readFrame(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return raw
}

func readTyped(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(readFrame(t, conn), &msg))
	return msg
}

// expectSilence asserts no frame arrives within d. The read timeout
// poisons the websocket for further reads, so this must be the last
// read on conn.
func expectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err, "expected no frame")
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(t, ok && netErr.Timeout(), "expected read timeout, got %v", err)
}

func TestPairAndRelayEndToEnd(t *testing.T) {
	ts := newRelayServer(t)

	host := dialRelay(t, ts)
	joinRoom(t, host, "movie-night")

	viewer := dialRelay(t, ts)
	joinRoom(t, viewer, "movie-night")

	// Both sides learn the counterpart arrived, and it is the first
	// thing either ever hears: a lone occupant gets no notification.
	assert.Equal(t, "peer-joined", readTyped(t, host)["type"])
	assert.Equal(t, "peer-joined", readTyped(t, viewer)["type"])

	// A signal frame crosses byte-identical, odd whitespace and all.
	frame := []byte(`{"type":"signal",  "signal":{"type":"offer","sdp":"v=0\r\n","z":3}}`)
	require.NoError(t, host.WriteMessage(websocket.TextMessage, frame))
	assert.Equal(t, frame, readFrame(t, viewer))

	// And back the other way.
	answer := []byte(`{"type":"signal","signal":{"type":"answer","sdp":"v=0\r\n"}}`)
	require.NoError(t, viewer.WriteMessage(websocket.TextMessage, answer))
	assert.Equal(t, answer, readFrame(t, host))

	// The sender never hears its own frame.
	expectSilence(t, host, 200*time.Millisecond)
}

func TestDisconnectNotifiesRemainingPeer(t *testing.T) {
	ts := newRelayServer(t)

	host := dialRelay(t, ts)
	joinRoom(t, host, "room")
	viewer := dialRelay(t, ts)
	joinRoom(t, viewer, "room")

	readTyped(t, host)
	readTyped(t, viewer)

	require.NoError(t, viewer.Close())

	assert.Equal(t, "peer-left", readTyped(t, host)["type"])

	// The survivor keeps the room: a reconnecting counterpart pairs again.
	second := dialRelay(t, ts)
	joinRoom(t, second, "room")
	assert.Equal(t, "peer-joined", readTyped(t, host)["type"])
	assert.Equal(t, "peer-joined", readTyped(t, second)["type"])
}

func TestRoomIsRecreatedAfterEmptying(t *testing.T) {
	ts := newRelayServer(t)

	first := dialRelay(t, ts)
	joinRoom(t, first, "ephemeral")
	require.NoError(t, first.Close())

	// Give the relay a moment to tear the room down.
	time.Sleep(100 * time.Millisecond)

	a := dialRelay(t, ts)
	joinRoom(t, a, "ephemeral")
	b := dialRelay(t, ts)
	joinRoom(t, b, "ephemeral")

	assert.Equal(t, "peer-joined", readTyped(t, a)["type"])
	assert.Equal(t, "peer-joined", readTyped(t, b)["type"])
}

func TestThirdOccupantReceivesForwards(t *testing.T) {
	ts := newRelayServer(t)

	a := dialRelay(t, ts)
	joinRoom(t, a, "crowded")
	b := dialRelay(t, ts)
	joinRoom(t, b, "crowded")
	readTyped(t, a)
	readTyped(t, b)

	c := dialRelay(t, ts)
	joinRoom(t, c, "crowded")

	// The third join never re-fires pairing.
	expectSilence(t, a, 200*time.Millisecond)

	frame := []byte(`{"type":"signal","signal":{"type":"ice","candidate":{"c":"x"}}}`)
	require.NoError(t, a.WriteMessage(websocket.TextMessage, frame))
	assert.Equal(t, frame, readFrame(t, b))
	assert.Equal(t, frame, readFrame(t, c))
}

func TestMalformedFrameDoesNotKillConnection(t *testing.T) {
	ts := newRelayServer(t)

	host := dialRelay(t, ts)
	joinRoom(t, host, "room")
	viewer := dialRelay(t, ts)
	joinRoom(t, viewer, "room")
	readTyped(t, host)
	readTyped(t, viewer)

	require.NoError(t, host.WriteMessage(websocket.TextMessage, []byte(`{not json`)))
	require.NoError(t, host.WriteMessage(websocket.TextMessage, []byte(`{"type":"gossip"}`)))

	// The connection survives both and routing still works.
	frame := []byte(`{"type":"signal","signal":{"type":"offer","sdp":"x"}}`)
	require.NoError(t, host.WriteMessage(websocket.TextMessage, frame))
	assert.Equal(t, frame, readFrame(t, viewer))

	// Neither bad frame reached the counterpart.
	expectSilence(t, viewer, 200*time.Millisecond)
}

func TestSignalBeforeJoinIsDropped(t *testing.T) {
	ts := newRelayServer(t)

	loner := dialRelay(t, ts)
	require.NoError(t, loner.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"signal","signal":{"type":"offer","sdp":"x"}}`)))

	// No error frame, no disconnect: the first frame the loner ever
	// hears is the pairing notification after a counterpart joins.
	joinRoom(t, loner, "late")
	peer := dialRelay(t, ts)
	joinRoom(t, peer, "late")
	assert.Equal(t, "peer-joined", readTyped(t, loner)["type"])
}

func TestIndependentRoomsDoNotLeak(t *testing.T) {
	ts := newRelayServer(t)

	a1 := dialRelay(t, ts)
	joinRoom(t, a1, "room-a")
	a2 := dialRelay(t, ts)
	joinRoom(t, a2, "room-a")
	readTyped(t, a1)
	readTyped(t, a2)

	b1 := dialRelay(t, ts)
	joinRoom(t, b1, "room-b")

	frame := []byte(`{"type":"signal","signal":{"type":"offer","sdp":"x"}}`)
	require.NoError(t, a1.WriteMessage(websocket.TextMessage, frame))
	assert.Equal(t, frame, readFrame(t, a2))

	expectSilence(t, b1, 200*time.Millisecond)
}
