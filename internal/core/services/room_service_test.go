package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
	"watchparty/internal/infrastructure/repositories/memory"
)

// recordingConn captures everything the relay delivers to it.
type recordingConn struct {
	id   domain.ConnectionID
	open bool

	mu       sync.Mutex
	sent     []domain.Envelope
	rawSent  [][]byte
	sendErr  error
}

var _ ports.Connection = (*recordingConn)(nil)

func newRecordingConn(id string) *recordingConn {
	return &recordingConn{id: domain.ConnectionID(id), open: true}
}

func (c *recordingConn) ID() domain.ConnectionID { return c.id }
func (c *recordingConn) IsOpen() bool            { return c.open }

func (c *recordingConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, v.(domain.Envelope))
	return nil
}

func (c *recordingConn) SendRaw(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.rawSent = append(c.rawSent, buf)
	return nil
}

func (c *recordingConn) envelopes() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Envelope, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *recordingConn) rawFrames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.rawSent))
	copy(out, c.rawSent)
	return out
}

// fakeEvents records published room lifecycle events.
type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeEvents) PublishRoomEvent(ctx context.Context, eventType string, roomID domain.RoomID, occupants int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func newTestService(opts ...RoomServiceOption) *RoomService {
	return NewRoomService(memory.NewMemoryRoomRegistry(), nil, nil, zap.NewNop().Sugar(), opts...)
}

func TestJoinNotifiesBothSidesOnPairing(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c1 := newRecordingConn("c1")
	c2 := newRecordingConn("c2")

	require.NoError(t, svc.Join(ctx, c1, "movie-night"))
	assert.Empty(t, c1.envelopes(), "lone occupant must not be notified")

	require.NoError(t, svc.Join(ctx, c2, "movie-night"))

	require.Len(t, c1.envelopes(), 1)
	require.Len(t, c2.envelopes(), 1)
	assert.Equal(t, domain.EnvelopePeerJoined, c1.envelopes()[0].Type)
	assert.Equal(t, domain.EnvelopePeerJoined, c2.envelopes()[0].Type)
}

func TestJoinThirdOccupantDoesNotRePair(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c1 := newRecordingConn("c1")
	c2 := newRecordingConn("c2")
	c3 := newRecordingConn("c3")

	require.NoError(t, svc.Join(ctx, c1, "room"))
	require.NoError(t, svc.Join(ctx, c2, "room"))
	require.NoError(t, svc.Join(ctx, c3, "room"))

	assert.Len(t, c1.envelopes(), 1)
	assert.Len(t, c2.envelopes(), 1)
	assert.Empty(t, c3.envelopes())
}

func TestJoinEmptyRoomIDFails(t *testing.T) {
	svc := newTestService()

	err := svc.Join(context.Background(), newRecordingConn("c1"), "")
	assert.ErrorIs(t, err, domain.ErrEmptyRoomID)
}

func TestForwardDeliversBytesVerbatim(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c1 := newRecordingConn("c1")
	c2 := newRecordingConn("c2")

	require.NoError(t, svc.Join(ctx, c1, "room"))
	require.NoError(t, svc.Join(ctx, c2, "room"))

	// Key order, whitespace and unknown fields must survive untouched.
	frame := []byte(`{"type":"signal","signal":{"type":"offer","sdp":"v=0\r\n...",  "x":1}}`)
	require.NoError(t, svc.Forward(ctx, c1, frame))

	require.Len(t, c2.rawFrames(), 1)
	assert.Equal(t, frame, c2.rawFrames()[0])
	assert.Empty(t, c1.rawFrames(), "sender must not receive its own frame")
}

func TestForwardBeforePairingIsDroppedSilently(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c1 := newRecordingConn("c1")

	// Never joined at all.
	require.NoError(t, svc.Forward(ctx, c1, []byte(`{"type":"signal"}`)))

	// Joined but alone: nothing to route to, no error either.
	require.NoError(t, svc.Join(ctx, c1, "room"))
	require.NoError(t, svc.Forward(ctx, c1, []byte(`{"type":"signal"}`)))
}

func TestForwardSkipsClosedCounterpart(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c1 := newRecordingConn("c1")
	c2 := newRecordingConn("c2")

	require.NoError(t, svc.Join(ctx, c1, "room"))
	require.NoError(t, svc.Join(ctx, c2, "room"))

	c2.open = false
	require.NoError(t, svc.Forward(ctx, c1, []byte(`{"type":"signal"}`)))
	assert.Empty(t, c2.rawFrames())
}

func TestLeaveNotifiesRemainingPeer(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c1 := newRecordingConn("c1")
	c2 := newRecordingConn("c2")

	require.NoError(t, svc.Join(ctx, c1, "room"))
	require.NoError(t, svc.Join(ctx, c2, "room"))

	require.NoError(t, svc.Leave(ctx, c1))

	envs := c2.envelopes()
	require.Len(t, envs, 2)
	assert.Equal(t, domain.EnvelopePeerJoined, envs[0].Type)
	assert.Equal(t, domain.EnvelopePeerLeft, envs[1].Type)

	// The departed side itself is told nothing.
	assert.Len(t, c1.envelopes(), 1)

	// Room survives with one occupant; a newcomer re-pairs.
	rooms, err := svc.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, 1, rooms[0].Occupants)

	c3 := newRecordingConn("c3")
	require.NoError(t, svc.Join(ctx, c3, "room"))
	require.Len(t, c2.envelopes(), 3)
	assert.Equal(t, domain.EnvelopePeerJoined, c2.envelopes()[2].Type)
}

func TestLeaveLastOccupantDestroysRoom(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c1 := newRecordingConn("c1")

	require.NoError(t, svc.Join(ctx, c1, "room"))
	require.NoError(t, svc.Leave(ctx, c1))

	rooms, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)
}

func TestLeaveWithoutJoin(t *testing.T) {
	svc := newTestService()
	assert.NoError(t, svc.Leave(context.Background(), newRecordingConn("ghost")))
}

func TestRoomLifecycleEventsPublished(t *testing.T) {
	events := &fakeEvents{}
	svc := newTestService(WithEventPublisher(events))
	ctx := context.Background()
	c1 := newRecordingConn("c1")
	c2 := newRecordingConn("c2")

	require.NoError(t, svc.Join(ctx, c1, "room"))
	require.NoError(t, svc.Join(ctx, c2, "room"))
	require.NoError(t, svc.Leave(ctx, c1))
	require.NoError(t, svc.Leave(ctx, c2))

	assert.Equal(t, []string{
		domain.EventRoomCreated,
		domain.EventPeersPaired,
		domain.EventPeerLeft,
		domain.EventRoomDestroyed,
	}, events.events)
}

func TestLeaveSendFailureDoesNotFailLeave(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	c1 := newRecordingConn("c1")
	c2 := newRecordingConn("c2")

	require.NoError(t, svc.Join(ctx, c1, "room"))
	require.NoError(t, svc.Join(ctx, c2, "room"))

	c2.sendErr = domain.ErrConnectionClosed
	assert.NoError(t, svc.Leave(ctx, c1))
}
