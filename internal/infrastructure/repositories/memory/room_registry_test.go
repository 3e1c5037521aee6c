package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchparty/internal/core/domain"
	"watchparty/internal/core/ports"
)

type stubConn struct {
	id domain.ConnectionID
}

var _ ports.Connection = (*stubConn)(nil)

func (c *stubConn) ID() domain.ConnectionID { return c.id }
func (c *stubConn) Send(v interface{}) error { return nil }
func (c *stubConn) SendRaw(data []byte) error { return nil }
func (c *stubConn) IsOpen() bool             { return true }

func conn(id string) *stubConn {
	return &stubConn{id: domain.ConnectionID(id)}
}

func TestJoinPairsOnSecondOccupantOnly(t *testing.T) {
	reg := NewMemoryRoomRegistry()
	ctx := context.Background()

	occupants, paired, err := reg.Join(ctx, "movie-night", conn("c1"))
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Len(t, occupants, 1)

	occupants, paired, err = reg.Join(ctx, "movie-night", conn("c2"))
	require.NoError(t, err)
	assert.True(t, paired)
	assert.Len(t, occupants, 2)

	// A third occupant is accepted but never re-triggers pairing.
	occupants, paired, err = reg.Join(ctx, "movie-night", conn("c3"))
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Len(t, occupants, 3)
}

func TestJoinRejectsEmptyRoomID(t *testing.T) {
	reg := NewMemoryRoomRegistry()

	_, _, err := reg.Join(context.Background(), "", conn("c1"))
	assert.ErrorIs(t, err, domain.ErrEmptyRoomID)
}

func TestRepeatedJoinIsNoOp(t *testing.T) {
	reg := NewMemoryRoomRegistry()
	ctx := context.Background()
	c1 := conn("c1")

	_, _, err := reg.Join(ctx, "room", c1)
	require.NoError(t, err)

	// Same room again: no pairing, occupancy unchanged.
	occupants, paired, err := reg.Join(ctx, "room", c1)
	require.NoError(t, err)
	assert.False(t, paired)
	assert.Len(t, occupants, 1)

	// A different room for an already-joined connection is ignored too.
	_, paired, err = reg.Join(ctx, "other", c1)
	require.NoError(t, err)
	assert.False(t, paired)

	rooms, err := reg.Rooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, domain.RoomID("room"), rooms[0].ID)
}

func TestCounterparts(t *testing.T) {
	reg := NewMemoryRoomRegistry()
	ctx := context.Background()
	c1, c2 := conn("c1"), conn("c2")

	_, err := reg.Counterparts(ctx, c1)
	assert.ErrorIs(t, err, domain.ErrNotInRoom)

	_, _, err = reg.Join(ctx, "room", c1)
	require.NoError(t, err)

	others, err := reg.Counterparts(ctx, c1)
	require.NoError(t, err)
	assert.Empty(t, others)

	_, _, err = reg.Join(ctx, "room", c2)
	require.NoError(t, err)

	others, err = reg.Counterparts(ctx, c1)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, c2.ID(), others[0].ID())
}

func TestLeaveDestroysEmptyRoom(t *testing.T) {
	reg := NewMemoryRoomRegistry()
	ctx := context.Background()
	c1, c2 := conn("c1"), conn("c2")

	_, _, err := reg.Join(ctx, "room", c1)
	require.NoError(t, err)
	_, _, err = reg.Join(ctx, "room", c2)
	require.NoError(t, err)

	roomID, remaining, err := reg.Leave(ctx, c1)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room"), roomID)
	require.Len(t, remaining, 1)
	assert.Equal(t, c2.ID(), remaining[0].ID())

	roomID, remaining, err = reg.Leave(ctx, c2)
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room"), roomID)
	assert.Empty(t, remaining)

	rooms, err := reg.Rooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, rooms)

	// The same identifier is a fresh room afterwards: a new pair fires
	// pairing again.
	_, _, err = reg.Join(ctx, "room", conn("c3"))
	require.NoError(t, err)
	_, paired, err := reg.Join(ctx, "room", conn("c4"))
	require.NoError(t, err)
	assert.True(t, paired)
}

func TestLeaveWithoutJoinIsHarmless(t *testing.T) {
	reg := NewMemoryRoomRegistry()

	roomID, remaining, err := reg.Leave(context.Background(), conn("ghost"))
	require.NoError(t, err)
	assert.Empty(t, string(roomID))
	assert.Empty(t, remaining)
}

func TestConcurrentJoinsPairExactlyOnce(t *testing.T) {
	reg := NewMemoryRoomRegistry()
	ctx := context.Background()

	const joiners = 16
	var wg sync.WaitGroup
	pairedCount := make(chan bool, joiners)

	for i := 0; i < joiners; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, paired, err := reg.Join(ctx, "contended", conn(fmt.Sprintf("c%d", i)))
			if err == nil && paired {
				pairedCount <- true
			}
		}(i)
	}
	wg.Wait()
	close(pairedCount)

	var fired int
	for range pairedCount {
		fired++
	}
	assert.Equal(t, 1, fired)
}
