package live_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-client/internal/backendtest"
	"github.com/iliyamo/cinema-seat-client/internal/live"
	"github.com/iliyamo/cinema-seat-client/internal/model"
	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

func setup(t *testing.T) (*backendtest.Server, *live.Conn) {
	t.Helper()
	srv := backendtest.New(t)
	srv.AddShowtime(model.Showtime{ShowtimeID: 7, ScreenID: 2}, backendtest.Seats(4)...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := live.Dial(ctx, srv.LiveURL(), live.DialOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return srv, conn
}

func TestDial_AssignsConnectionID(t *testing.T) {
	_, conn := setup(t)
	assert.NotEmpty(t, conn.ID())
}

func TestJoin_ReceivesRoomEvents(t *testing.T) {
	srv, conn := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, conn.Join(ctx, 7))
	assert.Equal(t, []string{conn.ID()}, srv.Members(7))

	srv.HoldAs(7, "other", 3)
	ev, err := conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, seating.EventSeatReserved, ev.Type)
	assert.Equal(t, int64(3), ev.SeatID)
	assert.Equal(t, "other", ev.ConnectionID)

	id := srv.BookAs(7, "other", 1, 2)
	ev, err = conn.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, seating.EventSeatsBooked, ev.Type)
	assert.Equal(t, []int64{1, 2}, ev.SeatIDs)
	require.NotNil(t, ev.BookingID)
	assert.Equal(t, id, *ev.BookingID)
}

func TestJoin_UnknownShowtimeFails(t *testing.T) {
	_, conn := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Error(t, conn.Join(ctx, 99))
}

func TestNext_ExpiryCarriesDeadline(t *testing.T) {
	srv, conn := setup(t)
	srv.SetHoldTTL(time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Join(ctx, 7))

	srv.HoldAs(7, "other", 1)
	ev, err := conn.Next(ctx)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Minute), ev.ExpiresAt, 5*time.Second)
}

func TestNext_DroppedConnectionIsAnError(t *testing.T) {
	srv, conn := setup(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Join(ctx, 7))

	srv.DropConnections()
	_, err := conn.Next(ctx)
	require.Error(t, err)
	assert.False(t, errors.Is(err, live.ErrClosed))
}

func TestMessage_EventSkipsControlFrames(t *testing.T) {
	_, ok := live.Message{Type: live.TypeJoined}.Event()
	assert.False(t, ok)

	ev, ok := live.Message{Type: "reservation_expired", SeatID: 4, ConnectionID: "c"}.Event()
	require.True(t, ok)
	assert.Equal(t, seating.Event{Type: seating.EventReservationExpired, SeatID: 4, ConnectionID: "c"}, ev)
}
