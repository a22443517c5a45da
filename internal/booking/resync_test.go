package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/model"
	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

const selfConn = "conn-me"

// loopless builds a connected view whose state is driven directly by the
// test instead of the event loop.
func loopless(t *testing.T, seats ...model.Seat) *View {
	t.Helper()
	opts := Options{}
	opts.setDefaults()
	v := &View{
		opts:      opts,
		log:       zap.NewNop(),
		pending:   map[int64]*pendingToggle{},
		holds:     map[int64]*holdTimer{},
		rec:       seating.NewReconciler(seating.NewRegistry(seats), seating.NewSelection(), selfConn),
		connected: true,
	}
	t.Cleanup(v.stopHolds)
	return v
}

func reserveSeat(t *testing.T, v *View, id int64) {
	t.Helper()
	p, err := v.beginToggle(id)
	require.NoError(t, err)
	v.applyEvent(seating.Event{Type: seating.EventSeatReserved, SeatID: id, ConnectionID: selfConn})
	res, err := v.finishToggle(id, p, nil)
	require.NoError(t, err)
	require.True(t, res.Selected)
}

func TestResync_ReplayedExpiryKeepsReselectedSeat(t *testing.T) {
	v := loopless(t, model.Seat{SeatID: 5, SeatNumber: 5, AvailabilityStatus: model.StatusAvailable})
	reserveSeat(t, v, 5)

	v.resyncing++
	v.applyEvent(seating.Event{Type: seating.EventReservationExpired, SeatID: 5, ConnectionID: selfConn})
	require.Empty(t, v.rec.Selection().IDs())

	reserveSeat(t, v, 5)
	require.Equal(t, []int64{5}, v.rec.Selection().IDs())

	lost := v.finishResync([]model.Seat{
		{SeatID: 5, SeatNumber: 5, AvailabilityStatus: model.StatusAvailable, TemporarilyReserved: true},
	}, nil)

	assert.Empty(t, lost)
	assert.Equal(t, []int64{5}, v.rec.Selection().IDs())
	s, ok := v.rec.Registry().Get(5)
	require.True(t, ok)
	assert.Equal(t, seating.StateReservedByMe, s.State())
	assert.Zero(t, v.resyncing)
	assert.Nil(t, v.replay)
}

func TestResync_ReplayedBookingByOtherStillApplies(t *testing.T) {
	v := loopless(t,
		model.Seat{SeatID: 1, SeatNumber: 1, AvailabilityStatus: model.StatusAvailable},
		model.Seat{SeatID: 2, SeatNumber: 2, AvailabilityStatus: model.StatusAvailable},
	)
	reserveSeat(t, v, 1)

	v.resyncing++
	v.applyEvent(seating.Event{Type: seating.EventSeatsBooked, SeatIDs: []int64{2}, ConnectionID: "conn-other"})

	// snapshot taken before the booking landed
	v.finishResync([]model.Seat{
		{SeatID: 1, SeatNumber: 1, AvailabilityStatus: model.StatusAvailable, TemporarilyReserved: true},
		{SeatID: 2, SeatNumber: 2, AvailabilityStatus: model.StatusAvailable},
	}, nil)

	s, _ := v.rec.Registry().Get(2)
	assert.Equal(t, seating.StateBooked, s.State())
	assert.Equal(t, []int64{1}, v.rec.Selection().IDs())
}
