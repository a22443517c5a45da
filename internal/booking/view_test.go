package booking_test

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-client/internal/api"
	"github.com/iliyamo/cinema-seat-client/internal/auth"
	"github.com/iliyamo/cinema-seat-client/internal/backendtest"
	"github.com/iliyamo/cinema-seat-client/internal/booking"
	"github.com/iliyamo/cinema-seat-client/internal/model"
	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

const (
	showtimeID = int64(7)
	screenID   = int64(3)
	waitFor    = 3 * time.Second
	tick       = 10 * time.Millisecond
)

type receipts struct {
	mu   sync.Mutex
	list []model.Receipt
}

func (r *receipts) PublishReceipt(_ context.Context, rc model.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.list = append(r.list, rc)
	return nil
}

func (r *receipts) all() []model.Receipt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Receipt(nil), r.list...)
}

func newServer(t *testing.T, seats int) *backendtest.Server {
	t.Helper()
	srv := backendtest.New(t)
	now := time.Now()
	srv.AddShowtime(model.Showtime{
		ShowtimeID: showtimeID,
		ScreenID:   screenID,
		Title:      "Arrival",
		StartTime:  now.Add(-10 * time.Minute),
		EndTime:    now.Add(2 * time.Hour),
		PriceCents: 1500,
	}, backendtest.Seats(seats)...)
	return srv
}

func options(srv *backendtest.Server) booking.Options {
	return booking.Options{
		ShowtimeID:   showtimeID,
		Session:      auth.Session{Token: "token", Subject: "42", Role: "user"},
		Backend:      api.New(srv.APIURL()),
		Dial:         booking.LiveDialer(srv.LiveURL(), nil),
		ReconnectMin: 10 * time.Millisecond,
		ReconnectMax: 50 * time.Millisecond,
	}
}

func open(t *testing.T, opts booking.Options) *booking.View {
	t.Helper()
	v, err := booking.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func snap(t *testing.T, v *booking.View) booking.Snapshot {
	t.Helper()
	s, err := v.Snapshot(context.Background())
	require.NoError(t, err)
	return s
}

func seat(t *testing.T, s booking.Snapshot, id int64) booking.SeatState {
	t.Helper()
	for _, st := range s.Seats {
		if st.SeatID == id {
			return st
		}
	}
	t.Fatalf("seat %d not in snapshot", id)
	return booking.SeatState{}
}

func hasNotice(s booking.Snapshot, level booking.Level, substr string) bool {
	for _, n := range s.Notices {
		if n.Level == level && strings.Contains(n.Message, substr) {
			return true
		}
	}
	return false
}

func eventually(t *testing.T, v *booking.View, cond func(booking.Snapshot) bool, msg string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := v.Snapshot(context.Background())
		return err == nil && cond(s)
	}, waitFor, tick, msg)
}

func toggle(t *testing.T, v *booking.View, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		_, err := v.Toggle(context.Background(), id)
		require.NoError(t, err)
	}
}

func TestOpen_LoadsSnapshotAndJoinsRoom(t *testing.T) {
	srv := newServer(t, 6)
	v := open(t, options(srv))

	s := snap(t, v)
	assert.Len(t, s.Seats, 6)
	assert.True(t, s.Connected)
	assert.Equal(t, []string{s.ConnectionID}, srv.Members(showtimeID))
	assert.Equal(t, "Arrival", s.Showtime.Title)
	assert.Equal(t, seating.MaxSeatsPerBooking, s.MaxSeats)
	assert.Empty(t, s.Selection)
	for _, st := range s.Seats {
		assert.Equal(t, seating.StateAvailable, st.State)
	}
}

func TestOpen_ResolvesScreenToAiringShowtime(t *testing.T) {
	srv := newServer(t, 2)
	now := time.Now()
	srv.AddShowtime(model.Showtime{ShowtimeID: 8, ScreenID: screenID, StartTime: now.Add(3 * time.Hour), EndTime: now.Add(5 * time.Hour)})

	opts := options(srv)
	opts.ShowtimeID = 0
	opts.ScreenID = screenID
	v := open(t, opts)
	assert.Equal(t, showtimeID, v.Showtime().ShowtimeID)
}

func TestOpen_NoShowtimeOnScreen(t *testing.T) {
	srv := newServer(t, 2)
	opts := options(srv)
	opts.ShowtimeID = 0
	opts.ScreenID = 99

	_, err := booking.Open(context.Background(), opts)
	assert.ErrorIs(t, err, booking.ErrNoShowtime)
	assert.ErrorIs(t, err, booking.ErrInitialLoad)
}

func TestOpen_SnapshotFailureNeverDials(t *testing.T) {
	srv := newServer(t, 2)
	srv.FailSeats(1)

	var dials atomic.Int32
	opts := options(srv)
	opts.Dial = func(ctx context.Context) (booking.Channel, error) {
		dials.Add(1)
		return booking.LiveDialer(srv.LiveURL(), nil)(ctx)
	}
	_, err := booking.Open(context.Background(), opts)
	require.ErrorIs(t, err, booking.ErrInitialLoad)
	assert.Zero(t, dials.Load())
	assert.Empty(t, srv.Members(showtimeID))
}

func TestToggle_SelectsAfterConfirmation(t *testing.T) {
	srv := newServer(t, 3)
	v := open(t, options(srv))

	res, err := v.Toggle(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, res.Selected)
	assert.Equal(t, []int64{1}, res.Selection)

	eventually(t, v, func(s booking.Snapshot) bool {
		return seat(t, s, 1).State == seating.StateReservedByMe
	}, "own hold should show as reserved by me")
	s := snap(t, v)
	assert.Equal(t, int64(1500), s.EstimatedTotalCents)
	_, holder := srv.Seat(showtimeID, 1)
	assert.Equal(t, s.ConnectionID, holder)
}

func TestToggle_BookedByOtherDropsSelection(t *testing.T) {
	srv := newServer(t, 1)
	v := open(t, options(srv))
	toggle(t, v, 1)

	srv.BookAs(showtimeID, "other", 1)
	eventually(t, v, func(s booking.Snapshot) bool {
		return seat(t, s, 1).State == seating.StateBooked && len(s.Selection) == 0
	}, "seat booked elsewhere should leave the selection")
	assert.True(t, hasNotice(snap(t, v), booking.LevelWarning, "booked by another customer"))
}

func TestToggle_FifthSeatIsRejectedWithoutRequest(t *testing.T) {
	srv := newServer(t, 6)
	v := open(t, options(srv))
	toggle(t, v, 1, 2, 3, 4)
	before, _, _ := srv.Calls()

	_, err := v.Toggle(context.Background(), 5)
	require.ErrorIs(t, err, booking.ErrSelectionFull)

	after, _, _ := srv.Calls()
	assert.Equal(t, before, after)
	s := snap(t, v)
	assert.Equal(t, []int64{1, 2, 3, 4}, s.Selection)
	assert.True(t, hasNotice(s, booking.LevelWarning, "up to 4 seats"))
}

func TestToggle_ConcurrentClicksNeverOvershoot(t *testing.T) {
	srv := newServer(t, 8)
	v := open(t, options(srv))
	release := srv.HoldReserves()

	var wg sync.WaitGroup
	var full atomic.Int32
	for id := int64(1); id <= 6; id++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := v.Toggle(context.Background(), id)
			if err != nil {
				assert.ErrorIs(t, err, booking.ErrSelectionFull)
				full.Add(1)
			}
		}()
	}
	require.Eventually(t, func() bool { return full.Load() == 2 }, waitFor, tick)
	release()
	wg.Wait()

	assert.Len(t, snap(t, v).Selection, seating.MaxSeatsPerBooking)
}

func TestToggle_BookedSeatIsNoOp(t *testing.T) {
	srv := newServer(t, 2)
	srv.MarkBooked(showtimeID, 2)
	v := open(t, options(srv))
	before := snap(t, v)

	_, err := v.Toggle(context.Background(), 2)
	require.ErrorIs(t, err, booking.ErrSeatBooked)

	after := snap(t, v)
	assert.Equal(t, before.Seats, after.Seats)
	assert.Equal(t, before.Selection, after.Selection)
	reserves, _, _ := srv.Calls()
	assert.Zero(t, reserves)
}

func TestToggle_SeatHeldByOther(t *testing.T) {
	srv := newServer(t, 2)
	v := open(t, options(srv))
	srv.HoldAs(showtimeID, "other", 2)
	eventually(t, v, func(s booking.Snapshot) bool {
		return seat(t, s, 2).State == seating.StateReservedByOther
	}, "foreign hold should arrive")

	_, err := v.Toggle(context.Background(), 2)
	require.ErrorIs(t, err, booking.ErrSeatHeld)
	assert.True(t, hasNotice(snap(t, v), booking.LevelWarning, "held by another customer"))
}

func TestToggle_ConflictLeavesSelection(t *testing.T) {
	srv := newServer(t, 2)
	v := open(t, options(srv))
	srv.FailNextReserve(409)

	_, err := v.Toggle(context.Background(), 1)
	require.ErrorIs(t, err, booking.ErrSeatTaken)
	s := snap(t, v)
	assert.Empty(t, s.Selection)
	assert.True(t, hasNotice(s, booking.LevelWarning, "just taken"))
}

func TestToggle_NetworkErrorIsRetryable(t *testing.T) {
	srv := newServer(t, 2)
	v := open(t, options(srv))
	srv.FailNextReserve(500)

	_, err := v.Toggle(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, hasNotice(snap(t, v), booking.LevelError, "Could not reserve seat 1"))
	assert.Empty(t, snap(t, v).Selection)

	toggle(t, v, 1)
	assert.Equal(t, []int64{1}, snap(t, v).Selection)
}

func TestToggle_ReserveThenReleaseRestoresSeat(t *testing.T) {
	srv := newServer(t, 2)
	v := open(t, options(srv))
	before := seat(t, snap(t, v), 1)

	toggle(t, v, 1)
	eventually(t, v, func(s booking.Snapshot) bool { return seat(t, s, 1).ReservedByMe }, "hold")

	res, err := v.Toggle(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, res.Selected)
	eventually(t, v, func(s booking.Snapshot) bool {
		return assert.ObjectsAreEqual(before, seat(t, s, 1)) && len(s.Selection) == 0
	}, "seat should return to its initial state")
}

func TestToggle_ExpiredHoldLeavesSelection(t *testing.T) {
	srv := newServer(t, 2)
	v := open(t, options(srv))
	toggle(t, v, 1, 2)

	srv.Expire(showtimeID, 1)
	eventually(t, v, func(s booking.Snapshot) bool {
		return len(s.Selection) == 1 && s.Selection[0] == 2 && seat(t, s, 1).State == seating.StateAvailable
	}, "expired seat should leave the selection")
	assert.True(t, hasNotice(snap(t, v), booking.LevelWarning, "hold on seat 1 expired"))
}

func TestToggle_ConfirmationDiscardedWhenSeatBookedInFlight(t *testing.T) {
	srv := newServer(t, 2)
	v := open(t, options(srv))
	release := srv.HoldReserves()

	errc := make(chan error, 1)
	go func() {
		_, err := v.Toggle(context.Background(), 1)
		errc <- err
	}()
	eventually(t, v, func(s booking.Snapshot) bool { return seat(t, s, 1).Pending }, "reserve in flight")

	// the booking event is seen before the reserve answer
	srv.Push(showtimeID, seating.Event{Type: seating.EventSeatsBooked, SeatIDs: []int64{1}, ConnectionID: "other"})
	eventually(t, v, func(s booking.Snapshot) bool { return seat(t, s, 1).State == seating.StateBooked }, "booked event")
	release()

	require.ErrorIs(t, <-errc, booking.ErrSeatLost)
	assert.Empty(t, snap(t, v).Selection)
}

func TestBook_Success(t *testing.T) {
	srv := newServer(t, 4)
	rc := &receipts{}
	opts := options(srv)
	opts.Receipts = rc
	v := open(t, opts)
	toggle(t, v, 1, 3)
	_, _, seatsBefore := srv.Calls()

	conf, err := v.Book(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, conf.SeatIDs)
	assert.Equal(t, []int{1, 3}, conf.SeatNumbers)
	assert.Equal(t, "Arrival", conf.MovieTitle)
	assert.Equal(t, int64(3000), conf.TotalAmountCents)

	s := snap(t, v)
	assert.Empty(t, s.Selection)
	assert.Equal(t, seating.StateBooked, seat(t, s, 1).State)
	assert.Equal(t, seating.StateBooked, seat(t, s, 3).State)
	require.NotNil(t, s.Confirmation)
	assert.Equal(t, conf.BookingID, s.Confirmation.BookingID)
	assert.True(t, hasNotice(s, booking.LevelSuccess, "Booking confirmed"))

	require.Eventually(t, func() bool {
		_, _, n := srv.Calls()
		return n > seatsBefore
	}, waitFor, tick, "a refresh should follow the booking")
	require.Eventually(t, func() bool { return len(rc.all()) == 1 }, waitFor, tick)
	r := rc.all()[0]
	assert.Equal(t, "42", r.Subject)
	assert.Equal(t, conf.BookingID, r.BookingID)
}

func TestBook_ConflictRefreshesAndPrunes(t *testing.T) {
	srv := newServer(t, 3)
	v := open(t, options(srv))
	toggle(t, v, 1, 2)
	// seat 2 goes without an event reaching us
	srv.MarkBooked(showtimeID, 2)

	_, err := v.Book(context.Background())
	require.ErrorIs(t, err, booking.ErrBookingConflict)

	s := snap(t, v)
	assert.Equal(t, []int64{1}, s.Selection)
	assert.Equal(t, seating.StateBooked, seat(t, s, 2).State)
	assert.False(t, s.Booking)
	assert.True(t, hasNotice(s, booking.LevelWarning, "no longer available"))

	_, err = v.Toggle(context.Background(), 2)
	assert.ErrorIs(t, err, booking.ErrSeatBooked)
}

func TestBook_FailureKeepsSelection(t *testing.T) {
	srv := newServer(t, 3)
	v := open(t, options(srv))
	toggle(t, v, 1, 2)
	srv.FailNextBook(500)

	_, err := v.Book(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, booking.ErrBookingConflict)

	s := snap(t, v)
	assert.Equal(t, []int64{1, 2}, s.Selection)
	assert.True(t, hasNotice(s, booking.LevelError, "Booking failed"))

	_, err = v.Book(context.Background())
	require.NoError(t, err)
}

func TestBook_Preconditions(t *testing.T) {
	srv := newServer(t, 2)
	opts := options(srv)
	opts.Session = auth.Session{}
	v := open(t, opts)

	_, err := v.Book(context.Background())
	require.ErrorIs(t, err, booking.ErrEmptySelection)

	toggle(t, v, 1)
	_, err = v.Book(context.Background())
	require.ErrorIs(t, err, booking.ErrSessionExpired)
	_, books, _ := srv.Calls()
	assert.Zero(t, books)
}

func TestBook_UnauthorizedMapsToSessionExpired(t *testing.T) {
	srv := newServer(t, 2)
	v := open(t, options(srv))
	toggle(t, v, 1)
	srv.FailNextBook(401)

	_, err := v.Book(context.Background())
	require.ErrorIs(t, err, booking.ErrSessionExpired)
	assert.Equal(t, []int64{1}, snap(t, v).Selection)
}

func TestReconnect_RevalidatesBeforeBooking(t *testing.T) {
	srv := newServer(t, 3)
	v := open(t, options(srv))
	toggle(t, v, 1, 2)
	first := snap(t, v).ConnectionID

	srv.DropConnections()
	eventually(t, v, func(s booking.Snapshot) bool {
		return s.Connected && s.ConnectionID != first
	}, "view should reconnect under a new connection id")

	s := snap(t, v)
	assert.True(t, s.SelectionSuspect)
	assert.Equal(t, []int64{1, 2}, s.Selection)

	conf, err := v.Book(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, conf.SeatIDs)
	assert.False(t, snap(t, v).SelectionSuspect)
}

func TestReconnect_SeatBookedDuringOutageIsPruned(t *testing.T) {
	srv := newServer(t, 3)
	v := open(t, options(srv))
	toggle(t, v, 1, 2)
	first := snap(t, v).ConnectionID

	srv.MarkBooked(showtimeID, 2)
	srv.DropConnections()
	eventually(t, v, func(s booking.Snapshot) bool {
		return s.Connected && s.ConnectionID != first && len(s.Selection) == 1
	}, "refresh after reconnect should prune the booked seat")

	s := snap(t, v)
	assert.Equal(t, []int64{1}, s.Selection)
	assert.Equal(t, seating.StateBooked, seat(t, s, 2).State)
	assert.True(t, s.SelectionSuspect)
}

func TestHoldWarning(t *testing.T) {
	srv := newServer(t, 2)
	srv.SetHoldTTL(time.Minute)
	opts := options(srv)
	opts.HoldWarning = 2 * time.Minute
	v := open(t, opts)

	toggle(t, v, 1)
	eventually(t, v, func(s booking.Snapshot) bool {
		return hasNotice(s, booking.LevelWarning, "hold on seat 1 expires in")
	}, "warning should fire once inside the warning window")
	assert.False(t, seat(t, snap(t, v), 1).ExpiresAt.IsZero())
}

func TestDismiss(t *testing.T) {
	srv := newServer(t, 2)
	srv.MarkBooked(showtimeID, 1)
	v := open(t, options(srv))
	_, _ = v.Toggle(context.Background(), 1)

	s := snap(t, v)
	require.Len(t, s.Notices, 1)
	require.NoError(t, v.Dismiss(context.Background(), s.Notices[0].ID))
	assert.Empty(t, snap(t, v).Notices)
	assert.ErrorIs(t, v.Dismiss(context.Background(), s.Notices[0].ID), booking.ErrNoticeNotFound)
}

func TestClose_LeavesRoomAndStopsView(t *testing.T) {
	srv := newServer(t, 2)
	v := open(t, options(srv))
	toggle(t, v, 1)

	require.NoError(t, v.Close())
	require.NoError(t, v.Close())

	_, err := v.Snapshot(context.Background())
	assert.ErrorIs(t, err, booking.ErrClosed)
	_, err = v.Toggle(context.Background(), 2)
	assert.ErrorIs(t, err, booking.ErrClosed)
	require.Eventually(t, func() bool { return len(srv.Members(showtimeID)) == 0 }, waitFor, tick)
	require.Eventually(t, func() bool {
		_, holder := srv.Seat(showtimeID, 1)
		return holder == ""
	}, waitFor, tick, "leaving the room releases the hold")
}
