package booking

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/api"
	"github.com/iliyamo/cinema-seat-client/internal/model"
	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

const receiptTimeout = 5 * time.Second

type bookRequest struct {
	seats      []int64
	conn       string
	revalidate bool
}

// Book submits the current selection.  On success the seats turn booked,
// the selection is cleared and a refresh of the seat map is scheduled.  A
// 409 raises a notice, refreshes the whole seat map before returning and
// yields ErrBookingConflict.  Any other failure leaves the selection as
// it was so the customer can retry.
//
// A selection held across a live-channel outage is revalidated first;
// if any seat fell out during revalidation nothing is booked and
// ErrSelectionChanged is returned.
func (v *View) Book(ctx context.Context) (model.BookingConfirmation, error) {
	var (
		req bookRequest
		err error
	)
	if derr := v.do(ctx, func() { req, err = v.beginBook() }); derr != nil {
		return model.BookingConfirmation{}, derr
	}
	if err != nil {
		return model.BookingConfirmation{}, err
	}

	// the loop must always hear how the attempt ended
	wctx := context.WithoutCancel(ctx)
	cctx, cancel := v.callCtx(ctx)
	defer cancel()

	if req.revalidate {
		if err := v.revalidate(cctx, wctx, &req); err != nil {
			_ = v.do(wctx, func() { v.booking = false })
			return model.BookingConfirmation{}, err
		}
	}

	conf, berr := v.opts.Backend.Book(cctx, v.showtime.ShowtimeID, v.opts.Session.Token, api.BookRequest{
		SeatIDs:      req.seats,
		ConnectionID: req.conn,
	})
	if derr := v.do(wctx, func() { err = v.finishBook(req, conf, berr) }); derr != nil {
		return model.BookingConfirmation{}, derr
	}
	if !errors.Is(err, ErrBookingConflict) {
		if err != nil {
			return model.BookingConfirmation{}, err
		}
		return conf, nil
	}

	// Full refresh rather than patching: the 409 does not say which seats
	// were lost.
	seats, ferr := v.opts.Backend.Seats(cctx, v.showtime.ShowtimeID)
	if derr := v.do(wctx, func() {
		v.finishResync(seats, ferr)
		v.booking = false
		if ferr != nil {
			v.notify(LevelError, "Could not refresh the seat map. Please reload the page.")
		}
	}); derr != nil {
		return model.BookingConfirmation{}, derr
	}
	return model.BookingConfirmation{}, ErrBookingConflict
}

func (v *View) beginBook() (bookRequest, error) {
	if v.booking || len(v.pending) > 0 {
		return bookRequest{}, ErrRequestInFlight
	}
	sel := v.rec.Selection()
	if sel.Len() == 0 {
		v.notify(LevelWarning, "Select at least one seat first.")
		return bookRequest{}, ErrEmptySelection
	}
	if v.opts.Session.Token == "" || v.opts.Session.Expired(v.opts.Now()) {
		v.notify(LevelError, "Your session has expired. Please sign in again.")
		return bookRequest{}, ErrSessionExpired
	}
	if !v.connected {
		v.notify(LevelWarning, "Live connection lost. Please wait while we reconnect.")
		return bookRequest{}, ErrOffline
	}
	v.booking = true
	return bookRequest{seats: sel.IDs(), conn: v.rec.Self(), revalidate: v.suspect}, nil
}

// revalidate checks a selection held across an outage against a fresh
// snapshot, then takes the surviving holds over under the current
// connection.  Holds taken under the old connection are no longer
// recognised as mine by the backend.
func (v *View) revalidate(ctx, wctx context.Context, req *bookRequest) error {
	if err := v.do(wctx, func() { v.resyncing++ }); err != nil {
		return err
	}
	seats, err := v.opts.Backend.Seats(ctx, v.showtime.ShowtimeID)
	var lost []int64
	if derr := v.do(wctx, func() {
		lost = v.finishResync(seats, err)
		req.seats = v.rec.Selection().IDs()
		if err != nil {
			v.notify(LevelError, "Could not verify your seats. Please try again.")
		}
	}); derr != nil {
		return derr
	}
	if err != nil {
		return fmt.Errorf("revalidate selection: %w", err)
	}
	if len(lost) > 0 {
		return ErrSelectionChanged
	}

	var taken []int64
	for _, id := range req.seats {
		rerr := v.opts.Backend.Reserve(ctx, v.showtime.ShowtimeID, api.ReserveRequest{SeatID: id, ConnectionID: req.conn, IsReserving: true})
		if errors.Is(rerr, api.ErrConflict) {
			taken = append(taken, id)
			continue
		}
		if rerr != nil {
			_ = v.do(wctx, func() { v.notify(LevelError, "Could not verify your seats. Please try again.") })
			return fmt.Errorf("revalidate seat %d: %w", id, rerr)
		}
	}

	var changed bool
	if derr := v.do(wctx, func() {
		sel := v.rec.Selection()
		for _, id := range taken {
			sel.Remove(id)
		}
		v.noticeLost(taken, "Seat %s is no longer held for you.")
		changed = len(taken) > 0 || v.rec.Self() != req.conn || !slices.Equal(sel.IDs(), req.seats)
		if !changed {
			v.suspect = false
		}
	}); derr != nil {
		return derr
	}
	if changed {
		return ErrSelectionChanged
	}
	return nil
}

func (v *View) finishBook(req bookRequest, conf model.BookingConfirmation, err error) error {
	switch {
	case err == nil:
		v.booking = false
		v.suspect = false
		v.rec.Selection().Clear()
		bookingID := conf.BookingID
		ev := seating.Event{Type: seating.EventSeatsBooked, SeatIDs: req.seats, ConnectionID: v.rec.Self(), BookingID: &bookingID}
		for _, id := range v.rec.Apply(ev).Touched {
			v.syncHold(id)
		}
		if v.resyncing > 0 {
			v.replay = append(v.replay, ev)
		}
		v.confirmation = &conf
		v.notify(LevelSuccess, fmt.Sprintf("Booking confirmed for seat %s.", v.seatLabels(req.seats)))
		v.log.Info("booking confirmed", zap.Int64("booking_id", conf.BookingID), zap.Int64s("seat_ids", req.seats))
		v.publishReceipt(conf)
		v.scheduleRefresh()
		return nil

	case errors.Is(err, api.ErrConflict):
		// booking stays set until the refresh lands
		v.resyncing++
		v.notify(LevelWarning, "Some of your seats are no longer available. Refreshing the seat map.")
		v.log.Info("booking conflict", zap.Int64s("seat_ids", req.seats))
		return ErrBookingConflict

	case errors.Is(err, api.ErrUnauthorized):
		v.booking = false
		v.notify(LevelError, "Your session has expired. Please sign in again.")
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)

	default:
		v.booking = false
		v.log.Warn("booking failed", zap.Error(err))
		v.notify(LevelError, "Booking failed. Please try again.")
		return fmt.Errorf("book seats: %w", err)
	}
}

func (v *View) publishReceipt(conf model.BookingConfirmation) {
	if v.opts.Receipts == nil {
		return
	}
	r := model.NewReceipt(v.opts.Session.Subject, conf, v.opts.Now())
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(v.ctx), receiptTimeout)
		defer cancel()
		if err := v.opts.Receipts.PublishReceipt(ctx, r); err != nil {
			v.log.Error("publish receipt", zap.Int64("booking_id", r.BookingID), zap.Error(err))
		}
	}()
}

func (v *View) scheduleRefresh() {
	if v.refresh != nil {
		v.refresh.Stop()
	}
	v.refresh = time.AfterFunc(v.opts.RefreshDelay, func() {
		v.post(v.refreshAsync)
	})
}
