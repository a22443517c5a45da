package booking

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/api"
	"github.com/iliyamo/cinema-seat-client/internal/model"
	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

// pendingToggle is a reserve or release request in flight.  lost is set
// by the loop when an event shows the seat went away before the answer
// came back.
type pendingToggle struct {
	reserve bool
	conn    string
	lost    bool
}

// ToggleResult reports the selection after a confirmed toggle.
type ToggleResult struct {
	SeatID    int64   `json:"seatId"`
	Selected  bool    `json:"selected"`
	Selection []int64 `json:"selection"`
}

// Toggle reserves an unselected seat or releases a selected one.  The
// selection only changes after the backend confirms the request; every
// refusal leaves both the selection and the seat map untouched and raises
// a notice.
func (v *View) Toggle(ctx context.Context, seatID int64) (ToggleResult, error) {
	var (
		p   *pendingToggle
		err error
	)
	if derr := v.do(ctx, func() { p, err = v.beginToggle(seatID) }); derr != nil {
		return ToggleResult{}, derr
	}
	if err != nil {
		return ToggleResult{}, err
	}

	cctx, cancel := v.callCtx(ctx)
	rerr := v.opts.Backend.Reserve(cctx, v.showtime.ShowtimeID, api.ReserveRequest{
		SeatID:       seatID,
		ConnectionID: p.conn,
		IsReserving:  p.reserve,
	})
	cancel()

	var res ToggleResult
	if derr := v.do(context.WithoutCancel(ctx), func() { res, err = v.finishToggle(seatID, p, rerr) }); derr != nil {
		return ToggleResult{}, derr
	}
	return res, err
}

func (v *View) beginToggle(seatID int64) (*pendingToggle, error) {
	seat, ok := v.rec.Registry().Get(seatID)
	if !ok {
		return nil, ErrUnknownSeat
	}
	if seat.Status == model.StatusBooked {
		v.notify(LevelWarning, fmt.Sprintf("Seat %d is already booked.", seat.SeatNumber))
		return nil, ErrSeatBooked
	}
	if _, busy := v.pending[seatID]; busy || v.booking {
		return nil, ErrRequestInFlight
	}

	sel := v.rec.Selection()
	reserve := !sel.Contains(seatID)
	if reserve {
		if seat.Reserved && !seat.ReservedByMe {
			v.notify(LevelWarning, fmt.Sprintf("Seat %d is being held by another customer.", seat.SeatNumber))
			return nil, ErrSeatHeld
		}
		// in-flight reservations count, so racing clicks cannot overshoot
		if sel.Len()+v.pendingReserves() >= seating.MaxSeatsPerBooking {
			v.notify(LevelWarning, fmt.Sprintf("You can select up to %d seats per booking.", seating.MaxSeatsPerBooking))
			return nil, ErrSelectionFull
		}
	}
	if !v.connected || v.rec.Self() == "" {
		v.notify(LevelWarning, "Live connection lost. Please wait while we reconnect.")
		return nil, ErrOffline
	}

	p := &pendingToggle{reserve: reserve, conn: v.rec.Self()}
	v.pending[seatID] = p
	return p, nil
}

func (v *View) finishToggle(seatID int64, p *pendingToggle, err error) (ToggleResult, error) {
	delete(v.pending, seatID)
	seat, _ := v.rec.Registry().Get(seatID)
	sel := v.rec.Selection()

	if err != nil {
		if p.reserve && errors.Is(err, api.ErrConflict) {
			v.notify(LevelWarning, fmt.Sprintf("Seat %d was just taken by another customer.", seat.SeatNumber))
			return ToggleResult{}, ErrSeatTaken
		}
		action := "reserve"
		if !p.reserve {
			action = "release"
		}
		v.log.Warn("toggle failed", zap.String("action", action), zap.Int64("seat_id", seatID), zap.Error(err))
		v.notify(LevelError, fmt.Sprintf("Could not %s seat %d. Please try again.", action, seat.SeatNumber))
		return ToggleResult{}, fmt.Errorf("%s seat %d: %w", action, seatID, err)
	}

	if !p.reserve {
		sel.Remove(seatID)
		return ToggleResult{SeatID: seatID, Selected: false, Selection: sel.IDs()}, nil
	}
	if p.lost || p.conn != v.rec.Self() || seat.Status == model.StatusBooked {
		v.notify(LevelWarning, fmt.Sprintf("Seat %d is no longer available.", seat.SeatNumber))
		return ToggleResult{}, ErrSeatLost
	}
	if err := sel.Add(seatID); err != nil {
		return ToggleResult{}, err
	}
	return ToggleResult{SeatID: seatID, Selected: true, Selection: sel.IDs()}, nil
}

func (v *View) pendingReserves() int {
	n := 0
	for _, p := range v.pending {
		if p.reserve {
			n++
		}
	}
	return n
}

// markPendingLost flags in-flight reservations that an event has made
// moot, such as my hold expiring or someone else booking the seat.
func (v *View) markPendingLost(ev seating.Event) {
	self := v.rec.Self()
	for _, id := range ev.Seats() {
		p, ok := v.pending[id]
		if !ok || !p.reserve {
			continue
		}
		switch ev.Type {
		case seating.EventSeatReserved:
			// a fresh hold for me supersedes an earlier expiry
			if s, ok := v.rec.Registry().Get(id); ok && ev.ConnectionID == self && s.Status != model.StatusBooked {
				p.lost = false
			}
		case seating.EventReservationExpired:
			if ev.ConnectionID == self {
				p.lost = true
			}
		case seating.EventSeatsBooked:
			if ev.ConnectionID != self {
				p.lost = true
			}
		}
	}
}
