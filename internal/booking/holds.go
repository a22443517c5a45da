package booking

import (
	"fmt"
	"time"
)

// holdTimer raises a warning shortly before one of my holds expires.  The
// backend expires the hold; this timer only tells the customer.
type holdTimer struct {
	expiresAt time.Time
	t         *time.Timer
}

// syncHold arms, re-arms or stops the warning for one seat to match the
// registry.
func (v *View) syncHold(id int64) {
	seat, ok := v.rec.Registry().Get(id)
	cur := v.holds[id]
	if !ok || !seat.ReservedByMe || seat.ExpiresAt.IsZero() {
		if cur != nil {
			cur.t.Stop()
			delete(v.holds, id)
		}
		return
	}
	if cur != nil {
		if cur.expiresAt.Equal(seat.ExpiresAt) {
			return
		}
		cur.t.Stop()
	}

	expiresAt := seat.ExpiresAt
	wait := max(expiresAt.Sub(v.opts.Now())-v.opts.HoldWarning, 0)
	v.holds[id] = &holdTimer{
		expiresAt: expiresAt,
		t: time.AfterFunc(wait, func() {
			v.post(func() { v.warnHold(id, expiresAt) })
		}),
	}
}

func (v *View) syncHolds() {
	for id := range v.holds {
		v.syncHold(id)
	}
	for _, s := range v.rec.Registry().Seats() {
		if s.ReservedByMe {
			v.syncHold(s.SeatID)
		}
	}
}

func (v *View) warnHold(id int64, expiresAt time.Time) {
	seat, ok := v.rec.Registry().Get(id)
	if !ok || !seat.ReservedByMe || !seat.ExpiresAt.Equal(expiresAt) {
		return
	}
	left := max(expiresAt.Sub(v.opts.Now()).Round(time.Second), 0)
	v.notify(LevelWarning, fmt.Sprintf("Your hold on seat %d expires in %s.", seat.SeatNumber, left))
}

func (v *View) stopHolds() {
	for id, h := range v.holds {
		h.t.Stop()
		delete(v.holds, id)
	}
}
