package seating

import (
	"time"

	"github.com/iliyamo/cinema-seat-client/internal/model"
)

// EventType names a server-pushed seat event.
type EventType string

const (
	EventSeatReserved       EventType = "seat_reserved"
	EventSeatReleased       EventType = "seat_released"
	EventReservationExpired EventType = "reservation_expired"
	EventSeatsBooked        EventType = "seats_booked"
	EventBookingCancelled   EventType = "booking_cancelled"
)

// Event is one seat event broadcast to the showtime room.  Single-seat
// events use SeatID, booking events use SeatIDs.  ConnectionID is the
// originating connection.
type Event struct {
	Type         EventType
	SeatID       int64
	SeatIDs      []int64
	ConnectionID string
	BookingID    *int64
	ExpiresAt    time.Time
}

// Seats returns every seat the event touches.
func (e Event) Seats() []int64 {
	if len(e.SeatIDs) > 0 {
		return e.SeatIDs
	}
	if e.SeatID != 0 {
		return []int64{e.SeatID}
	}
	return nil
}

// Outcome reports what an event did beyond updating the registry.
type Outcome struct {
	// Lost lists seats removed from the selection because the hold
	// expired or someone else booked them.
	Lost []int64
	// Touched lists seats that exist in the registry and were updated.
	Touched []int64
	// Unknown lists seat ids the registry has never seen.
	Unknown []int64
}

// Reconciler applies server events to a Registry and a Selection.  It is
// the only writer of the registry apart from full refreshes, and the only
// writer of the selection apart from server-confirmed toggles.
type Reconciler struct {
	reg  *Registry
	sel  *Selection
	self string
}

// NewReconciler binds a registry and selection to the local connection
// identity.  self may be empty until the live channel is connected.
func NewReconciler(reg *Registry, sel *Selection, self string) *Reconciler {
	return &Reconciler{reg: reg, sel: sel, self: self}
}

func (r *Reconciler) Registry() *Registry   { return r.reg }
func (r *Reconciler) Selection() *Selection { return r.sel }
func (r *Reconciler) Self() string          { return r.self }

// Rebind switches the local identity, for example after a reconnect.
// Holds taken under the previous identity are no longer "mine".
func (r *Reconciler) Rebind(self string) {
	r.self = self
	r.reg.rebind(self)
}

func (r *Reconciler) isSelf(id string) bool { return r.self != "" && id == r.self }

// Apply updates state for one event.
func (r *Reconciler) Apply(ev Event) Outcome {
	var out Outcome
	for _, id := range ev.Seats() {
		if !r.applySeat(ev, id) {
			out.Unknown = append(out.Unknown, id)
			continue
		}
		out.Touched = append(out.Touched, id)
		if r.losesSelection(ev) && r.sel.Remove(id) {
			out.Lost = append(out.Lost, id)
		}
	}
	return out
}

func (r *Reconciler) applySeat(ev Event, id int64) bool {
	switch ev.Type {
	case EventSeatReserved:
		if s, ok := r.reg.Get(id); ok && s.Status == model.StatusBooked {
			// a late hold never reopens a booked seat
			return true
		}
		return r.reg.markReserved(id, ev.ConnectionID, r.isSelf(ev.ConnectionID), ev.ExpiresAt)
	case EventSeatReleased, EventReservationExpired:
		return r.reg.clearReservation(id)
	case EventSeatsBooked:
		return r.reg.markBooked(id, ev.BookingID)
	case EventBookingCancelled:
		return r.reg.markAvailable(id)
	default:
		_, ok := r.reg.Get(id)
		return ok
	}
}

// losesSelection reports whether the event takes its seats away from the
// local selection.
func (r *Reconciler) losesSelection(ev Event) bool {
	switch ev.Type {
	case EventReservationExpired:
		return r.isSelf(ev.ConnectionID)
	case EventSeatsBooked:
		return !r.isSelf(ev.ConnectionID)
	default:
		return false
	}
}

// Replay re-applies an event that was already applied once, on top of a
// fresh snapshot.  Only the registry changes: the selection removals the
// event caused happened when it first arrived, and the seat may have been
// selected again since.
func (r *Reconciler) Replay(ev Event) Outcome {
	var out Outcome
	for _, id := range ev.Seats() {
		if !r.applySeat(ev, id) {
			out.Unknown = append(out.Unknown, id)
			continue
		}
		out.Touched = append(out.Touched, id)
	}
	return out
}

// Resync replaces the registry with a fresh snapshot and removes selected
// seats that the snapshot shows as booked.
func (r *Reconciler) Resync(snapshot []model.Seat) Outcome {
	r.reg.Replace(snapshot)
	var out Outcome
	for _, id := range r.sel.IDs() {
		s, ok := r.reg.Get(id)
		if ok && s.Status == model.StatusBooked {
			r.sel.Remove(id)
			out.Lost = append(out.Lost, id)
		}
	}
	return out
}
