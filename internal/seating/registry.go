// Package seating holds the in-memory seat map of one showtime and the
// customer's bounded seat selection, and reconciles both against events
// pushed by the booking server.  Nothing in this package is safe for
// concurrent use; the booking view serialises access through its event
// loop.
package seating

import (
	"time"

	"github.com/iliyamo/cinema-seat-client/internal/model"
)

// State is the display state of a seat.
type State string

const (
	StateAvailable       State = "available"
	StateReservedByOther State = "reserved_by_other"
	StateReservedByMe    State = "reserved_by_me"
	StateBooked          State = "booked"
)

// SeatView is a read-only copy of one registry entry.
type SeatView struct {
	SeatID       int64                    `json:"seatId"`
	SeatNumber   int                      `json:"seatNumber"`
	Status       model.AvailabilityStatus `json:"status"`
	BookingID    *int64                   `json:"bookingId,omitempty"`
	Reserved     bool                     `json:"reserved"`
	ReservedByMe bool                     `json:"reservedByMe"`
	HolderID     string                   `json:"-"`
	ExpiresAt    time.Time                `json:"expiresAt,omitzero"`
}

// State derives the display state.  A booked seat is booked regardless of
// any stale hold flags.
func (s SeatView) State() State {
	switch {
	case s.Status == model.StatusBooked:
		return StateBooked
	case s.Reserved && s.ReservedByMe:
		return StateReservedByMe
	case s.Reserved:
		return StateReservedByOther
	default:
		return StateAvailable
	}
}

// Registry maps seat identifiers to their current state.  Seats come from
// the initial snapshot and are never deleted; events only move them
// between states.
type Registry struct {
	seats map[int64]*SeatView
	order []int64
}

// NewRegistry builds a registry from a seat snapshot.
func NewRegistry(snapshot []model.Seat) *Registry {
	r := &Registry{seats: make(map[int64]*SeatView, len(snapshot))}
	r.Replace(snapshot)
	return r
}

// Replace loads a full snapshot.  Seats still marked temporarily reserved
// keep the holder learned from earlier events because the snapshot does
// not say who holds them.  Seats missing from the new snapshot are kept
// as they were.
func (r *Registry) Replace(snapshot []model.Seat) {
	for _, s := range snapshot {
		prev, known := r.seats[s.SeatID]
		next := &SeatView{
			SeatID:     s.SeatID,
			SeatNumber: s.SeatNumber,
			Status:     s.AvailabilityStatus,
			BookingID:  s.BookingID,
		}
		if next.Status == "" {
			next.Status = model.StatusAvailable
		}
		if s.TemporarilyReserved && !s.IsBooked() {
			next.Reserved = true
			if known && prev.Reserved {
				next.HolderID = prev.HolderID
				next.ReservedByMe = prev.ReservedByMe
				next.ExpiresAt = prev.ExpiresAt
			}
		}
		if !known {
			r.order = append(r.order, s.SeatID)
		}
		r.seats[s.SeatID] = next
	}
}

// Get returns a copy of one seat.
func (r *Registry) Get(id int64) (SeatView, bool) {
	s, ok := r.seats[id]
	if !ok {
		return SeatView{}, false
	}
	return *s, true
}

// Seats returns copies of all seats in snapshot order.
func (r *Registry) Seats() []SeatView {
	out := make([]SeatView, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.seats[id])
	}
	return out
}

// Len returns the number of seats.
func (r *Registry) Len() int { return len(r.order) }

func (r *Registry) markReserved(id int64, holder string, mine bool, expiresAt time.Time) bool {
	s, ok := r.seats[id]
	if !ok {
		return false
	}
	s.Reserved = true
	s.HolderID = holder
	s.ReservedByMe = mine
	s.ExpiresAt = expiresAt
	return true
}

func (r *Registry) clearReservation(id int64) bool {
	s, ok := r.seats[id]
	if !ok {
		return false
	}
	s.Reserved = false
	s.ReservedByMe = false
	s.HolderID = ""
	s.ExpiresAt = time.Time{}
	return true
}

func (r *Registry) markBooked(id int64, bookingID *int64) bool {
	if !r.clearReservation(id) {
		return false
	}
	s := r.seats[id]
	s.Status = model.StatusBooked
	if bookingID != nil {
		s.BookingID = bookingID
	}
	return true
}

func (r *Registry) markAvailable(id int64) bool {
	if !r.clearReservation(id) {
		return false
	}
	s := r.seats[id]
	s.Status = model.StatusAvailable
	s.BookingID = nil
	return true
}

// rebind recomputes the "mine" flag after the local connection identity
// changed.
func (r *Registry) rebind(self string) {
	for _, s := range r.seats {
		s.ReservedByMe = s.Reserved && self != "" && s.HolderID == self
	}
}
