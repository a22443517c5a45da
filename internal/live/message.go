package live

import (
	"time"

	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

// Message types on the live channel.
const (
	TypeConnected = "connected"
	TypeJoinRoom  = "join_room"
	TypeJoined    = "joined"
	TypeError     = "error"
)

// Message is the JSON envelope of every frame in both directions.
type Message struct {
	Type         string     `json:"type"`
	ConnectionID string     `json:"connectionId,omitempty"`
	ShowtimeID   int64      `json:"showtimeId,omitempty"`
	SeatID       int64      `json:"seatId,omitempty"`
	SeatIDs      []int64    `json:"seatIds,omitempty"`
	BookingID    *int64     `json:"bookingId,omitempty"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Event converts a seat message into a reconciler event.  ok is false for
// control frames and unknown types.
func (m Message) Event() (ev seating.Event, ok bool) {
	t := seating.EventType(m.Type)
	switch t {
	case seating.EventSeatReserved, seating.EventSeatReleased, seating.EventReservationExpired,
		seating.EventSeatsBooked, seating.EventBookingCancelled:
	default:
		return seating.Event{}, false
	}
	ev = seating.Event{
		Type:         t,
		SeatID:       m.SeatID,
		SeatIDs:      m.SeatIDs,
		ConnectionID: m.ConnectionID,
		BookingID:    m.BookingID,
	}
	if m.ExpiresAt != nil {
		ev.ExpiresAt = *m.ExpiresAt
	}
	return ev, true
}

// FromEvent builds the wire message for a seat event.
func FromEvent(ev seating.Event) Message {
	m := Message{
		Type:         string(ev.Type),
		ConnectionID: ev.ConnectionID,
		SeatID:       ev.SeatID,
		SeatIDs:      ev.SeatIDs,
		BookingID:    ev.BookingID,
	}
	if !ev.ExpiresAt.IsZero() {
		at := ev.ExpiresAt
		m.ExpiresAt = &at
	}
	return m
}
