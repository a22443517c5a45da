package model

// AvailabilityStatus is the committed state of a seat as reported by the
// booking backend.  Temporary holds are tracked separately because they
// are soft and expire on their own.
type AvailabilityStatus string

const (
	StatusAvailable AvailabilityStatus = "available"
	StatusBooked    AvailabilityStatus = "booked"
)

// Seat describes one seat of a showtime as returned by
// GET /seats/showtime/{id}.  Seats are uniquely identified by SeatID
// within a showtime and are never removed from a snapshot.
//
// Fields:
//  SeatID              – identifier, unique per showtime.
//  SeatNumber          – number shown to the customer.
//  ScreenID            – screen the showtime plays on.
//  ShowtimeID          – showtime this seat row belongs to.
//  AvailabilityStatus  – available or booked.
//  BookingID           – booking holding the seat (nil unless booked).
//  TemporarilyReserved – true while some client holds the seat.
type Seat struct {
	SeatID              int64              `json:"seatId"`
	SeatNumber          int                `json:"seatNumber"`
	ScreenID            int64              `json:"screenId,omitempty"`
	ShowtimeID          int64              `json:"showtimeId,omitempty"`
	AvailabilityStatus  AvailabilityStatus `json:"availabilityStatus"`
	BookingID           *int64             `json:"bookingId,omitempty"`
	TemporarilyReserved bool               `json:"temporarilyReserved,omitempty"`
}

// IsBooked reports whether the seat has a committed booking.
func (s Seat) IsBooked() bool { return s.AvailabilityStatus == StatusBooked }
