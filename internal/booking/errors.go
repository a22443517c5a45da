package booking

import (
	"errors"

	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

// Errors returned by Open, Toggle and Book.  Every error other than
// ErrInitialLoad and ErrNoShowtime is local to one action: the view stays
// usable afterwards.
var (
	ErrInitialLoad      = errors.New("initial load failed")
	ErrNoShowtime       = errors.New("no showtime is airing on this screen")
	ErrClosed           = errors.New("booking view closed")
	ErrUnknownSeat      = errors.New("unknown seat")
	ErrSeatBooked       = errors.New("seat is already booked")
	ErrSeatHeld         = errors.New("seat is held by another customer")
	ErrSelectionFull    = seating.ErrSelectionFull
	ErrSeatTaken        = errors.New("seat was just taken")
	ErrSeatLost         = errors.New("seat was lost while the request was in flight")
	ErrRequestInFlight  = errors.New("another request is in flight")
	ErrOffline          = errors.New("live connection is down")
	ErrEmptySelection   = errors.New("no seats selected")
	ErrSelectionChanged = errors.New("selection changed during revalidation")
	ErrBookingConflict  = errors.New("some seats are no longer available")
	ErrSessionExpired   = errors.New("session expired")
	ErrNoticeNotFound   = errors.New("notice not found")
)
