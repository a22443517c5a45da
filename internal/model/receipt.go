package model

import "time"

// Receipt is the durable record of one confirmed booking.  It travels on
// the booking.confirmed queue and is stored by the receipts consumer.
//
// Fields:
//  BookingID        – identifier assigned by the booking backend.
//  Subject          – user id taken from the customer's session.
//  ShowtimeID       – showtime that was booked.
//  ScreenID         – screen number.
//  MovieTitle       – movie title at booking time.
//  StartTime        – showtime start.
//  SeatNumbers      – booked seat numbers for display.
//  TotalAmountCents – total charged in cents.
//  ConfirmedAt      – when the gateway saw the confirmation.
type Receipt struct {
	BookingID        int64     `json:"booking_id"`
	Subject          string    `json:"subject"`
	ShowtimeID       int64     `json:"showtime_id"`
	ScreenID         int64     `json:"screen_id"`
	MovieTitle       string    `json:"movie_title"`
	StartTime        time.Time `json:"start_time"`
	SeatNumbers      []int     `json:"seats"`
	TotalAmountCents int64     `json:"total_amount_cents"`
	ConfirmedAt      time.Time `json:"confirmed_at"`
}

// NewReceipt builds the receipt for a confirmation made under subject.
func NewReceipt(subject string, c BookingConfirmation, at time.Time) Receipt {
	return Receipt{
		BookingID:        c.BookingID,
		Subject:          subject,
		ShowtimeID:       c.ShowtimeID,
		ScreenID:         c.ScreenID,
		MovieTitle:       c.MovieTitle,
		StartTime:        c.StartTime,
		SeatNumbers:      c.SeatNumbers,
		TotalAmountCents: c.TotalAmountCents,
		ConfirmedAt:      at.UTC(),
	}
}
