package model

import "time"

// BookingConfirmation is the payload returned by a successful
// POST /seats/showtime/{id}/book and shown to the customer afterwards.
//
// Fields:
//  BookingID        – identifier of the committed booking.
//  ShowtimeID       – showtime that was booked.
//  MovieTitle       – movie title for display.
//  StartTime        – showtime start.
//  ScreenID         – screen number.
//  SeatIDs          – booked seat identifiers.
//  SeatNumbers      – booked seat numbers for display.
//  TotalAmountCents – total charged in cents.
type BookingConfirmation struct {
	BookingID        int64     `json:"bookingId"`
	ShowtimeID       int64     `json:"showtimeId"`
	MovieTitle       string    `json:"movieTitle"`
	StartTime        time.Time `json:"startTime"`
	ScreenID         int64     `json:"screenId"`
	SeatIDs          []int64   `json:"seatIds"`
	SeatNumbers      []int     `json:"seatNumbers"`
	TotalAmountCents int64     `json:"totalAmountCents"`
}
