package model

import "time"

// Showtime represents a scheduled screening of a movie on a screen.  The
// booking view joins the live room keyed by ShowtimeID.
//
// Fields:
//  ShowtimeID – primary identifier, also the live room key.
//  MovieID    – movie being screened.
//  ScreenID   – screen where the showtime takes place.
//  StartTime  – when the screening begins.
//  EndTime    – when the screening ends.
//  Title      – movie title.
//  Genre      – movie genre.
//  Duration   – running time in minutes.
//  PriceCents – price of one seat in cents (zero when unknown).
type Showtime struct {
	ShowtimeID int64     `json:"showtimeId"`
	MovieID    int64     `json:"movieId"`
	ScreenID   int64     `json:"screenId"`
	StartTime  time.Time `json:"startTime"`
	EndTime    time.Time `json:"endTime"`
	Title      string    `json:"title"`
	Genre      string    `json:"genre,omitempty"`
	Duration   int       `json:"duration,omitempty"`
	PriceCents int64     `json:"priceCents,omitempty"`
}

// AiringAt reports whether t falls inside the showtime window.  Both ends
// are inclusive.
func (s Showtime) AiringAt(t time.Time) bool {
	return !t.Before(s.StartTime) && !t.After(s.EndTime)
}
