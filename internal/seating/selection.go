package seating

import (
	"errors"
	"slices"
)

// MaxSeatsPerBooking caps how many seats one booking may contain.
const MaxSeatsPerBooking = 4

// ErrSelectionFull is returned when adding a seat would exceed
// MaxSeatsPerBooking.
var ErrSelectionFull = errors.New("selection full")

// Selection is the ordered set of seats the customer intends to book.
// Insertion order is kept for display; membership is what matters for
// booking rules.
type Selection struct {
	ids []int64
}

// NewSelection returns an empty selection.
func NewSelection() *Selection { return &Selection{} }

func (s *Selection) Contains(id int64) bool { return slices.Contains(s.ids, id) }

func (s *Selection) Len() int { return len(s.ids) }

// Full reports whether no more seats can be added.
func (s *Selection) Full() bool { return len(s.ids) >= MaxSeatsPerBooking }

// IDs returns the selected seats in insertion order.
func (s *Selection) IDs() []int64 { return slices.Clone(s.ids) }

// Add appends id.  Adding a seat that is already selected is a no-op.
func (s *Selection) Add(id int64) error {
	if s.Contains(id) {
		return nil
	}
	if s.Full() {
		return ErrSelectionFull
	}
	s.ids = append(s.ids, id)
	return nil
}

// Remove drops id and reports whether it was present.
func (s *Selection) Remove(id int64) bool {
	i := slices.Index(s.ids, id)
	if i < 0 {
		return false
	}
	s.ids = slices.Delete(s.ids, i, i+1)
	return true
}

// Clear empties the selection.
func (s *Selection) Clear() { s.ids = nil }
