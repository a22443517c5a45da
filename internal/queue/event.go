// Package queue carries booking receipts over RabbitMQ.  The gateway
// publishes one booking.confirmed message per confirmed booking; the
// optional consumer stores them in the receipts ledger.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/cinema-seat-client/internal/model"
)

// BookingConfirmedQueue is the durable queue receipts travel on.
const BookingConfirmedQueue = "booking.confirmed"

// errPoison marks a message that can never be processed.  It is rejected
// without requeueing so it cannot loop.
var errPoison = errors.New("poison message")

// BookingConfirmedEvent is published when the backend confirms a booking.
// It contains enough information for downstream consumers to log, notify,
// or keep a ledger without querying the booking backend.
type BookingConfirmedEvent struct {
	Receipt     model.Receipt `json:"receipt"`
	PublishedAt time.Time     `json:"published_at"`
}

func encodeEvent(r model.Receipt, now time.Time) ([]byte, error) {
	return json.Marshal(BookingConfirmedEvent{Receipt: r, PublishedAt: now.UTC()})
}

func decodeEvent(body []byte) (BookingConfirmedEvent, error) {
	var ev BookingConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, fmt.Errorf("%w: unmarshal: %v", errPoison, err)
	}
	if ev.Receipt.BookingID <= 0 || ev.Receipt.Subject == "" {
		return ev, fmt.Errorf("%w: receipt without booking id or subject", errPoison)
	}
	return ev, nil
}
