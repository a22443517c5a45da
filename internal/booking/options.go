package booking

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/api"
	"github.com/iliyamo/cinema-seat-client/internal/auth"
	"github.com/iliyamo/cinema-seat-client/internal/live"
	"github.com/iliyamo/cinema-seat-client/internal/model"
	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

// Backend is the subset of the booking REST API the view calls.
// *api.Client implements it.
type Backend interface {
	Showtime(ctx context.Context, id int64) (model.Showtime, error)
	Showtimes(ctx context.Context) ([]model.Showtime, error)
	Seats(ctx context.Context, showtimeID int64) ([]model.Seat, error)
	Reserve(ctx context.Context, showtimeID int64, req api.ReserveRequest) error
	Book(ctx context.Context, showtimeID int64, token string, req api.BookRequest) (model.BookingConfirmation, error)
}

// Channel is one live channel session.  *live.Conn implements it.
type Channel interface {
	ID() string
	Join(ctx context.Context, showtimeID int64) error
	Next(ctx context.Context) (seating.Event, error)
	Close() error
}

// DialFunc opens a new live channel session.
type DialFunc func(ctx context.Context) (Channel, error)

// LiveDialer dials the websocket live channel at url.
func LiveDialer(url string, log *zap.Logger) DialFunc {
	return func(ctx context.Context) (Channel, error) {
		c, err := live.Dial(ctx, url, live.DialOptions{Logger: log})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// ReceiptPublisher hands confirmed bookings to downstream consumers.
type ReceiptPublisher interface {
	PublishReceipt(ctx context.Context, r model.Receipt) error
}

// Options configures a View.  Either ShowtimeID or ScreenID must be set;
// ShowtimeID wins when both are.
type Options struct {
	ShowtimeID int64
	ScreenID   int64
	Session    auth.Session

	Backend  Backend
	Dial     DialFunc
	Receipts ReceiptPublisher // optional
	Logger   *zap.Logger
	Now      func() time.Time

	HoldWarning  time.Duration // warn this long before one of my holds expires
	RefreshDelay time.Duration // delay of the refresh that follows a booking
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.HoldWarning <= 0 {
		o.HoldWarning = time.Minute
	}
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 500 * time.Millisecond
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 30 * o.ReconnectMin
	}
}
