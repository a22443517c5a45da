// Package booking implements one customer's booking view of a showtime:
// the seat map kept in step with the live channel, the bounded seat
// selection, and the final booking.
//
// All view state is owned by a single event-loop goroutine.  Public
// methods post closures to the loop and wait for them; network calls run
// outside the loop and post their results back.  A slow backend therefore
// never delays live events, and callers never observe a half-applied
// update.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/model"
	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

// View is one page visit of the booking screen for one showtime.  Open
// creates it, Close tears it down.
type View struct {
	id       string
	opts     Options
	log      *zap.Logger
	showtime model.Showtime

	ctx       context.Context
	cancel    context.CancelFunc
	inbox     chan func()
	wg        sync.WaitGroup
	closeOnce sync.Once

	chMu    sync.Mutex
	ch      Channel
	closing bool

	// Everything below is owned by the loop goroutine.
	rec          *seating.Reconciler
	connected    bool
	suspect      bool
	pending      map[int64]*pendingToggle
	booking      bool
	resyncing    int
	replay       []seating.Event
	notices      notices
	holds        map[int64]*holdTimer
	refresh      *time.Timer
	confirmation *model.BookingConfirmation
}

// SeatState is one seat as shown to the customer.
type SeatState struct {
	seating.SeatView
	State    seating.State `json:"state"`
	Selected bool          `json:"selected"`
	Pending  bool          `json:"pending"`
}

// Snapshot is a consistent copy of the view taken on the loop.
type Snapshot struct {
	ViewID              string                     `json:"viewId"`
	Showtime            model.Showtime             `json:"showtime"`
	ConnectionID        string                     `json:"connectionId,omitempty"`
	Connected           bool                       `json:"connected"`
	SelectionSuspect    bool                       `json:"selectionSuspect"`
	Seats               []SeatState                `json:"seats"`
	Selection           []int64                    `json:"selection"`
	MaxSeats            int                        `json:"maxSeats"`
	EstimatedTotalCents int64                      `json:"estimatedTotalCents"`
	Booking             bool                       `json:"booking"`
	Confirmation        *model.BookingConfirmation `json:"confirmation,omitempty"`
	Notices             []Notice                   `json:"notices"`
}

// Open resolves the showtime, loads the seat snapshot and connects the
// live channel.  A failed showtime or snapshot fetch is terminal: Open
// returns an error wrapping ErrInitialLoad and never dials.  A failed
// first connect is not; the view starts offline and keeps retrying.
func Open(ctx context.Context, opts Options) (*View, error) {
	opts.setDefaults()
	if opts.Backend == nil || opts.Dial == nil {
		return nil, errors.New("booking: Backend and Dial are required")
	}
	st, err := resolveShowtime(ctx, opts)
	if err != nil {
		return nil, err
	}
	seats, err := opts.Backend.Seats(ctx, st.ShowtimeID)
	if err != nil {
		return nil, fmt.Errorf("%w: seat snapshot for showtime %d: %w", ErrInitialLoad, st.ShowtimeID, err)
	}

	v := &View{
		id:       uuid.NewString(),
		opts:     opts,
		showtime: st,
		inbox:    make(chan func()),
		pending:  map[int64]*pendingToggle{},
		holds:    map[int64]*holdTimer{},
		rec:      seating.NewReconciler(seating.NewRegistry(seats), seating.NewSelection(), ""),
	}
	v.log = opts.Logger.Named("booking").With(zap.String("view_id", v.id), zap.Int64("showtime_id", st.ShowtimeID))
	v.ctx, v.cancel = context.WithCancel(context.Background())

	ch, err := v.connect(ctx)
	if err != nil {
		v.log.Warn("live channel unavailable, will retry", zap.Error(err))
		v.notify(LevelWarning, "Live seat updates are unavailable. Reconnecting...")
	} else {
		v.onConnected(ch, false)
	}

	v.wg.Add(2)
	go v.loop()
	go v.supervise(ch)
	v.log.Info("booking view opened", zap.Int("seats", len(seats)))
	return v, nil
}

func resolveShowtime(ctx context.Context, o Options) (model.Showtime, error) {
	if o.ShowtimeID > 0 {
		st, err := o.Backend.Showtime(ctx, o.ShowtimeID)
		if err != nil {
			return model.Showtime{}, fmt.Errorf("%w: showtime %d: %w", ErrInitialLoad, o.ShowtimeID, err)
		}
		if st.ShowtimeID == 0 {
			st.ShowtimeID = o.ShowtimeID
		}
		return st, nil
	}
	if o.ScreenID <= 0 {
		return model.Showtime{}, fmt.Errorf("%w: a showtime or screen id is required", ErrInitialLoad)
	}
	list, err := o.Backend.Showtimes(ctx)
	if err != nil {
		return model.Showtime{}, fmt.Errorf("%w: showtime list: %w", ErrInitialLoad, err)
	}
	now := o.Now()
	for _, st := range list {
		if st.ScreenID == o.ScreenID && st.AiringAt(now) {
			return st, nil
		}
	}
	return model.Showtime{}, fmt.Errorf("%w: %w: screen %d", ErrInitialLoad, ErrNoShowtime, o.ScreenID)
}

// ID identifies the view.
func (v *View) ID() string { return v.id }

// Showtime is the showtime the view was opened for.
func (v *View) Showtime() model.Showtime { return v.showtime }

// Subject is the user id of the session the view acts under.
func (v *View) Subject() string { return v.opts.Session.Subject }

// Snapshot returns a consistent copy of the view.
func (v *View) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := v.do(ctx, func() { s = v.snapshot() })
	return s, err
}

// Dismiss removes a notice before its timeout.
func (v *View) Dismiss(ctx context.Context, noticeID string) error {
	found := false
	if err := v.do(ctx, func() { found = v.notices.dismiss(noticeID) }); err != nil {
		return err
	}
	if !found {
		return ErrNoticeNotFound
	}
	return nil
}

// Close tears the view down: the live channel is closed, in-flight calls
// are cancelled and every timer is stopped.  Nothing mutates the view once
// Close returns.  It is safe to call more than once.
func (v *View) Close() error {
	v.closeOnce.Do(func() {
		v.chMu.Lock()
		v.closing = true
		ch := v.ch
		v.ch = nil
		v.chMu.Unlock()
		if ch != nil {
			if err := ch.Close(); err != nil {
				v.log.Debug("live channel close", zap.Error(err))
			}
		}
		v.cancel()
		v.wg.Wait()

		v.stopHolds()
		if v.refresh != nil {
			v.refresh.Stop()
		}
		v.log.Info("booking view closed")
	})
	return nil
}

func (v *View) loop() {
	defer v.wg.Done()
	for {
		select {
		case fn := <-v.inbox:
			fn()
		case <-v.ctx.Done():
			return
		}
	}
}

// post queues fn on the loop without waiting for it to run.  It reports
// false once the view is closed.
func (v *View) post(fn func()) bool {
	select {
	case v.inbox <- fn:
		return true
	case <-v.ctx.Done():
		return false
	}
}

// do runs fn on the loop and waits until it has returned.
func (v *View) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case v.inbox <- func() { defer close(done); fn() }:
	case <-v.ctx.Done():
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	<-done
	return nil
}

// callCtx derives the context of one network call: it ends when the
// caller gives up or the view closes.
func (v *View) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	cctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(v.ctx, cancel)
	return cctx, func() {
		stop()
		cancel()
	}
}

func (v *View) notify(level Level, msg string) {
	v.notices.add(level, msg, v.opts.Now())
}

func (v *View) snapshot() Snapshot {
	reg := v.rec.Registry()
	sel := v.rec.Selection()
	seats := reg.Seats()
	out := make([]SeatState, 0, len(seats))
	for _, s := range seats {
		_, pending := v.pending[s.SeatID]
		out = append(out, SeatState{SeatView: s, State: s.State(), Selected: sel.Contains(s.SeatID), Pending: pending})
	}
	snap := Snapshot{
		ViewID:              v.id,
		Showtime:            v.showtime,
		ConnectionID:        v.rec.Self(),
		Connected:           v.connected,
		SelectionSuspect:    v.suspect,
		Seats:               out,
		Selection:           sel.IDs(),
		MaxSeats:            seating.MaxSeatsPerBooking,
		EstimatedTotalCents: int64(sel.Len()) * v.showtime.PriceCents,
		Booking:             v.booking,
		Notices:             v.notices.active(v.opts.Now()),
	}
	if v.confirmation != nil {
		c := *v.confirmation
		snap.Confirmation = &c
	}
	return snap
}

// applyEvent runs one live event through the reconciler.
func (v *View) applyEvent(ev seating.Event) {
	v.markPendingLost(ev)
	out := v.rec.Apply(ev)
	if v.resyncing > 0 {
		v.replay = append(v.replay, ev)
	}
	for _, id := range out.Touched {
		v.syncHold(id)
	}
	if len(out.Unknown) > 0 {
		v.log.Debug("event for unknown seats", zap.String("type", string(ev.Type)), zap.Int64s("seat_ids", out.Unknown))
	}
	switch ev.Type {
	case seating.EventReservationExpired:
		v.noticeLost(out.Lost, "Your hold on seat %s expired.")
	case seating.EventSeatsBooked:
		v.noticeLost(out.Lost, "Seat %s was booked by another customer.")
	}
}

// refreshAsync fetches a fresh snapshot off the loop and resyncs with it.
func (v *View) refreshAsync() {
	v.resyncing++
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		seats, err := v.opts.Backend.Seats(v.ctx, v.showtime.ShowtimeID)
		v.post(func() { v.finishResync(seats, err) })
	}()
}

// finishResync replaces the registry with a snapshot and replays the live
// events that arrived while it was being fetched, so a snapshot taken
// before one of those events cannot roll it back.  It returns the seats
// that dropped out of the selection.
func (v *View) finishResync(seats []model.Seat, err error) []int64 {
	v.resyncing--
	defer func() {
		if v.resyncing == 0 {
			v.replay = nil
		}
	}()
	if err != nil {
		v.log.Warn("seat refresh failed", zap.Error(err))
		return nil
	}
	lost := v.rec.Resync(seats).Lost
	for _, ev := range v.replay {
		v.rec.Replay(ev)
	}
	for id, p := range v.pending {
		if s, ok := v.rec.Registry().Get(id); ok && p.reserve && s.Status == model.StatusBooked {
			p.lost = true
		}
	}
	v.syncHolds()
	v.noticeLost(lost, "Seat %s is no longer available.")
	v.log.Debug("seat map refreshed", zap.Int("seats", v.rec.Registry().Len()), zap.Int("replayed", len(v.replay)))
	return lost
}

func (v *View) noticeLost(ids []int64, format string) {
	if len(ids) == 0 {
		return
	}
	v.notify(LevelWarning, fmt.Sprintf(format, v.seatLabels(ids)))
}

// seatLabels renders seat numbers for notices, e.g. "3, 4".
func (v *View) seatLabels(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		if s, ok := v.rec.Registry().Get(id); ok {
			parts = append(parts, strconv.Itoa(s.SeatNumber))
		} else {
			parts = append(parts, "#"+strconv.FormatInt(id, 10))
		}
	}
	return strings.Join(parts, ", ")
}
