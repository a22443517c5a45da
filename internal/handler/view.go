package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/booking"
	"github.com/iliyamo/cinema-seat-client/internal/middleware"
)

// ViewHandler holds the open booking views.  Each view belongs to the
// session that created it; other sessions get 404 for it.
type ViewHandler struct {
	base booking.Options
	log  *zap.Logger

	mu    sync.Mutex
	views map[string]*booking.View
}

// NewViewHandler returns a handler that opens views with base.  The
// showtime, screen and session fields of base are filled per request.
func NewViewHandler(base booking.Options) *ViewHandler {
	log := base.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &ViewHandler{base: base, log: log.Named("views"), views: map[string]*booking.View{}}
}

type openRequest struct {
	ShowtimeID int64 `json:"showtime_id"`
	ScreenID   int64 `json:"screen_id"`
}

// Create handles POST /v1/views.  It opens a booking view for a showtime,
// or for whatever is airing on a screen right now.
func (h *ViewHandler) Create(c echo.Context) error {
	sess, ok := middleware.Session(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req openRequest
	if err := c.Bind(&req); err != nil || (req.ShowtimeID <= 0 && req.ScreenID <= 0) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "showtime_id or screen_id is required"})
	}

	opts := h.base
	opts.ShowtimeID = req.ShowtimeID
	opts.ScreenID = req.ScreenID
	opts.Session = sess
	ctx := c.Request().Context()
	v, err := booking.Open(ctx, opts)
	switch {
	case errors.Is(err, booking.ErrNoShowtime):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "no showtime is airing on this screen"})
	case err != nil:
		h.log.Warn("open view failed", zap.Int64("showtime_id", req.ShowtimeID), zap.Int64("screen_id", req.ScreenID), zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "failed to load seats"})
	}

	h.mu.Lock()
	h.views[v.ID()] = v
	h.mu.Unlock()

	snap, err := v.Snapshot(ctx)
	if err != nil {
		return viewError(c, err)
	}
	return c.JSON(http.StatusCreated, snap)
}

// Get handles GET /v1/views/:id.
func (h *ViewHandler) Get(c echo.Context) error {
	v, ok := h.lookup(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "view not found"})
	}
	snap, err := v.Snapshot(c.Request().Context())
	if err != nil {
		return viewError(c, err)
	}
	return c.JSON(http.StatusOK, snap)
}

// Toggle handles POST /v1/views/:id/seats/:seat/toggle.
func (h *ViewHandler) Toggle(c echo.Context) error {
	v, ok := h.lookup(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "view not found"})
	}
	seatID, err := strconv.ParseInt(c.Param("seat"), 10, 64)
	if err != nil || seatID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid seat id"})
	}
	res, err := v.Toggle(c.Request().Context(), seatID)
	if err != nil {
		return viewError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Book handles POST /v1/views/:id/book.
func (h *ViewHandler) Book(c echo.Context) error {
	v, ok := h.lookup(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "view not found"})
	}
	conf, err := v.Book(c.Request().Context())
	if err != nil {
		return viewError(c, err)
	}
	return c.JSON(http.StatusCreated, conf)
}

// Dismiss handles DELETE /v1/views/:id/notices/:notice.
func (h *ViewHandler) Dismiss(c echo.Context) error {
	v, ok := h.lookup(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "view not found"})
	}
	if err := v.Dismiss(c.Request().Context(), c.Param("notice")); err != nil {
		return viewError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Delete handles DELETE /v1/views/:id.  Leaving the page closes the live
// channel and stops every timer of the view.
func (h *ViewHandler) Delete(c echo.Context) error {
	v, ok := h.lookup(c)
	if !ok {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "view not found"})
	}
	h.mu.Lock()
	delete(h.views, v.ID())
	h.mu.Unlock()
	_ = v.Close()
	return c.NoContent(http.StatusNoContent)
}

// Len reports the number of open views.
func (h *ViewHandler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// CloseAll closes every view, e.g. on shutdown.
func (h *ViewHandler) CloseAll(ctx context.Context) {
	h.mu.Lock()
	views := h.views
	h.views = map[string]*booking.View{}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, v := range views {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = v.Close()
		}()
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-ctx.Done():
		h.log.Warn("shutdown deadline reached before all views closed")
	}
}

func (h *ViewHandler) lookup(c echo.Context) (*booking.View, bool) {
	sess, ok := middleware.Session(c)
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	v, ok := h.views[c.Param("id")]
	h.mu.Unlock()
	if !ok || v.Subject() != sess.Subject {
		return nil, false
	}
	return v, true
}

// viewError maps booking errors to HTTP responses.  Refusals keep the
// view usable; the notice explaining them is in the next snapshot.
func viewError(c echo.Context, err error) error {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, booking.ErrUnknownSeat), errors.Is(err, booking.ErrNoticeNotFound):
		status = http.StatusNotFound
	case errors.Is(err, booking.ErrEmptySelection):
		status = http.StatusBadRequest
	case errors.Is(err, booking.ErrSelectionFull):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, booking.ErrSessionExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, booking.ErrSeatBooked), errors.Is(err, booking.ErrSeatHeld),
		errors.Is(err, booking.ErrSeatTaken), errors.Is(err, booking.ErrSeatLost),
		errors.Is(err, booking.ErrRequestInFlight), errors.Is(err, booking.ErrSelectionChanged),
		errors.Is(err, booking.ErrBookingConflict):
		status = http.StatusConflict
	case errors.Is(err, booking.ErrOffline):
		status = http.StatusServiceUnavailable
	case errors.Is(err, booking.ErrClosed):
		status = http.StatusGone
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}
