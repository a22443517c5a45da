// Package backendtest runs an in-process stand-in for the cinema booking
// backend: the REST endpoints the booking view calls plus the live
// channel.  Holds never expire on their own; tests drive expiry and other
// clients explicitly so that event order is deterministic.
package backendtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-client/internal/live"
	"github.com/iliyamo/cinema-seat-client/internal/model"
	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

type seatState struct {
	seat   model.Seat
	holder string
}

type client struct {
	id   string
	ws   *websocket.Conn
	room int64
}

// Server is the fake backend.  The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	holdTTL     time.Duration
	showtimes   []model.Showtime
	seats       map[int64]map[int64]*seatState
	order       map[int64][]int64
	clients     map[string]*client
	nextBooking int64
	failReserve []int
	failBook    []int
	failSeats   int
	reserves    int
	books       int
	seatsCalls  int
	listCalls   int
	// gate, when set, blocks reserve handlers until it is closed.
	gate chan struct{}
}

// New starts a fake backend that is shut down with the test.
func New(t testing.TB) *Server {
	s := &Server{
		seats:       map[int64]map[int64]*seatState{},
		order:       map[int64][]int64{},
		clients:     map[string]*client{},
		nextBooking: 1000,
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	g := e.Group("/api")
	g.GET("/showtimes", s.listShowtimes)
	g.GET("/showtimes/:id", s.getShowtime)
	g.GET("/seats/showtime/:id", s.getSeats)
	g.POST("/seats/showtime/:id/reserve", s.reserve)
	g.POST("/seats/showtime/:id/book", s.book)
	e.GET("/ws", s.serveWS)

	s.Server = httptest.NewServer(e)
	t.Cleanup(s.Close)
	return s
}

// Close drops every live connection and stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.Server.Close()
}

// APIURL is the REST base URL.
func (s *Server) APIURL() string { return s.URL + "/api" }

// LiveURL is the websocket URL.
func (s *Server) LiveURL() string { return "ws" + strings.TrimPrefix(s.URL, "http") + "/ws" }

// AddShowtime registers a showtime and its seats.
func (s *Server) AddShowtime(st model.Showtime, seats ...model.Seat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showtimes = append(s.showtimes, st)
	m := map[int64]*seatState{}
	for _, seat := range seats {
		seat.ShowtimeID = st.ShowtimeID
		seat.ScreenID = st.ScreenID
		if seat.AvailabilityStatus == "" {
			seat.AvailabilityStatus = model.StatusAvailable
		}
		m[seat.SeatID] = &seatState{seat: seat}
		s.order[st.ShowtimeID] = append(s.order[st.ShowtimeID], seat.SeatID)
	}
	s.seats[st.ShowtimeID] = m
}

// Seats builds n available seats numbered from 1.
func Seats(n int) []model.Seat {
	out := make([]model.Seat, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, model.Seat{SeatID: int64(i), SeatNumber: i, AvailabilityStatus: model.StatusAvailable})
	}
	return out
}

// SetHoldTTL makes hold events carry expiresAt = now + ttl.  Zero omits
// it.  Holds still only end through Expire.
func (s *Server) SetHoldTTL(ttl time.Duration) {
	s.mu.Lock()
	s.holdTTL = ttl
	s.mu.Unlock()
}

// FailNextReserve makes the next reserve calls answer with the given
// status codes, in order.
func (s *Server) FailNextReserve(codes ...int) {
	s.mu.Lock()
	s.failReserve = append(s.failReserve, codes...)
	s.mu.Unlock()
}

// FailNextBook makes the next book calls answer with the given codes.
func (s *Server) FailNextBook(codes ...int) {
	s.mu.Lock()
	s.failBook = append(s.failBook, codes...)
	s.mu.Unlock()
}

// FailSeats makes the next n snapshot calls answer 500.
func (s *Server) FailSeats(n int) {
	s.mu.Lock()
	s.failSeats = n
	s.mu.Unlock()
}

// HoldReserves blocks reserve calls until the returned func is called.
func (s *Server) HoldReserves() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Calls reports how many reserve, book and seat snapshot requests were
// served.
func (s *Server) Calls() (reserves, books, seats int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserves, s.books, s.seatsCalls
}

// ShowtimeListCalls reports how many GET /showtimes requests were served.
func (s *Server) ShowtimeListCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listCalls
}

// Seat returns the backend's view of one seat and its holder.
func (s *Server) Seat(showtimeID, seatID int64) (model.Seat, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seats[showtimeID][seatID]
	if st == nil {
		return model.Seat{}, ""
	}
	return st.seat, st.holder
}

// Members lists connection ids joined to a showtime room.
func (s *Server) Members(showtimeID int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, c := range s.clients {
		if c.room == showtimeID {
			ids = append(ids, c.id)
		}
	}
	return ids
}

// HoldAs places a hold for another client and broadcasts it.
func (s *Server) HoldAs(showtimeID int64, connectionID string, seatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seats[showtimeID][seatID]
	st.holder = connectionID
	st.seat.TemporarilyReserved = true
	s.broadcastLocked(showtimeID, s.holdEvent(seatID, connectionID))
}

// Expire ends the current hold on a seat as the backend's hold timer
// would.
func (s *Server) Expire(showtimeID, seatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.seats[showtimeID][seatID]
	holder := st.holder
	st.holder = ""
	st.seat.TemporarilyReserved = false
	s.broadcastLocked(showtimeID, seating.Event{Type: seating.EventReservationExpired, SeatID: seatID, ConnectionID: holder})
}

// BookAs commits seats for another client and broadcasts the booking.
func (s *Server) BookAs(showtimeID int64, connectionID string, seatIDs ...int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked(showtimeID, connectionID, seatIDs)
}

// MarkBooked books seats without telling anyone, as if the live event
// had been lost.
func (s *Server) MarkBooked(showtimeID int64, seatIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range seatIDs {
		st := s.seats[showtimeID][id]
		st.holder = ""
		st.seat.TemporarilyReserved = false
		st.seat.AvailabilityStatus = model.StatusBooked
	}
}

// Cancel reverts a booking and broadcasts the cancellation.
func (s *Server) Cancel(showtimeID int64, seatIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range seatIDs {
		st := s.seats[showtimeID][id]
		st.seat.AvailabilityStatus = model.StatusAvailable
		st.seat.BookingID = nil
	}
	s.broadcastLocked(showtimeID, seating.Event{Type: seating.EventBookingCancelled, SeatIDs: seatIDs})
}

// Push broadcasts an arbitrary event to a room without touching state.
func (s *Server) Push(showtimeID int64, ev seating.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcastLocked(showtimeID, ev)
}

// DropConnections closes every live connection abnormally.
func (s *Server) DropConnections() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for id, c := range s.clients {
		clients = append(clients, c)
		delete(s.clients, id)
	}
	s.mu.Unlock()
	for _, c := range clients {
		c.ws.CloseNow()
	}
}

// releaseHoldsLocked frees every hold of a departed connection, as the
// real backend does when a socket disconnects.
func (s *Server) releaseHoldsLocked(connectionID string) {
	for showtimeID, seats := range s.seats {
		for _, seatID := range s.order[showtimeID] {
			st := seats[seatID]
			if st.holder != connectionID {
				continue
			}
			st.holder = ""
			st.seat.TemporarilyReserved = false
			s.broadcastLocked(showtimeID, seating.Event{Type: seating.EventSeatReleased, SeatID: seatID, ConnectionID: connectionID})
		}
	}
}

func (s *Server) holdEvent(seatID int64, connectionID string) seating.Event {
	ev := seating.Event{Type: seating.EventSeatReserved, SeatID: seatID, ConnectionID: connectionID}
	if s.holdTTL > 0 {
		ev.ExpiresAt = time.Now().Add(s.holdTTL).UTC()
	}
	return ev
}

func (s *Server) commitLocked(showtimeID int64, connectionID string, seatIDs []int64) int64 {
	s.nextBooking++
	bookingID := s.nextBooking
	for _, id := range seatIDs {
		st := s.seats[showtimeID][id]
		st.holder = ""
		st.seat.TemporarilyReserved = false
		st.seat.AvailabilityStatus = model.StatusBooked
		b := bookingID
		st.seat.BookingID = &b
	}
	b := bookingID
	s.broadcastLocked(showtimeID, seating.Event{Type: seating.EventSeatsBooked, SeatIDs: seatIDs, ConnectionID: connectionID, BookingID: &b})
	return bookingID
}

// broadcastLocked writes while holding s.mu so every member sees events
// in the order they were produced.
func (s *Server) broadcastLocked(showtimeID int64, ev seating.Event) {
	msg := live.FromEvent(ev)
	for _, c := range s.clients {
		if c.room != showtimeID {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = wsjson.Write(ctx, c.ws, msg)
		cancel()
	}
}

func (s *Server) findShowtime(id int64) (model.Showtime, bool) {
	for _, st := range s.showtimes {
		if st.ShowtimeID == id {
			return st, true
		}
	}
	return model.Showtime{}, false
}

func pathID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

func pop(codes *[]int) int {
	if len(*codes) == 0 {
		return 0
	}
	code := (*codes)[0]
	*codes = (*codes)[1:]
	return code
}

func (s *Server) listShowtimes(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	return c.JSON(http.StatusOK, s.showtimes)
}

func (s *Server) getShowtime(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st, found := s.findShowtime(id)
	if !found {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) getSeats(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seatsCalls++
	if s.failSeats > 0 {
		s.failSeats--
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	m, found := s.seats[id]
	if !found {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
	}
	out := make([]model.Seat, 0, len(m))
	for _, seatID := range s.order[id] {
		out = append(out, m[seatID].seat)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) reserve(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	var body struct {
		SeatID       int64  `json:"seatId"`
		ConnectionID string `json:"connectionId"`
		IsReserving  bool   `json:"isReserving"`
	}
	if err := c.Bind(&body); err != nil || body.ConnectionID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves++
	if code := pop(&s.failReserve); code != 0 {
		return c.JSON(code, echo.Map{"error": http.StatusText(code)})
	}
	st := s.seats[id][body.SeatID]
	if st == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "seat not found"})
	}
	if body.IsReserving {
		if st.seat.IsBooked() || (st.holder != "" && st.holder != body.ConnectionID) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "seat is no longer available"})
		}
		st.holder = body.ConnectionID
		st.seat.TemporarilyReserved = true
		s.broadcastLocked(id, s.holdEvent(body.SeatID, body.ConnectionID))
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}
	if st.holder == body.ConnectionID {
		st.holder = ""
		st.seat.TemporarilyReserved = false
		s.broadcastLocked(id, seating.Event{Type: seating.EventSeatReleased, SeatID: body.SeatID, ConnectionID: body.ConnectionID})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (s *Server) book(c echo.Context) error {
	id, ok := pathID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid showtime id"})
	}
	if auth := c.Request().Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") || len(auth) == len("Bearer ") {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
	}
	var body struct {
		SeatIDs      []int64 `json:"seatIds"`
		ConnectionID string  `json:"connectionId"`
	}
	if err := c.Bind(&body); err != nil || len(body.SeatIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "seatIds is required"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.books++
	if code := pop(&s.failBook); code != 0 {
		return c.JSON(code, echo.Map{"error": http.StatusText(code)})
	}
	st, found := s.findShowtime(id)
	if !found {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "showtime not found"})
	}
	var unavailable []int64
	numbers := make([]int, 0, len(body.SeatIDs))
	for _, seatID := range body.SeatIDs {
		ss := s.seats[id][seatID]
		if ss == nil || ss.seat.IsBooked() || (ss.holder != "" && ss.holder != body.ConnectionID) {
			unavailable = append(unavailable, seatID)
			continue
		}
		numbers = append(numbers, ss.seat.SeatNumber)
	}
	if len(unavailable) > 0 {
		return c.JSON(http.StatusConflict, echo.Map{"error": "some seats are unavailable", "unavailable": unavailable})
	}
	bookingID := s.commitLocked(id, body.ConnectionID, body.SeatIDs)
	return c.JSON(http.StatusCreated, model.BookingConfirmation{
		BookingID:        bookingID,
		ShowtimeID:       st.ShowtimeID,
		MovieTitle:       st.Title,
		StartTime:        st.StartTime,
		ScreenID:         st.ScreenID,
		SeatIDs:          body.SeatIDs,
		SeatNumbers:      numbers,
		TotalAmountCents: st.PriceCents * int64(len(body.SeatIDs)),
	})
}

func (s *Server) serveWS(c echo.Context) error {
	ws, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}
	cl := &client{id: uuid.NewString(), ws: ws}
	ctx := c.Request().Context()

	s.mu.Lock()
	s.clients[cl.id] = cl
	err = wsjson.Write(ctx, ws, live.Message{Type: live.TypeConnected, ConnectionID: cl.id})
	s.mu.Unlock()
	defer func() {
		ws.CloseNow()
		s.mu.Lock()
		delete(s.clients, cl.id)
		s.releaseHoldsLocked(cl.id)
		s.mu.Unlock()
	}()
	if err != nil {
		return nil
	}

	for {
		var m live.Message
		if err := wsjson.Read(ctx, ws, &m); err != nil {
			return nil
		}
		if m.Type != live.TypeJoinRoom {
			continue
		}
		s.mu.Lock()
		if _, found := s.seats[m.ShowtimeID]; !found {
			_ = wsjson.Write(ctx, ws, live.Message{Type: live.TypeError, Error: "unknown showtime"})
			s.mu.Unlock()
			continue
		}
		cl.room = m.ShowtimeID
		err := wsjson.Write(ctx, ws, live.Message{Type: live.TypeJoined, ShowtimeID: m.ShowtimeID})
		s.mu.Unlock()
		if err != nil {
			return nil
		}
	}
}
