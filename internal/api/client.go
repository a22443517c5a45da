// Package api is the REST client for the cinema booking backend.  It
// covers the calls the booking view needs: showtime lookup, the seat
// snapshot, seat reservation and the final booking.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/model"
)

const showtimesCacheKey = "showtimes"

// ReserveRequest is the body of POST /seats/showtime/{id}/reserve.
// IsReserving=false releases the hold.
type ReserveRequest struct {
	SeatID       int64  `json:"seatId"`
	ConnectionID string `json:"connectionId"`
	IsReserving  bool   `json:"isReserving"`
}

// BookRequest is the body of POST /seats/showtime/{id}/book.
type BookRequest struct {
	SeatIDs      []int64 `json:"seatIds"`
	ConnectionID string  `json:"connectionId"`
}

// Client talks to the booking backend over HTTP.
type Client struct {
	baseURL  string
	http     *http.Client
	cache    Cache
	cacheTTL time.Duration
	log      *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithCache caches the showtime list for ttl.  A nil cache disables
// caching.
func WithCache(cache Cache, ttl time.Duration) Option {
	return func(c *Client) {
		if cache != nil && ttl > 0 {
			c.cache = cache
			c.cacheTTL = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

// New returns a client for baseURL, e.g. "http://localhost:5000/api".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.Named("api")
	return c
}

// Showtime fetches GET /showtimes/{id}.
func (c *Client) Showtime(ctx context.Context, id int64) (model.Showtime, error) {
	var st model.Showtime
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/showtimes/%d", id), "", nil, &st)
	return st, err
}

// Showtimes fetches GET /showtimes, served from the cache when one is
// configured.  Cache failures only cost a round trip.
func (c *Client) Showtimes(ctx context.Context) ([]model.Showtime, error) {
	if c.cache != nil {
		if body, ok, err := c.cache.Get(ctx, showtimesCacheKey); err != nil {
			c.log.Warn("showtime cache read failed", zap.Error(err))
		} else if ok {
			var cached []model.Showtime
			if err := json.Unmarshal(body, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []model.Showtime
	if err := c.do(ctx, http.MethodGet, "/showtimes", "", nil, &list); err != nil {
		return nil, err
	}
	if c.cache != nil {
		if body, err := json.Marshal(list); err == nil {
			if err := c.cache.Set(ctx, showtimesCacheKey, body, c.cacheTTL); err != nil {
				c.log.Warn("showtime cache write failed", zap.Error(err))
			}
		}
	}
	return list, nil
}

// Seats fetches the seat snapshot GET /seats/showtime/{id}.
func (c *Client) Seats(ctx context.Context, showtimeID int64) ([]model.Seat, error) {
	var seats []model.Seat
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/seats/showtime/%d", showtimeID), "", nil, &seats)
	return seats, err
}

// Reserve takes or releases a temporary hold on one seat.  A 409 answer
// unwraps to ErrConflict.
func (c *Client) Reserve(ctx context.Context, showtimeID int64, req ReserveRequest) error {
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/seats/showtime/%d/reserve", showtimeID), "", req, nil)
}

// Book commits the given seats under the caller's bearer token.
func (c *Client) Book(ctx context.Context, showtimeID int64, token string, req BookRequest) (model.BookingConfirmation, error) {
	var conf model.BookingConfirmation
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/seats/showtime/%d/book", showtimeID), token, req, &conf)
	return conf, err
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var rd io.Reader
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &StatusError{Code: resp.StatusCode, Message: errorMessage(resp.Body)}
		if resp.StatusCode >= 500 {
			c.log.Error("backend error", zap.String("method", method), zap.String("path", path), zap.Int("status", resp.StatusCode))
		}
		return serr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage pulls {"error": "..."} or {"message": "..."} out of an
// error body.
func errorMessage(r io.Reader) string {
	bs, _ := io.ReadAll(io.LimitReader(r, 4096))
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(bs, &payload) == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	return strings.TrimSpace(string(bs))
}
