// Package live is the client side of the booking server's real-time
// channel.  One Conn is one channel session: the server assigns it a
// connection id on connect, the client joins the room of one showtime and
// then reads seat events until the channel drops or is closed.
package live

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/seating"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("live channel closed")

// handshakeTimeout bounds the wait for the connected and joined frames.
const handshakeTimeout = 5 * time.Second

// Conn is one live channel session.
type Conn struct {
	ws   *websocket.Conn
	id   string
	log  *zap.Logger
	once sync.Once
}

// DialOptions tunes Dial.
type DialOptions struct {
	Header http.Header
	Logger *zap.Logger
}

// Dial opens the channel at url and waits for the server to assign a
// connection id.
func Dial(ctx context.Context, url string, opts DialOptions) (*Conn, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: opts.Header})
	if err != nil {
		return nil, fmt.Errorf("dial live channel: %w", err)
	}
	ws.SetReadLimit(1 << 20)

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	var hello Message
	if err := wsjson.Read(hctx, ws, &hello); err != nil {
		ws.CloseNow()
		return nil, fmt.Errorf("read connect frame: %w", err)
	}
	if hello.Type != TypeConnected || hello.ConnectionID == "" {
		_ = ws.Close(websocket.StatusProtocolError, "expected connected frame")
		return nil, fmt.Errorf("unexpected first frame %q", hello.Type)
	}

	c := &Conn{ws: ws, id: hello.ConnectionID}
	c.log = log.Named("live").With(zap.String("connection_id", c.id))
	c.log.Debug("connected")
	return c, nil
}

// ID is the connection identifier the server assigned.
func (c *Conn) ID() string { return c.id }

// Join enters the room of a showtime and waits for the acknowledgement.
// Seat events that race the acknowledgement are not expected because the
// server only broadcasts to joined members.
func (c *Conn) Join(ctx context.Context, showtimeID int64) error {
	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := wsjson.Write(hctx, c.ws, Message{Type: TypeJoinRoom, ShowtimeID: showtimeID}); err != nil {
		return fmt.Errorf("join room %d: %w", showtimeID, err)
	}
	for {
		var m Message
		if err := wsjson.Read(hctx, c.ws, &m); err != nil {
			return fmt.Errorf("join room %d: %w", showtimeID, err)
		}
		switch m.Type {
		case TypeJoined:
			c.log.Debug("joined room", zap.Int64("showtime_id", showtimeID))
			return nil
		case TypeError:
			return fmt.Errorf("join room %d: %s", showtimeID, m.Error)
		}
	}
}

// Next blocks until the next seat event.  Control frames and unknown
// message types are skipped.  Any error means the channel is gone.
func (c *Conn) Next(ctx context.Context) (seating.Event, error) {
	for {
		var m Message
		if err := wsjson.Read(ctx, c.ws, &m); err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return seating.Event{}, ErrClosed
			}
			return seating.Event{}, err
		}
		if ev, ok := m.Event(); ok {
			return ev, nil
		}
		if m.Type == TypeError {
			c.log.Warn("server error frame", zap.String("error", m.Error))
			continue
		}
		c.log.Debug("skipping frame", zap.String("type", m.Type))
	}
}

// Close ends the session with a normal closure.  It is safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.ws.Close(websocket.StatusNormalClosure, "bye")
		c.log.Debug("closed")
	})
	return err
}
