package middleware

// identity.go exposes the session stored by SessionAuth to handlers.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-seat-client/internal/auth"
)

// Session returns the caller's session.  ok is false when SessionAuth did
// not run for this route.
func Session(c echo.Context) (auth.Session, bool) {
	s, ok := c.Get(ctxSession).(auth.Session)
	return s, ok
}
