package middleware // reusable HTTP middleware for the booking-view gateway

import (
	"net/http" // HTTP status codes for responses
	"time"

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/iliyamo/cinema-seat-client/internal/auth"
)

// Context keys set by SessionAuth.
const (
	ctxSession = "session"
	ctxUserID  = "user_id"
	ctxRole    = "role"
)

// SessionAuth returns an Echo middleware that turns the Bearer token into
// an auth.Session and stores it in the request context.  With an empty
// secret the claims are read without verifying the signature; the booking
// backend verifies the token on every booking call.  Expired tokens are
// rejected up front.
func SessionAuth(secret string, now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, err := auth.BearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
			}
			sess, err := auth.Parse(raw, secret)
			if err != nil || sess.Expired(now()) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
			}
			// Store the session and its claims so downstream middleware
			// and handlers can read them via c.Get().
			c.Set(ctxSession, sess)
			c.Set(ctxUserID, sess.Subject)
			c.Set(ctxRole, sess.Role)
			return next(c)
		}
	}
}
