// Package auth turns the customer's bearer token into an explicit Session
// that is handed to the booking view.  The gateway never signs tokens; it
// only reads the claims the sign-in service put there.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no bearer token was supplied.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned when the token cannot be parsed or fails
	// verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Session carries the caller's identity for the lifetime of one booking
// view.
//
// Fields:
//  Token     – raw bearer token forwarded to the booking backend.
//  Subject   – the token's sub claim (user id).
//  Role      – the token's role claim (e.g. "user" or "admin").
//  ExpiresAt – token expiry; zero when the token carries no exp claim.
type Session struct {
	Token     string
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token has expired at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrMissingToken
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if raw == "" {
		return "", ErrMissingToken
	}
	return raw, nil
}

// Parse reads the claims of raw.  With an empty secret the signature is
// not checked (the booking backend verifies it on every call); otherwise
// the token must be a valid HS256 token signed with secret.
func Parse(raw, secret string) (Session, error) {
	claims := jwt.MapClaims{}
	if secret == "" {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	} else {
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil || !tok.Valid {
			return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	s := Session{Token: raw, Subject: claimString(claims, "sub", "user_id", "id")}
	s.Role = claimString(claims, "role", "user")
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		s.ExpiresAt = exp.Time
	}
	return s, nil
}

// claimString returns the first non-empty claim among keys.  Numeric ids
// are formatted without a fractional part.
func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		switch v := claims[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	return ""
}
