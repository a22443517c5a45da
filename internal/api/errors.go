package api

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrConflict is returned when the backend answers 409, for example when a
// seat was taken between the click and the request.  Callers treat it as a
// local, non-fatal condition.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// ErrUnauthorized is returned for 401 and 403 responses.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError carries an unexpected HTTP status and the server's error
// message.  It unwraps to one of the sentinels above when the status maps
// to one.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("booking api: status %d", e.Code)
	}
	return fmt.Sprintf("booking api: status %d: %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusConflict:
		return ErrConflict
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrUnauthorized
	}
	return nil
}
