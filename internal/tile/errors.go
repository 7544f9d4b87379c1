package tile

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cenkalti/backoff/v4"
)

// Common errors.
var (
	ErrContentMismatch  = errors.New("tile: unexpected content type")
	ErrNotFound         = errors.New("tile: resource not found")
	ErrForbidden        = errors.New("tile: access forbidden")
	ErrRateLimited      = errors.New("tile: rate limited")
	ErrServerError      = errors.New("tile: server error")
	ErrRetriesExhausted = errors.New("tile: retries exhausted")
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d %s", e.Code, e.Status)
}

// Unwrap maps the status code onto the package's sentinel errors.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return ErrNotFound
	case e.Code == http.StatusForbidden:
		return ErrForbidden
	case e.Code == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Code >= 500:
		return ErrServerError
	default:
		return nil
	}
}

// Retryable reports whether the status is worth another attempt.
// Proxy failures surface as 407/502/504 and are treated as transient.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case http.StatusTooManyRequests, http.StatusRequestTimeout, http.StatusProxyAuthRequired:
		return true
	}
	return e.Code >= 500
}

// checkStatus returns nil for 2xx, a retryable error for transient codes and a
// permanent error for everything else.
func checkStatus(code int, status string) error {
	if code >= 200 && code < 300 {
		return nil
	}
	err := &StatusError{Code: code, Status: status}
	if err.Retryable() {
		return err
	}
	return backoff.Permanent(err)
}
