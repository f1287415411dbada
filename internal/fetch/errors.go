package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrPrivate     = errors.New("private or inaccessible")
	ErrRateLimited = errors.New("rate limited")
	ErrServer      = errors.New("server error")
	ErrStatus      = errors.New("unexpected status")
	ErrTransport   = errors.New("transport failure")
	ErrCircuitOpen = errors.New("circuit open")
	// ErrCanceled marks a request abandoned because the caller's context
	// ended. It is joined with context.Canceled or context.DeadlineExceeded.
	ErrCanceled = errors.New("request cancelled")
)

// Error describes a failed fetch. Err is one of the sentinel errors above,
// possibly joined with the underlying cause.
type Error struct {
	Op     string
	URL    string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps a non-2xx status to its sentinel.
func classify(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrPrivate
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrServer
	default:
		return ErrStatus
	}
}

// outcome is the metrics label for err.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrPrivate):
		return "private"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrServer):
		return "server"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case cancelled(err):
		return "cancelled"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "status"
	}
}

// tripsBreaker reports whether err says something about the remote's health.
// A 404 or a private page is a valid answer and must not open the breaker.
// Neither is a request the caller abandoned.
func tripsBreaker(err error) bool {
	if cancelled(err) {
		return false
	}
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrServer) || errors.Is(err, ErrRateLimited)
}

// cancelled reports whether err came from the caller's context rather than
// the remote.
func cancelled(err error) bool {
	return errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled)
}
