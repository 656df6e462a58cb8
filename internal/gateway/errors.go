package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

var (
	// ErrTimeout means no response arrived within RequestTimeout (or the caller's deadline).
	ErrTimeout = errors.New("request timed out")

	// ErrUnavailable means the backend could not be reached at all.
	ErrUnavailable = errors.New("backend unreachable")

	// ErrSessionEvicted marks a response that carried the invalid admin token signal.
	ErrSessionEvicted = errors.New("admin session was invalidated by the server")
)

// APIError is any non-2xx response. The body is kept so screens can handle their own error shapes.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
	Evicted    bool
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	return target == ErrSessionEvicted && e.Evicted
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsTransient reports whether err is a timeout or connectivity failure, i.e. worth retrying
// and carrying no verdict about the credentials.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnavailable)
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if errors.Is(err, context.Canceled) {
		return err
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}
