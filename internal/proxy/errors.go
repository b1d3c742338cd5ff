// Package proxy forwards authenticated requests to the upstream
// inference server, streaming response bodies as they arrive.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/sony/gobreaker"
)

// Sentinel errors for upstream calls.
var (
	// ErrUpstreamUnavailable indicates the upstream could not be reached.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamTimeout indicates the upstream call exceeded the
	// per-request ceiling.
	ErrUpstreamTimeout = errors.New("upstream request timed out")

	// ErrCircuitOpen indicates the upstream circuit breaker is open.
	ErrCircuitOpen = errors.New("upstream circuit open")

	// ErrInvalidTargetURL indicates the configured upstream address could
	// not be parsed.
	ErrInvalidTargetURL = errors.New("invalid upstream URL")
)

// UpstreamError wraps a failed upstream call with its classification.
type UpstreamError struct {
	Kind  string // "unavailable", "timeout", "canceled", "circuit_open"
	Cause error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error [%s]: %v", e.Kind, e.Cause)
}

// Unwrap returns the underlying error.
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// classify maps a transport error to its UpstreamError kind. Caller
// disconnects are distinguished from upstream timeouts so they are not
// reported as upstream failures.
func classify(ctx context.Context, err error) *UpstreamError {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests):
		return &UpstreamError{Kind: "circuit_open", Cause: ErrCircuitOpen}
	case ctx.Err() == context.Canceled:
		return &UpstreamError{Kind: "canceled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &UpstreamError{Kind: "timeout", Cause: ErrUpstreamTimeout}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &UpstreamError{Kind: "timeout", Cause: ErrUpstreamTimeout}
	}

	return &UpstreamError{Kind: "unavailable", Cause: err}
}
