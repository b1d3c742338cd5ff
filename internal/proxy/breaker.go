package proxy

import (
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/llmgw/internal/observability"
)

// BreakerTransport wraps an http.RoundTripper with a circuit breaker.
// Only transport-level failures (connection refused, timeout) count as
// failures; upstream 5xx responses are relayed and do not trip the
// circuit, since a degraded model server still answering is better
// surfaced verbatim.
type BreakerTransport struct {
	cb     *gobreaker.CircuitBreaker
	next   http.RoundTripper
	logger observability.Logger
}

// BreakerTransportOption is a functional option for the breaker transport.
type BreakerTransportOption func(*BreakerTransport)

// WithBreakerLogger sets the logger for the breaker transport.
func WithBreakerLogger(logger observability.Logger) BreakerTransportOption {
	return func(b *BreakerTransport) {
		b.logger = logger
	}
}

// NewBreakerTransport wraps next with a circuit breaker. The circuit
// opens once at least threshold requests were observed in the rolling
// interval and half of them failed; it probes again after timeout.
// The breaker exposes exactly two knobs: timeout covers both the
// closed-state counting window and the open-state duration, and
// threshold also sets the half-open probe budget.
func NewBreakerTransport(
	next http.RoundTripper,
	threshold int,
	timeout time.Duration,
	opts ...BreakerTransportOption,
) *BreakerTransport {
	if next == nil {
		next = http.DefaultTransport
	}

	b := &BreakerTransport{
		next:   next,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(b)
	}

	thresholdU32 := safeIntToUint32(threshold)

	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "upstream",
		MaxRequests: thresholdU32,
		Interval:    timeout,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= thresholdU32 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.logger.Info("circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return b
}

// RoundTrip implements http.RoundTripper.
func (b *BreakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.RoundTrip(req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

// State returns the current circuit state.
func (b *BreakerTransport) State() gobreaker.State {
	return b.cb.State()
}

// safeIntToUint32 safely converts int to uint32.
func safeIntToUint32(n int) uint32 {
	if n < 1 {
		return 1
	}
	if n > int(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(n) //nolint:gosec // bounds checked above
}
