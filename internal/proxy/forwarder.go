package proxy

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"

	"github.com/vyrodovalexey/llmgw/internal/observability"
)

// hopHeaders are headers that must not be forwarded.
var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Forwarder proxies requests to the upstream inference server. Response
// bodies are flushed chunk-by-chunk as they arrive, never buffered
// whole, so token streams reach the caller with no added latency and
// large completions add no memory growth proportional to payload size.
type Forwarder struct {
	target      *url.URL
	transport   http.RoundTripper
	stripHeader string
	timeout     time.Duration
	logger      observability.Logger
	metrics     *observability.Metrics
	proxy       *httputil.ReverseProxy
}

// ForwarderOption is a functional option for configuring the forwarder.
type ForwarderOption func(*Forwarder)

// WithForwarderLogger sets the logger.
func WithForwarderLogger(logger observability.Logger) ForwarderOption {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

// WithForwarderMetrics sets the metrics recorder.
func WithForwarderMetrics(metrics *observability.Metrics) ForwarderOption {
	return func(f *Forwarder) {
		f.metrics = metrics
	}
}

// WithTransport sets the upstream RoundTripper. Useful for wrapping the
// default transport with a circuit breaker.
func WithTransport(transport http.RoundTripper) ForwarderOption {
	return func(f *Forwarder) {
		f.transport = transport
	}
}

// WithStripHeader names the credential header removed before forwarding.
func WithStripHeader(header string) ForwarderOption {
	return func(f *Forwarder) {
		f.stripHeader = header
	}
}

// WithTimeout sets the per-request ceiling. Zero disables the ceiling.
func WithTimeout(timeout time.Duration) ForwarderOption {
	return func(f *Forwarder) {
		f.timeout = timeout
	}
}

// NewForwarder creates a forwarder targeting the given upstream base URL.
func NewForwarder(upstream string, opts ...ForwarderOption) (*Forwarder, error) {
	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTargetURL, err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTargetURL, upstream)
	}

	f := &Forwarder{
		target:      target,
		stripHeader: "X-API-Key",
		logger:      observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(f)
	}

	f.proxy = &httputil.ReverseProxy{
		Director:  f.director,
		Transport: f.transport,
		// Negative interval flushes every chunk immediately; inference
		// responses are token streams and must not sit in a buffer.
		FlushInterval:  -1,
		ErrorHandler:   f.errorHandler,
		ModifyResponse: f.modifyResponse,
	}

	return f, nil
}

// Target returns the upstream base URL.
func (f *Forwarder) Target() *url.URL {
	return f.target
}

// ServeHTTP implements http.Handler. The request context carries the
// per-request ceiling; a caller disconnect cancels the in-flight
// upstream call and its streaming read.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.timeout > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), f.timeout)
		defer cancel()
		r = r.WithContext(ctx)
	}

	r = r.WithContext(withStartTime(r.Context(), time.Now()))

	f.proxy.ServeHTTP(w, r)
}

// director rewrites the inbound request for the upstream: target
// scheme/host, joined path, preserved query, credential and hop-by-hop
// headers removed, X-Forwarded-* set, Host recomputed.
func (f *Forwarder) director(req *http.Request) {
	originalHost := req.Host

	req.URL.Scheme = f.target.Scheme
	req.URL.Host = f.target.Host
	req.URL.Path = singleJoiningSlash(f.target.Path, req.URL.Path)

	req.Header.Del(f.stripHeader)
	for _, h := range hopHeaders {
		req.Header.Del(h)
	}

	if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := req.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		req.Header.Set("X-Forwarded-For", clientIP)
	}
	if req.TLS != nil {
		req.Header.Set("X-Forwarded-Proto", "https")
	} else {
		req.Header.Set("X-Forwarded-Proto", "http")
	}
	req.Header.Set("X-Forwarded-Host", originalHost)

	// Let the transport set the correct Host for the target.
	req.Host = f.target.Host
}

// modifyResponse records upstream metrics. Headers and status are
// relayed verbatim by the reverse proxy.
func (f *Forwarder) modifyResponse(resp *http.Response) error {
	if f.metrics != nil {
		elapsed := time.Since(startTimeFromContext(resp.Request.Context()))
		f.metrics.RecordUpstream(resp.Request.Method, resp.StatusCode, elapsed)
	}
	return nil
}

// errorHandler reports a failed upstream call. Every failure kind maps
// to the same 503 response; the kind is only visible in logs and
// metrics. Nothing is written when the caller already went away.
func (f *Forwarder) errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	uerr := classify(r.Context(), err)

	if f.metrics != nil {
		f.metrics.RecordUpstreamError(uerr.Kind)
	}

	if uerr.Kind == "canceled" {
		f.logger.Debug("caller disconnected mid-request",
			observability.String("path", r.URL.Path),
			observability.String("method", r.Method),
		)
		return
	}

	f.logger.Error("upstream request failed",
		observability.String("path", r.URL.Path),
		observability.String("method", r.Method),
		observability.String("kind", uerr.Kind),
		observability.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = io.WriteString(w, `{"error":"service unavailable","message":"inference server unavailable"}`)
}

// singleJoiningSlash joins two URL path segments with exactly one slash.
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash:
		return a + "/" + b
	}
	return a + b
}

// startTimeKey carries the request start time for upstream latency.
type startTimeKey struct{}

func withStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey{}, t)
}

func startTimeFromContext(ctx context.Context) time.Time {
	if t, ok := ctx.Value(startTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}
