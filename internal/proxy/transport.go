package proxy

import (
	"net"
	"net/http"
	"time"
)

// TransportConfig tunes the upstream HTTP transport.
type TransportConfig struct {
	DialTimeout  time.Duration
	MaxIdleConns int
}

// NewTransport builds the upstream transport. ResponseHeaderTimeout is
// deliberately unset: the per-request ceiling in the Forwarder is the
// only bound, since an inference server may legitimately take minutes
// before the first byte.
func NewTransport(cfg TransportConfig) *http.Transport {
	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 100
	}

	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
