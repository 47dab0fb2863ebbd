package upstream

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// transportConfig holds HTTP transport settings tuned for long-lived
// streaming responses against a single backend host.
var transportConfig = struct {
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	IdleConnTimeout       time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	ResponseHeaderTimeout time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	H2ReadIdleTimeout     time.Duration
	H2PingTimeout         time.Duration
}{
	MaxIdleConns:        256,
	MaxIdleConnsPerHost: 64, // default of 2 starves concurrent streams

	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 600 * time.Second, // long prompts can take minutes to first byte
	DialTimeout:           30 * time.Second,
	KeepAlive:             30 * time.Second,

	// HTTP/2 PING keep-alives detect dead connections faster than TCP
	// keep-alive alone.
	H2ReadIdleTimeout: 30 * time.Second,
	H2PingTimeout:     15 * time.Second,
}

func newTransport() *http.Transport {
	t := &http.Transport{
		MaxIdleConns:        transportConfig.MaxIdleConns,
		MaxIdleConnsPerHost: transportConfig.MaxIdleConnsPerHost,
		IdleConnTimeout:     transportConfig.IdleConnTimeout,

		TLSHandshakeTimeout:   transportConfig.TLSHandshakeTimeout,
		ExpectContinueTimeout: transportConfig.ExpectContinueTimeout,
		ResponseHeaderTimeout: transportConfig.ResponseHeaderTimeout,

		ForceAttemptHTTP2: true,
		TLSClientConfig:   &tls.Config{MinVersion: tls.VersionTLS12},

		WriteBufferSize: 64 * 1024,
		ReadBufferSize:  64 * 1024,

		DialContext: (&net.Dialer{
			Timeout:   transportConfig.DialTimeout,
			KeepAlive: transportConfig.KeepAlive,
		}).DialContext,
	}
	if h2, err := http2.ConfigureTransports(t); err == nil {
		h2.ReadIdleTimeout = transportConfig.H2ReadIdleTimeout
		h2.PingTimeout = transportConfig.H2PingTimeout
	}
	return t
}

// sharedTransport is the process-wide transport for backend requests.
var sharedTransport = newTransport()
