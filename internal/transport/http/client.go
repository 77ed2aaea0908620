package http

import (
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"

	"github.com/musicgrab/engine/internal/utils"
)

// Pool and timeout tuning for the shared client: a
// single connection pool of size 5, a 15s connect timeout, a 60s
// read/response-header timeout, identity encoding, and redirects
// followed.
const (
	connectTimeout        = 15 * time.Second
	poolSize              = 5
	responseHeaderTimeout = DefaultTimeout
)

// NewClient builds the engine's single shared HTTP client: a
// connection-pooled transport wrapped in the debug dumper and
// User-Agent injector RoundTrippers, HTTP/2-preferring, identity
// encoding, redirects followed.
func NewClient(maxLogLength uint64) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          poolSize,
		MaxIdleConnsPerHost:   poolSize,
		MaxConnsPerHost:       poolSize,
		ResponseHeaderTimeout: responseHeaderTimeout,
		DisableCompression:    true, // identity encoding.
	}

	// Best-effort HTTP/2 upgrade; the engine talks to plain HTTP/1.1
	// hosts just fine if negotiation is unavailable.
	_ = http2.ConfigureTransport(transport) //nolint:errcheck // best effort, falls back to HTTP/1.1.

	provider := utils.NewSimpleUserAgentProvider(DefaultUserAgent)

	var rt http.RoundTripper = transport
	rt = NewUserAgentInjector(rt, provider)
	rt = NewLogTransport(rt, maxLogLength)

	return &http.Client{
		Transport: rt,
		Timeout:   0, // per-request context deadlines govern timeouts, not a blanket client timeout.
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return nil // follow redirects.
		},
	}
}
