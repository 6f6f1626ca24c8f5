// Package httpkit builds the HTTP clients behind every outbound call in
// reeve. All clients share the same transport defaults so connection
// pooling, timeouts, and the User-Agent header behave consistently
// whether the caller is the model client or a tool provider.
package httpkit

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/reevelabs/reeve-agent/internal/buildinfo"
)

// Transport defaults. Generation endpoints are the slowest peers reeve
// talks to: they may hold the response headers for as long as the model
// is thinking, so the first-byte timeout is an option rather than a
// one-size default.
const (
	defaultDialTimeout     = 10 * time.Second
	defaultKeepAlive       = 30 * time.Second
	defaultTLSHandshake    = 10 * time.Second
	defaultResponseHeader  = 15 * time.Second
	defaultIdleConnTimeout = 90 * time.Second
	defaultMaxIdleConns    = 20
	defaultMaxIdlePerHost  = 5
)

// Option configures a client built by NewClient.
type Option func(*options)

type options struct {
	timeout        time.Duration
	responseHeader time.Duration
	userAgent      string
	transport      *http.Transport
}

// WithTimeout sets the overall request timeout on the http.Client. Zero
// disables it; callers then bound each request with a context deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithResponseHeaderTimeout raises the first-byte timeout for peers
// that legitimately stall before responding, such as a generation
// endpoint mid-inference. Ignored when WithTransport is also given.
func WithResponseHeaderTimeout(d time.Duration) Option {
	return func(o *options) { o.responseHeader = d }
}

// WithUserAgent overrides the default reeve/<version> User-Agent.
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithTransport substitutes the entire transport, bypassing the shared
// defaults. Intended for tests that need dial or TLS hooks.
func WithTransport(t *http.Transport) Option {
	return func(o *options) { o.transport = t }
}

// NewClient builds an *http.Client on the shared transport defaults.
// Every request carries the reeve User-Agent unless the caller already
// set one.
func NewClient(opts ...Option) *http.Client {
	o := &options{
		timeout:        30 * time.Second,
		responseHeader: defaultResponseHeader,
		userAgent:      buildinfo.UserAgent(),
	}
	for _, opt := range opts {
		opt(o)
	}

	t := o.transport
	if t == nil {
		t = newTransport(o.responseHeader)
	}

	return &http.Client{
		Timeout:   o.timeout,
		Transport: &uaTransport{base: t, agent: o.userAgent},
	}
}

func newTransport(responseHeader time.Duration) *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultKeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   defaultTLSHandshake,
		ResponseHeaderTimeout: responseHeader,
		IdleConnTimeout:       defaultIdleConnTimeout,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdlePerHost,
		ForceAttemptHTTP2:     true,
	}
}

// uaTransport stamps the User-Agent header on requests that do not
// already carry one.
type uaTransport struct {
	base  http.RoundTripper
	agent string
}

func (t *uaTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		// Clone per the RoundTripper contract; the original request is
		// not ours to mutate.
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.agent)
	}
	return t.base.RoundTrip(req)
}

// ReadErrorBody reads up to limit bytes of an error response for
// diagnostics, then drains a bounded remainder and closes the body so
// the connection returns to the pool. Returns "" for a nil body.
func ReadErrorBody(rc io.ReadCloser, limit int64) string {
	if rc == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(rc, limit))
	drainAndClose(rc)
	if err != nil {
		return fmt.Sprintf("(failed to read error body: %v)", err)
	}
	return string(body)
}

func drainAndClose(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 1024))
	rc.Close()
}
