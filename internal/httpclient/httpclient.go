// Package httpclient provides the HTTPS-only pooled HTTP client used by
// the Model Manager's remote registry lookups and the Download
// subsystem's ranged GET requests (spec.md §4.2, §6 "Wire").
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voiced-ai/voiced/errs"
)

// userAgent identifies this runtime to remote registries, per spec.md §6.
const userAgent = "voiced/1.0"

// Config tunes the pooled transport and timeouts.
type Config struct {
	PoolSize       int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// DefaultConfig mirrors the teacher's NewPooledHTTPClient defaults.
func DefaultConfig() Config {
	return Config{
		PoolSize:       50,
		ConnectTimeout: 10 * time.Second,
		ReadTimeout:    30 * time.Second,
	}
}

// Client wraps *http.Client with an HTTPS-only guard and ranged-GET support.
type Client struct {
	http *http.Client
}

// New builds a pooled, timeout-bound HTTPS client.
func New(cfg Config) *Client {
	return &Client{
		http: &http.Client{
			Timeout: cfg.ReadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:          cfg.PoolSize,
				MaxIdleConnsPerHost:   cfg.PoolSize,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: cfg.ConnectTimeout,
				ForceAttemptHTTP2:     true,
			},
		},
	}
}

// validateHTTPS rejects any URL whose scheme isn't https, synchronously,
// before any resource acquisition (spec.md §4.2).
func validateHTTPS(rawURL string) *errs.Error {
	if !strings.HasPrefix(strings.ToLower(rawURL), "https://") {
		return errs.New(
			errs.NetworkSSLError,
			"only HTTPS URLs are accepted by this client",
			fmt.Sprintf("rejected non-HTTPS URL scheme in %q", rawURL),
		).WithRecovery("use an https:// URL")
	}
	return nil
}

// Get issues a GET request, optionally resuming from byte offset via Range.
// offset <= 0 means no Range header is sent.
func (c *Client) Get(ctx context.Context, url string, offset int64) (*http.Response, *errs.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(
			errs.InvalidInputParameterValue,
			"the request URL could not be constructed",
			err.Error(),
		)
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, verr := c.Do(req)
	if verr != nil {
		return nil, verr
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		return nil, errs.NetworkHTTPError(resp.StatusCode, resp.Status)
	}
	return resp, nil
}

// Do sends a caller-built request through the same HTTPS-only guard and
// User-Agent stamping as Get, for adapters (internal/backend/httpsidecar)
// that need POST/multipart bodies Get can't express. It does not inspect
// the response status; callers that care about non-2xx responses (to
// surface the body in an error, say) check resp.StatusCode themselves.
func (c *Client) Do(req *http.Request) (*http.Response, *errs.Error) {
	if verr := validateHTTPS(req.URL.String()); verr != nil {
		return nil, verr
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errs.New(
			errs.NetworkUnreachable,
			"the remote host could not be reached",
			err.Error(),
		).WithRecovery("check network connectivity and retry").WithCause(err)
	}
	return resp, nil
}

// SetTransportForTest overrides the underlying transport; exported only for
// tests that need to trust a httptest.Server's self-signed certificate.
func SetTransportForTest(c *Client, transport http.RoundTripper) {
	c.http.Transport = transport
}
