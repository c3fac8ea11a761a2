package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultConnectTimeout bounds connection setup to the seed server.
	DefaultConnectTimeout = 1 * time.Second

	// DefaultReadTimeout bounds reading the response once connected. It is
	// deliberately longer than the connect timeout.
	DefaultReadTimeout = 3 * time.Second

	// DefaultMaxSeedSize is the maximum accepted seed payload (4MB).
	DefaultMaxSeedSize = 4 * 1024 * 1024

	// UserAgent is the user agent string for seed requests.
	UserAgent = "seed-fetcher/1.0"
)

// Request describes a single fetch. Constructed per call; immutable.
type Request struct {
	// RestrictMode is appended as the restrict query parameter when
	// non-empty.
	RestrictMode string
}

// Client performs the bounded-time seed download.
type Client interface {
	// Fetch performs one synchronous connect and read. It blocks for up to
	// the configured connect and read timeouts and must not be invoked from
	// a latency-sensitive goroutine.
	Fetch(ctx context.Context, req Request) Outcome
}

// HTTPClient is the default Client implementation over net/http.
type HTTPClient struct {
	endpoint string
	osName   string
	client   *http.Client
	maxSize  int64
}

// ClientOption configures an HTTPClient.
type ClientOption func(*clientConfig)

type clientConfig struct {
	connectTimeout time.Duration
	readTimeout    time.Duration
	maxSize        int64
}

// WithTimeouts overrides the connect and read timeouts. Zero values keep the
// defaults.
func WithTimeouts(connect, read time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		if connect > 0 {
			cfg.connectTimeout = connect
		}
		if read > 0 {
			cfg.readTimeout = read
		}
	}
}

// WithMaxSeedSize overrides the maximum accepted payload size.
func WithMaxSeedSize(maxSize int64) ClientOption {
	return func(cfg *clientConfig) {
		if maxSize > 0 {
			cfg.maxSize = maxSize
		}
	}
}

// NewHTTPClient creates a seed client for the given endpoint. The osname
// query parameter identifies the requesting platform.
func NewHTTPClient(endpoint, osName string, opts ...ClientOption) *HTTPClient {
	cfg := &clientConfig{
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
		maxSize:        DefaultMaxSeedSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: cfg.connectTimeout}).DialContext,
		ResponseHeaderTimeout: cfg.readTimeout,
		DisableKeepAlives:     true,
	}

	return &HTTPClient{
		endpoint: endpoint,
		osName:   osName,
		maxSize:  cfg.maxSize,
		client: &http.Client{
			Transport: transport,
			// Overall bound covering connect, headers, and body read.
			Timeout: cfg.connectTimeout + cfg.readTimeout,
		},
	}
}

// seedURL builds the request URL, appending the restrict parameter only when
// it is non-empty.
func (c *HTTPClient) seedURL(restrictMode string) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid seed endpoint %q: %w", c.endpoint, err)
	}

	q := u.Query()
	q.Set("osname", c.osName)
	if restrictMode != "" {
		q.Set("restrict", restrictMode)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Fetch downloads the seed. The response body is closed on every exit path.
func (c *HTTPClient) Fetch(ctx context.Context, req Request) Outcome {
	urlStr, err := c.seedURL(req.RestrictMode)
	if err != nil {
		return Outcome{Kind: OutcomeIOError, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return Outcome{Kind: OutcomeIOError, Err: fmt.Errorf("failed to create request: %w", err)}
	}

	// Request the gzip instance manipulation; the server may or may not
	// honor it and echoes IM: gzip when it does.
	httpReq.Header.Set("A-IM", "gzip")
	httpReq.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		slog.Warn("Non-OK seed response", "status", resp.StatusCode)
		return Outcome{Kind: OutcomeHTTPError, Status: resp.StatusCode}
	}
	connectTime := time.Since(start)

	raw, err := c.readBody(resp.Body)
	if err != nil {
		return classifyTransportError(err)
	}

	return Outcome{
		Kind:        OutcomeSuccess,
		Status:      resp.StatusCode,
		ConnectTime: connectTime,
		Response: &Response{
			RawBytes:     raw,
			Signature:    headerOrEmpty(resp, "X-Seed-Signature"),
			Country:      headerOrEmpty(resp, "X-Country"),
			Date:         headerOrEmpty(resp, "Date"),
			IsCompressed: headerOrEmpty(resp, "IM") == "gzip",
		},
	}
}

// readBody reads the full payload into memory, bounded by the configured
// maximum size.
func (c *HTTPClient) readBody(r io.Reader) ([]byte, error) {
	// +1 to detect whether the limit was exceeded.
	body, err := io.ReadAll(io.LimitReader(r, c.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxSize {
		return nil, fmt.Errorf("seed payload exceeds maximum allowed size of %d bytes", c.maxSize)
	}
	return body, nil
}

// headerOrEmpty returns the trimmed header value, or "" when absent.
func headerOrEmpty(resp *http.Response, name string) string {
	return strings.TrimSpace(resp.Header.Get(name))
}

// classifyTransportError sorts a transport failure into the closed outcome
// taxonomy: DNS resolution failures, then deadline overruns, then everything
// else. A DNS lookup that itself timed out counts as a timeout.
func classifyTransportError(err error) Outcome {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && !dnsErr.IsTimeout {
		return Outcome{Kind: OutcomeUnknownHost, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Outcome{Kind: OutcomeTimeout, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeTimeout, Err: err}
	}

	return Outcome{Kind: OutcomeIOError, Err: err}
}
