// Package node talks to the local IPFS node's HTTP RPC API.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// ClientTimeout is the total request timeout.
	ClientTimeout = 30 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 15 * time.Second

	// maxResponseBody caps how much of a node response is buffered.
	maxResponseBody = 1 << 20 // 1 MiB

	reprovidePath = "/api/v0/bitswap/reprovide"
)

// ErrNodeUnavailable is returned when the node cannot be reached or
// answers with a non-success status.
var ErrNodeUnavailable = errors.New("node unavailable")

// Response holds the raw reply from the node, passed through to the
// caller unmodified.
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Client issues RPC calls against a single IPFS node.
type Client struct {
	baseURL    *url.URL
	actionBody string
	httpClient *http.Client
}

// NewClient creates a node client for the given base URL. The action
// body is sent verbatim on every reprovide call.
func NewClient(rawURL, actionBody string) (*Client, error) {
	base, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse node URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported node URL scheme %q", base.Scheme)
	}

	return &Client{
		baseURL:    base,
		actionBody: actionBody,
		httpClient: &http.Client{
			Timeout: ClientTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   DialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ResponseHeaderTimeout: ResponseHeaderTimeout,
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
			// The node API never redirects; refuse to follow if it tries.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Reprovide triggers the node's bitswap reprovide action and returns
// the node's raw response body.
func (c *Client) Reprovide(ctx context.Context) (*Response, error) {
	endpoint := c.baseURL.JoinPath(reprovidePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), strings.NewReader(c.actionBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build node request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", "Nodegate/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNodeUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read node response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: node returned status %d", ErrNodeUnavailable, resp.StatusCode)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}
