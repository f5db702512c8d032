// Package api is the HTTP client for the trip-tracking service: the chat
// stream, elicitation submission, thread history and session status.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/soyeahso/tripwatch/internal/logging"
	"github.com/soyeahso/tripwatch/internal/version"
)

// Service paths, relative to the base URL.
const (
	PathChatStream  = "/api/chat/stream"
	PathElicitation = "/api/chat/elicitation"
	PathThreads     = "/api/chat/threads/"
	PathAuthStatus  = "/api/auth/me"
	PathPriceStream = "/api/prices/stream"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the service. Cookies set by the server are kept in a jar so
// every request, including the long-lived push connection, is credentialed.
type Client struct {
	base    *url.URL
	http    *http.Client
	token   string
	timeout time.Duration
	log     *logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. A client without a
// cookie jar gets one.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithToken sends the token as a bearer Authorization header.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithRequestTimeout bounds non-streaming requests. Zero keeps the default.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// New creates a client for the service at baseURL.
func New(baseURL string, log *logging.Logger, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}

	c := &Client{
		base:    u,
		timeout: defaultRequestTimeout,
		log:     log.Sub("api"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http == nil {
		// No client-wide timeout: streaming bodies stay open indefinitely.
		c.http = &http.Client{}
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// HTTPClient returns the credentialed HTTP client.
func (c *Client) HTTPClient() *http.Client { return c.http }

// Jar returns the cookie jar shared by all requests.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// Token returns the configured bearer token, if any.
func (c *Client) Token() string { return c.token }

// URL resolves path against the base URL with the given query.
func (c *Client) URL(path string, query url.Values) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return &u
}

// WebSocketURL is URL with the scheme switched to ws/wss.
func (c *Client) WebSocketURL(path string, query url.Values) *url.URL {
	u := c.URL(path, query)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	return u
}

// Header returns the headers attached to every request.
func (c *Client) Header() http.Header {
	h := http.Header{}
	h.Set("User-Agent", version.UserAgent())
	if c.token != "" {
		h.Set("Authorization", "Bearer "+c.token)
	}
	return h
}

func (c *Client) newRequest(ctx context.Context, method string, u *url.URL, body any) (*http.Request, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), rdr)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, v := range c.Header() {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// Get performs a credentialed GET and returns the raw response. The caller
// owns the body.
func (c *Client) Get(ctx context.Context, path string, query url.Values, accept string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, c.URL(path, query), nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	c.log.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// openStream POSTs body to path and returns the streaming response body.
func (c *Client) openStream(ctx context.Context, path string, body any) (io.ReadCloser, error) {
	req, err := c.newRequest(ctx, http.MethodPost, c.URL(path, nil), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	c.log.Debug().Str("method", req.Method).Str("url", req.URL.Redacted()).Msg("opening stream")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody || resp.ContentLength == 0 {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrEmptyBody
	}
	return resp.Body, nil
}

// getJSON GETs path and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.Get(ctx, path, nil, "application/json")
	if err != nil {
		return err
	}
	if err := CheckResponse(resp); err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
