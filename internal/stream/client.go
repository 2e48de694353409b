package stream

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

const streamPath = "/scrape/stream"

var (
	// ErrStreamingUnavailable means the streaming transport cannot be used and
	// the caller should fall back to a single request/response search.
	ErrStreamingUnavailable = eris.New("stream: streaming transport unavailable")

	// ErrClosed is reported by a channel closed before its terminal event.
	ErrClosed = eris.New("stream: channel closed")
)

// ConnectionError is a transport failure before a terminal event.
type ConnectionError struct {
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream: connection error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("stream: connection error: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AppError is a failure reported by the backend through an error event.
type AppError struct {
	Message string
	URL     string
	Phase   string
}

func (e *AppError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "search failed"
	}
	if e.URL != "" {
		msg += " (" + e.URL + ")"
	}
	if e.Phase != "" {
		msg = e.Phase + ": " + msg
	}
	return msg
}

// Request describes one streaming search.
type Request struct {
	Query      string
	MaxResults int
	Domains    []string
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the default http.Client. Streaming requests should
// not carry an overall Timeout, which would cut long sessions short.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithStreaming enables or disables the streaming transport. When disabled,
// Open always returns ErrStreamingUnavailable.
func WithStreaming(enabled bool) Option {
	return func(c *Client) {
		c.streaming = enabled
	}
}

// Client opens search channels against the backend.
type Client struct {
	baseURL   string
	http      *http.Client
	streaming bool
}

// NewClient creates a stream client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{},
		streaming: true,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// StreamURL builds the streaming search URL for req.
func (c *Client) StreamURL(req Request) string {
	q := url.Values{}
	q.Set("input", req.Query)
	if req.MaxResults > 0 {
		q.Set("max_results", strconv.Itoa(req.MaxResults))
	}
	var domains []string
	for _, d := range req.Domains {
		if d = strings.TrimSpace(d); d != "" {
			domains = append(domains, d)
		}
	}
	if len(domains) > 0 {
		q.Set("domains", strings.Join(domains, ","))
	}
	return c.baseURL + streamPath + "?" + q.Encode()
}

// Open starts a streaming search. The returned Channel owns the connection
// until its terminal event or Close.
func (c *Client) Open(ctx context.Context, req Request) (*Channel, error) {
	if !c.streaming {
		return nil, ErrStreamingUnavailable
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StreamURL(req), nil)
	if err != nil {
		cancel()
		return nil, eris.Wrap(err, "stream: create request")
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &ConnectionError{Err: err}
	}

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		resp.Body.Close() //nolint:errcheck
		cancel()
		return nil, ErrStreamingUnavailable
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close() //nolint:errcheck
		cancel()
		return nil, &ConnectionError{StatusCode: resp.StatusCode, Err: eris.Errorf("unexpected status %d", resp.StatusCode)}
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != "text/event-stream" {
		resp.Body.Close() //nolint:errcheck
		cancel()
		return nil, ErrStreamingUnavailable
	}

	return newChannel(ctx, cancel, resp.Body), nil
}
