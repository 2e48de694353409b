// Package leadapi is a client for the lead-finder backend's request/response endpoints.
package leadapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lead-finder/internal/model"
)

const defaultBaseURL = "http://localhost:8000"

// Client performs backend operations other than streaming search.
type Client interface {
	Scrape(ctx context.Context, query string) ([]model.Lead, error)
	Process(ctx context.Context, lead model.Lead) (*model.Lead, error)
	ExportSheets(ctx context.Context, rows [][]any) error
	Session(ctx context.Context) (*model.SessionInfo, error)
	LoginURL() string
	Logout(ctx context.Context) error
}

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("leadapi: %s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("leadapi: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default backend URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a backend client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type scrapeRequest struct {
	Input string `json:"input"`
}

type scrapeResponse struct {
	Results []model.Lead `json:"results"`
}

type processRequest struct {
	Response model.Lead `json:"response"`
}

type sheetsRequest struct {
	Rows [][]any `json:"rows"`
}

func (c *httpClient) Scrape(ctx context.Context, query string) ([]model.Lead, error) {
	var resp scrapeResponse
	if err := c.do(ctx, "scrape", http.MethodPost, "/scrape", scrapeRequest{Input: query}, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return []model.Lead{}, nil
	}
	return resp.Results, nil
}

func (c *httpClient) Process(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	var out model.Lead
	if err := c.do(ctx, "process", http.MethodPost, "/process", processRequest{Response: lead}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) ExportSheets(ctx context.Context, rows [][]any) error {
	if rows == nil {
		rows = [][]any{}
	}
	return c.do(ctx, "export sheets", http.MethodPost, "/export/sheets", sheetsRequest{Rows: rows}, nil)
}

func (c *httpClient) Session(ctx context.Context) (*model.SessionInfo, error) {
	var out model.SessionInfo
	if err := c.do(ctx, "session", http.MethodGet, "/auth/session", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) LoginURL() string {
	return c.baseURL + "/auth/google"
}

func (c *httpClient) Logout(ctx context.Context) error {
	return c.do(ctx, "logout", http.MethodPost, "/auth/logout", nil, nil)
}

// do sends an optional JSON body and decodes the response into out when out is non-nil.
func (c *httpClient) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return eris.Wrap(err, fmt.Sprintf("leadapi: %s: marshal request", op))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("leadapi: %s: create request", op))
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("leadapi: %s: send request", op))
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, fmt.Sprintf("leadapi: %s: read response", op))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return eris.Wrap(err, fmt.Sprintf("leadapi: %s: unmarshal response", op))
	}
	return nil
}
