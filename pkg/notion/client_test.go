package notion

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// MockClient is a testify mock for the Notion Client interface.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *MockClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func TestMockClientSatisfiesInterface(t *testing.T) {
	t.Parallel()
	var _ Client = (*MockClient)(nil)
}

func TestNewClient_RateLimit(t *testing.T) {
	tests := []struct {
		name      string
		opts      []ClientOption
		wantLimit rate.Limit
		wantNil   bool
	}{
		{name: "default", wantLimit: DefaultRatePerSec},
		{name: "configured", opts: []ClientOption{WithRateLimit(10)}, wantLimit: 10},
		{name: "disabled", opts: []ClientOption{WithRateLimit(0)}, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("test-token", tt.opts...).(*notionClient)
			if tt.wantNil {
				assert.Nil(t, c.limiter)
				return
			}
			require.NotNil(t, c.limiter)
			assert.Equal(t, tt.wantLimit, c.limiter.Limit())
		})
	}
}

func TestNotionClient_WaitCancelled(t *testing.T) {
	c := NewClient("test-token", WithRateLimit(0.001)).(*notionClient)
	// Drain the single burst token.
	assert.True(t, c.limiter.Allow())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notion: rate limit")
}

// redirect sends every request to srv, keeping path and query.
type redirect struct{ srv *httptest.Server }

func (r redirect) RoundTrip(req *http.Request) (*http.Response, error) {
	u, _ := url.Parse(r.srv.URL)
	req = req.Clone(req.Context())
	req.URL.Scheme, req.URL.Host = u.Scheme, u.Host
	return http.DefaultTransport.RoundTrip(req)
}

func TestNotionClient_CallsAPI(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.Path)
		assert.Equal(t, "Bearer ntn-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/databases/db-1/query":
			_, _ = w.Write([]byte(`{"object":"list","results":[],"has_more":false}`))
		case "/v1/pages":
			_, _ = w.Write([]byte(`{"object":"page","id":"page-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"object":"error","status":404,"code":"object_not_found","message":"nope"}`))
		}
	}))
	defer srv.Close()

	c := NewClient("ntn-token", WithRateLimit(0), WithHTTPClient(&http.Client{Transport: redirect{srv}}))
	ctx := context.Background()

	resp, err := c.QueryDatabase(ctx, "db-1", &notionapi.DatabaseQueryRequest{})
	require.NoError(t, err)
	assert.False(t, resp.HasMore)

	page, err := c.CreatePage(ctx, &notionapi.PageCreateRequest{})
	require.NoError(t, err)
	assert.Equal(t, notionapi.ObjectID("page-1"), page.ID)

	_, err = c.QueryDatabase(ctx, "missing", &notionapi.DatabaseQueryRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notion: query lead database missing")

	assert.Equal(t, []string{"POST /v1/databases/db-1/query", "POST /v1/pages", "POST /v1/databases/missing/query"}, paths)
}
