package replay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/stream"
	"github.com/sells-group/lead-finder/pkg/leadapi"
)

const doneSession = `{"type":"progress","percent":10}
{"type":"search_results","results":[{"href":"https://a.com","title":"A"},{"href":"https://b.com"}]}
{"type":"item","percent":50,"item":{"url":"https://a.com","email":"x@a.com"}}
{"type":"done","percent":100}
`

func newTestServer(t *testing.T, data string, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	rec, err := Load(strings.NewReader(data))
	require.NoError(t, err)
	s := NewServer(rec, opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func TestLoadFile(t *testing.T) {
	rec, err := LoadFile("testdata/session.jsonl")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Len())

	kinds := make([]stream.Kind, 0, rec.Len())
	for _, ev := range rec.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []stream.Kind{
		stream.KindProgress, stream.KindSearchResults, stream.KindItem, stream.KindItem, stream.KindError,
	}, kinds)

	leads := rec.Leads()
	require.Len(t, leads, 3)
	assert.Equal(t, "info@acme.com", model.Deref(leads[0].Email))
	assert.Equal(t, "https://www.linkedin.com/in/jdoe", model.Deref(leads[1].ProfileURL))
	assert.Equal(t, "https://orcid.org/0000-0002-1825-0097", model.Deref(leads[2].ProfileURL))
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"invalid json", "{\"type\":\"progress\"}\nnot json\n", "line 2"},
		{"unknown type", `{"type":"heartbeat"}`, "line 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tt.data))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadFile("testdata/missing.jsonl")
	require.Error(t, err)
}

func TestServer_StreamReplaysRecording(t *testing.T) {
	_, ts := newTestServer(t, doneSession, WithDelay(time.Millisecond))

	ch, err := stream.NewClient(ts.URL).Open(context.Background(), stream.Request{Query: "q"})
	require.NoError(t, err)

	var kinds []stream.Kind
	for ev := range ch.Events() {
		kinds = append(kinds, ev.Kind)
	}
	require.NoError(t, ch.Err())
	assert.Equal(t, []stream.Kind{stream.KindProgress, stream.KindSearchResults, stream.KindItem, stream.KindDone}, kinds)
}

func TestServer_StreamingDisabled(t *testing.T) {
	_, ts := newTestServer(t, doneSession, WithStreaming(false))

	_, err := stream.NewClient(ts.URL).Open(context.Background(), stream.Request{Query: "q"})
	require.Error(t, err)
	assert.ErrorIs(t, err, stream.ErrStreamingUnavailable)
}

func TestServer_Scrape(t *testing.T) {
	_, ts := newTestServer(t, doneSession)

	leads, err := leadapi.NewClient(leadapi.WithBaseURL(ts.URL)).Scrape(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, leads, 2)
	assert.Equal(t, "https://a.com", model.Deref(leads[0].URL))
	assert.Equal(t, "x@a.com", model.Deref(leads[0].Email))
	assert.Equal(t, "https://b.com", model.Deref(leads[1].URL))
}

func TestServer_Process(t *testing.T) {
	_, ts := newTestServer(t, doneSession)
	api := leadapi.NewClient(leadapi.WithBaseURL(ts.URL))

	got, err := api.Process(context.Background(), model.Lead{
		URL:   model.String("https://a.com"),
		Error: model.String("Failed to process lead"),
	})
	require.NoError(t, err)
	assert.Equal(t, "x@a.com", model.Deref(got.Email))
	assert.Nil(t, got.Error)

	unknown, err := api.Process(context.Background(), model.Lead{URL: model.String("https://new.com"), Title: model.String("New")})
	require.NoError(t, err)
	assert.Equal(t, "New", model.Deref(unknown.Title))
}

func TestServer_Process_BadBody(t *testing.T) {
	_, ts := newTestServer(t, doneSession)

	resp, err := http.Post(ts.URL+"/process", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AuthAndExport(t *testing.T) {
	s, ts := newTestServer(t, doneSession, WithProfile(model.Profile{Email: "me@example.com"}))
	api := leadapi.NewClient(leadapi.WithBaseURL(ts.URL))
	ctx := context.Background()

	info, err := api.Session(ctx)
	require.NoError(t, err)
	assert.False(t, info.LoggedIn)

	err = api.ExportSheets(ctx, [][]any{{1.0, "A"}})
	var statusErr *leadapi.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)

	resp, err := http.Get(api.LoginURL())
	require.NoError(t, err)
	resp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	info, err = leadapi.WaitForLogin(ctx, api, leadapi.WithPollInterval(time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, info.Profile)
	assert.Equal(t, "me@example.com", info.Profile.DisplayName())

	require.NoError(t, api.ExportSheets(ctx, [][]any{{1.0, "A", nil}}))
	assert.Equal(t, [][]any{{1.0, "A", nil}}, s.Exported())

	require.NoError(t, api.Logout(ctx))
	info, err = api.Session(ctx)
	require.NoError(t, err)
	assert.False(t, info.LoggedIn)
}

func TestServer_CORS(t *testing.T) {
	_, ts := newTestServer(t, doneSession)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/scrape", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestServer_ListenAndServeStops(t *testing.T) {
	rec, err := Load(strings.NewReader(doneSession))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- NewServer(rec).ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
