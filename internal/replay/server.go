package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-finder/internal/model"
	"github.com/sells-group/lead-finder/internal/reconcile"
)

// DefaultProfile is the user reported once the replay login completes.
var DefaultProfile = model.Profile{Name: "Replay User", Email: "replay@localhost"}

// Option configures a Server.
type Option func(*Server)

// WithDelay sets the pause between streamed events.
func WithDelay(d time.Duration) Option {
	return func(s *Server) { s.delay = d }
}

// WithStreaming controls whether /scrape/stream is served. When disabled the
// route answers 404 so clients fall back to /scrape.
func WithStreaming(enabled bool) Option {
	return func(s *Server) { s.streaming = enabled }
}

// WithProfile overrides the profile reported after login.
func WithProfile(p model.Profile) Option {
	return func(s *Server) { s.profile = p }
}

// Server replays a Recording over the backend's HTTP interface.
type Server struct {
	rec       *Recording
	leads     reconcile.Set
	delay     time.Duration
	streaming bool
	profile   model.Profile

	mu       sync.Mutex
	loggedIn bool
	exported [][]any
}

// NewServer creates a Server for rec.
func NewServer(rec *Recording, opts ...Option) *Server {
	s := &Server{
		rec:       rec,
		leads:     reconcile.New(rec.Leads()),
		streaming: true,
		profile:   DefaultProfile,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler with every backend route.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowOriginFunc:  func(*http.Request, string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Cache-Control"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.streaming {
		r.Get("/scrape/stream", s.handleStream)
	}
	r.Post("/scrape", s.handleScrape)
	r.Post("/process", s.handleProcess)
	r.Post("/export/sheets", s.handleExportSheets)
	r.Get("/auth/session", s.handleSession)
	r.Get("/auth/google", s.handleLogin)
	r.Post("/auth/logout", s.handleLogout)
	return r
}

// Exported returns the rows received by /export/sheets so far.
func (s *Server) Exported() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.exported...)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	log := zap.L().With(zap.String("query", r.URL.Query().Get("input")))
	log.Info("replay: stream started", zap.Int("events", s.rec.Len()))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for i, raw := range s.rec.raw {
		if i > 0 && s.delay > 0 {
			select {
			case <-r.Context().Done():
				log.Debug("replay: client went away", zap.Int("sent", i))
				return
			case <-time.After(s.delay):
			}
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", raw); err != nil {
			log.Debug("replay: write event", zap.Error(err))
			return
		}
		flusher.Flush()
	}
	log.Info("replay: stream finished")
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input string `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	zap.L().Info("replay: scrape", zap.String("query", req.Input))
	writeJSON(w, http.StatusOK, map[string]any{"results": s.leads.Leads()})
}

// handleProcess returns the submitted lead overlaid with the recorded lead of
// the same URL, with any error cleared.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Response model.Lead `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	out := req.Response
	if known, ok := s.leads.Lookup(out.Key()); ok {
		out = out.Merge(known)
	}
	out.Error = nil
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExportSheets(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	loggedIn := s.loggedIn
	s.mu.Unlock()
	if !loggedIn {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not logged in"})
		return
	}

	var req struct {
		Rows [][]any `json:"rows"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	s.mu.Lock()
	s.exported = append(s.exported, req.Rows...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "rows": len(req.Rows)})
}

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	info := model.SessionInfo{LoggedIn: s.loggedIn}
	if s.loggedIn {
		p := s.profile
		info.Profile = &p
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleLogin(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.loggedIn = true
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body>Login complete. You can close this window.</body></html>") //nolint:errcheck
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.loggedIn = false
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("replay: encode response", zap.Error(err))
	}
}

// ListenAndServe serves s on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("replay: shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("replay: starting server", zap.String("addr", addr), zap.Int("events", s.rec.Len()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "replay: listen")
	}
	return nil
}
