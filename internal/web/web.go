package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dayline/internal/capture"
	"dayline/internal/config"
	appLog "dayline/internal/log"
	"dayline/internal/model"
	"dayline/internal/store"
)

// CaptureFunc renders a page to PNG. capture.CaptureDayPNG in production.
type CaptureFunc func(ctx context.Context, opts capture.CaptureOptions) ([]byte, error)

// Server provides the JSON API, the HTML day view and the change stream.
type Server struct {
	cfg   *config.Config
	store *store.Store
	debug bool
	mux   *http.ServeMux

	capture CaptureFunc

	// Layout responses keyed by (event, day, pph); an entry is only valid
	// for the store revision it was built from.
	layoutMu    sync.Mutex
	layoutCache map[layoutKey]layoutCacheEntry

	// previewMu serializes Chromium launches.
	previewMu sync.Mutex

	now func() time.Time
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st *store.Store, debug bool) *Server {
	s := &Server{
		cfg:         cfg,
		store:       st,
		debug:       debug,
		mux:         http.NewServeMux(),
		capture:     capture.CaptureDayPNG,
		layoutCache: make(map[layoutKey]layoutCacheEntry),
		now:         time.Now,
	}
	s.registerRoutes()
	return s
}

// SetCapture replaces the PNG renderer.
func (s *Server) SetCapture(fn CaptureFunc) {
	s.capture = fn
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return s.logRequests(h)
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="dayline", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	if !s.debug {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		next.ServeHTTP(w, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(started).String())
	})
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.serveListener(ctx, ln)
}

func (s *Server) serveListener(ctx context.Context, ln net.Listener) error {
	// Request contexts derive from ctx so open change streams end on
	// shutdown instead of holding Shutdown until its deadline.
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String(), "debug", s.debug)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

// WatchExternal reloads the store whenever the file changes outside this
// process and republishes the signal so stream clients refetch. It returns
// when ctx is done or external is closed.
func (s *Server) WatchExternal(ctx context.Context, external <-chan model.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-external:
			if !ok {
				return
			}
			changed, err := s.store.Reload()
			if err != nil {
				appLog.Error("reload after external change failed", err, "path", s.store.Path())
				continue
			}
			if !changed {
				appLog.Debug("store file unchanged, skipping reload signal", "path", s.store.Path())
				continue
			}
			appLog.Info("store reloaded after external change", "path", s.store.Path())
			s.store.Publish(c)
		}
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	s.mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("DELETE /api/events/{id}", s.handleDeleteEvent)

	s.mux.HandleFunc("GET /api/events/{id}/entries", s.handleListEntries)
	s.mux.HandleFunc("POST /api/events/{id}/entries", s.handleAddEntry)
	s.mux.HandleFunc("PUT /api/entries/{id}", s.handleUpdateEntry)
	s.mux.HandleFunc("DELETE /api/entries/{id}", s.handleDeleteEntry)

	s.mux.HandleFunc("GET /api/events/{id}/days/{day}/layout", s.handleLayout)
	s.mux.HandleFunc("POST /api/events/{id}/days/{day}/import", s.handleImportText)
	s.mux.HandleFunc("GET /api/events/{id}/export.ics", s.handleExport)
	s.mux.HandleFunc("GET /api/events/{id}/changes", s.handleChanges)

	s.mux.HandleFunc("GET /events/{id}/days/{day}", s.handleDayView)
	s.mux.HandleFunc("GET /events/{id}/days/{day}/preview.png", s.handlePreview)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeStoreError maps store sentinel errors onto HTTP status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		appLog.Error("store operation failed", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseFloatDefault(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func resolveLocation(names ...string) *time.Location {
	for _, name := range names {
		if name == "" {
			continue
		}
		loc, err := time.LoadLocation(name)
		if err == nil {
			return loc
		}
		appLog.Warn("unknown timezone, trying next", "name", name)
	}
	return time.UTC
}
