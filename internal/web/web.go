package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"calboard/internal/config"
	appLog "calboard/internal/log"
	"calboard/internal/state"
	calsync "calboard/internal/sync"
)

const (
	gridCacheSize = 256
	gridCacheTTL  = 5 * time.Minute
)

// Refresher re-imports subscriptions on demand.
type Refresher interface {
	Refresh(ctx context.Context) (calsync.Result, error)
}

// Server exposes the calendar state over HTTP: a JSON API, an ICS export
// and a server-rendered page used for snapshots.
type Server struct {
	cfg    *config.Config
	store  *state.Store
	router *mux.Router
	loc    *time.Location
	now    func() time.Time

	refresher Refresher

	// Rendered month/week payloads keyed by view, anchor day and store
	// revision, so any mutation naturally misses.
	grids *expirable.LRU[string, any]
}

// Option customises a Server.
type Option func(*Server)

// WithClock overrides time.Now, used by "today" navigation.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithRefresher enables POST /api/refresh.
func WithRefresher(r Refresher) Option {
	return func(s *Server) { s.refresher = r }
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, store *state.Store, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		store:  store,
		router: mux.NewRouter(),
		loc:    cfg.Location(),
		now:    time.Now,
		grids:  expirable.NewLRU[string, any](gridCacheSize, nil, gridCacheTTL),
	}
	for _, o := range opts {
		o(s)
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(instrument)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/state", s.handleState).Methods(http.MethodGet)
	r.HandleFunc("/api/month", s.handleMonth).Methods(http.MethodGet)
	r.HandleFunc("/api/week", s.handleWeek).Methods(http.MethodGet)

	r.HandleFunc("/api/events", s.handleListEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleCreateEvent).Methods(http.MethodPost)
	r.HandleFunc("/api/events/{id}", s.handleGetEvent).Methods(http.MethodGet)
	r.HandleFunc("/api/events/{id}", s.handleUpdateEvent).Methods(http.MethodPatch)
	r.HandleFunc("/api/events/{id}", s.handleDeleteEvent).Methods(http.MethodDelete)
	r.HandleFunc("/api/events/{id}/reschedule", s.handleReschedule).Methods(http.MethodPost)

	r.HandleFunc("/api/navigate", s.handleNavigate).Methods(http.MethodPost)
	r.HandleFunc("/api/view", s.handleSetView).Methods(http.MethodPut)
	r.HandleFunc("/api/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.HandleFunc("/calendar.ics", s.handleExport).Methods(http.MethodGet)
	r.HandleFunc("/calendar", s.handleCalendarPage).Methods(http.MethodGet)
	r.Handle("/", http.RedirectHandler("/calendar", http.StatusFound))
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means auth is off.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
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
			w.Header().Set("WWW-Authenticate", `Basic realm="calboard", charset="UTF-8"`)
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

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
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
