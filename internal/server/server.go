// Package server exposes the feed workers over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bryan-buckman/infovore/internal/database"
	"github.com/bryan-buckman/infovore/internal/feedworker"
)

// Fixed routes. Worker routes must not collide with them.
const (
	RouteIndex  = "/"
	RouteHealth = "/healthz"
	RouteStats  = "/api/stats"
)

// ReservedRoutes returns the routes the server answers itself.
func ReservedRoutes() []string {
	return []string{RouteIndex, RouteHealth, RouteStats}
}

// Server is the main HTTP server.
type Server struct {
	store          database.Store
	workers        []*feedworker.Worker
	router         chi.Router
	log            *slog.Logger
	requestTimeout time.Duration
	httpServer     *http.Server
}

// Options configures the server.
type Options struct {
	Logger *slog.Logger
	// RequestTimeout bounds each request. Zero disables the deadline.
	RequestTimeout time.Duration
}

// New creates a server for the workers. The store is only used for stats.
func New(store database.Store, workers []*feedworker.Worker, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		store:          store,
		workers:        workers,
		log:            log,
		requestTimeout: opts.RequestTimeout,
	}
	s.setupRoutes()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if s.requestTimeout > 0 {
		r.Use(middleware.Timeout(s.requestTimeout))
	}

	r.Get(RouteIndex, s.handleIndex)
	r.Get(RouteHealth, s.handleHealth)
	r.Get(RouteStats, s.handleStats)

	for _, w := range s.workers {
		r.Get(w.Identity().Route(), s.handleFeed(w))
	}

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	s.log.Info("server starting", "addr", ln.Addr().String(), "routes", len(s.workers))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// --- Handlers ---

func (s *Server) handleFeed(worker *feedworker.Worker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := worker.Handle(r.Context(), r.URL.RawQuery)
		writeResponse(w, resp)
	}
}

type routeInfo struct {
	Route  string `json:"route"`
	Prefix string `json:"prefix"`
	Path   string `json:"path"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	routes := make([]routeInfo, 0, len(s.workers))
	for _, wk := range s.workers {
		id := wk.Identity()
		routes = append(routes, routeInfo{Route: id.Route(), Prefix: id.Prefix, Path: id.Path})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"routes": routes,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type sourceStats struct {
	Prefix  string    `json:"prefix"`
	Path    string    `json:"path"`
	Entries int       `json:"entries"`
	Oldest  time.Time `json:"oldest"`
	Newest  time.Time `json:"newest"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.log.Error("cache stats", "error", err)
		http.Error(w, "Failed to read stats", http.StatusInternalServerError)
		return
	}
	sources := make([]sourceStats, 0, len(stats.Sources))
	for _, st := range stats.Sources {
		sources = append(sources, sourceStats{
			Prefix:  st.Identity.Prefix,
			Path:    st.Identity.Path,
			Entries: st.Entries,
			Oldest:  st.Oldest,
			Newest:  st.Newest,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"database": s.store.DatabaseType(),
		"entries":  stats.Entries,
		"sources":  sources,
	})
}

// --- Helpers ---

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"cache", ww.Header().Get(headerCache),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
