// Package api exposes the harvested corpus over a read-only HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fmatlas/lattes-harvester/internal/store"
)

// Server serves researcher and project data. All endpoints are read-only;
// writes happen exclusively through the harvest pipeline.
type Server struct {
	store  store.Store
	router chi.Router
}

// NewServer builds the router and its middleware stack.
func NewServer(st store.Store) *Server {
	s := &Server{store: st, router: chi.NewRouter()}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/researchers", s.handleListResearchers)
		r.Get("/researchers/{externalID}", s.handleGetResearcher)
		r.Get("/researchers/{externalID}/projects", s.handleListProjects)
		r.Get("/failures", s.handleListFailures)
		r.Get("/stats", s.handleStats)
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start runs the server until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("api: shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx) //nolint:errcheck
	}()

	zap.L().Info("api: starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "api: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListResearchers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{
		SearchTerm:  q.Get("term"),
		Institution: q.Get("institution"),
		Limit:       intParam(q.Get("limit"), 50),
		Offset:      intParam(q.Get("offset"), 0),
	}

	researchers, err := s.store.ListResearchers(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"researchers": researchers,
		"count":       len(researchers),
	})
}

func (s *Server) handleGetResearcher(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	researcher, err := s.store.GetResearcher(r.Context(), externalID)
	if err != nil {
		writeError(w, err)
		return
	}
	if researcher == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "researcher not found"})
		return
	}
	writeJSON(w, http.StatusOK, researcher)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	projects, err := s.store.ListProjects(r.Context(), externalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projects": projects,
		"count":    len(projects),
	})
}

func (s *Server) handleListFailures(w http.ResponseWriter, r *http.Request) {
	failures, err := s.store.ListFailures(r.Context(), intParam(r.URL.Query().Get("limit"), 100))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"failures": failures,
		"count":    len(failures),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("api: request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func intParam(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
