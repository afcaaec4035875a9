// Package api exposes the HTTP interface for the profiler service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osintlabs/profiler/internal/engine"
	"github.com/osintlabs/profiler/internal/metrics"
	"github.com/osintlabs/profiler/internal/profiler"
)

// Server wires HTTP handlers to the engine.
type Server struct {
	router  chi.Router
	engine  *engine.Engine
	content profiler.ContentStore
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(eng *engine.Engine, content profiler.ContentStore, logger *zap.Logger) (*Server, error) {
	if eng == nil || content == nil {
		return nil, fmt.Errorf("engine and content store are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	s := &Server{engine: eng, content: content, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/usernames", s.submitSearch)
		r.Get("/results/{tracker_id}", s.getResults)
		r.Route("/archives", func(r chi.Router) {
			r.Get("/", s.listArchives)
			r.Get("/{tracker_id}", s.getArchive)
			r.Get("/{tracker_id}/bundle", s.downloadBundle)
		})
		r.Route("/sites", func(r chi.Router) {
			r.Get("/", s.listSites)
			r.Post("/{site_id}/test", s.testSite)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.engine.Sites(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "site store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) submitSearch(w http.ResponseWriter, r *http.Request) {
	var req engine.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	job, err := s.engine.Search(r.Context(), req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	trackerID := chi.URLParam(r, "tracker_id")
	results, err := s.engine.Results(r.Context(), trackerID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch results")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"tracker_id": trackerID,
		"results":    results,
	})
}

func (s *Server) listArchives(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		s.writeError(w, http.StatusBadRequest, "username query parameter is required")
		return
	}
	archives, err := s.engine.Archives(r.Context(), username)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch archives")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"username": username,
		"archives": archives,
	})
}

func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	archive, ok := s.archiveFor(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, archive)
}

func (s *Server) downloadBundle(w http.ResponseWriter, r *http.Request) {
	archive, ok := s.archiveFor(w, r)
	if !ok {
		return
	}
	data, err := s.content.Open(r.Context(), archive.Bundle)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to read bundle")
		return
	}
	w.Header().Set("Content-Type", archive.Bundle.Mime)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", archive.Bundle.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		s.logger.Warn("bundle write failed", zap.Error(err))
	}
}

func (s *Server) archiveFor(w http.ResponseWriter, r *http.Request) (profiler.Archive, bool) {
	trackerID := chi.URLParam(r, "tracker_id")
	archive, err := s.engine.Archive(r.Context(), trackerID)
	if errors.Is(err, profiler.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "archive not found")
		return profiler.Archive{}, false
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch archive")
		return profiler.Archive{}, false
	}
	return archive, true
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.engine.Sites(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch sites")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *Server) testSite(w http.ResponseWriter, r *http.Request) {
	siteID, err := strconv.ParseInt(chi.URLParam(r, "site_id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid site id")
		return
	}
	site, err := s.engine.TestSite(r.Context(), siteID)
	if errors.Is(err, profiler.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "site not found")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, site)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		metrics.ObserveHTTPRequest(r.Method, routePattern(r), ww.status, duration)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", duration),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
