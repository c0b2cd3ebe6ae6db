// Package api exposes the HTTP interface for the scrape-job service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/scrapejobs/scrapejobs/internal/gateway"
	"github.com/scrapejobs/scrapejobs/internal/metrics"
	"github.com/scrapejobs/scrapejobs/internal/scraping"
)

// ReadyCheck reports whether downstream dependencies can serve traffic.
type ReadyCheck func(ctx context.Context) error

// Server wires HTTP handlers to the gateway and stores.
type Server struct {
	router  chi.Router
	jobs    scraping.JobStore
	results scraping.ResultStore
	gateway *gateway.Gateway
	ready   ReadyCheck
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. ready may be nil
// when every dependency is in-process.
func NewServer(
	jobs scraping.JobStore,
	results scraping.ResultStore,
	gw *gateway.Gateway,
	ready ReadyCheck,
	logger *zap.Logger,
) *Server {
	s := &Server{
		jobs:    jobs,
		results: results,
		gateway: gw,
		ready:   ready,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.scheduleJob)
			r.Get("/", s.listJobs)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Get("/results", s.getJobResults)
			})
		})
		r.Route("/results", func(r chi.Router) {
			r.Get("/team-stats", s.listTeamStats)
			r.Get("/film-awards", s.listFilmAwards)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type scheduleJobRequest struct {
	JobType string `json:"job_type"`
}

func (s *Server) scheduleJob(w http.ResponseWriter, r *http.Request) {
	var req scheduleJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobType, err := scraping.ParseJobType(req.JobType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := s.gateway.Schedule(r.Context(), jobType)
	if err != nil {
		pubErr := new(scraping.PublishError)
		if errors.As(err, &pubErr) {
			// The job exists but will never run; hand out its id with the
			// failure so the caller can inspect it.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"error": pubErr.Error(),
				"job":   job,
			})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	jobs, total, err := s.jobs.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "total": total})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scraping.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobResults(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobs.Get(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, scraping.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch job")
		return
	}

	teamStats, err := s.results.TeamStatsByJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch job results")
		return
	}
	filmAwards, err := s.results.FilmAwardsByJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch job results")
		return
	}
	writeJSON(w, http.StatusOK, scraping.JobResults{
		Job:        job,
		TeamStats:  teamStats,
		FilmAwards: filmAwards,
	})
}

func (s *Server) listTeamStats(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, total, err := s.results.ListTeamStats(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list team stats")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"team_stats": records, "total": total})
}

func (s *Server) listFilmAwards(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	records, total, err := s.results.ListFilmAwards(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list film awards")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"film_awards": records, "total": total})
}

func parseJobFilter(r *http.Request) (scraping.JobFilter, error) {
	filter := scraping.JobFilter{}
	if v := r.URL.Query().Get("type"); v != "" {
		t, err := scraping.ParseJobType(v)
		if err != nil {
			return scraping.JobFilter{}, err
		}
		filter.Type = t
	}
	if v := r.URL.Query().Get("status"); v != "" {
		switch scraping.JobStatus(v) {
		case scraping.JobStatusPending, scraping.JobStatusRunning,
			scraping.JobStatusCompleted, scraping.JobStatusFailed:
			filter.Status = scraping.JobStatus(v)
		default:
			return scraping.JobFilter{}, fmt.Errorf("unknown status %q", v)
		}
	}
	limit, offset, err := parsePagination(r)
	if err != nil {
		return scraping.JobFilter{}, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = 50
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit <= 0 || limit > 500 {
			return 0, 0, fmt.Errorf("limit must be an integer in [1,500]")
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
