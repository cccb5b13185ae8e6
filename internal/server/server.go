// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the research pipeline over HTTP. Plans, scrapes,
// and the category and mirror tables are plain JSON endpoints; a research
// run streams its progress as server-sent events and is cancelled when the
// client disconnects.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pdiddy/alif/internal/extract"
	"github.com/pdiddy/alif/internal/history"
	"github.com/pdiddy/alif/internal/mirrors"
	"github.com/pdiddy/alif/internal/planner"
	"github.com/pdiddy/alif/internal/retrieve"
	"github.com/pdiddy/alif/internal/synth"
	"github.com/pdiddy/alif/pkg/types"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Planner expands a prompt into a plan. *planner.Planner satisfies it.
type Planner interface {
	Plan(ctx context.Context, prompt string) (types.Plan, error)
}

// Retriever prepares retrieval runs. *retrieve.Orchestrator satisfies it.
type Retriever interface {
	Start(plan types.Plan) (*retrieve.Run, error)
}

// Recorder stores run summaries. *history.Store satisfies it.
type Recorder interface {
	Record(ctx context.Context, run history.Run) error
}

// Server holds the pipeline components behind the HTTP API. Synthesizer and
// History are optional.
type Server struct {
	Categories  types.Categories
	Mirrors     *mirrors.Registry
	Planner     Planner
	Retriever   Retriever
	Scraper     retrieve.Scraper
	Synthesizer synth.Synthesizer
	History     Recorder
	Logger      *zap.Logger
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", s.handleCategories)
		r.Get("/mirrors", s.handleMirrors)
		r.Get("/scrape", s.handleScrape)
		r.Post("/plan", s.handlePlan)
		r.Post("/research", s.handleResearch)
	})
	return r
}

// ListenAndServe serves the API on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger().Info("listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger().Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}

func (s *Server) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *Server) handleCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.Categories.List()})
}

func (s *Server) handleMirrors(w http.ResponseWriter, _ *http.Request) {
	var urls []string
	if s.Mirrors != nil {
		urls = s.Mirrors.URLs()
	}
	if urls == nil {
		urls = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mirrors": urls})
}

type planRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, errors.New("prompt is required"))
		return
	}
	if s.Planner == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("planner not configured"))
		return
	}

	plan, err := s.Planner.Plan(r.Context(), req.Prompt)
	if err != nil {
		writeError(w, planErrorStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// planErrorStatus maps a planning failure to a response code: a model
// answer that could not be used is 422, a failed model call is 502.
func planErrorStatus(err error) int {
	var pe *planner.PlannerError
	switch {
	case errors.As(err, &pe) && pe.Raw != "":
		return http.StatusUnprocessableEntity
	case errors.As(err, &pe) && pe.Err == nil:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	u, err := url.Parse(raw)
	if raw == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		writeError(w, http.StatusBadRequest, errors.New("url must be an absolute http or https URL"))
		return
	}
	if s.Scraper == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("scraper not configured"))
		return
	}

	page, err := s.Scraper.Extract(r.Context(), u.String())
	switch {
	case errors.Is(err, extract.ErrNoContent):
		writeError(w, http.StatusUnprocessableEntity, err)
	case err != nil:
		writeError(w, http.StatusBadGateway, err)
	default:
		writeJSON(w, http.StatusOK, page)
	}
}

// requestLogger logs one line per request. Streaming requests are logged
// when the stream ends.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger().Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
