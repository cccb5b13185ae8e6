// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/pdiddy/alif/internal/history"
	"github.com/pdiddy/alif/internal/planner"
	"github.com/pdiddy/alif/internal/synth"
	"github.com/pdiddy/alif/pkg/types"
)

// researchRequest starts a run. Plan, when present, skips query planning.
// Synthesize defaults to true when a synthesizer is configured.
type researchRequest struct {
	Prompt     string      `json:"prompt"`
	Plan       *types.Plan `json:"plan,omitempty"`
	Synthesize *bool       `json:"synthesize,omitempty"`
}

type planPayload struct {
	RunID string     `json:"runId"`
	Plan  types.Plan `json:"plan"`
}

type errorPayload struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

type sourcesPayload struct {
	RunID   string                `json:"runId"`
	Sources []types.ScrapedSource `json:"sources"`
}

type donePayload struct {
	RunID   string `json:"runId"`
	Outcome string `json:"outcome"`
}

// handleResearch plans, retrieves, and optionally synthesizes, streaming
// every step as an SSE event. Request validation failures are plain JSON
// errors; once the stream starts, failures arrive as "error" events. A
// failed synthesis is followed by an answer built from the sources alone.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	var req researchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" && req.Plan != nil {
		req.Prompt = req.Plan.Prompt
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, errors.New("prompt is required"))
		return
	}
	if s.Retriever == nil || (req.Plan == nil && s.Planner == nil) {
		writeError(w, http.StatusServiceUnavailable, errors.New("research pipeline not configured"))
		return
	}
	if req.Plan != nil {
		if err := planner.Validate(*req.Plan, s.Categories); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	synthesize := s.Synthesizer != nil && (req.Synthesize == nil || *req.Synthesize)

	ctx := r.Context()
	log := s.logger().With(zap.String("request_id", middleware.GetReqID(r.Context())))
	sse := newSSEWriter(w)
	started := time.Now()
	rec := history.Run{Prompt: req.Prompt, Started: started, Synthesized: synthesize}

	var plan types.Plan
	if req.Plan != nil {
		plan = *req.Plan
		plan.Prompt = req.Prompt
	} else {
		var err error
		plan, err = s.Planner.Plan(ctx, req.Prompt)
		if err != nil {
			log.Warn("planning failed", zap.Error(err))
			emit(log, sse, eventError, errorPayload{Stage: "plan", Error: err.Error()})
			emit(log, sse, eventDone, donePayload{Outcome: string(history.OutcomeFailed)})
			return
		}
	}

	run, err := s.Retriever.Start(plan)
	if err != nil {
		emit(log, sse, eventError, errorPayload{Stage: "retrieve", Error: err.Error()})
		emit(log, sse, eventDone, donePayload{Outcome: string(history.OutcomeFailed)})
		return
	}
	rec.ID = run.ID
	log = log.With(zap.String("run", run.ID))
	if err := sse.send(eventPlan, planPayload{RunID: run.ID, Plan: plan}); err != nil {
		log.Info("client gone before retrieval", zap.Error(err))
		return
	}

	// The stream ends when the run closes it or the client disconnects.
	events := run.Subscribe(ctx)
	var sources []types.ScrapedSource
	execErr := make(chan error, 1)
	go func() {
		execErr <- run.Execute(ctx, func(out []types.ScrapedSource) { sources = out })
	}()

	streaming := true
	for ev := range events {
		if !streaming {
			continue
		}
		if err := sse.send(eventProgress, ev); err != nil {
			log.Info("progress stream broken", zap.Error(err))
			streaming = false
		}
	}
	if err := <-execErr; err != nil {
		rec.Outcome, rec.Error = history.OutcomeCancelled, err.Error()
		s.record(log, rec, run.Snapshot(), plan)
		log.Info("research cancelled", zap.Error(err))
		return
	}

	if sources == nil {
		sources = []types.ScrapedSource{}
	}
	emit(log, sse, eventSources, sourcesPayload{RunID: run.ID, Sources: sources})

	rec.Outcome = history.OutcomeCompleted
	if synthesize {
		ans, err := s.Synthesizer.Synthesize(ctx, req.Prompt, sources)
		switch {
		case ctx.Err() != nil:
			rec.Outcome, rec.Error = history.OutcomeCancelled, ctx.Err().Error()
		case err != nil:
			log.Warn("synthesis failed", zap.Error(err))
			rec.Outcome, rec.Error = history.OutcomeFailed, err.Error()
			emit(log, sse, eventError, errorPayload{Stage: "synthesis", Error: err.Error()})
			fallback := types.Answer{Title: req.Prompt, Conclusions: []types.Conclusion{}}
			synth.FillEmptySections(&fallback, s.Categories, sources)
			emit(log, sse, eventAnswer, fallback)
		default:
			emit(log, sse, eventAnswer, ans)
		}
	}

	s.record(log, rec, run.Snapshot(), plan)
	emit(log, sse, eventDone, donePayload{RunID: run.ID, Outcome: string(rec.Outcome)})
}

// emit sends one event. A failed write means the client went away; the run
// still finishes and is recorded, so the failure is only logged.
func emit(log *zap.Logger, sse *sseWriter, event string, v any) {
	if err := sse.send(event, v); err != nil {
		log.Info("event not delivered", zap.String("event", event), zap.Error(err))
	}
}

// record stores the run summary. It outlives a cancelled request context.
func (s *Server) record(log *zap.Logger, rec history.Run, snap types.RunSnapshot, plan types.Plan) {
	if s.History == nil {
		return
	}
	rec.Finished = time.Now()
	rec.Categories = history.Summarize(snap, plan)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.History.Record(ctx, rec); err != nil {
		log.Warn("recording run history failed", zap.Error(err))
	}
}
