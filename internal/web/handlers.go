package web

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/dqm/internal/core"
	"github.com/JonMunkholm/dqm/internal/pipeline"
)

// HealthResponse is returned by /healthz.
type HealthResponse struct {
	Status    string `json:"status"`
	RunActive bool   `json:"run_active"`
}

// StatusResponse describes the pipeline's current state.
type StatusResponse struct {
	Gate    pipeline.GateStatus `json:"gate"`
	LastRun *pipeline.RunResult `json:"last_run,omitempty"`
}

// LedgerResponse lists recorded file identifiers.
type LedgerResponse struct {
	Files []string `json:"files"`
	Count int      `json:"count"`
}

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "ok",
		RunActive: s.runner.Gate().Active(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Gate: s.runner.Gate().Status()}
	if runs := s.runner.Runs(); len(runs) > 0 {
		resp.LastRun = &runs[0]
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// handleTriggerRun starts a background run and returns 202 with its initial
// state. A run already in progress is a 409.
func (s *Server) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runner.Trigger(s.runCtx, pipeline.TriggerAPI)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, core.ErrRunInProgress) {
			status = http.StatusConflict
			w.Header().Set("Retry-After", "30")
		}
		respondError(w, r, err, status)
		return
	}

	w.Header().Set("Location", "/api/runs/"+run.ID)
	writeJSON(w, r, http.StatusAccepted, run)
}

// handleListRuns returns recent runs, newest first, up to ?limit.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs := s.runner.Runs()
	if limit := parseIntParam(r, "limit", len(runs)); limit < len(runs) {
		runs = runs[:limit]
	}
	writeJSON(w, r, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := s.runner.Get(chi.URLParam(r, "runID"))
	if !ok {
		respondError(w, r, core.ErrRunNotFound, http.StatusNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, run)
}

func (s *Server) handleListLedger(w http.ResponseWriter, r *http.Request) {
	files, err := s.runner.Ledger().List(r.Context())
	if err != nil {
		respondError(w, r, err, http.StatusServiceUnavailable)
		return
	}
	if files == nil {
		files = []string{}
	}
	writeJSON(w, r, http.StatusOK, LedgerResponse{Files: files, Count: len(files)})
}
