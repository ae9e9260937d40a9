package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"assetgen/internal/domain"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

func (a *App) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	if run.Terminal() {
		artifacts, err := a.Artifacts.ListByRun(r.Context(), run.ID)
		if err != nil {
			a.Logger.Warn().Err(err).Str("run_id", run.ID).Msg("load artifacts failed")
		} else {
			run.Artifacts = artifacts
		}
	}
	a.json(w, http.StatusOK, a.runView(r.Context(), run))
}

func (a *App) ListRuns(w http.ResponseWriter, r *http.Request) {
	status := domain.RunStatus(r.URL.Query().Get("status"))
	if status != "" && !validRunStatus(status) {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown status filter")
		return
	}
	limit := queryLimit(r)
	runs, err := a.Runs.List(r.Context(), status, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("list runs failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list runs")
		return
	}
	items := make([]map[string]any, 0, len(runs))
	for i := range runs {
		items = append(items, runSummary(&runs[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) AbortRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "run_id required")
		return
	}
	err := a.Runs.MarkAborted(r.Context(), runID)
	switch {
	case err == nil:
		a.json(w, http.StatusOK, map[string]any{"run_id": runID, "status": domain.RunStatusAborted})
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "run not found")
	case errors.Is(err, domain.ErrRunNotQueued):
		a.error(w, http.StatusConflict, "conflict", "run already claimed by a worker")
	default:
		a.Logger.Error().Err(err).Str("run_id", runID).Msg("abort run failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to abort run")
	}
}

// loadRun resolves the run_id path parameter, writing the error response
// itself when the run cannot be served.
func (a *App) loadRun(w http.ResponseWriter, r *http.Request) (*domain.PipelineRun, bool) {
	runID := chi.URLParam(r, "run_id")
	if runID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "run_id required")
		return nil, false
	}
	run, err := a.Runs.Get(r.Context(), runID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "run not found")
			return nil, false
		}
		a.Logger.Error().Err(err).Str("run_id", runID).Msg("load run failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load run")
		return nil, false
	}
	return run, true
}

// runSummary is the compact list row; stage detail stays on the single-run
// view.
func runSummary(run *domain.PipelineRun) map[string]any {
	item := map[string]any{
		"run_id":     run.ID,
		"status":     run.Status,
		"prompt":     run.Request.Prompt,
		"output":     run.Request.Output,
		"locale":     run.Request.Locale,
		"created_at": run.CreatedAt,
		"updated_at": run.UpdatedAt,
	}
	if run.Err != nil {
		item["error_kind"] = run.Err.Kind
		item["error_stage"] = run.Err.Stage
	}
	if !run.FinishedAt.IsZero() {
		item["finished_at"] = run.FinishedAt
	}
	return item
}

func validRunStatus(status domain.RunStatus) bool {
	switch status {
	case domain.RunStatusQueued, domain.RunStatusRunning, domain.RunStatusCompleted,
		domain.RunStatusPartial, domain.RunStatusFailed, domain.RunStatusAborted:
		return true
	}
	return false
}

func queryLimit(r *http.Request) int {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}
