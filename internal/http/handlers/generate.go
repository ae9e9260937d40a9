package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"assetgen/internal/domain"
	"assetgen/internal/middleware"
)

type generateRequest struct {
	Prompt         string `json:"prompt"`
	Style          string `json:"style"`
	NegativePrompt string `json:"negative_prompt"`
	Output         string `json:"output"`
	Locale         string `json:"locale"`
	// Wait switches to the blocking mode: the run executes inside the
	// request and the full outcome is returned instead of a queue ticket.
	Wait bool `json:"wait"`
}

type runQueuedResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

func (a *App) GenerateAsset(w http.ResponseWriter, r *http.Request) {
	var payload generateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	req := domain.GenerationRequest{
		Prompt:         payload.Prompt,
		Style:          payload.Style,
		NegativePrompt: payload.NegativePrompt,
		Output:         domain.OutputKind(payload.Output),
		Locale:         payload.Locale,
	}
	req.Normalize(middleware.LocaleFromContext(r.Context()))
	if err := req.Validate(); err != nil {
		a.domainError(w, err, "invalid payload")
		return
	}
	if req.Output == domain.OutputModel && a.Config != nil && !a.Config.ThreeDEnabled() {
		a.error(w, http.StatusBadRequest, "bad_request", "3d generation is not configured on this deployment")
		return
	}

	if payload.Wait {
		a.generateBlocking(w, r, req)
		return
	}

	run := &domain.PipelineRun{
		ID:      uuid.NewString(),
		Request: req,
		Status:  domain.RunStatusQueued,
	}
	if err := a.Runs.Enqueue(r.Context(), run); err != nil {
		a.Logger.Error().Err(err).Msg("enqueue run failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue run")
		return
	}
	a.json(w, http.StatusAccepted, runQueuedResponse{RunID: run.ID, Status: string(domain.RunStatusQueued)})
}

// generateBlocking runs the pipeline inside the request. The outcome is
// persisted on a detached context so a caller disconnect cannot lose a run
// that already hit the backends.
func (a *App) generateBlocking(w http.ResponseWriter, r *http.Request, req domain.GenerationRequest) {
	req.RequestID = uuid.NewString()
	run := a.Pipeline.Run(r.Context(), req)

	persistCtx := context.WithoutCancel(r.Context())
	if err := a.Runs.Record(persistCtx, run); err != nil {
		a.Logger.Error().Err(err).Str("run_id", run.ID).Msg("record run failed")
	}
	if len(run.Artifacts) > 0 {
		if err := a.Artifacts.SaveAll(persistCtx, run.ID, run.Artifacts); err != nil {
			a.Logger.Error().Err(err).Str("run_id", run.ID).Msg("save artifacts failed")
		}
	}

	status := http.StatusOK
	if run.Err != nil {
		status, _ = statusForError(run.Err)
	}
	a.json(w, status, a.runView(r.Context(), run))
}
