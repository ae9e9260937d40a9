// Package handlers implements the HTTP API: run submission, polling,
// artifact browsing and the operational endpoints.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/storage"
)

// Runner executes a generation request end to end. Satisfied by
// *pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, req domain.GenerationRequest) *domain.PipelineRun
}

// Pinger reports database liveness. Satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// App bundles the dependencies shared by the HTTP handlers.
type App struct {
	Config    *infra.Config
	Logger    infra.Logger
	DB        Pinger
	Runs      domain.RunRepository
	Artifacts domain.ArtifactRepository
	Store     storage.Store
	Pipeline  Runner
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{"error": errCode, "message": message})
}

// domainError renders a typed failure. The descriptor message is already
// caller-safe; anything untyped falls back to the given message so raw
// transport errors never leak.
func (a *App) domainError(w http.ResponseWriter, err error, fallback string) {
	status, code := statusForError(err)
	message := fallback
	var derr *domain.Error
	if errors.As(err, &derr) && derr.Message != "" {
		message = derr.Message
	}
	a.error(w, status, code, message)
}

// statusForError maps the failure taxonomy onto HTTP statuses. Unauthorized
// means a backend rejected our stored credentials, which is an operator
// problem, so it surfaces as a gateway fault rather than a caller fault.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrRunNotQueued):
		return http.StatusConflict, "conflict"
	}
	switch domain.KindOf(err) {
	case domain.KindValidation:
		return http.StatusBadRequest, "bad_request"
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable, "upstream_unavailable"
	case domain.KindUnauthorized:
		return http.StatusBadGateway, "upstream_unauthorized"
	case domain.KindConflict:
		return http.StatusConflict, "conflict"
	case domain.KindCanceled:
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusBadGateway, "upstream_error"
	}
}

// runView renders a run for API consumers. Artifacts, when loaded, carry
// short-lived download URLs.
func (a *App) runView(ctx context.Context, run *domain.PipelineRun) map[string]any {
	stages := run.Stages
	if stages == nil {
		stages = []domain.StageResult{}
	}
	view := map[string]any{
		"run_id":     run.ID,
		"status":     run.Status,
		"prompt":     run.Request.Prompt,
		"output":     run.Request.Output,
		"locale":     run.Request.Locale,
		"stages":     stages,
		"created_at": run.CreatedAt,
		"updated_at": run.UpdatedAt,
	}
	if run.Request.Style != "" {
		view["style"] = run.Request.Style
	}
	if run.Request.NegativePrompt != "" {
		view["negative_prompt"] = run.Request.NegativePrompt
	}
	if run.Err != nil {
		view["error"] = run.Err
	}
	if !run.StartedAt.IsZero() {
		view["started_at"] = run.StartedAt
	}
	if !run.FinishedAt.IsZero() {
		view["finished_at"] = run.FinishedAt
	}
	if len(run.Artifacts) > 0 {
		view["artifacts"] = a.artifactViews(ctx, run.Artifacts)
	}
	return view
}

func (a *App) artifactViews(ctx context.Context, artifacts []domain.Artifact) []map[string]any {
	items := make([]map[string]any, 0, len(artifacts))
	for _, artifact := range artifacts {
		items = append(items, a.artifactView(ctx, artifact))
	}
	return items
}

func (a *App) artifactView(ctx context.Context, artifact domain.Artifact) map[string]any {
	view := map[string]any{
		"id":           artifact.ID,
		"run_id":       artifact.RunID,
		"kind":         artifact.Kind,
		"storage_key":  artifact.StorageKey,
		"content_type": artifact.ContentType,
		"bytes":        artifact.Bytes,
		"created_at":   artifact.CreatedAt,
	}
	if url := a.renderURL(ctx, artifact.StorageKey); url != "" {
		view["url"] = url
	}
	return view
}

// renderURL resolves a download URL for a stored object. Resolution failures
// degrade to an absent URL instead of failing the whole response.
func (a *App) renderURL(ctx context.Context, key string) string {
	if a.Store == nil || key == "" {
		return ""
	}
	ttl := time.Hour
	if a.Config != nil && a.Config.PresignTTL > 0 {
		ttl = a.Config.PresignTTL
	}
	url, err := a.Store.Presign(ctx, key, ttl)
	if err != nil {
		a.Logger.Warn().Err(err).Str("key", key).Msg("presign failed")
		return ""
	}
	return url
}
