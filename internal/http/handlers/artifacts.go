package handlers

import (
	"fmt"
	"net/http"
	"path"

	"assetgen/internal/domain"
	"assetgen/pkg/zip"
)

func (a *App) RunAssets(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	artifacts, err := a.Artifacts.ListByRun(r.Context(), run.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("run_id", run.ID).Msg("load artifacts failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load artifacts")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"items": a.artifactViews(r.Context(), artifacts)})
}

// RunAssetsArchive streams a zip of every stored artifact of a run.
func (a *App) RunAssetsArchive(w http.ResponseWriter, r *http.Request) {
	run, ok := a.loadRun(w, r)
	if !ok {
		return
	}
	artifacts, err := a.Artifacts.ListByRun(r.Context(), run.ID)
	if err != nil {
		a.Logger.Error().Err(err).Str("run_id", run.ID).Msg("load artifacts failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load artifacts")
		return
	}
	if len(artifacts) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "run has no stored artifacts")
		return
	}
	entries := make([]zip.Entry, 0, len(artifacts))
	for _, artifact := range artifacts {
		obj, err := a.Store.Get(r.Context(), artifact.StorageKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("key", artifact.StorageKey).Msg("archive: object missing")
			continue
		}
		name := fmt.Sprintf("%s-%s%s", run.ID, artifact.Kind, path.Ext(artifact.StorageKey))
		entries = append(entries, zip.Entry{Name: name, Data: obj.Data})
	}
	if len(entries) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "run artifacts are not retrievable")
		return
	}
	archive, err := zip.Archive(entries)
	if err != nil {
		a.Logger.Error().Err(err).Str("run_id", run.ID).Msg("build archive failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to build archive")
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=run-%s.zip", run.ID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// BrowseAssets lists artifacts across runs, newest first, with the prompt
// that produced each one.
func (a *App) BrowseAssets(w http.ResponseWriter, r *http.Request) {
	kind := domain.ArtifactKind(r.URL.Query().Get("kind"))
	if kind != "" && !validArtifactKind(kind) {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown artifact kind")
		return
	}
	limit := queryLimit(r)
	artifacts, err := a.Artifacts.ListByKind(r.Context(), kind, limit)
	if err != nil {
		a.Logger.Error().Err(err).Msg("browse artifacts failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load artifacts")
		return
	}
	items := make([]map[string]any, 0, len(artifacts))
	for _, artifact := range artifacts {
		view := a.artifactView(r.Context(), artifact.Artifact)
		view["prompt"] = artifact.Prompt
		items = append(items, view)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func validArtifactKind(kind domain.ArtifactKind) bool {
	switch kind {
	case domain.ArtifactKindImage, domain.ArtifactKindModel, domain.ArtifactKindMetadata:
		return true
	}
	return false
}
