package handlers

import (
	"net/http"
	"time"

	"assetgen/internal/domain"
)

// Dashboard24h aggregates run and artifact counters over the trailing day.
func (a *App) Dashboard24h(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)

	runCounts, err := a.Runs.CountByStatusSince(r.Context(), since)
	if err != nil {
		a.Logger.Error().Err(err).Msg("load run counters failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load counters")
		return
	}
	artifactStats, err := a.Artifacts.CountSince(r.Context(), since)
	if err != nil {
		a.Logger.Error().Err(err).Msg("load artifact counters failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load counters")
		return
	}

	var storedBytes int64
	for _, stats := range artifactStats {
		storedBytes += stats.Bytes
	}
	a.json(w, http.StatusOK, map[string]any{
		"window_hours":    24,
		"image_generated": artifactStats[domain.ArtifactKindImage].Count,
		"model_generated": artifactStats[domain.ArtifactKindModel].Count,
		"bytes_stored":    storedBytes,
		"runs_completed":  runCounts[domain.RunStatusCompleted],
		"runs_partial":    runCounts[domain.RunStatusPartial],
		"runs_failed":     runCounts[domain.RunStatusFailed],
		"runs_aborted":    runCounts[domain.RunStatusAborted],
		"runs_queued":     runCounts[domain.RunStatusQueued],
		"runs_running":    runCounts[domain.RunStatusRunning],
	})
}
