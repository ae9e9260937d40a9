package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"assetgen/internal/domain"
)

func TestDashboard24h(t *testing.T) {
	app, runs, artifacts, _ := newTestApp(t)
	runs.counts = map[domain.RunStatus]int{
		domain.RunStatusCompleted: 5,
		domain.RunStatusFailed:    2,
	}
	artifacts.stats = map[domain.ArtifactKind]domain.ArtifactStats{
		domain.ArtifactKindImage:    {Count: 4, Bytes: 1000},
		domain.ArtifactKindModel:    {Count: 2, Bytes: 2000},
		domain.ArtifactKindMetadata: {Count: 6, Bytes: 300},
	}

	rr := httptest.NewRecorder()
	app.Dashboard24h(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics/dashboard-24h", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp struct {
		WindowHours    int   `json:"window_hours"`
		ImageGenerated int   `json:"image_generated"`
		ModelGenerated int   `json:"model_generated"`
		BytesStored    int64 `json:"bytes_stored"`
		RunsCompleted  int   `json:"runs_completed"`
		RunsFailed     int   `json:"runs_failed"`
		RunsQueued     int   `json:"runs_queued"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.WindowHours != 24 {
		t.Fatalf("window_hours = %d", resp.WindowHours)
	}
	if resp.ImageGenerated != 4 || resp.ModelGenerated != 2 {
		t.Fatalf("generated = %d/%d, want 4/2", resp.ImageGenerated, resp.ModelGenerated)
	}
	if resp.BytesStored != 3300 {
		t.Fatalf("bytes_stored = %d, want 3300", resp.BytesStored)
	}
	if resp.RunsCompleted != 5 || resp.RunsFailed != 2 {
		t.Fatalf("runs = %d/%d, want 5/2", resp.RunsCompleted, resp.RunsFailed)
	}
	if resp.RunsQueued != 0 {
		t.Fatalf("runs_queued = %d, want 0", resp.RunsQueued)
	}
}

func TestDashboard24hEmptyWindow(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	app.Dashboard24h(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics/dashboard-24h", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	for _, key := range []string{"image_generated", "bytes_stored", "runs_completed"} {
		if resp[key].(float64) != 0 {
			t.Fatalf("%s = %v, want 0", key, resp[key])
		}
	}
}
