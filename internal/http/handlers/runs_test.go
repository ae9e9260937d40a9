package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"assetgen/internal/domain"
)

func seedRun(runs *fakeRuns, id string, status domain.RunStatus) *domain.PipelineRun {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	run := &domain.PipelineRun{
		ID:     id,
		Status: status,
		Request: domain.GenerationRequest{
			Prompt: "a red cube",
			Output: domain.OutputImage,
			Locale: "en",
		},
		Stages: []domain.StageResult{
			{Stage: domain.StageKindPrompt, Status: domain.StageStatusSucceeded},
			{Stage: domain.StageKindImage, Status: domain.StageStatusSucceeded},
			{Stage: domain.StageKindPersist, Status: domain.StageStatusSucceeded},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	runs.runs[id] = run
	return run
}

func TestGetRunIncludesArtifacts(t *testing.T) {
	app, runs, artifacts, _ := newTestApp(t)
	seedRun(runs, "run-1", domain.RunStatusCompleted)
	artifacts.byRun["run-1"] = []domain.Artifact{
		{ID: "art-1", RunID: "run-1", Kind: domain.ArtifactKindImage, StorageKey: "images/run-1.png", ContentType: "image/png"},
		{ID: "art-2", RunID: "run-1", Kind: domain.ArtifactKindMetadata, StorageKey: "metadata/run-1.json", ContentType: "application/json"},
	}

	rr := httptest.NewRecorder()
	app.GetRun(rr, requestWithRunID(http.MethodGet, "/v1/runs/run-1", "run-1"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
		Stages []struct {
			Stage  string `json:"stage"`
			Status string `json:"status"`
		} `json:"stages"`
		Artifacts []struct {
			Kind string `json:"kind"`
			URL  string `json:"url"`
		} `json:"artifacts"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RunID != "run-1" || resp.Status != "completed" {
		t.Fatalf("run = %s/%s", resp.RunID, resp.Status)
	}
	if len(resp.Stages) != 3 {
		t.Fatalf("stages = %d, want 3", len(resp.Stages))
	}
	if len(resp.Artifacts) != 2 {
		t.Fatalf("artifacts = %d, want 2", len(resp.Artifacts))
	}
	if resp.Artifacts[0].URL != "http://store/images/run-1.png" {
		t.Fatalf("artifact url = %q", resp.Artifacts[0].URL)
	}
}

func TestGetRunQueuedSkipsArtifactLookup(t *testing.T) {
	app, runs, artifacts, _ := newTestApp(t)
	run := seedRun(runs, "run-2", domain.RunStatusQueued)
	run.Stages = nil
	artifacts.listErr = domain.ErrNotFound

	rr := httptest.NewRecorder()
	app.GetRun(rr, requestWithRunID(http.MethodGet, "/v1/runs/run-2", "run-2"))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp struct {
		Status string            `json:"status"`
		Stages []json.RawMessage `json:"stages"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "queued" {
		t.Fatalf("status = %q, want queued", resp.Status)
	}
	if resp.Stages == nil {
		t.Fatal("stages should render as an empty array, not null")
	}
	if len(resp.Stages) != 0 {
		t.Fatalf("stages = %d, want 0", len(resp.Stages))
	}
}

func TestGetRunNotFound(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	app.GetRun(rr, requestWithRunID(http.MethodGet, "/v1/runs/missing", "missing"))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
	var resp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "not_found" {
		t.Fatalf("error = %q, want not_found", resp.Error)
	}
}

func TestListRunsPassesFilter(t *testing.T) {
	app, runs, _, _ := newTestApp(t)
	runs.listRuns = []domain.PipelineRun{
		*seedRun(runs, "run-a", domain.RunStatusFailed),
		*seedRun(runs, "run-b", domain.RunStatusFailed),
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?status=failed&limit=5", nil)
	rr := httptest.NewRecorder()
	app.ListRuns(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if runs.lastStatus != domain.RunStatusFailed {
		t.Fatalf("status filter = %q, want failed", runs.lastStatus)
	}
	if runs.lastLimit != 5 {
		t.Fatalf("limit = %d, want 5", runs.lastLimit)
	}
	var resp struct {
		Items []struct {
			RunID  string `json:"run_id"`
			Status string `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(resp.Items))
	}
	if resp.Items[0].RunID != "run-a" || resp.Items[0].Status != "failed" {
		t.Fatalf("item = %+v", resp.Items[0])
	}
}

func TestListRunsRejectsUnknownStatus(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?status=exploded", nil)
	rr := httptest.NewRecorder()
	app.ListRuns(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListRunsLimitBounds(t *testing.T) {
	app, runs, _, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	app.ListRuns(rr, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if runs.lastLimit != defaultListLimit {
		t.Fatalf("default limit = %d, want %d", runs.lastLimit, defaultListLimit)
	}

	rr = httptest.NewRecorder()
	app.ListRuns(rr, httptest.NewRequest(http.MethodGet, "/v1/runs?limit=1000", nil))
	if runs.lastLimit != maxListLimit {
		t.Fatalf("capped limit = %d, want %d", runs.lastLimit, maxListLimit)
	}
}

func TestAbortRun(t *testing.T) {
	testCases := []struct {
		name       string
		seed       domain.RunStatus
		runID      string
		wantStatus int
		wantError  string
	}{
		{name: "queued run aborts", seed: domain.RunStatusQueued, runID: "run-1", wantStatus: http.StatusOK},
		{name: "claimed run conflicts", seed: domain.RunStatusRunning, runID: "run-1", wantStatus: http.StatusConflict, wantError: "conflict"},
		{name: "missing run", runID: "missing", wantStatus: http.StatusNotFound, wantError: "not_found"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			app, runs, _, _ := newTestApp(t)
			if tc.seed != "" {
				seedRun(runs, "run-1", tc.seed)
			}

			rr := httptest.NewRecorder()
			app.AbortRun(rr, requestWithRunID(http.MethodDelete, "/v1/runs/"+tc.runID, tc.runID))

			if rr.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d; body=%s", rr.Code, tc.wantStatus, rr.Body.String())
			}
			if tc.wantError != "" {
				var resp struct {
					Error string `json:"error"`
				}
				if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
					t.Fatalf("decode response: %v", err)
				}
				if resp.Error != tc.wantError {
					t.Fatalf("error = %q, want %q", resp.Error, tc.wantError)
				}
				return
			}
			var resp struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp.Status != "aborted" {
				t.Fatalf("status = %q, want aborted", resp.Status)
			}
			if runs.runs["run-1"].Status != domain.RunStatusAborted {
				t.Fatalf("stored status = %s, want aborted", runs.runs["run-1"].Status)
			}
		})
	}
}
