package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealthAllChecksPass(t *testing.T) {
	app, _, _, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body=%s", rr.Code, http.StatusOK, rr.Body.String())
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Fatalf("status = %q, want ok", resp.Status)
	}
	want := map[string]string{
		"database":       "ok",
		"storage":        "ok",
		"llm_backend":    "configured",
		"image_backend":  "configured",
		"threed_backend": "disabled",
	}
	for key, value := range want {
		if resp.Checks[key] != value {
			t.Fatalf("checks[%s] = %q, want %q", key, resp.Checks[key], value)
		}
	}
}

func TestHealthDegradedOnDBFailure(t *testing.T) {
	app, _, _, _ := newTestApp(t)
	app.DB = &fakePinger{err: errors.New("connection refused")}

	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusServiceUnavailable)
	}
	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", resp.Status)
	}
	if resp.Checks["database"] != "unreachable" {
		t.Fatalf("checks[database] = %q", resp.Checks["database"])
	}
	if resp.Checks["storage"] != "ok" {
		t.Fatalf("checks[storage] = %q", resp.Checks["storage"])
	}
}

func TestHealthStaticPromptProvider(t *testing.T) {
	app, _, _, _ := newTestApp(t)
	app.Config.PromptProvider = "static"
	app.Config.ThreeDServiceURL = "http://threed.internal:8003"

	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

	var resp struct {
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Checks["llm_backend"] != "static" {
		t.Fatalf("checks[llm_backend] = %q, want static", resp.Checks["llm_backend"])
	}
	if resp.Checks["threed_backend"] != "configured" {
		t.Fatalf("checks[threed_backend] = %q, want configured", resp.Checks["threed_backend"])
	}
}
