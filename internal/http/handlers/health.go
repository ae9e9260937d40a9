package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 5 * time.Second

// Health reports liveness plus the state of each wired component. Backend
// URLs are configuration checks only; no upstream call is made here.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{}
	healthy := true

	if a.DB != nil {
		if err := a.DB.Ping(ctx); err != nil {
			checks["database"] = "unreachable"
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if a.Store != nil {
		if err := a.Store.Healthy(ctx); err != nil {
			checks["storage"] = "unreachable"
			healthy = false
		} else {
			checks["storage"] = "ok"
		}
	}
	if a.Config != nil {
		if a.Config.PromptProvider == "static" {
			checks["llm_backend"] = "static"
		} else {
			checks["llm_backend"] = configuredLabel(a.Config.LLMServiceURL)
		}
		checks["image_backend"] = configuredLabel(a.Config.ImageServiceURL)
		if a.Config.ThreeDEnabled() {
			checks["threed_backend"] = "configured"
		} else {
			checks["threed_backend"] = "disabled"
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	a.json(w, code, map[string]any{"status": status, "checks": checks})
}

func configuredLabel(url string) string {
	if url == "" {
		return "missing"
	}
	return "configured"
}
