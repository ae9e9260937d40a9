// Package httpapi assembles the chi router for the public API.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"assetgen/internal/domain"
	"assetgen/internal/http/handlers"
	"assetgen/internal/middleware"
)

// NewRouter wires middleware and routes. The country lookup is optional;
// without it locale detection relies on headers alone.
func NewRouter(app *handlers.App, lookup middleware.CountryLookup) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(app.Logger),
		chimw.Recoverer,
	)
	if len(app.Config.CORSAllowedOrigins) > 0 {
		r.Use(middleware.CORS(app.Config.CORSAllowedOrigins))
	}
	r.Use(middleware.I18N(domain.DefaultLocale, lookup))

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)
	r.Get("/v1/metrics/dashboard-24h", app.Dashboard24h)

	r.Route("/v1/assets", func(r chi.Router) {
		// Only generation is rate limited; reads stay cheap.
		r.With(middleware.RateLimit(app.Config.RateLimitPerMin, time.Minute)).
			Post("/generate", app.GenerateAsset)
		r.Get("/", app.BrowseAssets)
	})

	r.Route("/v1/runs", func(r chi.Router) {
		r.Get("/", app.ListRuns)
		r.Get("/{run_id}", app.GetRun)
		r.Delete("/{run_id}", app.AbortRun)
		r.Get("/{run_id}/assets", app.RunAssets)
		r.Get("/{run_id}/assets/archive", app.RunAssetsArchive)
	})

	// The filesystem backend serves its objects straight from disk; the
	// object store hands out presigned URLs instead.
	if app.Config.StorageBackend == "filesystem" {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.Dir(app.Config.StoragePath)))
		r.Method(http.MethodGet, "/static/*", fileServer)
	}

	return r
}
