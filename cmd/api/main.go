package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"assetgen/internal/adapter/repo"
	"assetgen/internal/bootstrap"
	"assetgen/internal/http/handlers"
	"assetgen/internal/http/httpapi"
	"assetgen/internal/infra"
	"assetgen/internal/infra/geoip"
	"assetgen/internal/middleware"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	store, err := bootstrap.NewStore(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	orchestrator, err := bootstrap.NewOrchestrator(ctx, cfg, runner, store, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure pipeline")
	}

	app := &handlers.App{
		Config:    cfg,
		Logger:    logger,
		DB:        pool,
		Runs:      repo.NewRunRepository(runner),
		Artifacts: repo.NewArtifactRepository(runner),
		Store:     store,
		Pipeline:  orchestrator,
	}

	lookup, closeLookup := countryLookup(cfg, logger)
	defer closeLookup()

	router := httpapi.NewRouter(app, lookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

// countryLookup opens the GeoIP database when configured. A missing or
// unreadable database disables IP-based locale detection without failing
// startup.
func countryLookup(cfg *infra.Config, logger infra.Logger) (middleware.CountryLookup, func()) {
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable")
		return nil, func() {}
	}
	if resolver == nil {
		return nil, func() {}
	}
	closeFn := func() {}
	if closer, ok := resolver.(interface{ Close() error }); ok {
		closeFn = func() { _ = closer.Close() }
	}
	return resolver.CountryCode, closeFn
}
