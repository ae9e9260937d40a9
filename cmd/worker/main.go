package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"assetgen/internal/adapter/repo"
	"assetgen/internal/bootstrap"
	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/pipeline"
)

// staleCheckInterval is how often stuck runs are swept back to the queue.
const staleCheckInterval = time.Minute

type runWorker struct {
	runs      domain.RunRepository
	artifacts domain.ArtifactRepository
	pipeline  *pipeline.Orchestrator
	logger    infra.Logger
	poll      time.Duration
	slots     chan struct{}
	wg        sync.WaitGroup
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)

	store, err := bootstrap.NewStore(ctx, cfg, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}

	orchestrator, err := bootstrap.NewOrchestrator(ctx, cfg, runner, store, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure pipeline")
	}

	concurrency := cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	worker := &runWorker{
		runs:      repo.NewRunRepository(runner),
		artifacts: repo.NewArtifactRepository(runner),
		pipeline:  orchestrator,
		logger:    logger,
		poll:      cfg.WorkerPollInterval,
		slots:     make(chan struct{}, concurrency),
	}

	// Runs claimed by a worker that died would stay running forever
	// without the sweep.
	staleAfter := cfg.RunTimeout + 5*time.Minute
	worker.recoverStale(ctx, staleAfter)
	go worker.staleSweeper(ctx, staleAfter)

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

func (w *runWorker) Run(ctx context.Context) error {
	w.logger.Info().Int("concurrency", cap(w.slots)).Msg("worker: started")
	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			return ctx.Err()
		case w.slots <- struct{}{}:
		}

		run, err := w.runs.ClaimQueued(ctx)
		if err != nil {
			<-w.slots
			if !errors.Is(err, domain.ErrNotFound) && !errors.Is(err, context.Canceled) {
				w.logger.Error().Err(err).Msg("worker: claim failed")
			}
			if !w.idle(ctx) {
				w.wg.Wait()
				return ctx.Err()
			}
			continue
		}

		w.wg.Add(1)
		go func(claimed *domain.PipelineRun) {
			defer w.wg.Done()
			defer func() { <-w.slots }()
			w.execute(ctx, claimed)
		}(run)
	}
}

// idle waits one poll interval; false means the context ended first.
func (w *runWorker) idle(ctx context.Context) bool {
	timer := time.NewTimer(w.poll)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (w *runWorker) execute(ctx context.Context, claimed *domain.PipelineRun) {
	logger := w.logger.With().Str("run_id", claimed.ID).Logger()
	logger.Info().Str("output", string(claimed.Request.Output)).Msg("worker: picked run")

	req := claimed.Request
	req.RequestID = claimed.ID
	run := w.pipeline.Run(ctx, req)

	// The verdict must land even when shutdown cancelled the run context.
	saveCtx := context.WithoutCancel(ctx)
	if err := w.runs.UpdateResult(saveCtx, run); err != nil {
		logger.Error().Err(err).Msg("worker: save result failed")
	}
	if len(run.Artifacts) > 0 {
		if err := w.artifacts.SaveAll(saveCtx, run.ID, run.Artifacts); err != nil {
			logger.Error().Err(err).Msg("worker: save artifacts failed")
		}
	}
	logger.Info().Str("status", string(run.Status)).Msg("worker: run finished")
}

func (w *runWorker) staleSweeper(ctx context.Context, olderThan time.Duration) {
	ticker := time.NewTicker(staleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.recoverStale(ctx, olderThan)
		}
	}
}

func (w *runWorker) recoverStale(ctx context.Context, olderThan time.Duration) {
	count, err := w.runs.RequeueStale(ctx, olderThan)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			w.logger.Error().Err(err).Msg("worker: requeue stale failed")
		}
		return
	}
	if count > 0 {
		w.logger.Warn().Int("count", count).Msg("worker: requeued stale runs")
	}
}
