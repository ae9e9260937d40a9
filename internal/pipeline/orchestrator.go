// Package pipeline coordinates the generation stages of a run. The
// orchestrator owns ordering and verdicts only; retries and transport live
// inside the stage clients, so every stage executes at most once per run.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/providers/image"
	"assetgen/internal/providers/prompt"
	"assetgen/internal/providers/threed"
	"assetgen/internal/storage"
)

// Config wires the orchestrator. ThreeDGen may be nil when the 3D backend is
// not deployed; runs requesting a model then fail at the model stage.
type Config struct {
	Expander  prompt.Expander
	ImageGen  image.Generator
	ThreeDGen threed.Generator
	Store     storage.Store
	// Optional marks stages whose failure degrades the run to partial
	// instead of failing it.
	Optional   map[domain.StageKind]bool
	RunTimeout time.Duration
	Logger     *infra.Logger
}

// Orchestrator executes runs stage by stage.
type Orchestrator struct {
	expander   prompt.Expander
	imageGen   image.Generator
	threeDGen  threed.Generator
	store      storage.Store
	optional   map[domain.StageKind]bool
	runTimeout time.Duration
	logger     *infra.Logger
}

// New validates the wiring and builds an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Expander == nil {
		return nil, errors.New("pipeline: expander is required")
	}
	if cfg.ImageGen == nil {
		return nil, errors.New("pipeline: image generator is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("pipeline: store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Orchestrator{
		expander:   cfg.Expander,
		imageGen:   cfg.ImageGen,
		threeDGen:  cfg.ThreeDGen,
		store:      cfg.Store,
		optional:   cfg.Optional,
		runTimeout: cfg.RunTimeout,
		logger:     logger,
	}, nil
}

// Run executes one generation request end to end. It never returns an error;
// failures are encoded in the returned run. The run advances prompt, image,
// model when requested, then persist, and stops at the first required-stage
// failure with the remaining stages recorded as skipped.
func (o *Orchestrator) Run(ctx context.Context, req domain.GenerationRequest) *domain.PipelineRun {
	now := time.Now().UTC()
	req.Normalize("")
	run := &domain.PipelineRun{
		ID:        req.RequestID,
		Request:   req,
		Status:    domain.RunStatusRunning,
		CreatedAt: now,
		StartedAt: now,
		UpdatedAt: now,
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}

	logger := o.logger.With().Str("run_id", run.ID).Logger()
	logger.Info().Str("output", string(req.Output)).Msg("pipeline: run started")

	if err := req.Validate(); err != nil {
		var verr *domain.Error
		errors.As(err, &verr)
		return o.finish(run, &logger, domain.RunStatusFailed, verr)
	}

	if o.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.runTimeout)
		defer cancel()
	}

	wantModel := req.Output == domain.OutputModel

	// Prompt stage.
	idx := beginStage(run, domain.StageKindPrompt)
	expansion, err := o.expander.Expand(ctx, prompt.ExpandRequest{
		Prompt: req.Prompt,
		Style:  req.Style,
		Locale: req.Locale,
	})
	if err != nil {
		failure := stageFailure(domain.StageKindPrompt, err)
		failStage(run, idx, failure)
		remaining := []domain.StageKind{domain.StageKindImage}
		if wantModel {
			remaining = append(remaining, domain.StageKindModel)
		}
		return o.failFast(run, &logger, failure, append(remaining, domain.StageKindPersist)...)
	}
	run.Stages[idx].Spec = expansion.Spec
	completeStage(run, idx, expansion.Attempts)
	spec := expansion.Spec

	// Image stage. The expanded prompt is the only handoff from the prompt
	// stage; the orchestrator never rewrites it.
	idx = beginStage(run, domain.StageKindImage)
	imageAsset, err := o.imageGen.Generate(ctx, image.GenerateRequest{
		Prompt:         spec.ExpandedPrompt,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		failure := stageFailure(domain.StageKindImage, err)
		failStage(run, idx, failure)
		remaining := []domain.StageKind{}
		if wantModel {
			remaining = append(remaining, domain.StageKindModel)
		}
		return o.failFast(run, &logger, failure, append(remaining, domain.StageKindPersist)...)
	}
	completeStage(run, idx, imageAsset.Attempts)

	// Model stage, only when the caller asked for one.
	var modelAsset *threed.ModelAsset
	optionalFailed := false
	if wantModel {
		idx = beginStage(run, domain.StageKindModel)
		modelAsset, err = o.generateModel(ctx, spec, imageAsset)
		if err != nil {
			failure := stageFailure(domain.StageKindModel, err)
			failStage(run, idx, failure)
			if failure.Kind == domain.KindCanceled || !o.optional[domain.StageKindModel] {
				return o.failFast(run, &logger, failure, domain.StageKindPersist)
			}
			logger.Warn().Str("stage", string(domain.StageKindModel)).Str("kind", string(failure.Kind)).
				Msg("pipeline: optional stage failed, continuing")
			optionalFailed = true
			modelAsset = nil
		} else {
			completeStage(run, idx, modelAsset.Attempts)
		}
	}

	// Persist stage. Durable output is mandatory, so any put failure fails
	// the run even when everything generated cleanly.
	idx = beginStage(run, domain.StageKindPersist)
	artifacts, err := o.persist(ctx, run, spec, imageAsset, modelAsset)
	run.Artifacts = artifacts
	if err != nil {
		failure := stageFailure(domain.StageKindPersist, err)
		failStage(run, idx, failure)
		return o.failFast(run, &logger, failure)
	}
	completeStage(run, idx, 0)
	linkArtifacts(run)

	status := domain.RunStatusCompleted
	if optionalFailed {
		status = domain.RunStatusPartial
	}
	return o.finish(run, &logger, status, nil)
}

// generateModel guards the nil-backend case so a missing deployment surfaces
// as a stage failure instead of a panic.
func (o *Orchestrator) generateModel(ctx context.Context, spec *domain.PromptSpec, img *image.ImageAsset) (*threed.ModelAsset, error) {
	if o.threeDGen == nil {
		return nil, domain.NewError(domain.KindUnavailable, "3d generation is not configured").WithStage(domain.StageKindModel)
	}
	return o.threeDGen.Generate(ctx, threed.GenerateRequest{
		Prompt:           spec.ExpandedPrompt,
		Image:            img.Data,
		ImageContentType: img.ContentType,
	})
}

// persist writes the binary artifacts first and the manifest last, so a
// stored manifest never references an object that failed to upload. Artifacts
// persisted before a failure are still returned.
func (o *Orchestrator) persist(ctx context.Context, run *domain.PipelineRun, spec *domain.PromptSpec, img *image.ImageAsset, model *threed.ModelAsset) ([]domain.Artifact, error) {
	now := time.Now().UTC()
	var artifacts []domain.Artifact

	imageKey := "images/" + run.ID + extensionFor(img.ContentType)
	ref, err := o.store.Put(ctx, storage.Object{Key: imageKey, ContentType: img.ContentType, Data: img.Data})
	if err != nil {
		return artifacts, fmt.Errorf("persist image: %w", err)
	}
	artifacts = append(artifacts, domain.Artifact{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		Kind:        domain.ArtifactKindImage,
		StorageKey:  ref.Key,
		ContentType: img.ContentType,
		Bytes:       int64(len(img.Data)),
		CreatedAt:   now,
	})

	modelKey := ""
	if model != nil {
		ext := extensionFor(model.ContentType)
		if ext == ".bin" {
			// Backends often serve GLB payloads as octet-stream.
			ext = ".glb"
		}
		modelKey = "models/" + run.ID + ext
		ref, err = o.store.Put(ctx, storage.Object{Key: modelKey, ContentType: model.ContentType, Data: model.Data})
		if err != nil {
			return artifacts, fmt.Errorf("persist model: %w", err)
		}
		artifacts = append(artifacts, domain.Artifact{
			ID:          uuid.NewString(),
			RunID:       run.ID,
			Kind:        domain.ArtifactKindModel,
			StorageKey:  ref.Key,
			ContentType: model.ContentType,
			Bytes:       int64(len(model.Data)),
			CreatedAt:   now,
		})
	}

	manifest := domain.RunManifest{
		RunID:     run.ID,
		Prompt:    run.Request.Prompt,
		Style:     run.Request.Style,
		Output:    run.Request.Output,
		Locale:    run.Request.Locale,
		Spec:      spec,
		ImageKey:  imageKey,
		ModelKey:  modelKey,
		Stages:    stageSummary(run),
		CreatedAt: now,
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return artifacts, fmt.Errorf("encode manifest: %w", err)
	}
	metaKey := "metadata/" + run.ID + ".json"
	ref, err = o.store.Put(ctx, storage.Object{Key: metaKey, ContentType: "application/json", Data: data})
	if err != nil {
		return artifacts, fmt.Errorf("persist manifest: %w", err)
	}
	artifacts = append(artifacts, domain.Artifact{
		ID:          uuid.NewString(),
		RunID:       run.ID,
		Kind:        domain.ArtifactKindMetadata,
		StorageKey:  ref.Key,
		ContentType: "application/json",
		Bytes:       int64(len(data)),
		CreatedAt:   now,
	})
	return artifacts, nil
}

func (o *Orchestrator) failFast(run *domain.PipelineRun, logger *infra.Logger, failure *domain.Error, skipped ...domain.StageKind) *domain.PipelineRun {
	for _, kind := range skipped {
		run.Stages = append(run.Stages, domain.StageResult{Stage: kind, Status: domain.StageStatusSkipped})
	}
	status := domain.RunStatusFailed
	if failure.Kind == domain.KindCanceled {
		status = domain.RunStatusAborted
	}
	return o.finish(run, logger, status, failure)
}

func (o *Orchestrator) finish(run *domain.PipelineRun, logger *infra.Logger, status domain.RunStatus, failure *domain.Error) *domain.PipelineRun {
	now := time.Now().UTC()
	run.Status = status
	run.Err = failure
	run.FinishedAt = now
	run.UpdatedAt = now
	evt := logger.Info().Str("status", string(status)).Dur("elapsed", now.Sub(run.StartedAt))
	if failure != nil {
		evt = evt.Str("stage", string(failure.Stage)).Str("kind", string(failure.Kind))
	}
	evt.Msg("pipeline: run finished")
	return run
}

func beginStage(run *domain.PipelineRun, kind domain.StageKind) int {
	run.Stages = append(run.Stages, domain.StageResult{
		Stage:     kind,
		Status:    domain.StageStatusRunning,
		StartedAt: time.Now().UTC(),
	})
	return len(run.Stages) - 1
}

func completeStage(run *domain.PipelineRun, idx, attempts int) {
	st := &run.Stages[idx]
	st.Status = domain.StageStatusSucceeded
	st.Attempts = attempts
	st.FinishedAt = time.Now().UTC()
}

func failStage(run *domain.PipelineRun, idx int, failure *domain.Error) {
	st := &run.Stages[idx]
	st.Status = domain.StageStatusFailed
	st.Err = failure
	st.Attempts = failure.Attempts
	st.FinishedAt = time.Now().UTC()
}

// stageFailure normalizes any stage error into the shared descriptor.
func stageFailure(kind domain.StageKind, err error) *domain.Error {
	var derr *domain.Error
	if errors.As(err, &derr) {
		if derr.Stage == "" {
			return derr.WithStage(kind)
		}
		return derr
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.CanceledError(err).WithStage(kind)
	}
	return domain.WrapError(domain.KindUnexpected, "stage failed", err).WithStage(kind)
}

// stageSummary flattens recorded stage outcomes for the manifest. The persist
// stage is still in flight when the manifest is written, so it is excluded.
func stageSummary(run *domain.PipelineRun) map[domain.StageKind]domain.StageStatus {
	summary := make(map[domain.StageKind]domain.StageStatus, len(run.Stages))
	for _, st := range run.Stages {
		if st.Stage == domain.StageKindPersist {
			continue
		}
		summary[st.Stage] = st.Status
	}
	return summary
}

// linkArtifacts backfills artifact IDs onto the stages that produced them.
func linkArtifacts(run *domain.PipelineRun) {
	for i := range run.Stages {
		st := &run.Stages[i]
		switch st.Stage {
		case domain.StageKindImage:
			if a := run.ArtifactFor(domain.ArtifactKindImage); a != nil {
				st.ArtifactID = a.ID
			}
		case domain.StageKindModel:
			if a := run.ArtifactFor(domain.ArtifactKindModel); a != nil {
				st.ArtifactID = a.ID
			}
		case domain.StageKindPersist:
			if a := run.ArtifactFor(domain.ArtifactKindMetadata); a != nil {
				st.ArtifactID = a.ID
			}
		}
	}
}

// extensionFor picks the storage key extension for a content type.
func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "model/gltf-binary":
		return ".glb"
	case "model/gltf+json":
		return ".gltf"
	}
	return ".bin"
}
