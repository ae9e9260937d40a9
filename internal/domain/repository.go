package domain

import (
	"context"
	"time"
)

// RunRepository defines persistence for pipeline runs.
type RunRepository interface {
	Enqueue(ctx context.Context, run *PipelineRun) error
	// Record inserts a run that was executed synchronously, terminal state
	// included, without passing through the queue.
	Record(ctx context.Context, run *PipelineRun) error
	Get(ctx context.Context, id string) (*PipelineRun, error)
	List(ctx context.Context, status RunStatus, limit int) ([]PipelineRun, error)
	// ClaimQueued atomically marks the oldest queued run as running and
	// returns it, or ErrNotFound when nothing is queued.
	ClaimQueued(ctx context.Context) (*PipelineRun, error)
	UpdateResult(ctx context.Context, run *PipelineRun) error
	// MarkAborted cancels a run that is still queued. Once claimed the run
	// is owned by a worker and the call returns ErrRunNotQueued.
	MarkAborted(ctx context.Context, id string) error
	// RequeueStale returns runs stuck in running longer than olderThan to
	// the queue and reports how many were recovered.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int, error)
	CountByStatusSince(ctx context.Context, since time.Time) (map[RunStatus]int, error)
}

// ArtifactRepository defines persistence for run artifacts.
type ArtifactRepository interface {
	SaveAll(ctx context.Context, runID string, artifacts []Artifact) error
	ListByRun(ctx context.Context, runID string) ([]Artifact, error)
	ListByKind(ctx context.Context, kind ArtifactKind, limit int) ([]ArtifactWithPrompt, error)
	Get(ctx context.Context, id string) (*Artifact, error)
	CountSince(ctx context.Context, since time.Time) (map[ArtifactKind]ArtifactStats, error)
}
