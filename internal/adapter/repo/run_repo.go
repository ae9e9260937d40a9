package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/sqlinline"
)

// RunRepositoryPG implements domain.RunRepository on PostgreSQL. Stage
// results and error descriptors are stored as jsonb alongside the queryable
// run columns.
type RunRepositoryPG struct {
	db infra.SQLExecutor
}

// NewRunRepository creates a run repository backed by PostgreSQL.
func NewRunRepository(db infra.SQLExecutor) *RunRepositoryPG {
	return &RunRepositoryPG{db: db}
}

// Enqueue inserts a run in queued state.
func (r *RunRepositoryPG) Enqueue(ctx context.Context, run *domain.PipelineRun) error {
	_, err := r.db.Exec(ctx, sqlinline.QEnqueueRun,
		run.ID,
		run.Request.Prompt,
		run.Request.Style,
		run.Request.NegativePrompt,
		string(run.Request.Output),
		run.Request.Locale,
	)
	return err
}

// Record inserts a fully executed run. The synchronous API path uses it so
// sync runs never enter the queue, where a worker could claim them a second
// time.
func (r *RunRepositoryPG) Record(ctx context.Context, run *domain.PipelineRun) error {
	var stages []byte
	if len(run.Stages) > 0 {
		data, err := json.Marshal(run.Stages)
		if err != nil {
			return fmt.Errorf("encode stages: %w", err)
		}
		stages = data
	}
	var errJSON []byte
	if run.Err != nil {
		data, err := json.Marshal(run.Err)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}
		errJSON = data
	}
	var started, finished *time.Time
	if !run.StartedAt.IsZero() {
		started = &run.StartedAt
	}
	if !run.FinishedAt.IsZero() {
		finished = &run.FinishedAt
	}
	_, err := r.db.Exec(ctx, sqlinline.QRecordRun,
		run.ID,
		string(run.Status),
		run.Request.Prompt,
		run.Request.Style,
		run.Request.NegativePrompt,
		string(run.Request.Output),
		run.Request.Locale,
		stages,
		errJSON,
		started,
		finished,
	)
	return err
}

// Get fetches a run by its identifier.
func (r *RunRepositoryPG) Get(ctx context.Context, id string) (*domain.PipelineRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, sqlinline.QGetRun, id))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List returns recent runs, newest first, optionally filtered by status.
func (r *RunRepositoryPG) List(ctx context.Context, status domain.RunStatus, limit int) ([]domain.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, sqlinline.QListRuns, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// ClaimQueued atomically marks the oldest queued run as running and returns
// it. domain.ErrNotFound means the queue is empty.
func (r *RunRepositoryPG) ClaimQueued(ctx context.Context) (*domain.PipelineRun, error) {
	run, err := scanRun(r.db.QueryRow(ctx, sqlinline.QClaimQueuedRun))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// UpdateResult persists the outcome of an executed run.
func (r *RunRepositoryPG) UpdateResult(ctx context.Context, run *domain.PipelineRun) error {
	var stages []byte
	if len(run.Stages) > 0 {
		data, err := json.Marshal(run.Stages)
		if err != nil {
			return fmt.Errorf("encode stages: %w", err)
		}
		stages = data
	}
	var errJSON []byte
	if run.Err != nil {
		data, err := json.Marshal(run.Err)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}
		errJSON = data
	}
	var finished *time.Time
	if !run.FinishedAt.IsZero() {
		finished = &run.FinishedAt
	}
	tag, err := r.db.Exec(ctx, sqlinline.QUpdateRunResult,
		run.ID,
		string(run.Status),
		stages,
		errJSON,
		finished,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkAborted cancels a run that is still queued. Once a worker claimed it
// the run is no longer cancelable and ErrRunNotQueued is returned.
func (r *RunRepositoryPG) MarkAborted(ctx context.Context, id string) error {
	descriptor, err := json.Marshal(domain.NewError(domain.KindCanceled, "canceled by caller"))
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	tag, err := r.db.Exec(ctx, sqlinline.QMarkRunAborted, id, descriptor)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return domain.ErrRunNotQueued
	}
	return nil
}

// RequeueStale returns runs stuck in running state to the queue.
func (r *RunRepositoryPG) RequeueStale(ctx context.Context, olderThan time.Duration) (int, error) {
	secs := int(olderThan.Seconds())
	if secs < 1 {
		secs = 1
	}
	tag, err := r.db.Exec(ctx, sqlinline.QRequeueStaleRuns, secs)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CountByStatusSince aggregates run counts per status for dashboards.
func (r *RunRepositoryPG) CountByStatusSince(ctx context.Context, since time.Time) (map[domain.RunStatus]int, error) {
	rows, err := r.db.Query(ctx, sqlinline.QCountRunsByStatusSince, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RunStatus]int)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.RunStatus(status)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// scanRun decodes one pipeline_runs row.
func scanRun(row pgx.Row) (*domain.PipelineRun, error) {
	var (
		run      domain.PipelineRun
		status   string
		output   string
		stages   []byte
		errJSON  []byte
		started  *time.Time
		finished *time.Time
	)
	if err := row.Scan(
		&run.ID,
		&status,
		&run.Request.Prompt,
		&run.Request.Style,
		&run.Request.NegativePrompt,
		&output,
		&run.Request.Locale,
		&stages,
		&errJSON,
		&run.CreatedAt,
		&started,
		&finished,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	run.Request.Output = domain.OutputKind(output)
	run.Request.RequestID = run.ID
	if len(stages) > 0 {
		if err := json.Unmarshal(stages, &run.Stages); err != nil {
			return nil, fmt.Errorf("decode stages: %w", err)
		}
	}
	if len(errJSON) > 0 {
		var derr domain.Error
		if err := json.Unmarshal(errJSON, &derr); err != nil {
			return nil, fmt.Errorf("decode run error: %w", err)
		}
		run.Err = &derr
	}
	if started != nil {
		run.StartedAt = *started
	}
	if finished != nil {
		run.FinishedAt = *finished
	}
	return &run, nil
}

var _ domain.RunRepository = (*RunRepositoryPG)(nil)
