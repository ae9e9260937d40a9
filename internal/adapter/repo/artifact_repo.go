package repo

import (
	"context"
	"time"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/sqlinline"
)

// ArtifactRepositoryPG implements domain.ArtifactRepository on PostgreSQL.
type ArtifactRepositoryPG struct {
	db infra.SQLExecutor
}

// NewArtifactRepository creates an artifact repository backed by PostgreSQL.
func NewArtifactRepository(db infra.SQLExecutor) *ArtifactRepositoryPG {
	return &ArtifactRepositoryPG{db: db}
}

// SaveAll persists the artifacts of one run. Inserts are keyed by artifact ID
// so replays do not duplicate rows.
func (r *ArtifactRepositoryPG) SaveAll(ctx context.Context, runID string, artifacts []domain.Artifact) error {
	for _, artifact := range artifacts {
		a := artifact
		if a.RunID == "" {
			a.RunID = runID
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = time.Now().UTC()
		}
		if _, err := r.db.Exec(ctx, sqlinline.QInsertArtifact,
			a.ID,
			a.RunID,
			string(a.Kind),
			a.StorageKey,
			a.ContentType,
			a.Bytes,
			a.CreatedAt,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListByRun returns all artifacts belonging to the run, oldest first.
func (r *ArtifactRepositoryPG) ListByRun(ctx context.Context, runID string) ([]domain.Artifact, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListArtifactsByRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []domain.Artifact
	for rows.Next() {
		var (
			a    domain.Artifact
			kind string
		)
		if err := rows.Scan(&a.ID, &a.RunID, &kind, &a.StorageKey, &a.ContentType, &a.Bytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Kind = domain.ArtifactKind(kind)
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

// ListByKind returns recent artifacts across runs, newest first, optionally
// filtered by kind. Each row carries the originating prompt for browsing.
func (r *ArtifactRepositoryPG) ListByKind(ctx context.Context, kind domain.ArtifactKind, limit int) ([]domain.ArtifactWithPrompt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, sqlinline.QListArtifactsByKind, string(kind), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []domain.ArtifactWithPrompt
	for rows.Next() {
		var (
			a        domain.ArtifactWithPrompt
			rowsKind string
		)
		if err := rows.Scan(&a.ID, &a.RunID, &rowsKind, &a.StorageKey, &a.ContentType, &a.Bytes, &a.CreatedAt, &a.Prompt); err != nil {
			return nil, err
		}
		a.Kind = domain.ArtifactKind(rowsKind)
		artifacts = append(artifacts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return artifacts, nil
}

// Get fetches an artifact by its identifier.
func (r *ArtifactRepositoryPG) Get(ctx context.Context, id string) (*domain.Artifact, error) {
	var (
		a    domain.Artifact
		kind string
	)
	err := r.db.QueryRow(ctx, sqlinline.QGetArtifact, id).Scan(
		&a.ID, &a.RunID, &kind, &a.StorageKey, &a.ContentType, &a.Bytes, &a.CreatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	a.Kind = domain.ArtifactKind(kind)
	return &a, nil
}

// CountSince aggregates stored artifact volume per kind for dashboards.
func (r *ArtifactRepositoryPG) CountSince(ctx context.Context, since time.Time) (map[domain.ArtifactKind]domain.ArtifactStats, error) {
	rows, err := r.db.Query(ctx, sqlinline.QCountArtifactsSince, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[domain.ArtifactKind]domain.ArtifactStats)
	for rows.Next() {
		var (
			kind  string
			count int64
			bytes int64
		)
		if err := rows.Scan(&kind, &count, &bytes); err != nil {
			return nil, err
		}
		stats[domain.ArtifactKind(kind)] = domain.ArtifactStats{Count: int(count), Bytes: bytes}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return stats, nil
}

var _ domain.ArtifactRepository = (*ArtifactRepositoryPG)(nil)
