package domain

import "time"

// ArtifactKind enumerates artifact types persisted per run.
type ArtifactKind string

const (
	ArtifactKindMetadata ArtifactKind = "metadata"
	ArtifactKindImage    ArtifactKind = "image"
	ArtifactKindModel    ArtifactKind = "model"
)

// Artifact represents a stored object produced by a run. Binary payloads
// live in memory only between backend response and storage put; once the
// put succeeds the artifact references the object by key alone.
type Artifact struct {
	ID          string
	RunID       string
	Kind        ArtifactKind
	StorageKey  string
	ContentType string
	Bytes       int64
	// URL is populated at render time (presigned or base-URL join), never stored.
	URL       string
	CreatedAt time.Time
}

// ArtifactWithPrompt pairs an artifact with its originating prompt for
// cross-run browse listings.
type ArtifactWithPrompt struct {
	Artifact
	Prompt string
}

// ArtifactStats aggregates stored volume per artifact kind.
type ArtifactStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}
