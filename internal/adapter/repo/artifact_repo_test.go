package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"assetgen/internal/domain"
	"assetgen/internal/sqlinline"
)

func TestSaveAllInsertsEachArtifact(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewArtifactRepository(exec)
	artifacts := []domain.Artifact{
		{ID: "a1", Kind: domain.ArtifactKindImage, StorageKey: "images/r1.png", ContentType: "image/png", Bytes: 10},
		{ID: "a2", RunID: "r1", Kind: domain.ArtifactKindMetadata, StorageKey: "metadata/r1.json", ContentType: "application/json", Bytes: 5},
	}

	if err := repo.SaveAll(context.Background(), "r1", artifacts); err != nil {
		t.Fatalf("SaveAll returned error: %v", err)
	}
	if len(exec.execCalls) != 2 {
		t.Fatalf("exec calls = %d, want 2", len(exec.execCalls))
	}
	for i, call := range exec.execCalls {
		if call.query != sqlinline.QInsertArtifact {
			t.Fatalf("call %d did not use the marked insert", i)
		}
		if call.args[1] != "r1" {
			t.Fatalf("call %d run id = %v, want r1", i, call.args[1])
		}
	}
	if exec.execCalls[0].args[2] != "image" {
		t.Fatalf("kind arg = %v, want image", exec.execCalls[0].args[2])
	}
}

func TestSaveAllEmpty(t *testing.T) {
	exec := &stubExecutor{}
	repo := NewArtifactRepository(exec)
	if err := repo.SaveAll(context.Background(), "r1", nil); err != nil {
		t.Fatalf("SaveAll returned error: %v", err)
	}
	if len(exec.execCalls) != 0 {
		t.Fatalf("exec calls = %d, want 0", len(exec.execCalls))
	}
}

func TestListByRunDecodes(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	exec := &stubExecutor{rows: &stubRows{rows: [][]any{
		{"a1", "r1", "image", "images/r1.png", "image/png", int64(10), created},
		{"a2", "r1", "metadata", "metadata/r1.json", "application/json", int64(5), created},
	}}}
	repo := NewArtifactRepository(exec)

	artifacts, err := repo.ListByRun(context.Background(), "r1")
	if err != nil {
		t.Fatalf("ListByRun returned error: %v", err)
	}
	if len(artifacts) != 2 {
		t.Fatalf("len(artifacts) = %d, want 2", len(artifacts))
	}
	if artifacts[0].Kind != domain.ArtifactKindImage || artifacts[0].Bytes != 10 {
		t.Fatalf("artifacts[0] = %+v", artifacts[0])
	}
	if exec.lastQuery.query != sqlinline.QListArtifactsByRun {
		t.Fatal("ListByRun did not use the marked select")
	}
}

func TestListByKindCarriesPrompt(t *testing.T) {
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	exec := &stubExecutor{rows: &stubRows{rows: [][]any{
		{"a1", "r1", "model", "models/r1.glb", "model/gltf-binary", int64(100), created, "a red cube"},
	}}}
	repo := NewArtifactRepository(exec)

	artifacts, err := repo.ListByKind(context.Background(), domain.ArtifactKindModel, 10)
	if err != nil {
		t.Fatalf("ListByKind returned error: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("len(artifacts) = %d, want 1", len(artifacts))
	}
	if artifacts[0].Prompt != "a red cube" {
		t.Fatalf("Prompt = %q", artifacts[0].Prompt)
	}
	if exec.lastQuery.args[0] != "model" || exec.lastQuery.args[1] != 10 {
		t.Fatalf("query args = %+v", exec.lastQuery.args)
	}
}

func TestGetArtifactNotFound(t *testing.T) {
	repo := NewArtifactRepository(&stubExecutor{})
	if _, err := repo.Get(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCountSinceAggregates(t *testing.T) {
	exec := &stubExecutor{rows: &stubRows{rows: [][]any{
		{"image", int64(4), int64(4096)},
		{"model", int64(1), int64(1 << 20)},
	}}}
	repo := NewArtifactRepository(exec)

	stats, err := repo.CountSince(context.Background(), time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("CountSince returned error: %v", err)
	}
	if stats[domain.ArtifactKindImage].Count != 4 {
		t.Fatalf("image count = %d, want 4", stats[domain.ArtifactKindImage].Count)
	}
	if stats[domain.ArtifactKindModel].Bytes != 1<<20 {
		t.Fatalf("model bytes = %d", stats[domain.ArtifactKindModel].Bytes)
	}
}
