package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/storage"
)

type fakeRuns struct {
	mu         sync.Mutex
	runs       map[string]*domain.PipelineRun
	enqueued   []*domain.PipelineRun
	recorded   []*domain.PipelineRun
	enqueueErr error
	listErr    error
	listRuns   []domain.PipelineRun
	lastStatus domain.RunStatus
	lastLimit  int
	counts     map[domain.RunStatus]int
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[string]*domain.PipelineRun)}
}

func (f *fakeRuns) Enqueue(_ context.Context, run *domain.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.enqueueErr != nil {
		return f.enqueueErr
	}
	f.enqueued = append(f.enqueued, run)
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRuns) Record(_ context.Context, run *domain.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, run)
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRuns) Get(_ context.Context, id string) (*domain.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *run
	return &clone, nil
}

func (f *fakeRuns) List(_ context.Context, status domain.RunStatus, limit int) ([]domain.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastStatus = status
	f.lastLimit = limit
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.listRuns, nil
}

func (f *fakeRuns) ClaimQueued(_ context.Context) (*domain.PipelineRun, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeRuns) UpdateResult(_ context.Context, _ *domain.PipelineRun) error { return nil }

func (f *fakeRuns) MarkAborted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if run.Status != domain.RunStatusQueued {
		return domain.ErrRunNotQueued
	}
	run.Status = domain.RunStatusAborted
	return nil
}

func (f *fakeRuns) RequeueStale(_ context.Context, _ time.Duration) (int, error) { return 0, nil }

func (f *fakeRuns) CountByStatusSince(_ context.Context, _ time.Time) (map[domain.RunStatus]int, error) {
	if f.counts == nil {
		return map[domain.RunStatus]int{}, nil
	}
	return f.counts, nil
}

type fakeArtifacts struct {
	mu       sync.Mutex
	byRun    map[string][]domain.Artifact
	saved    [][]domain.Artifact
	byKind   []domain.ArtifactWithPrompt
	lastKind domain.ArtifactKind
	stats    map[domain.ArtifactKind]domain.ArtifactStats
	listErr  error
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{byRun: make(map[string][]domain.Artifact)}
}

func (f *fakeArtifacts) SaveAll(_ context.Context, runID string, artifacts []domain.Artifact) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, artifacts)
	f.byRun[runID] = append(f.byRun[runID], artifacts...)
	return nil
}

func (f *fakeArtifacts) ListByRun(_ context.Context, runID string) ([]domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.byRun[runID], nil
}

func (f *fakeArtifacts) ListByKind(_ context.Context, kind domain.ArtifactKind, _ int) ([]domain.ArtifactWithPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastKind = kind
	return f.byKind, nil
}

func (f *fakeArtifacts) Get(_ context.Context, _ string) (*domain.Artifact, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeArtifacts) CountSince(_ context.Context, _ time.Time) (map[domain.ArtifactKind]domain.ArtifactStats, error) {
	if f.stats == nil {
		return map[domain.ArtifactKind]domain.ArtifactStats{}, nil
	}
	return f.stats, nil
}

type fakeStore struct {
	mu        sync.Mutex
	objects   map[string]storage.Object
	healthErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string]storage.Object)}
}

func (f *fakeStore) Put(_ context.Context, obj storage.Object) (storage.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[obj.Key] = obj
	return storage.Reference{Key: obj.Key, URL: "http://store/" + obj.Key}, nil
}

func (f *fakeStore) Get(_ context.Context, key string) (storage.Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[key]
	if !ok {
		return storage.Object{}, domain.ErrNotFound
	}
	return obj, nil
}

func (f *fakeStore) Presign(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://store/" + key, nil
}

func (f *fakeStore) List(_ context.Context, _ string, _ int) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeStore) Healthy(_ context.Context) error { return f.healthErr }

type fakeRunner struct {
	lastReq domain.GenerationRequest
	run     func(ctx context.Context, req domain.GenerationRequest) *domain.PipelineRun
}

func (f *fakeRunner) Run(ctx context.Context, req domain.GenerationRequest) *domain.PipelineRun {
	f.lastReq = req
	return f.run(ctx, req)
}

type fakePinger struct{ err error }

func (f *fakePinger) Ping(_ context.Context) error { return f.err }

var (
	_ domain.RunRepository      = (*fakeRuns)(nil)
	_ domain.ArtifactRepository = (*fakeArtifacts)(nil)
	_ storage.Store             = (*fakeStore)(nil)
)

func newTestApp(t *testing.T) (*App, *fakeRuns, *fakeArtifacts, *fakeStore) {
	t.Helper()
	runs := newFakeRuns()
	artifacts := newFakeArtifacts()
	store := newFakeStore()
	app := &App{
		Config: &infra.Config{
			PromptProvider:  "service",
			LLMServiceURL:   "http://llm.internal:8001",
			ImageServiceURL: "http://image.internal:8002",
			PresignTTL:      time.Hour,
		},
		Logger:    zerolog.Nop(),
		DB:        &fakePinger{},
		Runs:      runs,
		Artifacts: artifacts,
		Store:     store,
	}
	return app, runs, artifacts, store
}

// requestWithRunID builds a request whose chi route context carries the
// run_id path parameter.
func requestWithRunID(method, target, runID string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("run_id", runID)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
