package domain

import "time"

// StageKind enumerates pipeline stages in execution order.
type StageKind string

const (
	StageKindPrompt  StageKind = "prompt"
	StageKindImage   StageKind = "image"
	StageKindModel   StageKind = "model"
	StageKindPersist StageKind = "persist"
)

// StageStatus enumerates stage lifecycle states.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusRunning   StageStatus = "running"
	StageStatusSucceeded StageStatus = "succeeded"
	StageStatusFailed    StageStatus = "failed"
	StageStatusSkipped   StageStatus = "skipped"
)

// RunStatus enumerates run lifecycle states. queued and running are the
// non-terminal states of the asynchronous path; the rest are terminal.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
	RunStatusAborted   RunStatus = "aborted"
)

// StageResult records one stage execution inside a run. Results append in
// execution order; a stage appears at most once per run.
type StageResult struct {
	Stage      StageKind   `json:"stage"`
	Status     StageStatus `json:"status"`
	Attempts   int         `json:"attempts,omitempty"`
	Spec       *PromptSpec `json:"spec,omitempty"`
	ArtifactID string      `json:"artifact_id,omitempty"`
	Err        *Error      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
}

// PipelineRun is the complete account of one generation request execution.
type PipelineRun struct {
	ID         string
	Request    GenerationRequest
	Status     RunStatus
	Stages     []StageResult
	Artifacts  []Artifact
	Err        *Error
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	UpdatedAt  time.Time
}

// Terminal reports whether the run reached a final state.
func (r *PipelineRun) Terminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusPartial, RunStatusFailed, RunStatusAborted:
		return true
	}
	return false
}

// StageResultFor returns the recorded result for a stage, if present.
func (r *PipelineRun) StageResultFor(kind StageKind) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Stage == kind {
			return &r.Stages[i]
		}
	}
	return nil
}

// ArtifactFor returns the first artifact of the given kind, if present.
func (r *PipelineRun) ArtifactFor(kind ArtifactKind) *Artifact {
	for i := range r.Artifacts {
		if r.Artifacts[i].Kind == kind {
			return &r.Artifacts[i]
		}
	}
	return nil
}
