package domain

import "time"

// PromptSpec is the structured expansion returned by the LLM backend.
// Field names follow the backend wire contract.
type PromptSpec struct {
	OriginalPrompt string   `json:"original_prompt"`
	ExpandedPrompt string   `json:"expanded_prompt"`
	StyleKeywords  []string `json:"style_keywords"`
	PrimaryColors  []string `json:"primary_colors"`
	Materials      []string `json:"materials"`
	KeyFeatures    []string `json:"key_features"`
}

// RunManifest is the metadata document persisted alongside a run's binary
// artifacts so stored assets stay explainable without the database.
type RunManifest struct {
	RunID     string                    `json:"run_id"`
	Prompt    string                    `json:"prompt"`
	Style     string                    `json:"style,omitempty"`
	Output    OutputKind                `json:"output"`
	Locale    string                    `json:"locale,omitempty"`
	Spec      *PromptSpec               `json:"spec,omitempty"`
	ImageKey  string                    `json:"image_key,omitempty"`
	ModelKey  string                    `json:"model_key,omitempty"`
	Stages    map[StageKind]StageStatus `json:"stages"`
	CreatedAt time.Time                 `json:"created_at"`
}
