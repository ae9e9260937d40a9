// Package prompt clients the prompt expansion backend. The pipeline calls
// an Expander exactly once per run; retries stay inside the client.
package prompt

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"assetgen/internal/domain"
)

// ExpandRequest carries the inputs for prompt expansion.
type ExpandRequest struct {
	Prompt string
	Style  string
	Locale string
}

// Expansion is the normalized result of one expansion call.
type Expansion struct {
	Spec *domain.PromptSpec
	// Attempts counts backend calls actually issued.
	Attempts int
}

// Expander turns a raw prompt into a structured generation spec.
type Expander interface {
	Expand(ctx context.Context, req ExpandRequest) (*Expansion, error)
}

// validate applies the shared fail-fast input checks.
func validate(req ExpandRequest) (ExpandRequest, error) {
	req.Prompt = strings.TrimSpace(req.Prompt)
	req.Style = strings.TrimSpace(req.Style)
	if req.Prompt == "" {
		return req, domain.NewError(domain.KindValidation, "prompt is required").WithStage(domain.StageKindPrompt)
	}
	if len(req.Prompt) > domain.MaxPromptLength {
		return req, domain.NewErrorf(domain.KindValidation, "prompt exceeds %d characters", domain.MaxPromptLength).WithStage(domain.StageKindPrompt)
	}
	return req, nil
}

// StaticExpander produces a deterministic expansion without any backend.
// Deployments select it explicitly via PROMPT_PROVIDER=static; it is never
// used as a silent fallback.
type StaticExpander struct{}

func NewStaticExpander() *StaticExpander {
	return &StaticExpander{}
}

func (s *StaticExpander) Expand(ctx context.Context, req ExpandRequest) (*Expansion, error) {
	req, err := validate(req)
	if err != nil {
		return nil, err
	}
	titler := cases.Title(language.Make(req.Locale))
	style := req.Style
	if style == "" {
		style = "realistic"
	}
	parts := []string{
		req.Prompt,
		style + " style",
		"highly detailed",
		"studio lighting",
		"clean background",
	}
	keywords := []string{titler.String(style), "Detailed", "Studio Lighting"}
	spec := &domain.PromptSpec{
		OriginalPrompt: req.Prompt,
		ExpandedPrompt: strings.Join(parts, ", "),
		StyleKeywords:  keywords,
		PrimaryColors:  []string{"neutral gray", "soft white"},
		Materials:      []string{"matte surface"},
		KeyFeatures:    []string{titler.String(req.Prompt)},
	}
	return &Expansion{Spec: spec}, nil
}

var _ Expander = (*StaticExpander)(nil)
