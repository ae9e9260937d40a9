package domain

import "strings"

// OutputKind selects the terminal artifact of a run.
type OutputKind string

const (
	OutputImage OutputKind = "image"
	OutputModel OutputKind = "model"
)

const (
	// MaxPromptLength caps caller prompts before any backend call.
	MaxPromptLength = 4000
	// DefaultLocale is applied when no locale preference is detected.
	DefaultLocale = "en"
)

var allowedOutputs = map[OutputKind]struct{}{
	OutputImage: {},
	OutputModel: {},
}

// GenerationRequest carries one caller order through the pipeline. It is
// immutable once validated; stages read from it and never write back.
type GenerationRequest struct {
	Prompt         string     `json:"prompt"`
	Style          string     `json:"style,omitempty"`
	NegativePrompt string     `json:"negative_prompt,omitempty"`
	Output         OutputKind `json:"output"`
	Locale         string     `json:"locale,omitempty"`
	RequestID      string     `json:"request_id,omitempty"`
}

// Normalize fills server defaults before validation.
func (r *GenerationRequest) Normalize(preferredLocale string) {
	if r == nil {
		return
	}
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Style = strings.TrimSpace(r.Style)
	r.NegativePrompt = strings.TrimSpace(r.NegativePrompt)
	if r.Output == "" {
		r.Output = OutputImage
	}
	if r.Locale == "" {
		if preferredLocale != "" {
			r.Locale = preferredLocale
		} else {
			r.Locale = DefaultLocale
		}
	}
}

// Validate rejects malformed requests before any network call is made.
func (r GenerationRequest) Validate() error {
	if r.Prompt == "" {
		return NewError(KindValidation, "prompt is required")
	}
	if len(r.Prompt) > MaxPromptLength {
		return NewErrorf(KindValidation, "prompt exceeds %d characters", MaxPromptLength)
	}
	if _, ok := allowedOutputs[r.Output]; !ok {
		return NewErrorf(KindValidation, "output must be one of %s, %s", OutputImage, OutputModel)
	}
	return nil
}
