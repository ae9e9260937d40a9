// Package image clients the text-to-image backend.
package image

import (
	"bytes"
	"context"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/providers/backend"
	"assetgen/internal/retry"
)

const (
	defaultTimeout = 120 * time.Second
	// Defaults match the deployed backend's fast-inference profile.
	defaultSteps         = 2
	defaultGuidanceScale = 7.0

	maxPromptLength = 2000
)

// Options configures the text-to-image backend client.
type Options struct {
	BaseURL       string
	APIKey        string
	HTTPClient    *http.Client
	Timeout       time.Duration
	Retry         *retry.Policy
	Logger        *infra.Logger
	Steps         int
	GuidanceScale float64
}

// GenerateRequest captures the inputs for one rendering call.
type GenerateRequest struct {
	Prompt         string
	NegativePrompt string
	Steps          int
	GuidanceScale  float64
}

// ImageAsset is the normalized rendering result.
type ImageAsset struct {
	Data        []byte
	ContentType string
	Width       int
	Height      int
	// Attempts counts backend calls actually issued.
	Attempts int
}

// Generator renders an image from an expanded prompt.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*ImageAsset, error)
}

// Client calls the text-to-image backend over HTTP.
type Client struct {
	caller        *backend.Caller
	logger        *infra.Logger
	steps         int
	guidanceScale float64
}

type generatePayload struct {
	Prompt            string  `json:"prompt"`
	NegativePrompt    string  `json:"negative_prompt,omitempty"`
	NumInferenceSteps int     `json:"num_inference_steps"`
	GuidanceScale     float64 `json:"guidance_scale"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	caller, err := backend.NewCaller(domain.StageKindImage, backend.Options{
		BaseURL:    opts.BaseURL,
		APIKey:     opts.APIKey,
		HTTPClient: opts.HTTPClient,
		Timeout:    timeout,
		Retry:      opts.Retry,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	steps := opts.Steps
	if steps <= 0 {
		steps = defaultSteps
	}
	guidance := opts.GuidanceScale
	if guidance <= 0 {
		guidance = defaultGuidanceScale
	}
	return &Client{caller: caller, logger: logger, steps: steps, guidanceScale: guidance}, nil
}

// Generate posts the prompt to the backend and returns the rendered image.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*ImageAsset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.NewError(domain.KindValidation, "prompt is required").WithStage(domain.StageKindImage)
	}
	if len(prompt) > maxPromptLength {
		return nil, domain.NewErrorf(domain.KindValidation, "prompt exceeds %d characters", maxPromptLength).WithStage(domain.StageKindImage)
	}
	payload := generatePayload{
		Prompt:            prompt,
		NegativePrompt:    strings.TrimSpace(req.NegativePrompt),
		NumInferenceSteps: c.steps,
		GuidanceScale:     c.guidanceScale,
	}
	if req.Steps > 0 {
		payload.NumInferenceSteps = req.Steps
	}
	if req.GuidanceScale > 0 {
		payload.GuidanceScale = req.GuidanceScale
	}

	res, err := c.caller.PostJSON(ctx, "/generate-image/", payload)
	if err != nil {
		return nil, err
	}
	contentType := res.ContentType
	if !strings.HasPrefix(contentType, "image/") {
		return nil, domain.NewErrorf(domain.KindUnexpected, "backend returned %s, want image bytes", contentType).WithStage(domain.StageKindImage)
	}
	if len(res.Body) == 0 {
		return nil, domain.NewError(domain.KindUnexpected, "backend returned empty image").WithStage(domain.StageKindImage)
	}

	asset := &ImageAsset{
		Data:        res.Body,
		ContentType: contentType,
		Attempts:    res.Attempts,
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(res.Body)); err == nil {
		asset.Width, asset.Height = cfg.Width, cfg.Height
	}
	c.logger.Debug().
		Int("bytes", len(asset.Data)).
		Int("width", asset.Width).
		Int("height", asset.Height).
		Int("attempts", asset.Attempts).
		Msg("image: generated")
	return asset, nil
}

var _ Generator = (*Client)(nil)
