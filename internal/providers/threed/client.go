// Package threed clients the 3D model generation backend. The backend does
// its own upstream polling and answers with the finished model bytes.
package threed

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/providers/backend"
	"assetgen/internal/retry"
)

const (
	defaultTimeout  = 600 * time.Second
	maxPromptLength = 2000
	// maxImageBytes caps the rendered image handed to image-to-3D models
	// before base64 encoding.
	maxImageBytes = 24 << 20
	// maxModelBytes caps the returned model payload.
	maxModelBytes = 64 << 20
)

// Options configures the 3D generation backend client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      *retry.Policy
	Logger     *infra.Logger
	// ModelID overrides the backend's default upstream model.
	ModelID string
}

// GenerateRequest captures the inputs for one 3D generation call.
type GenerateRequest struct {
	Prompt string
	// Image carries the rendered source image inline; image-to-3D models
	// consume it as a base64 data URI.
	Image            []byte
	ImageContentType string
	ModelID          string
}

// ModelAsset is the normalized 3D generation result.
type ModelAsset struct {
	Data        []byte
	ContentType string
	// Attempts counts backend calls actually issued.
	Attempts int
}

// Generator produces a 3D model from a prompt and an optional source image.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*ModelAsset, error)
}

// Client calls the 3D generation backend over HTTP.
type Client struct {
	caller  *backend.Caller
	logger  *infra.Logger
	modelID string
}

type generatePayload struct {
	Prompt  string `json:"prompt"`
	Image   string `json:"image,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

// NewClient constructs a client with sane defaults.
func NewClient(opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	caller, err := backend.NewCaller(domain.StageKindModel, backend.Options{
		BaseURL:          opts.BaseURL,
		APIKey:           opts.APIKey,
		HTTPClient:       opts.HTTPClient,
		Timeout:          timeout,
		Retry:            opts.Retry,
		Logger:           opts.Logger,
		MaxResponseBytes: maxModelBytes,
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
	return &Client{caller: caller, logger: logger, modelID: strings.TrimSpace(opts.ModelID)}, nil
}

// Generate posts the prompt and source image to the backend and returns the
// finished model bytes.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*ModelAsset, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, domain.NewError(domain.KindValidation, "prompt is required").WithStage(domain.StageKindModel)
	}
	if len(prompt) > maxPromptLength {
		return nil, domain.NewErrorf(domain.KindValidation, "prompt exceeds %d characters", maxPromptLength).WithStage(domain.StageKindModel)
	}
	if len(req.Image) > maxImageBytes {
		return nil, domain.NewErrorf(domain.KindValidation, "source image exceeds %d bytes", maxImageBytes).WithStage(domain.StageKindModel)
	}
	payload := generatePayload{
		Prompt:  prompt,
		ModelID: c.modelID,
	}
	if req.ModelID != "" {
		payload.ModelID = strings.TrimSpace(req.ModelID)
	}
	if len(req.Image) > 0 {
		payload.Image = dataURI(req.ImageContentType, req.Image)
	}

	res, err := c.caller.PostJSON(ctx, "/generate-3d/", payload)
	if err != nil {
		return nil, err
	}
	if !modelContentType(res.ContentType) {
		return nil, domain.NewErrorf(domain.KindUnexpected, "backend returned %s, want model bytes", res.ContentType).WithStage(domain.StageKindModel)
	}
	if len(res.Body) == 0 {
		return nil, domain.NewError(domain.KindUnexpected, "backend returned empty model").WithStage(domain.StageKindModel)
	}
	c.logger.Debug().
		Int("bytes", len(res.Body)).
		Str("content_type", res.ContentType).
		Int("attempts", res.Attempts).
		Msg("threed: generated")
	return &ModelAsset{Data: res.Body, ContentType: res.ContentType, Attempts: res.Attempts}, nil
}

// dataURI encodes image bytes for inline transport.
func dataURI(contentType string, data []byte) string {
	ct := strings.TrimSpace(contentType)
	if ct == "" {
		ct = "image/png"
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func modelContentType(ct string) bool {
	switch {
	case strings.HasPrefix(ct, "model/"):
		return true
	case strings.HasPrefix(ct, "application/octet-stream"):
		return true
	}
	return false
}

var _ Generator = (*Client)(nil)
