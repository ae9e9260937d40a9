package prompt

import (
	"context"
	"encoding/json"
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

const defaultTimeout = 15 * time.Second

// Options configures the LLM backend client.
type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Timeout    time.Duration
	Retry      *retry.Policy
	Logger     *infra.Logger
}

// ServiceClient calls the prompt expansion backend over HTTP.
type ServiceClient struct {
	caller *backend.Caller
	logger *infra.Logger
}

type expandPayload struct {
	Prompt string `json:"prompt"`
	Style  string `json:"style,omitempty"`
	Locale string `json:"locale,omitempty"`
}

// NewServiceClient constructs a client with sane defaults.
func NewServiceClient(opts Options) (*ServiceClient, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	caller, err := backend.NewCaller(domain.StageKindPrompt, backend.Options{
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
	return &ServiceClient{caller: caller, logger: logger}, nil
}

// Expand posts the prompt to the backend and decodes the structured spec.
func (c *ServiceClient) Expand(ctx context.Context, req ExpandRequest) (*Expansion, error) {
	req, err := validate(req)
	if err != nil {
		return nil, err
	}
	payload := expandPayload{
		Prompt: req.Prompt,
		Style:  req.Style,
		Locale: req.Locale,
	}
	res, err := c.caller.PostJSON(ctx, "/expand-prompt/", payload)
	if err != nil {
		return nil, err
	}
	if ct := res.ContentType; ct != "" && !strings.Contains(ct, "application/json") {
		return nil, domain.NewErrorf(domain.KindUnexpected, "backend returned %s, want application/json", ct).WithStage(domain.StageKindPrompt)
	}
	var spec domain.PromptSpec
	if err := json.Unmarshal(res.Body, &spec); err != nil {
		return nil, domain.WrapError(domain.KindUnexpected, "decode expansion", err).WithStage(domain.StageKindPrompt)
	}
	if strings.TrimSpace(spec.ExpandedPrompt) == "" {
		return nil, domain.NewError(domain.KindUnexpected, "backend returned no expanded prompt").WithStage(domain.StageKindPrompt)
	}
	if spec.OriginalPrompt == "" {
		spec.OriginalPrompt = req.Prompt
	}
	c.logger.Debug().
		Str("locale", req.Locale).
		Int("attempts", res.Attempts).
		Int("keywords", len(spec.StyleKeywords)).
		Msg("prompt: expanded")
	return &Expansion{Spec: &spec, Attempts: res.Attempts}, nil
}

var _ Expander = (*ServiceClient)(nil)
