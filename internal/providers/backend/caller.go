// Package backend carries the HTTP plumbing shared by the pipeline backend
// clients: request construction, bounded retries of transient failures, and
// mapping of transport and status errors onto the domain taxonomy.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/retry"
)

// DefaultMaxResponseBytes caps backend response bodies.
const DefaultMaxResponseBytes = 32 << 20

const defaultTimeout = 30 * time.Second

// Options configures a backend service caller.
type Options struct {
	BaseURL          string
	APIKey           string
	HTTPClient       *http.Client
	Timeout          time.Duration
	Retry            *retry.Policy
	Logger           *infra.Logger
	MaxResponseBytes int64
}

// Caller issues JSON requests to one backend service and normalizes
// failures. Retrying happens here only; callers see exactly one logical
// attempt per request.
type Caller struct {
	stage   domain.StageKind
	baseURL string
	apiKey  string
	client  *http.Client
	retry   *retry.Policy
	logger  *infra.Logger
	maxBody int64
}

// Result is a successful backend response.
type Result struct {
	Body        []byte
	ContentType string
	Attempts    int
}

// NewCaller constructs a caller with sane defaults.
func NewCaller(stage domain.StageKind, opts Options) (*Caller, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", stage)
	}
	client := opts.HTTPClient
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	pol := opts.Retry
	if pol == nil {
		pol = retry.DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	maxBody := opts.MaxResponseBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxResponseBytes
	}
	return &Caller{
		stage:   stage,
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(opts.APIKey),
		client:  client,
		retry:   pol,
		logger:  logger,
		maxBody: maxBody,
	}, nil
}

// PostJSON posts payload to path under the caller's base URL. The returned
// Result carries the attempts issued; errors are *domain.Error attributed
// to the caller's stage, with retries already exhausted.
func (c *Caller) PostJSON(ctx context.Context, path string, payload any) (Result, error) {
	res := Result{}
	body, err := json.Marshal(payload)
	if err != nil {
		return res, domain.WrapError(domain.KindUnexpected, "encode request", err).WithStage(c.stage)
	}
	endpoint := c.baseURL + path

	attempt := func() error {
		res.Attempts++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return domain.WrapError(domain.KindUnexpected, "build request", err).WithStage(c.stage)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.CanceledError(ctxErr).WithStage(c.stage)
			}
			return retry.Transient(domain.WrapError(domain.KindUnavailable, "backend unreachable", err).WithStage(c.stage))
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.CanceledError(ctxErr).WithStage(c.stage)
			}
			return retry.Transient(domain.WrapError(domain.KindUnavailable, "read response", err).WithStage(c.stage))
		}
		if int64(len(raw)) > c.maxBody {
			return domain.NewErrorf(domain.KindUnexpected, "response exceeds %d bytes", c.maxBody).WithStage(c.stage)
		}
		if resp.StatusCode >= 300 {
			return c.statusError(resp.StatusCode, raw)
		}
		res.Body = raw
		res.ContentType = resp.Header.Get("Content-Type")
		return nil
	}

	if err := c.retry.Do(ctx, attempt); err != nil {
		return res, c.normalizeFailure(err, res.Attempts)
	}
	return res, nil
}

// statusError maps a non-2xx response onto the taxonomy. 429 and 5xx are
// transient; credentials failures are fatal; other 4xx are never retried.
func (c *Caller) statusError(status int, raw []byte) error {
	detail := parseDetail(raw)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.NewErrorf(domain.KindUnauthorized, "backend rejected credentials: %s", detail).WithStage(c.stage)
	case status == http.StatusTooManyRequests || status >= 500:
		return retry.Transient(domain.NewErrorf(domain.KindUnavailable, "backend status %d: %s", status, detail).WithStage(c.stage))
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return domain.NewErrorf(domain.KindValidation, "backend rejected request: %s", detail).WithStage(c.stage)
	default:
		return domain.NewErrorf(domain.KindUnexpected, "backend status %d: %s", status, detail).WithStage(c.stage)
	}
}

func (c *Caller) normalizeFailure(err error, attempts int) *domain.Error {
	var de *domain.Error
	if errors.As(err, &de) {
		out := *de
		out.Attempts = attempts
		if out.Stage == "" {
			out.Stage = c.stage
		}
		c.logger.Debug().
			Str("stage", string(out.Stage)).
			Str("kind", string(out.Kind)).
			Int("attempts", attempts).
			Msg("backend call failed")
		return &out
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		canceled := domain.CanceledError(err).WithStage(c.stage)
		canceled.Attempts = attempts
		return canceled
	}
	out := domain.WrapError(domain.KindUnexpected, "backend call failed", err).WithStage(c.stage)
	out.Attempts = attempts
	return out
}

// detailEnvelope is the FastAPI-style error body used by all backends.
type detailEnvelope struct {
	Detail json.RawMessage `json:"detail"`
}

const maxDetailLen = 300

// parseDetail extracts a human-readable message from an error body.
func parseDetail(raw []byte) string {
	var envelope detailEnvelope
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Detail) > 0 {
		var s string
		if err := json.Unmarshal(envelope.Detail, &s); err == nil {
			return truncateDetail(s)
		}
		return truncateDetail(string(envelope.Detail))
	}
	return truncateDetail(strings.TrimSpace(string(raw)))
}

func truncateDetail(s string) string {
	if s == "" {
		return "no detail"
	}
	if len(s) > maxDetailLen {
		return s[:maxDetailLen] + "..."
	}
	return s
}
