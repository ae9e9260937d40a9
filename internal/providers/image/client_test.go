package image

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"assetgen/internal/domain"
	"assetgen/internal/retry"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func fastPolicy() *retry.Policy {
	return &retry.Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    2 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestClient(t *testing.T, rt roundTripFunc, opts Options) *Client {
	t.Helper()
	opts.BaseURL = "http://image.internal:8002"
	opts.HTTPClient = &http.Client{Transport: rt}
	if opts.Retry == nil {
		opts.Retry = fastPolicy()
	}
	client, err := NewClient(opts)
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestGenerateValidationSkipsNetwork(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return nil, nil
	}, Options{})

	for _, prompt := range []string{"", "   ", strings.Repeat("p", maxPromptLength+1)} {
		_, err := client.Generate(context.Background(), GenerateRequest{Prompt: prompt})
		if kind := domain.KindOf(err); kind != domain.KindValidation {
			t.Fatalf("KindOf = %q, want validation", kind)
		}
	}
	if calls != 0 {
		t.Fatalf("network calls = %d, want 0", calls)
	}
}

func TestGenerateSuccess(t *testing.T) {
	data := pngBytes(t, 3, 2)
	var payload generatePayload
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/generate-image/" {
			t.Fatalf("path = %q, want /generate-image/", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"image/png"}},
			Body:       io.NopCloser(bytes.NewReader(data)),
		}, nil
	}, Options{})

	asset, err := client.Generate(context.Background(), GenerateRequest{Prompt: "a red cube"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if !bytes.Equal(asset.Data, data) {
		t.Fatal("asset data does not match backend bytes")
	}
	if asset.ContentType != "image/png" {
		t.Fatalf("ContentType = %q, want image/png", asset.ContentType)
	}
	if asset.Width != 3 || asset.Height != 2 {
		t.Fatalf("dimensions = %dx%d, want 3x2", asset.Width, asset.Height)
	}
	if asset.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", asset.Attempts)
	}
	if payload.NumInferenceSteps != defaultSteps {
		t.Fatalf("num_inference_steps = %d, want %d", payload.NumInferenceSteps, defaultSteps)
	}
	if payload.GuidanceScale != defaultGuidanceScale {
		t.Fatalf("guidance_scale = %v, want %v", payload.GuidanceScale, defaultGuidanceScale)
	}
}

func TestGeneratePerRequestOverrides(t *testing.T) {
	var payload generatePayload
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"image/png"}},
			Body:       io.NopCloser(bytes.NewReader(pngBytes(t, 1, 1))),
		}, nil
	}, Options{})

	_, err := client.Generate(context.Background(), GenerateRequest{
		Prompt:         "a blue cube",
		NegativePrompt: "blurry",
		Steps:          30,
		GuidanceScale:  8.5,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if payload.NumInferenceSteps != 30 || payload.GuidanceScale != 8.5 {
		t.Fatalf("overrides not applied: steps=%d guidance=%v", payload.NumInferenceSteps, payload.GuidanceScale)
	}
	if payload.NegativePrompt != "blurry" {
		t.Fatalf("negative_prompt = %q, want blurry", payload.NegativePrompt)
	}
}

func TestGenerateRejectsJSONBody(t *testing.T) {
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"status":"ok"}`)),
		}, nil
	}, Options{})

	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "a cube"})
	if kind := domain.KindOf(err); kind != domain.KindUnexpected {
		t.Fatalf("KindOf = %q, want unexpected", kind)
	}
}

func TestGenerateRetriesServiceWarmup(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return &http.Response{
				StatusCode: http.StatusServiceUnavailable,
				Header:     http.Header{"Content-Type": []string{"application/json"}},
				Body:       io.NopCloser(strings.NewReader(`{"detail":"Image generation model not available."}`)),
			}, nil
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"image/png"}},
			Body:       io.NopCloser(bytes.NewReader(pngBytes(t, 1, 1))),
		}, nil
	}, Options{})

	asset, err := client.Generate(context.Background(), GenerateRequest{Prompt: "a cube"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if asset.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", asset.Attempts)
	}
}

func TestGenerateBadRequestNotRetried(t *testing.T) {
	calls := 0
	client := newTestClient(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return &http.Response{
			StatusCode: http.StatusBadRequest,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"detail":"Prompt cannot be empty."}`)),
		}, nil
	}, Options{})

	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "a cube"})
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if kind := domain.KindOf(err); kind != domain.KindValidation {
		t.Fatalf("KindOf = %q, want validation", kind)
	}
}
