package infra

import (
	"strings"
	"testing"
	"time"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("LLM_SERVICE_URL", "http://llm.internal:8001")
	t.Setenv("TEXT_TO_IMAGE_SERVICE_URL", "http://image.internal:8002")
	t.Setenv("THREED_GENERATION_SERVICE_URL", "")
	t.Setenv("PROMPT_PROVIDER", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("OPTIONAL_STAGES", "")
	t.Setenv("RUN_TIMEOUT_SECONDS", "")
	t.Setenv("PORT", "")
	t.Setenv("STORAGE_BASE_URL", "")
}

func TestLoadConfigDefaults(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PromptProvider != "service" {
		t.Fatalf("PromptProvider = %q, want service", cfg.PromptProvider)
	}
	if cfg.StorageBackend != "filesystem" {
		t.Fatalf("StorageBackend = %q, want filesystem", cfg.StorageBackend)
	}
	if cfg.LLMTimeout != 15*time.Second || cfg.ImageTimeout != 120*time.Second {
		t.Fatalf("stage timeouts = %v/%v, want 15s/120s", cfg.LLMTimeout, cfg.ImageTimeout)
	}
	if cfg.PresignTTL != time.Hour {
		t.Fatalf("PresignTTL = %v, want 1h", cfg.PresignTTL)
	}
	if cfg.ThreeDEnabled() {
		t.Fatal("ThreeDEnabled() = true without THREED_GENERATION_SERVICE_URL")
	}
}

func TestLoadConfigDerivedRunTimeoutWithoutThreeD(t *testing.T) {
	setBaseEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := 15*time.Second + 120*time.Second + 60*time.Second
	if cfg.RunTimeout != want {
		t.Fatalf("RunTimeout = %v, want %v", cfg.RunTimeout, want)
	}
}

func TestLoadConfigDerivedRunTimeoutWithThreeD(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("THREED_GENERATION_SERVICE_URL", "http://threed.internal:8003")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	want := 15*time.Second + 120*time.Second + 600*time.Second + 60*time.Second
	if cfg.RunTimeout != want {
		t.Fatalf("RunTimeout = %v, want %v", cfg.RunTimeout, want)
	}
}

func TestLoadConfigExplicitRunTimeoutWins(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("RUN_TIMEOUT_SECONDS", "90")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RunTimeout != 90*time.Second {
		t.Fatalf("RunTimeout = %v, want 90s", cfg.RunTimeout)
	}
}

func TestLoadConfigDefaultStorageBaseURLInheritsPort(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PORT", "1919")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	expected := "http://localhost:1919/static"
	if cfg.StorageBaseURL != expected {
		t.Fatalf("StorageBaseURL mismatch: got %q want %q", cfg.StorageBaseURL, expected)
	}
}

func TestLoadConfigRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(t *testing.T)
		want   string
	}{
		{
			name:   "missing database url",
			mutate: func(t *testing.T) { t.Setenv("DATABASE_URL", "") },
			want:   "DATABASE_URL",
		},
		{
			name:   "missing image service url",
			mutate: func(t *testing.T) { t.Setenv("TEXT_TO_IMAGE_SERVICE_URL", "") },
			want:   "TEXT_TO_IMAGE_SERVICE_URL",
		},
		{
			name:   "missing llm service url",
			mutate: func(t *testing.T) { t.Setenv("LLM_SERVICE_URL", "") },
			want:   "LLM_SERVICE_URL",
		},
		{
			name:   "s3 without bucket",
			mutate: func(t *testing.T) { t.Setenv("STORAGE_BACKEND", "s3") },
			want:   "S3_BUCKET_NAME",
		},
		{
			name: "s3 without credentials",
			mutate: func(t *testing.T) {
				t.Setenv("STORAGE_BACKEND", "s3")
				t.Setenv("S3_BUCKET_NAME", "assets")
			},
			want: "AWS_ACCESS_KEY_ID",
		},
		{
			name:   "unknown storage backend",
			mutate: func(t *testing.T) { t.Setenv("STORAGE_BACKEND", "ftp") },
			want:   "STORAGE_BACKEND",
		},
		{
			name:   "unknown optional stage",
			mutate: func(t *testing.T) { t.Setenv("OPTIONAL_STAGES", "prompt") },
			want:   "OPTIONAL_STAGES",
		},
		{
			name:   "unknown prompt provider",
			mutate: func(t *testing.T) { t.Setenv("PROMPT_PROVIDER", "echo") },
			want:   "PROMPT_PROVIDER",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			setBaseEnv(t)
			tc.mutate(t)
			_, err := LoadConfig()
			if err == nil {
				t.Fatal("LoadConfig returned nil error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %s", err, tc.want)
			}
		})
	}
}

func TestLoadConfigStaticProviderSkipsLLMURL(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("LLM_SERVICE_URL", "")
	t.Setenv("PROMPT_PROVIDER", "static")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.PromptProvider != "static" {
		t.Fatalf("PromptProvider = %q, want static", cfg.PromptProvider)
	}
}

func TestLoadConfigOptionalStages(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("OPTIONAL_STAGES", " model ")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if !cfg.StageOptional("model") {
		t.Fatal("StageOptional(model) = false, want true")
	}
	if cfg.StageOptional("image") {
		t.Fatal("StageOptional(image) = true, want false")
	}
}
