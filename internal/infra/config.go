package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string

	PromptProvider   string
	LLMServiceURL    string
	LLMServiceAPIKey string
	LLMTimeout       time.Duration

	ImageServiceURL    string
	ImageServiceAPIKey string
	ImageTimeout       time.Duration

	ThreeDServiceURL    string
	ThreeDServiceAPIKey string
	ThreeDTimeout       time.Duration

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	RunTimeout     time.Duration
	OptionalStages []string

	StorageBackend     string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	S3Bucket           string
	S3Endpoint         string
	S3UseSSL           bool
	PresignTTL         time.Duration
	StoragePath        string
	StorageBaseURL     string

	WorkerConcurrency  int
	WorkerPollInterval time.Duration

	RateLimitPerMin    int
	CORSAllowedOrigins []string
	GeoIPDBPath        string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")

	cfg := &Config{
		AppEnv:      getEnv("APP_ENV", "development"),
		Port:        port,
		DatabaseURL: os.Getenv("DATABASE_URL"),

		PromptProvider:   getEnv("PROMPT_PROVIDER", "service"),
		LLMServiceURL:    os.Getenv("LLM_SERVICE_URL"),
		LLMServiceAPIKey: os.Getenv("LLM_SERVICE_API_KEY"),
		LLMTimeout:       time.Second * time.Duration(getEnvInt("LLM_TIMEOUT_SECONDS", 15)),

		ImageServiceURL:    os.Getenv("TEXT_TO_IMAGE_SERVICE_URL"),
		ImageServiceAPIKey: os.Getenv("IMAGE_SERVICE_API_KEY"),
		ImageTimeout:       time.Second * time.Duration(getEnvInt("IMAGE_TIMEOUT_SECONDS", 120)),

		ThreeDServiceURL:    os.Getenv("THREED_GENERATION_SERVICE_URL"),
		ThreeDServiceAPIKey: os.Getenv("THREED_SERVICE_API_KEY"),
		ThreeDTimeout:       time.Second * time.Duration(getEnvInt("THREED_TIMEOUT_SECONDS", 600)),

		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   time.Millisecond * time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 500)),
		RetryMaxDelay:    time.Millisecond * time.Duration(getEnvInt("RETRY_MAX_DELAY_MS", 10000)),

		RunTimeout:     time.Second * time.Duration(getEnvInt("RUN_TIMEOUT_SECONDS", 0)),
		OptionalStages: splitCSV(os.Getenv("OPTIONAL_STAGES")),

		StorageBackend:     getEnv("STORAGE_BACKEND", "filesystem"),
		AWSAccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
		AWSSecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		AWSRegion:          getEnv("AWS_DEFAULT_REGION", "us-east-1"),
		S3Bucket:           os.Getenv("S3_BUCKET_NAME"),
		S3Endpoint:         getEnv("S3_ENDPOINT", "s3.amazonaws.com"),
		S3UseSSL:           getEnvBool("S3_USE_SSL", true),
		PresignTTL:         time.Second * time.Duration(getEnvInt("PRESIGN_TTL_SECONDS", 3600)),
		StoragePath:        getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:     getEnv("STORAGE_BASE_URL", "http://localhost:"+port+"/static"),

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval: time.Second * time.Duration(getEnvInt("WORKER_POLL_INTERVAL_SECONDS", 2)),

		RateLimitPerMin:    getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins: splitCSV(os.Getenv("CORS_ALLOWED_ORIGINS")),
		GeoIPDBPath:        os.Getenv("GEOIP_DB_PATH"),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 315)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.PromptProvider != "service" && cfg.PromptProvider != "static" {
		return nil, fmt.Errorf("PROMPT_PROVIDER must be service or static, got %q", cfg.PromptProvider)
	}

	if cfg.PromptProvider == "service" && cfg.LLMServiceURL == "" {
		return nil, fmt.Errorf("LLM_SERVICE_URL is required when PROMPT_PROVIDER=service")
	}

	if cfg.ImageServiceURL == "" {
		return nil, fmt.Errorf("TEXT_TO_IMAGE_SERVICE_URL is required")
	}

	switch cfg.StorageBackend {
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET_NAME is required when STORAGE_BACKEND=s3")
		}
		if cfg.AWSAccessKeyID == "" || cfg.AWSSecretAccessKey == "" {
			return nil, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required when STORAGE_BACKEND=s3")
		}
	case "filesystem":
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be s3 or filesystem, got %q", cfg.StorageBackend)
	}

	for _, stage := range cfg.OptionalStages {
		if stage != "model" {
			return nil, fmt.Errorf("OPTIONAL_STAGES accepts only model, got %q", stage)
		}
	}

	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = deriveRunTimeout(cfg)
	}

	return cfg, nil
}

// ThreeDEnabled reports whether a 3D generation backend is configured.
func (c *Config) ThreeDEnabled() bool {
	return c.ThreeDServiceURL != ""
}

// StageOptional reports whether a stage may fail without failing the run.
func (c *Config) StageOptional(stage string) bool {
	for _, s := range c.OptionalStages {
		if s == stage {
			return true
		}
	}
	return false
}

// deriveRunTimeout sums the configured stage budgets plus a persistence margin.
func deriveRunTimeout(cfg *Config) time.Duration {
	total := cfg.LLMTimeout + cfg.ImageTimeout + 60*time.Second
	if cfg.ThreeDEnabled() {
		total += cfg.ThreeDTimeout
	}
	return total
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitCSV(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
