// Package bootstrap builds the runtime components shared by the api and
// worker binaries: the artifact store, the stage clients and the
// orchestrator they feed.
package bootstrap

import (
	"context"
	"strings"

	"assetgen/internal/domain"
	"assetgen/internal/infra"
	"assetgen/internal/infra/credentials"
	"assetgen/internal/pipeline"
	"assetgen/internal/providers/image"
	"assetgen/internal/providers/prompt"
	"assetgen/internal/providers/threed"
	"assetgen/internal/retry"
	"assetgen/internal/storage"
)

// NewStore selects the artifact storage backend from configuration. The s3
// backend verifies the bucket exists before the process accepts work.
func NewStore(ctx context.Context, cfg *infra.Config, logger *infra.Logger) (storage.Store, error) {
	if cfg.StorageBackend == "s3" {
		store, err := storage.NewObjectStore(storage.ObjectStoreOptions{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.AWSRegion,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.AWSAccessKeyID,
			SecretKey: cfg.AWSSecretAccessKey,
			UseSSL:    cfg.S3UseSSL,
			Retry:     RetryPolicy(cfg),
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	return storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
}

// NewOrchestrator wires the stage clients and hands them to the pipeline.
// Backend API keys come from the environment when set, otherwise from the
// integration token store.
func NewOrchestrator(ctx context.Context, cfg *infra.Config, runner *infra.SQLRunner, store storage.Store, logger *infra.Logger) (*pipeline.Orchestrator, error) {
	creds := credentials.NewStore(runner)
	policy := RetryPolicy(cfg)

	var expander prompt.Expander
	if cfg.PromptProvider == "static" {
		expander = prompt.NewStaticExpander()
	} else {
		client, err := prompt.NewServiceClient(prompt.Options{
			BaseURL: cfg.LLMServiceURL,
			APIKey:  apiKey(ctx, creds, cfg.LLMServiceAPIKey, credentials.ProviderLLM, logger),
			Timeout: cfg.LLMTimeout,
			Retry:   policy,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		expander = client
	}

	imageGen, err := image.NewClient(image.Options{
		BaseURL: cfg.ImageServiceURL,
		APIKey:  apiKey(ctx, creds, cfg.ImageServiceAPIKey, credentials.ProviderImage, logger),
		Timeout: cfg.ImageTimeout,
		Retry:   policy,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	var threeDGen threed.Generator
	if cfg.ThreeDEnabled() {
		client, err := threed.NewClient(threed.Options{
			BaseURL: cfg.ThreeDServiceURL,
			APIKey:  apiKey(ctx, creds, cfg.ThreeDServiceAPIKey, credentials.ProviderThreeD, logger),
			Timeout: cfg.ThreeDTimeout,
			Retry:   policy,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		threeDGen = client
	}

	optional := make(map[domain.StageKind]bool, len(cfg.OptionalStages))
	for _, stage := range cfg.OptionalStages {
		optional[domain.StageKind(stage)] = true
	}

	return pipeline.New(pipeline.Config{
		Expander:   expander,
		ImageGen:   imageGen,
		ThreeDGen:  threeDGen,
		Store:      store,
		Optional:   optional,
		RunTimeout: cfg.RunTimeout,
		Logger:     logger,
	})
}

// RetryPolicy builds the backend retry policy from configuration.
func RetryPolicy(cfg *infra.Config) *retry.Policy {
	policy := retry.DefaultPolicy()
	if cfg.RetryMaxAttempts > 0 {
		policy.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.RetryBaseDelay
	}
	if cfg.RetryMaxDelay > 0 {
		policy.MaxDelay = cfg.RetryMaxDelay
	}
	return policy
}

// apiKey resolves a backend key; environment wins over the stored token.
func apiKey(ctx context.Context, creds *credentials.Store, envValue, provider string, logger *infra.Logger) string {
	if key := strings.TrimSpace(envValue); key != "" {
		return key
	}
	key, err := creds.Token(ctx, provider)
	if err != nil {
		logger.Warn().Err(err).Str("provider", provider).Msg("failed to load api key from store")
		return ""
	}
	return key
}
