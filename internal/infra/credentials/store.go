// Package credentials persists backend service API keys in the database so
// deployments can rotate them without restarting the binaries. Environment
// variables, when set, take precedence over stored tokens.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"assetgen/internal/infra"
	"assetgen/internal/sqlinline"
)

const (
	ProviderLLM    = "llm"
	ProviderImage  = "image"
	ProviderThreeD = "threed"
)

var knownProviders = map[string]struct{}{
	ProviderLLM:    {},
	ProviderImage:  {},
	ProviderThreeD: {},
}

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored API key for a backend provider, or empty when
// none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	if _, ok := knownProviders[provider]; !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetToken stores or replaces the API key for a backend provider.
func (s *Store) SetToken(ctx context.Context, provider, token string) error {
	if _, ok := knownProviders[provider]; !ok {
		return fmt.Errorf("unknown provider %q", provider)
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("api key is required")
	}
	return s.upsert(ctx, provider, token, nil)
}

// LLMAPIKey returns the stored key for the prompt expansion backend.
func (s *Store) LLMAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderLLM)
}

// ImageAPIKey returns the stored key for the text-to-image backend.
func (s *Store) ImageAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderImage)
}

// ThreeDAPIKey returns the stored key for the 3D generation backend.
func (s *Store) ThreeDAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderThreeD)
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
