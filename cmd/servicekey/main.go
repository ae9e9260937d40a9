package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"assetgen/internal/infra"
	"assetgen/internal/infra/credentials"
)

func main() {
	var (
		keyFlag      string
		providerFlag string
		showFlag     bool
	)
	flag.StringVar(&keyFlag, "key", "", "API key for the selected backend (falls back to environment)")
	flag.StringVar(&providerFlag, "provider", credentials.ProviderLLM, "Backend to configure (llm, image or threed)")
	flag.BoolVar(&showFlag, "show", false, "Print whether a key is stored instead of setting one")
	flag.Parse()

	provider := strings.TrimSpace(strings.ToLower(providerFlag))
	switch provider {
	case credentials.ProviderLLM, credentials.ProviderImage, credentials.ProviderThreeD:
	case "":
		provider = credentials.ProviderLLM
	default:
		fmt.Fprintf(os.Stderr, "unsupported provider %q\n", providerFlag)
		os.Exit(1)
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create pool: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "servicekey").Str("provider", provider).Logger()
	store := credentials.NewStore(infra.NewSQLRunner(pool, logger))

	ctxExec, cancelExec := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelExec()

	if showFlag {
		token, err := store.Token(ctxExec, provider)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s api key: %v\n", provider, err)
			os.Exit(1)
		}
		if token == "" {
			fmt.Printf("no %s API key stored\n", provider)
			return
		}
		fmt.Printf("%s API key stored (%s)\n", provider, masked(token))
		return
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv(envKeyFor(provider)))
	}
	if key == "" {
		fmt.Fprintf(os.Stderr, "%s API key is required via -key or %s\n", provider, envKeyFor(provider))
		os.Exit(1)
	}

	if err := store.SetToken(ctxExec, provider, key); err != nil {
		fmt.Fprintf(os.Stderr, "failed to persist %s api key: %v\n", provider, err)
		os.Exit(1)
	}

	fmt.Printf("%s API key stored successfully\n", provider)
}

func envKeyFor(provider string) string {
	switch provider {
	case credentials.ProviderImage:
		return "IMAGE_SERVICE_API_KEY"
	case credentials.ProviderThreeD:
		return "THREED_SERVICE_API_KEY"
	default:
		return "LLM_SERVICE_API_KEY"
	}
}

func masked(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(token)-4) + token[len(token)-4:]
}
