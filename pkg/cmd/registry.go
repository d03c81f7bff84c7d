// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/artistscloud/a9ents-sub000/pkg/capabilities"
	"github.com/artistscloud/a9ents-sub000/pkg/capabilities/providercache"
	"github.com/artistscloud/a9ents-sub000/pkg/registry"
)

const providerConfigTTL = 5 * time.Minute

// NewRegistry builds a registry with all built-in node kinds wired to real
// capabilities: an OpenAI-compatible LLM client, a Redis or in-memory
// knowledge store, an HTML scraper and a generic HTTP caller.
func NewRegistry(logger *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(logger)

	httpClient := &http.Client{Timeout: 60 * time.Second}

	providers := providercache.New(clockwork.NewRealClock(), providerConfigTTL, providerConfigFromEnv)
	llm := capabilities.NewLLMClient(httpClient, providers)
	scraper := capabilities.NewScraper(httpClient)
	caller := capabilities.NewHTTPCaller(httpClient)

	registry.RegisterDefaults(reg, registry.CapabilitySet{
		Generate:  llm.Generate,
		Knowledge: newKnowledgeStore(logger),
		Scrape:    scraper.Scrape,
		HTTPCall:  caller.Do,
	})

	return reg
}

// providerConfigFromEnv resolves LLM provider settings from environment
// variables, e.g. OPENAI_BASE_URL, OPENAI_API_KEY and OPENAI_MODEL for the
// "openai" provider.
func providerConfigFromEnv(_ context.Context, provider string) (providercache.ProviderConfig, error) {
	prefix := strings.ToUpper(strings.ReplaceAll(provider, "-", "_"))

	baseURL := os.Getenv(prefix + "_BASE_URL")
	if baseURL == "" {
		return providercache.ProviderConfig{}, fmt.Errorf("provider %s has no %s_BASE_URL configured", provider, prefix)
	}

	return providercache.ProviderConfig{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       os.Getenv(prefix + "_API_KEY"),
		DefaultModel: os.Getenv(prefix + "_MODEL"),
	}, nil
}

func newKnowledgeStore(logger *slog.Logger) capabilities.KnowledgeStore {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		logger.Info("REDIS_URL not set, using in-memory knowledge store")

		return capabilities.NewMemoryKnowledgeStore()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("Invalid REDIS_URL, using in-memory knowledge store", "error", err)

		return capabilities.NewMemoryKnowledgeStore()
	}

	return capabilities.NewRedisKnowledgeStore(redis.NewClient(opts))
}
