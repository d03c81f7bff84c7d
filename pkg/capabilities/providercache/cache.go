// Package providercache caches LLM provider configuration with a TTL. The
// cache is an explicitly-owned component with an injected clock and refresh
// function; it is constructed once per process and passed by reference.
package providercache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ProviderConfig holds the connection settings for one text-generation
// provider.
type ProviderConfig struct {
	BaseURL      string `json:"base_url"`
	APIKey       string `json:"api_key"`
	DefaultModel string `json:"default_model"`
}

// RefreshFunc loads the current configuration for a provider, typically from
// the surrounding application's settings store.
type RefreshFunc func(ctx context.Context, provider string) (ProviderConfig, error)

type entry struct {
	config    ProviderConfig
	expiresAt time.Time
}

// Cache is a TTL cache of provider configurations.
type Cache struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	ttl     time.Duration
	refresh RefreshFunc
	entries map[string]entry
}

// New creates a cache. A zero ttl disables caching and makes every Get call
// the refresh function.
func New(clock clockwork.Clock, ttl time.Duration, refresh RefreshFunc) *Cache {
	return &Cache{
		clock:   clock,
		ttl:     ttl,
		refresh: refresh,
		entries: make(map[string]entry),
	}
}

// Get returns the cached configuration for provider, refreshing it when the
// entry is missing or expired.
func (c *Cache) Get(ctx context.Context, provider string) (ProviderConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()

	if cached, ok := c.entries[provider]; ok && c.ttl > 0 && now.Before(cached.expiresAt) {
		return cached.config, nil
	}

	config, err := c.refresh(ctx, provider)
	if err != nil {
		return ProviderConfig{}, fmt.Errorf("failed to refresh provider %s: %w", provider, err)
	}

	c.entries[provider] = entry{
		config:    config,
		expiresAt: now.Add(c.ttl),
	}

	return config, nil
}

// Invalidate drops the cached entry for provider.
func (c *Cache) Invalidate(provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, provider)
}
