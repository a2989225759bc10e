package services

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/patrickmn/go-cache"

	"ritualflow/internal/models"
)

//go:embed default_config.json
var defaultConfigJSON []byte

// ConfigResolver resolves "the current configuration" for a ritual. It
// prefers the persisted active version and falls back to the bundled default
// when storage has nothing to offer. Resolved configs are cached for process
// lifetime; the store's OnActiveChange hook drops the cached entry when the
// active pointer moves, so staleness only survives across processes that
// never receive the hook (tolerated per the freshness model - no push channel).
type ConfigResolver struct {
	store    *RitualStore
	cache    *cache.Cache
	fallback *models.RitualConfig
}

// NewConfigResolver builds a resolver over the store. overridePath, when
// non-empty, replaces the bundled default config with a file read once at
// startup (same role as a providers.json override).
func NewConfigResolver(store *RitualStore, overridePath string) (*ConfigResolver, error) {
	fallback, err := loadDefaultConfig(overridePath)
	if err != nil {
		return nil, err
	}

	r := &ConfigResolver{
		store:    store,
		cache:    cache.New(cache.NoExpiration, 0),
		fallback: fallback,
	}
	store.OnActiveChange(r.Invalidate)
	return r, nil
}

// loadDefaultConfig parses the bundled (or override) default configuration
func loadDefaultConfig(overridePath string) (*models.RitualConfig, error) {
	data := defaultConfigJSON
	if overridePath != "" {
		fileData, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read default config override: %w", err)
		}
		data = fileData
	}

	var cfg models.RitualConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse default config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("default config invalid: %w", err)
	}
	return &cfg, nil
}

// Resolve returns the configuration to use for a ritual slug. Storage
// failures and missing active versions both degrade to the bundled default
// rather than propagating - chat turns must always have a config to work with.
func (r *ConfigResolver) Resolve(ctx context.Context, slug string) *models.RitualConfig {
	if cached, found := r.cache.Get(slug); found {
		return cached.(*models.RitualConfig)
	}

	cfg, err := r.store.GetActiveConfig(ctx, slug)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("config resolution failed, using bundled default", "ritual", slug, "error", err)
		}
		return r.fallback
	}

	r.cache.Set(slug, cfg, cache.NoExpiration)
	return cfg
}

// Invalidate drops the cached config for a slug. Wired to the store's
// activation hook so admin edits take effect on the next turn.
func (r *ConfigResolver) Invalidate(slug string) {
	r.cache.Delete(slug)
	slog.Debug("config cache invalidated", "ritual", slug)
}

// Default returns the bundled fallback configuration
func (r *ConfigResolver) Default() *models.RitualConfig {
	return r.fallback
}
