package aggregator

import (
	"context"
	"fmt"

	"github.com/illmade-knight/go-dexcache/pkg/cache"
	"github.com/rs/zerolog"
)

// SourceFunc retrieves a value from the remote provider.
type SourceFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// ResourceFetcher resolves one resource kind with a cache-then-source
// strategy. Source results are written through to the tier before returning.
type ResourceFetcher[K comparable, V any] struct {
	tier   *cache.Tier[K, V]
	source SourceFunc[K, V]
	logger zerolog.Logger
}

// NewResourceFetcher creates a fetcher over tier that falls back to source.
func NewResourceFetcher[K comparable, V any](
	tier *cache.Tier[K, V],
	source SourceFunc[K, V],
	logger zerolog.Logger,
) (*ResourceFetcher[K, V], error) {
	if tier == nil {
		return nil, fmt.Errorf("tier cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	return &ResourceFetcher[K, V]{
		tier:   tier,
		source: source,
		logger: logger.With().Str("component", "ResourceFetcher").Str("table", tier.Table()).Dur("ttl", tier.TTL()).Logger(),
	}, nil
}

// Fetch returns the cached value for key when fresh, otherwise the source's.
func (f *ResourceFetcher[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	if value, ok := f.tier.Lookup(ctx, key); ok {
		f.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Cache hit.")
		return value, nil
	}
	f.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Cache miss. Falling back to source.")
	return f.Refresh(ctx, key)
}

// Refresh always asks the source and overwrites the cached record.
func (f *ResourceFetcher[K, V]) Refresh(ctx context.Context, key K) (V, error) {
	var zero V
	value, err := f.source(ctx, key)
	if err != nil {
		return zero, fmt.Errorf("fetching %s %v: %w", f.tier.Table(), key, err)
	}
	// A failed write is logged by the tier; the fetched value is still good.
	_ = f.tier.Save(ctx, key, value)
	return value, nil
}
