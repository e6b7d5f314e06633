package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
)

// TierConfig describes one cache tier.
type TierConfig struct {
	Table string
	TTL   time.Duration
}

// Tier applies a freshness window to a Store. Read failures degrade to a miss
// and write failures are logged, so a broken store never fails a lookup.
type Tier[K comparable, V any] struct {
	table   string
	ttl     time.Duration
	store   Store[K, V]
	clock   clock.Clock
	metrics *Metrics
	logger  zerolog.Logger
}

// NewTier wraps store with the table's TTL. A nil clk means the wall clock;
// metrics may be nil.
func NewTier[K comparable, V any](
	cfg TierConfig,
	store Store[K, V],
	clk clock.Clock,
	metrics *Metrics,
	logger zerolog.Logger,
) (*Tier[K, V], error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("ttl for table %q must be positive", cfg.Table)
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Tier[K, V]{
		table:   cfg.Table,
		ttl:     cfg.TTL,
		store:   store,
		clock:   clk,
		metrics: metrics,
		logger:  logger.With().Str("component", "Tier").Str("table", cfg.Table).Logger(),
	}, nil
}

// Lookup returns the cached value for key if it is present and fresh.
func (t *Tier[K, V]) Lookup(ctx context.Context, key K) (V, bool) {
	var zero V
	rec, err := t.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			t.metrics.lookup(t.table, resultMiss)
			return zero, false
		}
		t.metrics.lookup(t.table, resultError)
		t.logger.Warn().Err(err).Str("key", fmt.Sprintf("%v", key)).Msg("Cache read failed, treating as miss.")
		return zero, false
	}
	if !IsFresh(rec.FetchedAt, t.clock.Now(), t.ttl) {
		t.metrics.lookup(t.table, resultStale)
		t.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Time("fetched_at", rec.FetchedAt).Msg("Cached record is stale.")
		return zero, false
	}
	t.metrics.lookup(t.table, resultHit)
	t.logger.Debug().Str("key", fmt.Sprintf("%v", key)).Msg("Cache hit.")
	return rec.Payload, true
}

// Save writes value under key stamped with the current time.
func (t *Tier[K, V]) Save(ctx context.Context, key K, value V) error {
	if err := t.store.Put(ctx, key, value, t.clock.Now()); err != nil {
		t.metrics.write(t.table, resultError)
		t.logger.Error().Err(err).Str("key", fmt.Sprintf("%v", key)).Msg("Failed to write to cache.")
		return fmt.Errorf("writing %v to %s: %w", key, t.table, err)
	}
	t.metrics.write(t.table, resultOK)
	return nil
}

// Table returns the table name.
func (t *Tier[K, V]) Table() string {
	return t.table
}

// TTL returns the freshness window.
func (t *Tier[K, V]) TTL() time.Duration {
	return t.ttl
}
