package aggregator_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/illmade-knight/go-dexcache/pkg/aggregator"
	"github.com/illmade-knight/go-dexcache/pkg/cache"
	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMovesetTier(t *testing.T, store cache.Store[string, []dex.Moveset], clk clock.Clock) *cache.Tier[string, []dex.Moveset] {
	t.Helper()
	tier, err := cache.NewTier[string, []dex.Moveset](cache.TierConfig{Table: cache.TableMovesets, TTL: 30 * 24 * time.Hour}, store, clk, nil, zerolog.Nop())
	require.NoError(t, err)
	return tier
}

func TestMovesetResolver_BaseVariantFallback(t *testing.T) {
	ctx := context.Background()
	base := []dex.Moveset{{Label: "Special Attacks", Moves: []string{"Flamethrower"}}}

	// Arrange: only the base form has cached movesets.
	store := cache.NewInMemoryStore[string, []dex.Moveset]()
	tier := newMovesetTier(t, store, clock.NewMock())
	require.NoError(t, tier.Save(ctx, "charizard", base))

	var remoteCalls atomic.Int32
	source := func(context.Context, string) (json.RawMessage, error) {
		remoteCalls.Add(1)
		return nil, errors.New("should not be called")
	}
	resolver, err := aggregator.NewMovesetResolver(tier, source, zerolog.Nop())
	require.NoError(t, err)

	// Act
	got := resolver.Resolve(ctx, "charizard-mega-x")

	// Assert: the base variant is served and copied under the variant's key.
	assert.Equal(t, base, got)
	assert.Equal(t, int32(0), remoteCalls.Load())
	rec, err := store.Get(ctx, "charizard-mega-x")
	require.NoError(t, err)
	assert.Equal(t, base, rec.Payload)

	// A second call is a direct hit on the variant's own key.
	require.NoError(t, tier.Save(ctx, "charizard", []dex.Moveset{{Label: "Other Moves", Moves: []string{"Splash"}}}))
	assert.Equal(t, base, resolver.Resolve(ctx, "charizard-mega-x"))
	assert.Equal(t, int32(0), remoteCalls.Load())
}

func TestMovesetResolver_RemoteFetch(t *testing.T) {
	ctx := context.Background()

	t.Run("Builds and persists non-empty movesets", func(t *testing.T) {
		store := cache.NewInMemoryStore[string, []dex.Moveset]()
		var remoteCalls atomic.Int32
		resolver, err := aggregator.NewMovesetResolver(newMovesetTier(t, store, clock.NewMock()),
			func(context.Context, string) (json.RawMessage, error) {
				remoteCalls.Add(1)
				return json.RawMessage(charizardMovesDoc), nil
			}, zerolog.Nop())
		require.NoError(t, err)

		got := resolver.Resolve(ctx, "charizard")
		again := resolver.Resolve(ctx, "charizard")

		assert.Len(t, got, 3)
		assert.Equal(t, got, again)
		assert.Equal(t, int32(1), remoteCalls.Load())
		assert.Equal(t, 1, store.Len())
	})

	t.Run("Old games only yields nothing and persists nothing", func(t *testing.T) {
		store := cache.NewInMemoryStore[string, []dex.Moveset]()
		var remoteCalls atomic.Int32
		resolver, err := aggregator.NewMovesetResolver(newMovesetTier(t, store, clock.NewMock()),
			func(context.Context, string) (json.RawMessage, error) {
				remoteCalls.Add(1)
				return json.RawMessage(`{"moves":[{"move":{"name":"tackle"},"version_group_details":[
					{"level_learned_at":1,"move_learn_method":{"name":"level-up"},"version_group":{"name":"red-blue"}}]}]}`), nil
			}, zerolog.Nop())
		require.NoError(t, err)

		assert.Empty(t, resolver.Resolve(ctx, "bulbasaur"))
		assert.Empty(t, resolver.Resolve(ctx, "bulbasaur"))
		assert.Equal(t, int32(2), remoteCalls.Load(), "an empty result is never cached")
		assert.Equal(t, 0, store.Len())
	})

	t.Run("Unreadable move list yields nothing", func(t *testing.T) {
		resolver, err := aggregator.NewMovesetResolver(newMovesetTier(t, cache.NewInMemoryStore[string, []dex.Moveset](), clock.NewMock()),
			func(context.Context, string) (json.RawMessage, error) {
				return json.RawMessage(`[1,2,3]`), nil
			}, zerolog.Nop())
		require.NoError(t, err)

		got := resolver.Resolve(ctx, "bulbasaur")

		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
