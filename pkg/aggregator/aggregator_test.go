package aggregator_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/illmade-knight/go-dexcache/pkg/aggregator"
	"github.com/illmade-knight/go-dexcache/pkg/backend"
	"github.com/illmade-knight/go-dexcache/pkg/cache"
	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/illmade-knight/go-dexcache/pkg/pokeapi"
	"github.com/illmade-knight/go-dexcache/pkg/resolver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const charizardDoc = `{
	"id": 6, "name": "charizard", "weight": 905, "height": 17,
	"types": [{"slot": 1, "type": {"name": "fire"}}, {"slot": 2, "type": {"name": "flying"}}],
	"stats": [{"base_stat": 78, "stat": {"name": "hp"}}, {"base_stat": 84, "stat": {"name": "attack"}}],
	"abilities": [{"ability": {"name": "blaze"}}, {"ability": {"name": "solar-power"}}],
	"species": {"name": "charizard"},
	"sprites": {"other": {"official-artwork": {"front_default": "https://img.example/6.png"}}}
}`

const charizardSpeciesDoc = `{
	"name": "charizard",
	"evolution_chain": {"url": "https://pokeapi.co/api/v2/evolution-chain/2/"},
	"varieties": [
		{"is_default": true, "pokemon": {"name": "charizard"}},
		{"is_default": false, "pokemon": {"name": "charizard-mega-x"}}
	]
}`

const charmanderChainDoc = `{
	"id": 2,
	"chain": {"species": {"name": "charmander"}, "evolves_to": [
		{"species": {"name": "charmeleon"}, "evolves_to": [
			{"species": {"name": "charizard"}, "evolves_to": []}
		]}
	]}
}`

const charizardMovesDoc = `{"moves": [
	{"move": {"name": "flamethrower"}, "version_group_details": [
		{"level_learned_at": 1, "move_learn_method": {"name": "level-up"}, "version_group": {"name": "sword-shield"}}
	]},
	{"move": {"name": "body-slam"}, "version_group_details": [
		{"level_learned_at": 0, "move_learn_method": {"name": "machine"}, "version_group": {"name": "sword-shield"}}
	]},
	{"move": {"name": "calm-mind"}, "version_group_details": [
		{"level_learned_at": 0, "move_learn_method": {"name": "machine"}, "version_group": {"name": "scarlet-violet"}}
	]}
]}`

// mockRemote implements aggregator.Remote with overridable behaviour and call
// counters.
type mockRemote struct {
	PokemonFunc        func(ctx context.Context, name string) (json.RawMessage, error)
	SpeciesFunc        func(ctx context.Context, name string) (json.RawMessage, error)
	EvolutionChainFunc func(ctx context.Context, id int) (json.RawMessage, error)
	MoveListFunc       func(ctx context.Context, name string) (json.RawMessage, error)

	pokemonCalls, speciesCalls, chainCalls, moveCalls atomic.Int32
}

func newCharizardRemote() *mockRemote {
	return &mockRemote{
		PokemonFunc: func(_ context.Context, name string) (json.RawMessage, error) {
			if name != "charizard" {
				return nil, fmt.Errorf("%s: %w", name, dex.ErrNotFound)
			}
			return json.RawMessage(charizardDoc), nil
		},
		SpeciesFunc: func(_ context.Context, _ string) (json.RawMessage, error) {
			return json.RawMessage(charizardSpeciesDoc), nil
		},
		EvolutionChainFunc: func(_ context.Context, _ int) (json.RawMessage, error) {
			return json.RawMessage(charmanderChainDoc), nil
		},
		MoveListFunc: func(_ context.Context, _ string) (json.RawMessage, error) {
			return json.RawMessage(charizardMovesDoc), nil
		},
	}
}

func (m *mockRemote) Pokemon(ctx context.Context, name string) (json.RawMessage, error) {
	m.pokemonCalls.Add(1)
	return m.PokemonFunc(ctx, name)
}

func (m *mockRemote) Species(ctx context.Context, name string) (json.RawMessage, error) {
	m.speciesCalls.Add(1)
	return m.SpeciesFunc(ctx, name)
}

func (m *mockRemote) EvolutionChain(ctx context.Context, id int) (json.RawMessage, error) {
	m.chainCalls.Add(1)
	return m.EvolutionChainFunc(ctx, id)
}

func (m *mockRemote) MoveList(ctx context.Context, name string) (json.RawMessage, error) {
	m.moveCalls.Add(1)
	return m.MoveListFunc(ctx, name)
}

func (m *mockRemote) totalCalls() int32 {
	return m.pokemonCalls.Load() + m.speciesCalls.Load() + m.chainCalls.Load() + m.moveCalls.Load()
}

type harness struct {
	agg    *aggregator.Aggregator
	remote *mockRemote
	set    *backend.Set
	tiers  *backend.Tiers
	clock  *clock.Mock
}

func newHarness(t *testing.T, remote *mockRemote, opts ...aggregator.Option) *harness {
	t.Helper()
	names, err := resolver.New(resolver.StaticLoader("charmander", "charmeleon", "charizard", "charizard-mega-x"), zerolog.Nop())
	require.NoError(t, err)

	clk := clock.NewMock()
	set := backend.NewInMemory(zerolog.Nop())
	tiers, err := set.Tiers(backend.DefaultTTLs(), clk, nil, zerolog.Nop())
	require.NoError(t, err)

	agg, err := aggregator.New(names, remote, tiers, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return &harness{agg: agg, remote: remote, set: set, tiers: tiers, clock: clk}
}

func storeLen[K comparable, V any](t *testing.T, s cache.Store[K, V]) int {
	t.Helper()
	mem, ok := s.(*cache.InMemoryStore[K, V])
	require.True(t, ok)
	return mem.Len()
}

func TestLookup_ColdRun(t *testing.T) {
	// Arrange
	h := newHarness(t, newCharizardRemote())

	// Act
	resp, err := h.agg.Lookup(context.Background(), "charzard")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.remote.pokemonCalls.Load())
	assert.Equal(t, int32(1), h.remote.speciesCalls.Load())
	assert.Equal(t, int32(1), h.remote.chainCalls.Load())
	assert.Equal(t, int32(1), h.remote.moveCalls.Load())

	assert.Equal(t, 1, storeLen(t, h.set.Pokemon))
	assert.Equal(t, 1, storeLen(t, h.set.Species))
	assert.Equal(t, 1, storeLen(t, h.set.Chains))
	assert.Equal(t, 1, storeLen(t, h.set.Movesets))
	assert.Equal(t, 1, storeLen(t, h.set.Processed))

	assert.Equal(t, "Charizard", resp.Name)
	assert.Equal(t, 6, resp.ID)
	assert.Equal(t, "Fire\nFlying", resp.Details.Type)
	assert.InDelta(t, 90.5, resp.Details.Weight, 1e-9)
	assert.InDelta(t, 1.7, resp.Details.Height, 1e-9)
	assert.Equal(t, "https://img.example/6.png", resp.Details.PreviewImageURL)
	assert.Equal(t, []string{"Charmander", "Charmeleon", "Charizard"}, resp.Evolution.Chain)
	assert.Equal(t, []string{"Charizard", "Charizard Mega X"}, resp.Evolution.Forms)
	assert.Equal(t, map[string]int{"hp": 78, "attack": 84}, resp.Stats)
	assert.Equal(t, []string{"Blaze", "Solar-power"}, resp.Abilities)
	assert.Equal(t, []string{"water", "ground", "rock", "electric", "ice"}, resp.Effectiveness.WeakAgainst)
	assert.Equal(t, []string{"grass", "ice", "bug", "steel", "fighting"}, resp.Effectiveness.StrongAgainst)
	assert.Equal(t, []dex.Moveset{
		{Label: "Physical Attacks", Moves: []string{"Body Slam"}},
		{Label: "Special Attacks", Moves: []string{"Flamethrower"}},
		{Label: "Status Moves", Moves: []string{"Calm Mind"}},
	}, resp.Movesets)
}

func TestLookup_WarmRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newCharizardRemote())

	first, err := h.agg.Lookup(ctx, "charizard")
	require.NoError(t, err)
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	callsAfterFirst := h.remote.totalCalls()

	second, err := h.agg.Lookup(ctx, "Charizard")
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, string(firstJSON), string(secondJSON))
	assert.Equal(t, callsAfterFirst, h.remote.totalCalls(), "warm lookup makes no remote calls")
}

func TestLookup_StaleProcessedRebuildsFromFreshTiers(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newCharizardRemote())

	_, err := h.agg.Lookup(ctx, "charizard")
	require.NoError(t, err)

	// Past the processed window but inside every other one.
	h.clock.Add(backend.DefaultTTLs().Processed + 1)
	_, err = h.agg.Lookup(ctx, "charizard")
	require.NoError(t, err)

	assert.Equal(t, int32(1), h.remote.pokemonCalls.Load())
	assert.Equal(t, int32(1), h.remote.speciesCalls.Load())
	assert.Equal(t, int32(1), h.remote.chainCalls.Load())
	assert.Equal(t, int32(1), h.remote.moveCalls.Load())
}

func TestLookup_Errors(t *testing.T) {
	ctx := context.Background()
	upstream := &pokeapi.UpstreamError{StatusCode: 503, URL: "http://remote"}

	t.Run("Unresolvable name is NotFound", func(t *testing.T) {
		h := newHarness(t, newCharizardRemote())

		_, err := h.agg.Lookup(ctx, "qwertyuiop")

		assert.ErrorIs(t, err, dex.ErrNotFound)
		assert.Equal(t, int32(0), h.remote.totalCalls())
	})

	t.Run("Primary NotFound is terminal", func(t *testing.T) {
		h := newHarness(t, newCharizardRemote())

		_, err := h.agg.Lookup(ctx, "charmander")

		assert.ErrorIs(t, err, dex.ErrNotFound)
		assert.Equal(t, int32(0), h.remote.speciesCalls.Load())
		assert.Equal(t, 0, storeLen(t, h.set.Processed))
	})

	t.Run("Species failure is terminal", func(t *testing.T) {
		remote := newCharizardRemote()
		remote.SpeciesFunc = func(context.Context, string) (json.RawMessage, error) { return nil, upstream }
		h := newHarness(t, remote)

		_, err := h.agg.Lookup(ctx, "charizard")

		require.Error(t, err)
		assert.ErrorIs(t, err, dex.ErrUpstream)
		var upErr *pokeapi.UpstreamError
		assert.True(t, errors.As(err, &upErr))
		assert.Equal(t, int32(0), remote.chainCalls.Load())
		assert.Equal(t, 0, storeLen(t, h.set.Processed))
	})

	t.Run("Chain failure is terminal", func(t *testing.T) {
		remote := newCharizardRemote()
		remote.EvolutionChainFunc = func(context.Context, int) (json.RawMessage, error) { return nil, upstream }
		h := newHarness(t, remote)

		_, err := h.agg.Lookup(ctx, "charizard")

		assert.ErrorIs(t, err, dex.ErrUpstream)
		assert.Equal(t, 0, storeLen(t, h.set.Processed))
	})

	t.Run("Moveset failure is absorbed", func(t *testing.T) {
		remote := newCharizardRemote()
		remote.MoveListFunc = func(context.Context, string) (json.RawMessage, error) { return nil, upstream }
		h := newHarness(t, remote)

		resp, err := h.agg.Lookup(ctx, "charizard")

		require.NoError(t, err)
		assert.Empty(t, resp.Movesets)
		encoded, err := json.Marshal(resp)
		require.NoError(t, err)
		assert.Contains(t, string(encoded), `"movesets":[]`)
		assert.Equal(t, 0, storeLen(t, h.set.Movesets), "empty movesets are not persisted")
	})
}

func TestNew_Validation(t *testing.T) {
	names, err := resolver.New(resolver.StaticLoader("a"), zerolog.Nop())
	require.NoError(t, err)
	tiers, err := backend.NewInMemory(zerolog.Nop()).Tiers(backend.DefaultTTLs(), nil, nil, zerolog.Nop())
	require.NoError(t, err)

	_, err = aggregator.New(nil, newCharizardRemote(), tiers, zerolog.Nop())
	assert.Error(t, err)
	_, err = aggregator.New(names, nil, tiers, zerolog.Nop())
	assert.Error(t, err)
	_, err = aggregator.New(names, newCharizardRemote(), nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestLookup_SpeciesAndMovesetsRunConcurrently(t *testing.T) {
	// Arrange: each call waits until the other has started, so a sequential
	// pipeline times out.
	speciesStarted := make(chan struct{})
	movesStarted := make(chan struct{})
	awaitOther := func(ctx context.Context, other <-chan struct{}) error {
		select {
		case <-other:
			return nil
		case <-time.After(2 * time.Second):
			return errors.New("the other fetch never started")
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	remote := newCharizardRemote()
	remote.SpeciesFunc = func(ctx context.Context, _ string) (json.RawMessage, error) {
		close(speciesStarted)
		if err := awaitOther(ctx, movesStarted); err != nil {
			return nil, err
		}
		return json.RawMessage(charizardSpeciesDoc), nil
	}
	remote.MoveListFunc = func(ctx context.Context, _ string) (json.RawMessage, error) {
		close(movesStarted)
		if err := awaitOther(ctx, speciesStarted); err != nil {
			return nil, err
		}
		return json.RawMessage(charizardMovesDoc), nil
	}
	h := newHarness(t, remote)

	// Act
	resp, err := h.agg.Lookup(context.Background(), "charizard")

	// Assert: both halves completed, including the movesets.
	require.NoError(t, err)
	assert.Len(t, resp.Movesets, 3)
}

// brokenStore fails every read and write.
type brokenStore[K comparable, V any] struct{}

func (brokenStore[K, V]) Get(context.Context, K) (cache.Record[V], error) {
	return cache.Record[V]{}, errors.New("store unavailable")
}

func (brokenStore[K, V]) Put(context.Context, K, V, time.Time) error {
	return errors.New("store unavailable")
}

func (brokenStore[K, V]) Close() error { return nil }

func TestLookup_FailingStoresFallBackToRemote(t *testing.T) {
	// Arrange
	set := &backend.Set{
		Pokemon:   brokenStore[string, json.RawMessage]{},
		Species:   brokenStore[string, json.RawMessage]{},
		Chains:    brokenStore[int, json.RawMessage]{},
		Movesets:  brokenStore[string, []dex.Moveset]{},
		Processed: brokenStore[string, dex.Response]{},
	}
	tiers, err := set.Tiers(backend.DefaultTTLs(), clock.NewMock(), nil, zerolog.Nop())
	require.NoError(t, err)
	names, err := resolver.New(resolver.StaticLoader("charizard"), zerolog.Nop())
	require.NoError(t, err)
	remote := newCharizardRemote()
	agg, err := aggregator.New(names, remote, tiers, zerolog.Nop())
	require.NoError(t, err)

	// Act
	resp, err := agg.Lookup(context.Background(), "charizard")

	// Assert: reads degrade to misses and failed writes do not fail the lookup.
	require.NoError(t, err)
	assert.Equal(t, "Charizard", resp.Name)
	assert.Equal(t, []string{"Charmander", "Charmeleon", "Charizard"}, resp.Evolution.Chain)
	assert.Len(t, resp.Movesets, 3)
	assert.Equal(t, int32(1), remote.pokemonCalls.Load())
	assert.Equal(t, int32(1), remote.speciesCalls.Load())
	assert.Equal(t, int32(1), remote.chainCalls.Load())
	assert.Equal(t, int32(1), remote.moveCalls.Load())
}

func TestLookup_Spans(t *testing.T) {
	// Arrange
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	h := newHarness(t, newCharizardRemote(), aggregator.WithTracerProvider(tp))
	ctx := context.Background()

	// Act: a cold lookup, then a processed-tier hit.
	_, err := h.agg.Lookup(ctx, "charizard")
	require.NoError(t, err)
	cold := recorder.Ended()
	_, err = h.agg.Lookup(ctx, "charizard")
	require.NoError(t, err)
	warm := recorder.Ended()[len(cold):]

	// Assert
	byName := make(map[string]sdktrace.ReadOnlySpan, len(cold))
	for _, span := range cold {
		byName[span.Name()] = span
	}
	require.Len(t, cold, 5)
	root, ok := byName["Aggregator.Lookup"]
	require.True(t, ok)
	for _, stage := range []string{"FetchPrimary", "FetchSpecies", "ResolveMovesets", "FetchChain"} {
		span, ok := byName[stage]
		require.True(t, ok, stage)
		assert.Equal(t, root.SpanContext().SpanID(), span.Parent().SpanID(), stage)
	}

	require.Len(t, warm, 1)
	assert.Equal(t, "Aggregator.Lookup", warm[0].Name())
	assert.Contains(t, warm[0].Attributes(), attribute.Bool("processed_hit", true))
}

func TestLookup_ReusesRequestID(t *testing.T) {
	// Arrange
	var logs strings.Builder
	names, err := resolver.New(resolver.StaticLoader("charizard"), zerolog.Nop())
	require.NoError(t, err)
	tiers, err := backend.NewInMemory(zerolog.Nop()).Tiers(backend.DefaultTTLs(), clock.NewMock(), nil, zerolog.Nop())
	require.NoError(t, err)
	agg, err := aggregator.New(names, newCharizardRemote(), tiers, zerolog.New(&logs))
	require.NoError(t, err)
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "host/abc-000001")

	// Act
	_, err = agg.Lookup(ctx, "charizard")

	// Assert
	require.NoError(t, err)
	assert.Contains(t, logs.String(), `"request_id":"host/abc-000001"`)
}

func TestLookup_ResponseDoesNotAliasCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newCharizardRemote())

	first, err := h.agg.Lookup(ctx, "charizard")
	require.NoError(t, err)
	first.Abilities[0] = "mutated"
	first.Stats["hp"] = 0

	second, err := h.agg.Lookup(ctx, "charizard")
	require.NoError(t, err)
	second.Movesets[0].Moves[0] = "mutated"
	third, err := h.agg.Lookup(ctx, "charizard")
	require.NoError(t, err)

	assert.NotEqual(t, "mutated", third.Abilities[0])
	assert.NotEqual(t, 0, third.Stats["hp"])
	assert.NotEqual(t, "mutated", third.Movesets[0].Moves[0])
	assert.Equal(t, int32(1), h.remote.pokemonCalls.Load())
}
