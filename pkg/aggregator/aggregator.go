// Package aggregator turns a fuzzy name into a merged response, reading each
// resource through its cache tier and fetching only what is missing or stale.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-dexcache/pkg/backend"
	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/illmade-knight/go-dexcache/pkg/aggregator"

// NameResolver maps a query onto a canonical name.
type NameResolver interface {
	Resolve(query string) (string, error)
}

// Remote is the upstream document provider.
type Remote interface {
	Pokemon(ctx context.Context, name string) (json.RawMessage, error)
	Species(ctx context.Context, name string) (json.RawMessage, error)
	EvolutionChain(ctx context.Context, id int) (json.RawMessage, error)
	MoveList(ctx context.Context, name string) (json.RawMessage, error)
}

// Aggregator runs the lookup pipeline.
type Aggregator struct {
	names    NameResolver
	tiers    *backend.Tiers
	pokemon  *ResourceFetcher[string, json.RawMessage]
	species  *ResourceFetcher[string, json.RawMessage]
	chains   *ResourceFetcher[int, json.RawMessage]
	movesets *MovesetResolver
	tracer   trace.Tracer
	logger   zerolog.Logger
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithTracerProvider traces lookups with tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(a *Aggregator) {
		a.tracer = tp.Tracer(tracerName)
	}
}

// New wires the fetchers for each resource kind onto tiers.
func New(names NameResolver, remote Remote, tiers *backend.Tiers, logger zerolog.Logger, opts ...Option) (*Aggregator, error) {
	if names == nil {
		return nil, fmt.Errorf("name resolver cannot be nil")
	}
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if tiers == nil {
		return nil, fmt.Errorf("tiers cannot be nil")
	}

	pokemon, err := NewResourceFetcher[string, json.RawMessage](tiers.Pokemon, remote.Pokemon, logger)
	if err != nil {
		return nil, fmt.Errorf("pokemon fetcher: %w", err)
	}
	species, err := NewResourceFetcher[string, json.RawMessage](tiers.Species, remote.Species, logger)
	if err != nil {
		return nil, fmt.Errorf("species fetcher: %w", err)
	}
	chains, err := NewResourceFetcher[int, json.RawMessage](tiers.Chains, remote.EvolutionChain, logger)
	if err != nil {
		return nil, fmt.Errorf("chain fetcher: %w", err)
	}
	movesets, err := NewMovesetResolver(tiers.Movesets, remote.MoveList, logger)
	if err != nil {
		return nil, fmt.Errorf("moveset resolver: %w", err)
	}

	a := &Aggregator{
		names:    names,
		tiers:    tiers,
		pokemon:  pokemon,
		species:  species,
		chains:   chains,
		movesets: movesets,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With().Str("component", "Aggregator").Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Lookup resolves query and returns the merged response. A fresh processed
// record is returned without touching any other tier or the remote provider.
// Failures to resolve the name or fetch the entity, species or chain are
// returned; a failed moveset fetch yields an empty moveset list. The returned
// response is the caller's own copy.
func (a *Aggregator) Lookup(ctx context.Context, query string) (_ *dex.Response, err error) {
	ctx, span := a.tracer.Start(ctx, "Aggregator.Lookup", trace.WithAttributes(attribute.String("query", query)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	logger := a.logger.With().Str("request_id", requestID(ctx)).Str("query", query).Logger()

	name, err := a.names.Resolve(query)
	if err != nil {
		logger.Info().Err(err).Msg("Could not resolve name.")
		return nil, fmt.Errorf("resolving %q: %w", query, err)
	}
	span.SetAttributes(attribute.String("name", name))
	logger = logger.With().Str("name", name).Logger()

	if cached, ok := a.tiers.Processed.Lookup(ctx, name); ok {
		span.SetAttributes(attribute.Bool("processed_hit", true))
		logger.Debug().Msg("Serving processed response from cache.")
		resp := cached.Clone()
		return &resp, nil
	}

	resp, err := a.build(ctx, name)
	if err != nil {
		logger.Error().Err(err).Msg("Lookup failed.")
		return nil, err
	}

	// A failed save is logged by the tier and does not fail the request.
	_ = a.tiers.Processed.Save(ctx, name, resp.Clone())
	logger.Info().Msg("Successfully assembled response.")
	return resp, nil
}

func (a *Aggregator) build(ctx context.Context, name string) (*dex.Response, error) {
	rawPokemon, err := stage(ctx, a.tracer, "FetchPrimary", func(ctx context.Context) (json.RawMessage, error) {
		return a.pokemon.Fetch(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	pokemon, err := dex.ParsePokemon(rawPokemon)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", name, err)
	}

	var (
		rawSpecies json.RawMessage
		movesets   []dex.Moveset
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rawSpecies, err = stage(gctx, a.tracer, "FetchSpecies", func(ctx context.Context) (json.RawMessage, error) {
			return a.species.Fetch(ctx, pokemon.Species)
		})
		return err
	})
	g.Go(func() error {
		movesets, _ = stage(gctx, a.tracer, "ResolveMovesets", func(ctx context.Context) ([]dex.Moveset, error) {
			return a.movesets.Resolve(ctx, name), nil
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	species, err := dex.ParseSpecies(rawSpecies)
	if err != nil {
		return nil, fmt.Errorf("parsing species %s: %w", pokemon.Species, err)
	}
	chainID, err := dex.ChainID(species.EvolutionChainURL)
	if err != nil {
		return nil, fmt.Errorf("species %s: %w", pokemon.Species, err)
	}

	rawChain, err := stage(ctx, a.tracer, "FetchChain", func(ctx context.Context) (json.RawMessage, error) {
		return a.chains.Fetch(ctx, chainID)
	})
	if err != nil {
		return nil, err
	}
	chain, err := dex.ParseChain(rawChain)
	if err != nil {
		return nil, fmt.Errorf("parsing chain %d: %w", chainID, err)
	}

	resp := dex.Merge(pokemon, species, chain, movesets)
	return &resp, nil
}

// stage runs fn inside a child span.
func stage[V any](ctx context.Context, tracer trace.Tracer, name string, fn func(context.Context) (V, error)) (V, error) {
	ctx, span := tracer.Start(ctx, name)
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return v, err
}

// requestID reuses the HTTP request id when there is one.
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
