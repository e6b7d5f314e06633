package aggregator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dexcache/pkg/cache"
	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/rs/zerolog"
)

// MovesetResolver produces the grouped movesets for an entity. It never
// fails: a missing or broken move list yields no groups.
type MovesetResolver struct {
	tier   *cache.Tier[string, []dex.Moveset]
	source SourceFunc[string, json.RawMessage]
	logger zerolog.Logger
}

// NewMovesetResolver creates a resolver over the moveset tier.
func NewMovesetResolver(
	tier *cache.Tier[string, []dex.Moveset],
	source SourceFunc[string, json.RawMessage],
	logger zerolog.Logger,
) (*MovesetResolver, error) {
	if tier == nil {
		return nil, fmt.Errorf("tier cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	return &MovesetResolver{
		tier:   tier,
		source: source,
		logger: logger.With().Str("component", "MovesetResolver").Logger(),
	}, nil
}

// Resolve looks up name, then its base variant, then the remote move list.
// A base variant hit is copied under name so the next lookup is direct.
func (m *MovesetResolver) Resolve(ctx context.Context, name string) []dex.Moveset {
	logger := m.logger.With().Str("key", name).Logger()

	if movesets, ok := m.cached(ctx, name); ok {
		logger.Debug().Msg("Movesets cache hit.")
		return movesets
	}

	if base := dex.BaseVariant(name); base != name {
		if movesets, ok := m.cached(ctx, base); ok {
			logger.Debug().Str("base", base).Msg("Using movesets of base variant.")
			_ = m.tier.Save(ctx, name, movesets)
			return movesets
		}
	}

	raw, err := m.source(ctx, name)
	if err != nil {
		logger.Warn().Err(err).Msg("Move list unavailable, continuing without movesets.")
		return []dex.Moveset{}
	}
	entries, err := dex.ParseMoveList(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("Move list unreadable, continuing without movesets.")
		return []dex.Moveset{}
	}

	movesets := dex.BuildMovesets(entries)
	if len(movesets) > 0 {
		_ = m.tier.Save(ctx, name, movesets)
	}
	return movesets
}

// cached treats an empty stored list as a miss.
func (m *MovesetResolver) cached(ctx context.Context, key string) ([]dex.Moveset, bool) {
	movesets, ok := m.tier.Lookup(ctx, key)
	if !ok || len(movesets) == 0 {
		return nil, false
	}
	return movesets, true
}
