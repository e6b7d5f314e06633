// Package resolver maps free-text queries onto the known entity names.
package resolver

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/rs/zerolog"
)

// MinSimilarity is the lowest score a candidate may have and still match.
const MinSimilarity = 0.6

// ErrNamesUnavailable is returned when no name list could be loaded.
var ErrNamesUnavailable = errors.New("known names unavailable")

// NameLoader produces the ordered list of known names.
type NameLoader func() ([]string, error)

type namesFile struct {
	Pokemon []struct {
		Name string `json:"name"`
	} `json:"pokemon"`
}

// FileLoader reads names from a JSON file of the form
// {"pokemon":[{"name":"bulbasaur"}, ...]}.
func FileLoader(path string) NameLoader {
	return func() ([]string, error) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading names file: %w", err)
		}
		var f namesFile
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding names file %s: %w", path, err)
		}
		names := make([]string, 0, len(f.Pokemon))
		for _, p := range f.Pokemon {
			if p.Name != "" {
				names = append(names, p.Name)
			}
		}
		return names, nil
	}
}

// StaticLoader returns a fixed name list.
func StaticLoader(names ...string) NameLoader {
	return func() ([]string, error) {
		return names, nil
	}
}

// Resolver finds the closest known name for a query. The name list is loaded
// on first use and reloaded only while it is still empty.
type Resolver struct {
	mu     sync.RWMutex
	names  []string
	folded []string
	load   NameLoader
	logger zerolog.Logger
}

// New creates a Resolver. Call Load at startup to populate it eagerly.
func New(load NameLoader, logger zerolog.Logger) (*Resolver, error) {
	if load == nil {
		return nil, fmt.Errorf("name loader cannot be nil")
	}
	return &Resolver{
		load:   load,
		logger: logger.With().Str("component", "NameResolver").Logger(),
	}, nil
}

// Load populates the name list if it is empty. A failed load leaves the
// resolver empty so the next request tries again.
func (r *Resolver) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadLocked()
}

func (r *Resolver) loadLocked() error {
	if len(r.names) > 0 {
		return nil
	}
	names, err := r.load()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to load known names.")
		return fmt.Errorf("%w: %v", ErrNamesUnavailable, err)
	}
	if len(names) == 0 {
		r.logger.Warn().Msg("Name loader returned no names.")
		return ErrNamesUnavailable
	}
	folded := make([]string, len(names))
	for i, n := range names {
		folded[i] = strings.ToLower(n)
	}
	r.names, r.folded = names, folded
	r.logger.Info().Int("count", len(names)).Msg("Successfully loaded known names.")
	return nil
}

// Len reports how many names are loaded.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

func (r *Resolver) snapshot() ([]string, []string, error) {
	r.mu.RLock()
	names, folded := r.names, r.folded
	r.mu.RUnlock()
	if len(names) > 0 {
		return names, folded, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.loadLocked(); err != nil {
		return nil, nil, err
	}
	return r.names, r.folded, nil
}

// Resolve returns the known name most similar to query. Comparison ignores
// case; among equal scores the earliest name in the list wins. A query with no
// candidate scoring at least MinSimilarity returns an error wrapping
// dex.ErrNotFound.
func (r *Resolver) Resolve(query string) (string, error) {
	names, folded, err := r.snapshot()
	if err != nil {
		return "", err
	}

	q := strings.ToLower(strings.TrimSpace(query))
	matcher := difflib.NewMatcher(nil, splitChars(q))

	best, bestScore := -1, 0.0
	for i, candidate := range folded {
		if candidate == q {
			return names[i], nil
		}
		matcher.SetSeq1(splitChars(candidate))
		if matcher.RealQuickRatio() < MinSimilarity || matcher.QuickRatio() < MinSimilarity {
			continue
		}
		if score := matcher.Ratio(); score >= MinSimilarity && score > bestScore {
			best, bestScore = i, score
		}
	}

	if best < 0 {
		return "", fmt.Errorf("no close match for %q: %w", query, dex.ErrNotFound)
	}
	r.logger.Debug().Str("query", query).Str("match", names[best]).Float64("score", bestScore).Msg("Resolved name.")
	return names[best], nil
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
