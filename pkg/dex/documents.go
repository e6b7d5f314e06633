package dex

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// artworkPath locates the official artwork inside a raw entity document.
const artworkPath = "sprites.other.official-artwork.front_default"

// NamedRef is the {name, url} reference shape used throughout the remote API.
type NamedRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Pokemon is the parsed view of a primary entity document.
type Pokemon struct {
	ID         int
	Name       string
	Weight     int
	Height     int
	Types      []string
	Stats      []Stat
	Abilities  []string
	Species    string
	ArtworkURL string
}

// Stat is one base stat of an entity.
type Stat struct {
	Name  string
	Value int
}

// Species is the parsed view of a species document.
type Species struct {
	Name              string
	EvolutionChainURL string
	Varieties         []string
}

// pokemonDocument is the raw JSON from GET /pokemon/{name}.
type pokemonDocument struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Weight int    `json:"weight"`
	Height int    `json:"height"`
	Types  []struct {
		Slot int      `json:"slot"`
		Type NamedRef `json:"type"`
	} `json:"types"`
	Stats []struct {
		BaseStat int      `json:"base_stat"`
		Stat     NamedRef `json:"stat"`
	} `json:"stats"`
	Abilities []struct {
		Ability NamedRef `json:"ability"`
	} `json:"abilities"`
	Species NamedRef `json:"species"`
}

// speciesDocument is the raw JSON from GET /pokemon-species/{name}.
type speciesDocument struct {
	Name           string   `json:"name"`
	EvolutionChain NamedRef `json:"evolution_chain"`
	Varieties      []struct {
		IsDefault bool     `json:"is_default"`
		Pokemon   NamedRef `json:"pokemon"`
	} `json:"varieties"`
}

// ParsePokemon decodes a raw primary entity document.
func ParsePokemon(raw json.RawMessage) (Pokemon, error) {
	var doc pokemonDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Pokemon{}, fmt.Errorf("parsing pokemon document: %w", err)
	}
	p := Pokemon{
		ID:         doc.ID,
		Name:       doc.Name,
		Weight:     doc.Weight,
		Height:     doc.Height,
		Species:    doc.Species.Name,
		ArtworkURL: gjson.GetBytes(raw, artworkPath).String(),
	}
	for _, t := range doc.Types {
		p.Types = append(p.Types, t.Type.Name)
	}
	for _, s := range doc.Stats {
		p.Stats = append(p.Stats, Stat{Name: s.Stat.Name, Value: s.BaseStat})
	}
	for _, a := range doc.Abilities {
		p.Abilities = append(p.Abilities, a.Ability.Name)
	}
	if p.Species == "" {
		p.Species = p.Name
	}
	return p, nil
}

// ParseSpecies decodes a raw species document.
func ParseSpecies(raw json.RawMessage) (Species, error) {
	var doc speciesDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Species{}, fmt.Errorf("parsing species document: %w", err)
	}
	s := Species{
		Name:              doc.Name,
		EvolutionChainURL: doc.EvolutionChain.URL,
	}
	for _, v := range doc.Varieties {
		s.Varieties = append(s.Varieties, v.Pokemon.Name)
	}
	return s, nil
}

// ChainID extracts the numeric id from an evolution chain reference such as
// https://pokeapi.co/api/v2/evolution-chain/67/.
func ChainID(ref string) (int, error) {
	trimmed := strings.TrimRight(ref, "/")
	idx := strings.LastIndex(trimmed, "/")
	id, err := strconv.Atoi(trimmed[idx+1:])
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid evolution chain reference %q", ref)
	}
	return id, nil
}
