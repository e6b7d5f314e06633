package dex

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

const animatedSpriteURL = "https://raw.githubusercontent.com/PokeAPI/sprites/master/sprites/pokemon/versions/generation-v/black-white/animated/%d.gif"

// Response is the merged document returned for a lookup.
type Response struct {
	Name          string         `json:"name"`
	ID            int            `json:"id"`
	Details       Details        `json:"details"`
	Evolution     Evolution      `json:"evolution"`
	Stats         map[string]int `json:"stats"`
	Abilities     []string       `json:"abilities"`
	Movesets      []Moveset      `json:"movesets"`
	Effectiveness Effectiveness  `json:"effectiveness"`
}

// Details carries the unit-normalized physical attributes and images.
type Details struct {
	Type             string  `json:"type"`
	Weight           float64 `json:"weight"`
	Height           float64 `json:"height"`
	PreviewImageURL  string  `json:"preview_image_url"`
	AnimatedImageURL string  `json:"animated_image_url"`
}

// Evolution lists the evolution line and the alternate forms.
type Evolution struct {
	Chain []string `json:"chain"`
	Forms []string `json:"forms"`
}

// Effectiveness lists the opposing types this entity hits hard and is weak to.
type Effectiveness struct {
	StrongAgainst []string `json:"strong_against"`
	WeakAgainst   []string `json:"weak_against"`
}

// Clone returns a deep copy, so a response handed to a caller never aliases a
// cached one.
func (r Response) Clone() Response {
	out := r
	out.Evolution.Chain = slices.Clone(r.Evolution.Chain)
	out.Evolution.Forms = slices.Clone(r.Evolution.Forms)
	out.Stats = maps.Clone(r.Stats)
	out.Abilities = slices.Clone(r.Abilities)
	out.Effectiveness.StrongAgainst = slices.Clone(r.Effectiveness.StrongAgainst)
	out.Effectiveness.WeakAgainst = slices.Clone(r.Effectiveness.WeakAgainst)
	if r.Movesets != nil {
		out.Movesets = make([]Moveset, len(r.Movesets))
		for i, m := range r.Movesets {
			out.Movesets[i] = Moveset{Label: m.Label, Moves: slices.Clone(m.Moves)}
		}
	}
	return out
}

// Merge assembles a Response from already-fetched parts. It does no I/O.
func Merge(p Pokemon, s Species, chain ChainNode, movesets []Moveset) Response {
	types := make([]string, len(p.Types))
	for i, t := range p.Types {
		types[i] = Capitalize(t)
	}

	stats := make(map[string]int, len(p.Stats))
	for _, st := range p.Stats {
		stats[st.Name] = st.Value
	}

	abilities := make([]string, len(p.Abilities))
	for i, a := range p.Abilities {
		abilities[i] = Capitalize(a)
	}

	chainNames := Walk(chain)
	for i, n := range chainNames {
		chainNames[i] = TitleCase(n)
	}

	forms := make([]string, len(s.Varieties))
	for i, v := range s.Varieties {
		forms[i] = TitleCase(v)
	}

	if movesets == nil {
		movesets = []Moveset{}
	}

	strong, weak := TypeMatchups(p.Types)

	return Response{
		Name: DisplayName(p.Name),
		ID:   p.ID,
		Details: Details{
			Type:             strings.Join(types, "\n"),
			Weight:           float64(p.Weight) / 10,
			Height:           float64(p.Height) / 10,
			PreviewImageURL:  p.ArtworkURL,
			AnimatedImageURL: fmt.Sprintf(animatedSpriteURL, p.ID),
		},
		Evolution: Evolution{
			Chain: chainNames,
			Forms: forms,
		},
		Stats:     stats,
		Abilities: abilities,
		Movesets:  movesets,
		Effectiveness: Effectiveness{
			StrongAgainst: strong,
			WeakAgainst:   weak,
		},
	}
}
