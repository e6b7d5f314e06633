package dex

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// maxMovesPerGroup caps the size of every themed group.
const maxMovesPerGroup = 4

const levelUpMethod = "level-up"

// Moveset is one themed group of moves.
type Moveset struct {
	Label string   `json:"name"`
	Moves []string `json:"moves"`
}

// MoveEntry is one element of an entity's raw move list.
type MoveEntry struct {
	Move                NamedRef             `json:"move"`
	VersionGroupDetails []VersionGroupDetail `json:"version_group_details"`
}

// VersionGroupDetail records how a move is learned in one version group.
type VersionGroupDetail struct {
	LevelLearnedAt  int      `json:"level_learned_at"`
	MoveLearnMethod NamedRef `json:"move_learn_method"`
	VersionGroup    NamedRef `json:"version_group"`
}

type moveListDocument struct {
	Moves []MoveEntry `json:"moves"`
}

// recentVersionGroups are the generation 6+ version groups whose moves are kept.
var recentVersionGroups = []string{
	"sword-shield", "sun-moon", "ultra-sun-ultra-moon",
	"x-y", "omega-ruby-alpha-sapphire", "scarlet-violet",
}

// variantSuffixes are stripped, first match wins, to find a variant's base form.
var variantSuffixes = []string{"-mega", "-gmax", "-mega-x", "-mega-y", "-alola", "-galar", "-hisui"}

type moveTheme struct {
	label    string
	keywords []string
}

// moveThemes are matched in priority order; a move joins the first theme it matches.
var moveThemes = []moveTheme{
	{
		label:    "Physical Attacks",
		keywords: []string{"punch", "claw", "tackle", "slam", "cut", "chop", "bite", "wing", "scratch", "pound", "kick", "dive", "body slam"},
	},
	{
		label:    "Special Attacks",
		keywords: []string{"beam", "pulse", "blast", "flare", "flame", "ember", "wave", "shock", "thunder", "ice", "fire", "water", "surf", "hydro", "rain", "origin"},
	},
	{
		label:    "Status Moves",
		keywords: []string{"dance", "growl", "screech", "roar", "smoke", "rage", "leer", "howl", "sharpen", "defense", "calm", "rest", "protect"},
	},
}

const otherMovesLabel = "Other Moves"

// ParseMoveList decodes the "moves" array of a raw entity document. A document
// without moves yields an empty list.
func ParseMoveList(raw json.RawMessage) ([]MoveEntry, error) {
	var doc moveListDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing move list: %w", err)
	}
	return doc.Moves, nil
}

// BaseVariant strips a known form suffix (mega, gmax, regional) from name.
// Names without such a suffix are returned lower-cased and otherwise unchanged.
func BaseVariant(name string) string {
	name = strings.ToLower(name)
	for _, suffix := range variantSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}

type learnedMove struct {
	name   string
	method string
	level  int
}

// BuildMovesets filters a raw move list to recent games, orders it with
// level-up moves first (by level) and groups the names into themed sets of at
// most four. Empty groups are omitted.
func BuildMovesets(entries []MoveEntry) []Moveset {
	var levelUp, other []learnedMove
	for _, entry := range entries {
		if entry.Move.Name == "" || len(entry.VersionGroupDetails) == 0 {
			continue
		}
		latest := entry.VersionGroupDetails[len(entry.VersionGroupDetails)-1]
		if !isRecentVersionGroup(latest.VersionGroup.Name) {
			continue
		}
		m := learnedMove{
			name:   MoveDisplayName(entry.Move.Name),
			method: latest.MoveLearnMethod.Name,
			level:  latest.LevelLearnedAt,
		}
		if m.method == levelUpMethod {
			levelUp = append(levelUp, m)
		} else {
			other = append(other, m)
		}
	}
	sort.SliceStable(levelUp, func(i, j int) bool { return levelUp[i].level < levelUp[j].level })

	names := make([]string, 0, len(levelUp)+len(other))
	for _, m := range append(levelUp, other...) {
		names = append(names, m.name)
	}
	return groupMoves(names)
}

func groupMoves(names []string) []Moveset {
	grouped := make([][]string, len(moveThemes))
	var rest []string
	for _, name := range names {
		idx := themeOf(name)
		if idx < 0 {
			rest = append(rest, name)
			continue
		}
		grouped[idx] = append(grouped[idx], name)
	}

	sets := make([]Moveset, 0, len(moveThemes)+1)
	for i, theme := range moveThemes {
		if len(grouped[i]) == 0 {
			continue
		}
		sets = append(sets, Moveset{Label: theme.label, Moves: firstN(grouped[i], maxMovesPerGroup)})
	}
	if len(rest) > 0 {
		sets = append(sets, Moveset{Label: otherMovesLabel, Moves: firstN(rest, maxMovesPerGroup)})
	}
	return sets
}

func themeOf(name string) int {
	lower := strings.ToLower(name)
	for i, theme := range moveThemes {
		for _, kw := range theme.keywords {
			if strings.Contains(lower, kw) {
				return i
			}
		}
	}
	return -1
}

func isRecentVersionGroup(group string) bool {
	for _, v := range recentVersionGroups {
		if strings.Contains(group, v) {
			return true
		}
	}
	return false
}

// MoveDisplayName turns an API move name like "thunder-punch" into "Thunder Punch".
func MoveDisplayName(name string) string {
	// A Caser carries state, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(name, "-", " "))
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
