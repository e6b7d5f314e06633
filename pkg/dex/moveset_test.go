package dex_test

import (
	"encoding/json"
	"testing"

	"github.com/illmade-knight/go-dexcache/pkg/dex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// move builds a raw move entry whose latest version group detail is the given one.
func move(name, method string, level int, versionGroup string) dex.MoveEntry {
	return dex.MoveEntry{
		Move: dex.NamedRef{Name: name},
		VersionGroupDetails: []dex.VersionGroupDetail{
			{LevelLearnedAt: 1, MoveLearnMethod: dex.NamedRef{Name: "machine"}, VersionGroup: dex.NamedRef{Name: "red-blue"}},
			{LevelLearnedAt: level, MoveLearnMethod: dex.NamedRef{Name: method}, VersionGroup: dex.NamedRef{Name: versionGroup}},
		},
	}
}

func TestBuildMovesets(t *testing.T) {
	t.Run("One move per theme yields three groups in priority order", func(t *testing.T) {
		// Arrange
		entries := []dex.MoveEntry{
			move("flame-thrower", "level-up", 10, "sword-shield"),
			move("body-slam", "level-up", 5, "sword-shield"),
			move("calm-mind", "machine", 0, "scarlet-violet"),
		}

		// Act
		sets := dex.BuildMovesets(entries)

		// Assert
		require.Len(t, sets, 3)
		assert.Equal(t, dex.Moveset{Label: "Physical Attacks", Moves: []string{"Body Slam"}}, sets[0])
		assert.Equal(t, dex.Moveset{Label: "Special Attacks", Moves: []string{"Flame Thrower"}}, sets[1])
		assert.Equal(t, dex.Moveset{Label: "Status Moves", Moves: []string{"Calm Mind"}}, sets[2])
	})

	t.Run("Old version groups are dropped", func(t *testing.T) {
		entries := []dex.MoveEntry{
			move("tackle", "level-up", 1, "red-blue"),
			{Move: dex.NamedRef{Name: "growl"}},
		}

		assert.Empty(t, dex.BuildMovesets(entries))
	})

	t.Run("Level-up moves sort by level and other methods follow in order", func(t *testing.T) {
		// Arrange: every move lands in the residual group so order is easy to read.
		entries := []dex.MoveEntry{
			move("substitute", "machine", 0, "sword-shield"),
			move("metronome", "level-up", 30, "sword-shield"),
			move("toxic", "tutor", 0, "x-y"),
			move("splash", "level-up", 1, "sun-moon"),
			move("swift", "level-up", 30, "sun-moon"),
		}

		// Act
		sets := dex.BuildMovesets(entries)

		// Assert
		require.Len(t, sets, 1)
		assert.Equal(t, "Other Moves", sets[0].Label)
		assert.Equal(t, []string{"Splash", "Metronome", "Swift", "Substitute"}, sets[0].Moves)
	})

	t.Run("Groups are capped at four and a move joins only its first theme", func(t *testing.T) {
		entries := []dex.MoveEntry{
			move("ice-punch", "level-up", 1, "sword-shield"),
			move("fire-punch", "level-up", 2, "sword-shield"),
			move("thunder-punch", "level-up", 3, "sword-shield"),
			move("mega-punch", "level-up", 4, "sword-shield"),
			move("comet-punch", "level-up", 5, "sword-shield"),
			move("ember", "level-up", 6, "sword-shield"),
		}

		sets := dex.BuildMovesets(entries)

		require.Len(t, sets, 2)
		assert.Equal(t, []string{"Ice Punch", "Fire Punch", "Thunder Punch", "Mega Punch"}, sets[0].Moves)
		assert.Equal(t, []string{"Ember"}, sets[1].Moves)
	})
}

func TestParseMoveList(t *testing.T) {
	raw := json.RawMessage(`{"name":"pikachu","moves":[{"move":{"name":"thunder-shock"},"version_group_details":[{"level_learned_at":1,"move_learn_method":{"name":"level-up"},"version_group":{"name":"scarlet-violet"}}]}]}`)

	entries, err := dex.ParseMoveList(raw)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "thunder-shock", entries[0].Move.Name)
	assert.Equal(t, "scarlet-violet", entries[0].VersionGroupDetails[0].VersionGroup.Name)

	entries, err = dex.ParseMoveList(json.RawMessage(`{"name":"ditto"}`))
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = dex.ParseMoveList(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestBaseVariant(t *testing.T) {
	cases := map[string]string{
		"venusaur-mega":    "venusaur",
		"Charizard-Mega-X": "charizard",
		"pikachu-gmax":     "pikachu",
		"vulpix-alola":     "vulpix",
		"zigzagoon-galar":  "zigzagoon",
		"growlithe-hisui":  "growlithe",
		"pikachu":          "pikachu",
	}
	for in, want := range cases {
		assert.Equal(t, want, dex.BaseVariant(in), in)
	}
}
