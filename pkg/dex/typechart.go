package dex

// Matchup is the damage multiplier against one opposing type.
type Matchup struct {
	Type       string
	Multiplier int
}

// typeWeaknesses lists, per type, the attacking types it is weak to.
var typeWeaknesses = map[string][]Matchup{
	"normal":   {{"fighting", 2}},
	"fire":     {{"water", 2}, {"ground", 2}, {"rock", 2}},
	"water":    {{"electric", 2}, {"grass", 2}},
	"electric": {{"ground", 2}},
	"grass":    {{"fire", 2}, {"ice", 2}, {"poison", 2}, {"flying", 2}, {"bug", 2}},
	"ice":      {{"fire", 2}, {"fighting", 2}, {"rock", 2}, {"steel", 2}},
	"fighting": {{"flying", 2}, {"psychic", 2}, {"fairy", 2}},
	"poison":   {{"ground", 2}, {"psychic", 2}},
	"ground":   {{"water", 2}, {"grass", 2}, {"ice", 2}},
	"flying":   {{"electric", 2}, {"ice", 2}, {"rock", 2}},
	"psychic":  {{"bug", 2}, {"ghost", 2}, {"dark", 2}},
	"bug":      {{"fire", 2}, {"flying", 2}, {"rock", 2}},
	"rock":     {{"water", 2}, {"grass", 2}, {"fighting", 2}, {"ground", 2}, {"steel", 2}},
	"ghost":    {{"ghost", 2}, {"dark", 2}},
	"dragon":   {{"ice", 2}, {"dragon", 2}, {"fairy", 2}},
	"steel":    {{"fire", 2}, {"fighting", 2}, {"ground", 2}},
	"dark":     {{"fighting", 2}, {"bug", 2}, {"fairy", 2}},
	"fairy":    {{"poison", 2}, {"steel", 2}},
}

// typeStrengths lists, per type, the defending types it hits hard.
var typeStrengths = map[string][]Matchup{
	"normal":   {},
	"fire":     {{"grass", 2}, {"ice", 2}, {"bug", 2}, {"steel", 2}},
	"water":    {{"fire", 2}, {"ground", 2}, {"rock", 2}},
	"electric": {{"water", 2}, {"flying", 2}},
	"grass":    {{"water", 2}, {"ground", 2}, {"rock", 2}},
	"ice":      {{"grass", 2}, {"flying", 2}, {"ground", 2}, {"dragon", 2}},
	"fighting": {{"normal", 2}, {"ice", 2}, {"rock", 2}, {"dark", 2}, {"steel", 2}},
	"poison":   {{"grass", 2}, {"fairy", 2}},
	"ground":   {{"fire", 2}, {"electric", 2}, {"poison", 2}, {"rock", 2}, {"steel", 2}},
	"flying":   {{"grass", 2}, {"fighting", 2}, {"bug", 2}},
	"psychic":  {{"fighting", 2}, {"poison", 2}},
	"bug":      {{"grass", 2}, {"psychic", 2}, {"dark", 2}},
	"rock":     {{"fire", 2}, {"ice", 2}, {"flying", 2}, {"bug", 2}},
	"ghost":    {{"ghost", 2}, {"psychic", 2}},
	"dragon":   {{"dragon", 2}},
	"steel":    {{"ice", 2}, {"rock", 2}, {"fairy", 2}},
	"dark":     {{"ghost", 2}, {"psychic", 2}},
	"fairy":    {{"fighting", 2}, {"dragon", 2}, {"dark", 2}},
}

// matchupSet is an insertion-ordered map of opposing type to multiplier.
// Re-adding a type overwrites its multiplier but keeps its position.
type matchupSet struct {
	order []string
	mult  map[string]int
}

func newMatchupSet() *matchupSet {
	return &matchupSet{mult: make(map[string]int)}
}

func (s *matchupSet) merge(matchups []Matchup) {
	for _, m := range matchups {
		if _, ok := s.mult[m.Type]; !ok {
			s.order = append(s.order, m.Type)
		}
		s.mult[m.Type] = m.Multiplier
	}
}

func (s *matchupSet) types() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// TypeMatchups unions the strength and weakness tables of every type in
// types, in order. When two types share an opposing type, the later type's
// multiplier replaces the earlier one.
func TypeMatchups(types []string) (strongAgainst, weakAgainst []string) {
	strengths, weaknesses := newMatchupSet(), newMatchupSet()
	for _, t := range types {
		weaknesses.merge(typeWeaknesses[t])
		strengths.merge(typeStrengths[t])
	}
	return strengths.types(), weaknesses.types()
}
