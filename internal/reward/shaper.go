// Package reward turns decoded game state into a potential and emits the
// step-to-step change of that potential as the reward.
package reward

import (
	"fmt"

	"github.com/zyedidia/generic/mapset"

	"gbgym.ai/internal/ram"
)

// Maps where exploration is weighted up while the matching story arc is open.
var (
	pokeTowerMaps   = setOf(142, 143, 144, 145, 146, 147, 148)
	pokeHideoutMaps = setOf(199, 200, 201, 202, 203, 135)
	silphCoMaps     = setOf(181, 207, 208, 209, 210, 211, 212, 213, 233, 234, 235, 236)
)

func setOf(ids ...int) mapset.Set[int] {
	s := mapset.New[int]()
	for _, id := range ids {
		s.Put(id)
	}
	return s
}

type coord struct {
	row, col, mapID int
}

// Breakdown is the per-term value of the last computed potential, before
// the global scale is applied.
type Breakdown struct {
	Exploration float64 `json:"exploration"`
	Level       float64 `json:"level"`
	Healing     float64 `json:"healing"`
	Cut         float64 `json:"cut"`
	HM          float64 `json:"hm"`
	Events      float64 `json:"events"`
	Seen        float64 `json:"seen"`
	Caught      float64 `json:"caught"`
	Moves       float64 `json:"moves"`
}

func (b Breakdown) Sum() float64 {
	return b.Exploration + b.Level + b.Healing + b.Cut + b.HM + b.Events + b.Seen + b.Caught + b.Moves
}

// Stats is the end-of-episode summary.
type Stats struct {
	Badges      int `json:"badges"`
	PartySize   int `json:"party_size"`
	MaxLevelSum int `json:"max_level_sum"`
	Deaths      int `json:"deaths"`
	SeenCoords  int `json:"seen_coords"`
	SeenMaps    int `json:"seen_maps"`
	Moves       int `json:"moves_obtained"`
}

// Shaper holds one episode's reward state. Create one per environment; it is
// not safe for concurrent use.
type Shaper struct {
	cfg Config

	coords mapset.Set[coord]
	maps   mapset.Set[int]
	moves  mapset.Set[uint8]
	seen   [ram.PokedexSpecies]bool
	caught [ram.PokedexSpecies]bool

	maxLevelSum   int
	totalHealing  float64
	lastHP        float64
	lastPartySize int
	deaths        int
	dead          bool
	cut           bool
	hm            bool
	badges        int

	last          Breakdown
	lastPotential float64
	hasPotential  bool
}

func New(cfg Config) (*Shaper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Shaper{cfg: cfg}
	s.Reset()
	return s, nil
}

func (s *Shaper) Config() Config { return s.cfg }

// Reset clears all episode state. The next Update returns zero.
func (s *Shaper) Reset() {
	cfg := s.cfg
	*s = Shaper{
		cfg:           cfg,
		coords:        mapset.New[coord](),
		maps:          mapset.New[int](),
		moves:         mapset.New[uint8](),
		lastHP:        1.0,
		lastPartySize: 1,
	}
}

// Update folds the snapshot into the episode state and returns the change
// in potential since the previous Update. The first Update after Reset only
// records the baseline and returns zero.
func (s *Shaper) Update(mem []byte) float64 {
	b := s.observe(mem)
	p := s.cfg.Scale * b.Sum()
	s.last = b

	if !s.hasPotential {
		s.lastPotential = p
		s.hasPotential = true
		return 0
	}
	delta := p - s.lastPotential
	s.lastPotential = p
	return delta
}

// Potential is the potential computed by the last Update.
func (s *Shaper) Potential() float64 { return s.lastPotential }

func (s *Shaper) Breakdown() Breakdown { return s.last }

func (s *Shaper) Stats() Stats {
	return Stats{
		Badges:      s.badges,
		PartySize:   s.lastPartySize,
		MaxLevelSum: s.maxLevelSum,
		Deaths:      s.deaths,
		SeenCoords:  s.coords.Size(),
		SeenMaps:    s.maps.Size(),
		Moves:       s.moves.Size(),
	}
}

func (s *Shaper) String() string {
	st := s.Stats()
	return fmt.Sprintf("coords=%d maps=%d levels=%d deaths=%d moves=%d potential=%.3f",
		st.SeenCoords, st.SeenMaps, st.MaxLevelSum, st.Deaths, st.Moves, s.lastPotential)
}

func (s *Shaper) observe(mem []byte) Breakdown {
	cfg := s.cfg
	var b Breakdown

	pos := ram.ReadPosition(mem)
	s.coords.Put(coord{row: pos.Row, col: pos.Col, mapID: pos.Map})
	s.maps.Put(pos.Map)
	b.Exploration = s.exploreWeight(mem, pos.Map) * float64(s.coords.Size())

	s.maxLevelSum = max(s.maxLevelSum, ram.LevelSum(mem))
	b.Level = s.levelTerm()

	s.observeHP(ram.HPFraction(mem), ram.PartySize(mem))
	b.Healing = s.totalHealing

	if !s.hm && ram.HMCount(mem) >= 1 {
		s.hm = true
	}
	if !s.cut && ram.ReadBit(mem, ram.FlagCutLearned.Addr, ram.FlagCutLearned.Bit) {
		s.cut = true
	}
	if s.hm {
		b.HM = cfg.HMWeight
	}
	if s.cut {
		b.Cut = cfg.CutWeight
	}

	b.Events = cfg.EventWeight * float64(ram.EventTotal(mem))

	seen, caught := 0, 0
	for i := range s.seen {
		s.seen[i] = ram.PokedexSeen(mem, i)
		s.caught[i] = ram.PokedexCaught(mem, i)
		if s.seen[i] {
			seen++
		}
		if s.caught[i] {
			caught++
		}
	}
	b.Seen = cfg.SeenWeight * float64(seen)
	b.Caught = cfg.CaughtWeight * float64(caught)

	ram.PartyMoves(mem, s.moves.Put)
	b.Moves = cfg.MoveWeight * float64(s.moves.Size())

	s.badges = ram.Badges(mem)
	return b
}

// exploreWeight picks the per-coordinate exploration weight from the story
// arc in progress: the open arc's own maps are weighted up and, before the
// hideout is cleared, the tower earns nothing.
func (s *Shaper) exploreWeight(mem []byte, mapID int) float64 {
	base, focus := s.cfg.ExploreWeight, s.cfg.ExploreFocusWeight
	done := func(f ram.Flag) bool { return ram.ReadBit(mem, f.Addr, f.Bit) }

	switch {
	case !done(ram.FlagHideoutDone):
		if pokeTowerMaps.Has(mapID) {
			return 0
		}
		if pokeHideoutMaps.Has(mapID) {
			return focus
		}
	case !done(ram.FlagTowerDone):
		if pokeTowerMaps.Has(mapID) {
			return focus
		}
	case !done(ram.FlagFluteGotten):
	case !done(ram.FlagSilphDone):
		if silphCoMaps.Has(mapID) {
			return focus
		}
	}
	return base
}

func (s *Shaper) levelTerm() float64 {
	capped := min(s.cfg.LevelCap, s.maxLevelSum)
	over := max(0, s.maxLevelSum-s.cfg.LevelCap)
	return float64(capped) + float64(over)/s.cfg.LevelOvercapDivisor
}

// observeHP credits healing only when the party did not change size and the
// party was not just wiped, so a fresh party member or a revival never counts.
// partySize is the clamped 0..6 count: two garbage counts above six compare
// equal.
func (s *Shaper) observeHP(hp float64, partySize int) {
	delta := hp - s.lastHP
	if delta > s.cfg.HealThreshold && partySize == s.lastPartySize && !s.dead {
		s.totalHealing += delta
	}
	if hp <= 0 && s.lastHP > 0 {
		s.deaths++
		s.dead = true
	} else if hp > s.cfg.DeadEpsilon {
		s.dead = false
	}
	s.lastHP = hp
	s.lastPartySize = partySize
}
