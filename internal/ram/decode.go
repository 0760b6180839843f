// Package ram decodes a flat Game Boy memory snapshot into the game
// quantities the environment rewards and observes. Every function is pure
// and total: short snapshots read as zero and out-of-range values are
// clamped.
package ram

import "math/bits"

// Position is the player's tile coordinate on the current map.
type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
	Map int `json:"map"`
}

func at(mem []byte, addr uint16) byte {
	if int(addr) >= len(mem) {
		return 0
	}
	return mem[addr]
}

func u16(mem []byte, addr uint16) int {
	return int(at(mem, addr))<<8 | int(at(mem, addr+1))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ReadBit reports whether bit of the byte at addr is set.
func ReadBit(mem []byte, addr uint16, bit uint8) bool {
	return at(mem, addr)>>bit&1 == 1
}

func ReadPosition(mem []byte) Position {
	return Position{
		Row: clamp(int(at(mem, PlayerYAddr)), 0, MaxCoord),
		Col: clamp(int(at(mem, PlayerXAddr)), 0, MaxCoord),
		Map: clamp(int(at(mem, MapAddr)), MinMapID, MaxMapID),
	}
}

// PartySize is the party count byte clamped to 0..6. Garbage counts above six
// read as a full party.
func PartySize(mem []byte) int {
	return clamp(int(at(mem, PartySizeAddr)), 0, len(PartyLevelAddrs))
}

// LevelSum is the sum of the six party slot levels; empty slots read zero.
func LevelSum(mem []byte) int {
	s := 0
	for _, a := range PartyLevelAddrs {
		s += int(at(mem, a))
	}
	return s
}

// HPFraction is the party's current HP over its max HP. An empty party (zero
// total max HP) reads as full health.
func HPFraction(mem []byte) float64 {
	hp, max := 0, 0
	for i := range PartyHPAddrs {
		hp += u16(mem, PartyHPAddrs[i])
		max += u16(mem, PartyMaxHPAddrs[i])
	}
	if max == 0 {
		return 1.0
	}
	return float64(hp) / float64(max)
}

func Badges(mem []byte) int {
	return bits.OnesCount8(at(mem, BadgesAddr))
}

// BagItems lists item IDs in the bag up to the first empty or terminator
// slot. Item entries are (id, quantity) pairs.
func BagItems(mem []byte) []uint8 {
	var items []uint8
	for i := 0; i < BagMaxItems; i++ {
		id := at(mem, BagItemsAddr+uint16(2*i))
		if id == 0 || id == 0xFF {
			break
		}
		items = append(items, id)
	}
	return items
}

// HMCount is the number of distinct HM items held in the bag.
func HMCount(mem []byte) int {
	var held [len(HMItemIDs)]bool
	for i := 0; i < BagMaxItems; i++ {
		id := at(mem, BagItemsAddr+uint16(2*i))
		if id == 0 || id == 0xFF {
			break
		}
		for j, hm := range HMItemIDs {
			if id == hm {
				held[j] = true
			}
		}
	}
	n := 0
	for _, h := range held {
		if h {
			n++
		}
	}
	return n
}

// PokedexSeen reports whether species index i (0-based) is marked seen.
func PokedexSeen(mem []byte, i int) bool {
	return pokedexBit(mem, PokedexSeenAddr, i)
}

func PokedexCaught(mem []byte, i int) bool {
	return pokedexBit(mem, PokedexCaughtAddr, i)
}

func pokedexBit(mem []byte, base uint16, i int) bool {
	if i < 0 || i >= PokedexSpecies || i/8 >= PokedexBytes {
		return false
	}
	return ReadBit(mem, base+uint16(i/8), uint8(i%8))
}

// PartyMoves calls fn for every nonzero move ID of every occupied party slot.
func PartyMoves(mem []byte, fn func(move uint8)) {
	for _, base := range PartySlotAddrs {
		if at(mem, base) == 0 {
			continue
		}
		for j := uint16(0); j < 4; j++ {
			if m := at(mem, base+slotMovesOffset+j); m != 0 {
				fn(m)
			}
		}
	}
}
