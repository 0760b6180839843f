package ram

// Event flag weights.
const (
	GymLeader  = 5
	GymTrainer = 2
	GymTask    = 2
	Trainer    = 1
	HM         = 5
	TM         = 2
	Task       = 2
	Pokemon    = 3
	Item       = 5
	BillCapt   = 5
	Rival      = 3
	Quest      = 5
	Event      = 1
	Bad        = -1
)

// Flag is one event bit. Weight is only meaningful inside a Region table.
type Flag struct {
	Addr   uint16
	Bit    uint8
	Weight int
}

// Region is a named group of weighted event flags.
type Region struct {
	Name  string
	Flags []Flag
}

// Score sums the weights of the region's flags that are set in mem.
func (r Region) Score(mem []byte) int {
	s := 0
	for _, f := range r.Flags {
		if ReadBit(mem, f.Addr, f.Bit) {
			s += f.Weight
		}
	}
	return s
}

// span lists bits [lo, hi) of addr at weight w.
func span(addr uint16, lo, hi uint8, w int) []Flag {
	out := make([]Flag, 0, hi-lo)
	for b := lo; b < hi; b++ {
		out = append(out, Flag{Addr: addr, Bit: b, Weight: w})
	}
	return out
}

func flags(parts ...[]Flag) []Flag {
	var out []Flag
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func one(addr uint16, bit uint8, w int) []Flag {
	return []Flag{{Addr: addr, Bit: bit, Weight: w}}
}

// Region indices into EventProgress.
const (
	RegionSilphCo = iota
	RegionRockTunnel
	RegionSSAnne
	RegionMtMoon
	RegionRoutes
	RegionMisc
	RegionSnorlax
	RegionHMTM
	RegionBill
	RegionOak
	RegionTowns
	RegionLab
	RegionMansion
	RegionSafari
	RegionDojo
	RegionHideout
	RegionPokeTower
	RegionGym1
	RegionGym2
	RegionGym3
	RegionGym4
	RegionGym5
	RegionGym6
	RegionGym7
	RegionGym8
	RegionRival

	NumRegions
)

// Regions is the event table, indexed by the Region* constants. The table
// must stay bit-for-bit stable: reward parity with previously trained
// policies depends on it, including the duplicated Koga/Sabrina leader bit
// (0xD7B3:1 in gym5 and gym6) and the negative dojo flag.
var Regions = [NumRegions]Region{
	RegionSilphCo: {Name: "silph_co", Flags: flags(
		span(0xD825, 2, 6, Trainer),
		one(0xD826, 5, Quest),
		one(0xD826, 6, Quest),
		one(0xD827, 2, Trainer),
		one(0xD827, 3, Trainer),
		one(0xD828, 0, Quest),
		one(0xD828, 1, Quest),
		span(0xD829, 2, 5, Trainer),
		one(0xD82A, 0, Quest),
		one(0xD82A, 1, Quest),
		span(0xD82B, 2, 6, Trainer),
		span(0xD82C, 0, 3, Quest),
		one(0xD82D, 6, Trainer),
		one(0xD82D, 7, Trainer),
		one(0xD82E, 0, Trainer),
		one(0xD82E, 7, Quest),
		span(0xD82F, 5, 8, Trainer),
		one(0xD830, 0, Trainer),
		span(0xD830, 4, 7, Quest),
		span(0xD831, 2, 5, Trainer),
		one(0xD832, 0, Quest),
		span(0xD833, 2, 5, Trainer),
		span(0xD834, 0, 4, Quest),
		one(0xD835, 1, Trainer),
		one(0xD835, 2, Trainer),
		one(0xD836, 0, Quest),
		one(0xD837, 4, Trainer),
		one(0xD837, 5, Trainer),
		one(0xD838, 0, Quest),
		one(0xD838, 5, Item),
		one(0xD838, 7, GymLeader),
		one(0xD7B9, 7, Task),
	)},
	RegionRockTunnel: {Name: "rock_tunnel", Flags: flags(
		span(0xD7D2, 1, 8, Trainer),
		span(0xD87D, 1, 8, Trainer),
		one(0xD87E, 0, Trainer),
	)},
	RegionSSAnne: {Name: "ssanne", Flags: flags(
		one(0xD7FF, 4, Trainer),
		one(0xD7FF, 5, Trainer),
		span(0xD803, 1, 6, BillCapt),
		span(0xD805, 1, 5, Trainer),
		span(0xD807, 1, 5, Trainer),
		span(0xD809, 1, 7, Trainer),
	)},
	RegionMtMoon: {Name: "mtmoon", Flags: flags(
		span(0xD7F5, 1, 8, Trainer),
		one(0xD7F6, 1, Trainer),
		span(0xD7F6, 2, 6, Trainer),
		one(0xD7F6, 6, Task),
		one(0xD7F6, 7, Task),
	)},
	RegionRoutes: {Name: "routes", Flags: flags(
		span(0xD7C3, 2, 8, Trainer), // route 3
		span(0xD7C4, 0, 2, Trainer),
		one(0xD7C5, 2, Trainer),     // route 4
		span(0xD7EF, 1, 8, Trainer), // route 24
		span(0xD7F1, 1, 8, Trainer), // route 25
		span(0xD7F2, 0, 2, Trainer),
		span(0xD7CF, 1, 8, Trainer), // route 9
		span(0xD7D0, 0, 2, Trainer),
		span(0xD7C9, 1, 7, Trainer), // route 6
		span(0xD7D5, 1, 8, Trainer), // route 11
		span(0xD7D6, 0, 3, Trainer),
		span(0xD7CD, 1, 8, Trainer), // route 8
		span(0xD7CE, 0, 2, Trainer),
		span(0xD7D1, 1, 7, Trainer), // route 10
		span(0xD7D7, 2, 8, Trainer), // route 12
		one(0xD7D8, 0, Trainer),
		span(0xD7D9, 1, 8, Trainer), // routes 13-21
		span(0xD7DB, 1, 8, Trainer),
		span(0xD7DD, 1, 8, Trainer),
		span(0xD7DF, 1, 8, Trainer),
		span(0xD7E1, 1, 8, Trainer),
		span(0xD7E3, 1, 8, Trainer),
		span(0xD7E5, 1, 8, Trainer),
		span(0xD7E7, 1, 8, Trainer),
		span(0xD7E9, 1, 8, Trainer),
	)},
	RegionMisc: {Name: "misc", Flags: flags(
		one(0xD7C6, 7, Task),
		one(0xD747, 3, Task),
		one(0xD74A, 2, Task),
		one(0xD754, 1, Task),
		one(0xD771, 1, Task),
		one(0xD77E, 2, Task),
		one(0xD77E, 3, Task),
		one(0xD77E, 4, Task),
		one(0xD783, 0, Task),
		one(0xD7BF, 0, Task),
		one(0xD7D6, 7, Task),
		one(0xD7DD, 0, Task),
		one(0xD7E0, 7, Task),
		one(0xD85F, 1, Task),
		one(0xD769, 7, Task),
	)},
	RegionSnorlax: {Name: "snorlax", Flags: flags(
		one(0xD7D8, 6, Pokemon),
		one(0xD7D8, 7, Pokemon),
		one(0xD7E0, 0, Pokemon),
		one(0xD7E0, 1, Pokemon),
	)},
	RegionHMTM: {Name: "hmtm", Flags: flags(
		one(0xD803, 0, HM),
		one(0xD7E0, 6, HM),
		one(0xD857, 0, HM),
		one(0xD78E, 0, HM),
		one(0xD7C2, 0, HM),
		one(0xD755, 6, TM),
		one(0xD75E, 6, TM),
		one(0xD777, 0, TM),
		span(0xD778, 4, 8, TM),
		one(0xD77C, 0, TM),
		one(0xD792, 0, TM),
		one(0xD773, 6, TM),
		one(0xD7BD, 0, TM),
		one(0xD7AF, 0, TM),
		one(0xD7A1, 7, TM),
		one(0xD826, 7, TM),
		one(0xD79A, 0, TM),
		one(0xD751, 0, TM),
		one(0xD74C, 1, TM),
		one(0xD7B3, 0, TM),
		one(0xD7D7, 0, TM),
	)},
	RegionBill: {Name: "bill", Flags: flags(
		one(0xD7F1, 0, BillCapt),
		span(0xD7F2, 3, 8, BillCapt),
	)},
	RegionOak: {Name: "oak", Flags: flags(
		one(0xD74B, 7, Task),
		one(0xD747, 0, Task),
		one(0xD74B, 1, Task),
		one(0xD74B, 2, Task),
		one(0xD74B, 0, Task),
		one(0xD74B, 5, Quest),
		one(0xD74E, 1, Quest),
		one(0xD747, 6, Quest),
		one(0xD74E, 0, Quest),
		one(0xD74B, 4, Task),
		one(0xD74B, 6, Task),
	)},
	RegionTowns: {Name: "towns", Flags: flags(
		one(0xD74A, 0, Task),
		one(0xD74A, 1, Task),
		span(0xD7F3, 2, 5, Trainer),
		one(0xD7EF, 0, Task),
		one(0xD7F0, 1, Task),
		one(0xD75B, 7, Trainer),
		one(0xD75F, 0, Quest),
		one(0xD771, 6, Task),
		one(0xD771, 7, Task),
		one(0xD76C, 0, Quest),
	)},
	RegionLab: {Name: "lab", Flags: span(0xD7A3, 0, 3, Task)},
	RegionMansion: {Name: "mansion", Flags: flags(
		one(0xD847, 1, Trainer),
		one(0xD849, 1, Trainer),
		one(0xD849, 2, Trainer),
		one(0xD84B, 1, Trainer),
		one(0xD84B, 2, Trainer),
		one(0xD796, 0, Quest),
		one(0xD798, 1, Trainer),
	)},
	RegionSafari: {Name: "safari", Flags: flags(
		one(0xD78E, 1, Quest),
		one(0xD790, 6, Event),
		one(0xD790, 7, Event),
	)},
	RegionDojo: {Name: "dojo", Flags: flags(
		one(0xD7B1, 0, Bad),
		one(0xD7B1, 1, GymLeader),
		span(0xD7B1, 2, 6, Trainer),
		one(0xD7B1, 6, Pokemon),
		one(0xD7B1, 7, Pokemon),
	)},
	RegionHideout: {Name: "hideout", Flags: flags(
		span(0xD815, 1, 6, GymTrainer),
		one(0xD817, 1, GymTrainer),
		one(0xD819, 1, GymTrainer),
		one(0xD819, 2, GymTrainer),
		span(0xD81B, 2, 5, GymTrainer),
		one(0xD81B, 5, Quest),
		one(0xD81B, 6, Quest),
		one(0xD81B, 7, GymLeader),
		one(0xD77E, 1, Quest),
	)},
	RegionPokeTower: {Name: "poke_tower", Flags: flags(
		span(0xD765, 1, 4, Trainer),
		span(0xD766, 1, 4, Trainer),
		span(0xD767, 2, 6, Trainer),
		span(0xD768, 1, 4, Trainer),
		one(0xD768, 7, Quest),
		span(0xD769, 1, 4, Trainer),
	)},
	RegionGym1: {Name: "gym1", Flags: flags(
		one(0xD755, 7, GymLeader),
		one(0xD755, 2, GymTrainer),
	)},
	RegionGym2: {Name: "gym2", Flags: flags(
		one(0xD75E, 7, GymLeader),
		one(0xD75E, 2, GymTrainer),
		one(0xD75E, 3, GymTrainer),
	)},
	RegionGym3: {Name: "gym3", Flags: flags(
		one(0xD773, 1, GymTask),
		one(0xD773, 0, GymTask),
		one(0xD773, 7, GymLeader),
		span(0xD773, 2, 5, GymTrainer),
	)},
	RegionGym4: {Name: "gym4", Flags: flags(
		one(0xD792, 1, GymLeader),
		span(0xD77C, 2, 8, GymTrainer),
		one(0xD77D, 0, GymTrainer),
	)},
	RegionGym5: {Name: "gym5", Flags: flags(
		one(0xD7B3, 1, GymLeader),
		span(0xD792, 2, 8, GymTrainer),
	)},
	RegionGym6: {Name: "gym6", Flags: flags(
		one(0xD7B3, 1, GymLeader),
		span(0xD7B3, 2, 8, GymTrainer),
		one(0xD7B4, 0, GymTrainer),
	)},
	RegionGym7: {Name: "gym7", Flags: flags(
		one(0xD79A, 1, GymLeader),
		span(0xD79A, 2, 8, GymTrainer),
		one(0xD79B, 0, GymTrainer),
	)},
	RegionGym8: {Name: "gym8", Flags: flags(
		one(0xD74C, 0, GymTask),
		one(0xD751, 1, GymLeader),
		span(0xD751, 2, 8, GymTrainer),
		one(0xD752, 0, GymTrainer),
		one(0xD752, 1, GymTrainer),
	)},
	RegionRival: {Name: "rival", Flags: flags(
		one(0xD74B, 3, Rival),
		one(0xD7EB, 0, Rival),
		one(0xD7EB, 1, Rival),
		one(0xD7EB, 5, Rival),
		one(0xD7EB, 6, Rival),
		one(0xD75A, 0, Rival),
		one(0xD764, 6, Rival),
		one(0xD764, 7, Rival),
		one(0xD7EB, 7, Rival),
		one(0xD82F, 0, Rival),
	)},
}

// EventProgress holds one score per region, indexed by the Region* constants.
type EventProgress [NumRegions]int

func Events(mem []byte) EventProgress {
	var p EventProgress
	for i := range Regions {
		p[i] = Regions[i].Score(mem)
	}
	return p
}

func (p EventProgress) Total() int {
	s := 0
	for _, v := range p {
		s += v
	}
	return s
}

// ByName returns the scores keyed by region name.
func (p EventProgress) ByName() map[string]int {
	m := make(map[string]int, NumRegions)
	for i, v := range p {
		m[Regions[i].Name] = v
	}
	return m
}

// RegionIndex returns the index of the named region, or -1.
func RegionIndex(name string) int {
	for i := range Regions {
		if Regions[i].Name == name {
			return i
		}
	}
	return -1
}

// EventTotal is Events(mem).Total().
func EventTotal(mem []byte) int {
	s := 0
	for i := range Regions {
		s += Regions[i].Score(mem)
	}
	return s
}

