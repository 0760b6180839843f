package ram

// Pokemon Red WRAM addresses.
const (
	PartySizeAddr = 0xD163
	BadgesAddr    = 0xD356

	PlayerYAddr = 0xD361
	PlayerXAddr = 0xD362
	MapAddr     = 0xD35E

	BagItemsAddr = 0xD31E
	BagMaxItems  = 20

	PokedexCaughtAddr = 0xD2F7
	PokedexSeenAddr   = 0xD30A
	PokedexBytes      = 19
	PokedexSpecies    = 152
)

var (
	PartyHPAddrs    = [6]uint16{0xD16C, 0xD198, 0xD1C4, 0xD1F0, 0xD21C, 0xD248}
	PartyMaxHPAddrs = [6]uint16{0xD18D, 0xD1B9, 0xD1E5, 0xD211, 0xD23D, 0xD269}
	PartyLevelAddrs = [6]uint16{0xD18C, 0xD1B8, 0xD1E4, 0xD210, 0xD23C, 0xD268}

	// PartySlotAddrs is the first byte (species) of each party slot struct.
	// The slot's four move IDs follow at +8..+11.
	PartySlotAddrs = [6]uint16{0xD16B, 0xD197, 0xD1C3, 0xD1EF, 0xD21B, 0xD247}
)

const slotMovesOffset = 8

// HMItemIDs are the bag item IDs of HM01..HM05.
var HMItemIDs = [5]uint8{0xC4, 0xC5, 0xC6, 0xC7, 0xC8}

// Story flags consulted outside the event tables.
var (
	FlagHideoutDone = Flag{Addr: 0xD81B, Bit: 7}
	FlagTowerDone   = Flag{Addr: 0xD7E0, Bit: 7}
	FlagFluteGotten = Flag{Addr: 0xD76C, Bit: 0}
	FlagSilphDone   = Flag{Addr: 0xD838, Bit: 7}
	FlagCutLearned  = Flag{Addr: 0xD803, Bit: 0}
)

// Map position domain. Raw bytes outside these ranges appear during screen
// transitions and are clamped, not rejected.
const (
	MaxCoord = 444
	MinMapID = -1
	MaxMapID = 247
)
