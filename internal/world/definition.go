package world

import "github.com/playgrid/server/internal/grid"

// TileKind classifies one grid tile.
type TileKind uint8

const (
	TileFloor TileKind = iota
	TileWall
	TileWater
)

// ItemKind classifies a stateful item placed on the grid.
type ItemKind uint8

const (
	ItemGem ItemKind = iota
	ItemSwitch
	ItemPortal
	ItemPlatformLock
)

func (k ItemKind) String() string {
	switch k {
	case ItemGem:
		return "gem"
	case ItemSwitch:
		return "switch"
	case ItemPortal:
		return "portal"
	case ItemPlatformLock:
		return "platform-lock"
	}
	return "item"
}

// ItemDef is one static item placement in a world definition.
type ItemDef struct {
	Kind ItemKind
	At   grid.Coordinate
	On   bool            // switches open, portals/locks active
	Pair grid.Coordinate // portal exit
}

// Criteria is the success bar a run is assessed against. External means the
// criteria are evaluated elsewhere and the engine only reports counts.
type Criteria struct {
	Gems     int
	Switches int
	External bool
}

// Definition is the static content of one world: the grid, its items, the
// character's start pose, and the success criteria.
type Definition struct {
	Name     string
	Tiles    map[grid.Coordinate]TileKind
	Items    []ItemDef
	Start    grid.Coordinate
	Heading  grid.Heading
	Criteria Criteria
	Script   string // learner script path, relative to the scripts dir
}
