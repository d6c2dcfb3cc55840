package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/playgrid/server/internal/grid"
	"github.com/playgrid/server/internal/world"
)

// WorldFile is the YAML shape of one world definition.
//
// Tile rows are listed top-down and use one rune per tile:
// '.' floor, '#' wall, '~' water, ' ' void.
type WorldFile struct {
	Name     string       `yaml:"name"`
	Tiles    []string     `yaml:"tiles"`
	Start    PoseFile     `yaml:"start"`
	Items    []ItemFile   `yaml:"items"`
	Criteria CriteriaFile `yaml:"criteria"`
	Script   string       `yaml:"script"`
}

type PoseFile struct {
	X       int32  `yaml:"x"`
	Y       int32  `yaml:"y"`
	Heading string `yaml:"heading"`
}

type ItemFile struct {
	Kind string `yaml:"kind"` // gem, switch, portal, platform-lock
	X    int32  `yaml:"x"`
	Y    int32  `yaml:"y"`
	On   bool   `yaml:"on"`
	Pair *struct {
		X int32 `yaml:"x"`
		Y int32 `yaml:"y"`
	} `yaml:"pair"`
}

type CriteriaFile struct {
	Gems     int  `yaml:"gems"`
	Switches int  `yaml:"switches"`
	External bool `yaml:"external"`
}

// LoadWorld reads, parses and validates one world file.
func LoadWorld(path string) (*world.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read world: %w", err)
	}
	var f WorldFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse world: %w", err)
	}
	return f.Definition()
}

// Definition converts and validates the parsed file.
func (f *WorldFile) Definition() (*world.Definition, error) {
	if f.Name == "" {
		return nil, fmt.Errorf("world: name is required")
	}
	if len(f.Tiles) == 0 {
		return nil, fmt.Errorf("world %s: no tile rows", f.Name)
	}

	def := &world.Definition{
		Name:  f.Name,
		Tiles: make(map[grid.Coordinate]world.TileKind),
		Start: grid.Coordinate{X: f.Start.X, Y: f.Start.Y},
		Criteria: world.Criteria{
			Gems:     f.Criteria.Gems,
			Switches: f.Criteria.Switches,
			External: f.Criteria.External,
		},
		Script: f.Script,
	}

	heading, err := parseHeading(f.Start.Heading)
	if err != nil {
		return nil, fmt.Errorf("world %s: %w", f.Name, err)
	}
	def.Heading = heading

	rows := int32(len(f.Tiles))
	for i, row := range f.Tiles {
		y := rows - 1 - int32(i) // first listed row is the top
		for x, r := range row {
			c := grid.Coordinate{X: int32(x), Y: y}
			switch r {
			case '.':
				def.Tiles[c] = world.TileFloor
			case '#':
				def.Tiles[c] = world.TileWall
			case '~':
				def.Tiles[c] = world.TileWater
			case ' ':
				// void, no tile
			default:
				return nil, fmt.Errorf("world %s: unknown tile %q in row %d", f.Name, r, i)
			}
		}
	}

	if kind, ok := def.Tiles[def.Start]; !ok || kind != world.TileFloor {
		return nil, fmt.Errorf("world %s: start %s is not a floor tile", f.Name, def.Start)
	}

	for i, it := range f.Items {
		kind, err := parseItemKind(it.Kind)
		if err != nil {
			return nil, fmt.Errorf("world %s: item %d: %w", f.Name, i, err)
		}
		at := grid.Coordinate{X: it.X, Y: it.Y}
		if _, ok := def.Tiles[at]; !ok {
			return nil, fmt.Errorf("world %s: item %d at %s is off the grid", f.Name, i, at)
		}
		idef := world.ItemDef{Kind: kind, At: at, On: it.On}
		if kind == world.ItemPortal {
			if it.Pair == nil {
				return nil, fmt.Errorf("world %s: item %d: portal needs a pair", f.Name, i)
			}
			idef.Pair = grid.Coordinate{X: it.Pair.X, Y: it.Pair.Y}
			if _, ok := def.Tiles[idef.Pair]; !ok {
				return nil, fmt.Errorf("world %s: item %d: portal pair %s is off the grid", f.Name, i, idef.Pair)
			}
		}
		def.Items = append(def.Items, idef)
	}

	if def.Criteria.Gems < 0 || def.Criteria.Switches < 0 {
		return nil, fmt.Errorf("world %s: negative criteria", f.Name)
	}
	return def, nil
}

func parseHeading(s string) (grid.Heading, error) {
	switch s {
	case "north", "":
		return grid.North, nil
	case "east":
		return grid.East, nil
	case "south":
		return grid.South, nil
	case "west":
		return grid.West, nil
	}
	return 0, fmt.Errorf("unknown heading %q", s)
}

func parseItemKind(s string) (world.ItemKind, error) {
	switch s {
	case "gem":
		return world.ItemGem, nil
	case "switch":
		return world.ItemSwitch, nil
	case "portal":
		return world.ItemPortal, nil
	case "platform-lock":
		return world.ItemPlatformLock, nil
	}
	return 0, fmt.Errorf("unknown item kind %q", s)
}
