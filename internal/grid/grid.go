package grid

import "fmt"

// Coordinate addresses one tile. Origin (0,0) is the south-west corner;
// X grows east, Y grows north.
type Coordinate struct {
	X int32
	Y int32
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Heading is one of the four cardinal directions.
type Heading int16

const (
	North Heading = 0
	East  Heading = 1
	South Heading = 2
	West  Heading = 3
)

// Direction deltas indexed by heading.
var headingDX = [4]int32{0, 1, 0, -1}
var headingDY = [4]int32{1, 0, -1, 0}

// Advance returns the coordinate one tile ahead of c along h.
func Advance(c Coordinate, h Heading) Coordinate {
	return Coordinate{X: c.X + headingDX[h], Y: c.Y + headingDY[h]}
}

// Turned returns the heading after rotating a quarter turn.
func Turned(h Heading, clockwise bool) Heading {
	if clockwise {
		return (h + 1) % 4
	}
	return (h + 3) % 4
}

func (h Heading) String() string {
	switch h {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	}
	return fmt.Sprintf("heading(%d)", int16(h))
}
