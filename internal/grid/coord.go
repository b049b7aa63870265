// Package grid provides coordinate arithmetic for a 4-connected grid that is
// initially unbounded and becomes toroidal once its dimensions are discovered.
package grid

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// Direction is one of the four cardinal movement directions.
type Direction uint8

const (
	North Direction = iota
	East
	South
	West
)

// Directions lists all four cardinal directions in percept order.
var Directions = [4]Direction{North, East, South, West}

func (d Direction) String() string {
	switch d {
	case North:
		return "n"
	case East:
		return "e"
	case South:
		return "s"
	default:
		return "w"
	}
}

// ParseDirection converts a wire direction ("n", "e", "s", "w").
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "n":
		return North, nil
	case "e":
		return East, nil
	case "s":
		return South, nil
	case "w":
		return West, nil
	}
	return North, fmt.Errorf("parse direction %q: unknown", s)
}

// Vector returns the unit offset of the direction. North decreases y.
func (d Direction) Vector() Coordinate {
	switch d {
	case North:
		return Coordinate{0, -1}
	case East:
		return Coordinate{1, 0}
	case South:
		return Coordinate{0, 1}
	default:
		return Coordinate{-1, 0}
	}
}

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	return Direction((d + 2) % 4)
}

// Adjacent returns the two perpendicular directions, clockwise first.
func (d Direction) Adjacent() (Direction, Direction) {
	return Direction((d + 1) % 4), Direction((d + 3) % 4)
}

// SameAs reports whether two directions are identical.
func (d Direction) SameAs(o Direction) bool {
	return d == o
}

// OppositeOf reports whether two directions point away from each other.
func (d Direction) OppositeOf(o Direction) bool {
	return d != o && (d+o)%2 == 0
}

// Rotation is a rotation sense around the agent.
type Rotation uint8

const (
	Clockwise Rotation = iota
	CounterClockwise
)

func (r Rotation) String() string {
	if r == Clockwise {
		return "cw"
	}
	return "ccw"
}

// Geometry carries the discovered grid dimensions. A zero axis means that
// dimension is still unknown and no wrapping applies on it. Geometry values
// are immutable snapshots; discovery replaces them wholesale.
type Geometry struct {
	Width  int
	Height int
}

// Toroidal reports whether both dimensions are known.
func (g Geometry) Toroidal() bool {
	return g.Width > 0 && g.Height > 0
}

// Coordinate is an integer grid position. By convention a coordinate is
// either absolute (rooted at a map origin) or relative (an offset); the
// operations below work for both, with wrapping applied only to absolute
// coordinates through an explicit Geometry.
type Coordinate struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Origin is the zero coordinate.
var Origin = Coordinate{}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Normalize reduces an absolute coordinate modulo the known dimensions.
func (c Coordinate) Normalize(g Geometry) Coordinate {
	if g.Width > 0 {
		c.X = mod(c.X, g.Width)
	}
	if g.Height > 0 {
		c.Y = mod(c.Y, g.Height)
	}
	return c
}

// Shifted returns the coordinate moved by the given offset, normalized.
func (c Coordinate) Shifted(offset Coordinate, g Geometry) Coordinate {
	return Coordinate{c.X + offset.X, c.Y + offset.Y}.Normalize(g)
}

// Moved returns the coordinate after stepping in each given direction.
func (c Coordinate) Moved(g Geometry, dirs ...Direction) Coordinate {
	for _, d := range dirs {
		c = c.Shifted(d.Vector(), g)
	}
	return c
}

// Relative returns the offset from c to other, choosing for each wrapped axis
// the residue of smaller magnitude (the short way around the torus).
func (c Coordinate) Relative(other Coordinate, g Geometry) Coordinate {
	return Coordinate{
		X: axisRelative(other.X-c.X, g.Width),
		Y: axisRelative(other.Y-c.Y, g.Height),
	}
}

func axisRelative(diff, size int) int {
	if size <= 0 {
		return diff
	}
	pos := mod(diff, size)
	neg := pos - size
	if pos <= -neg {
		return pos
	}
	return neg
}

// DirectionTo returns the cardinal direction from c toward an adjacent
// coordinate. The dominant axis wins for non-adjacent targets.
func (c Coordinate) DirectionTo(other Coordinate, g Geometry) Direction {
	rel := c.Relative(other, g)
	if abs(rel.X) >= abs(rel.Y) {
		if rel.X >= 0 {
			return East
		}
		return West
	}
	if rel.Y >= 0 {
		return South
	}
	return North
}

// ManhattanDistance returns the wrap-aware L1 distance between coordinates.
func ManhattanDistance(a, b Coordinate, g Geometry) int {
	rel := a.Relative(b, g)
	return abs(rel.X) + abs(rel.Y)
}

// Distance returns the wrap-aware Euclidean distance between coordinates.
func Distance(a, b Coordinate, g Geometry) float64 {
	rel := a.Relative(b, g)
	return math.Sqrt(float64(rel.X*rel.X + rel.Y*rel.Y))
}

// Closer reports whether candidate is strictly closer to from than current.
func Closer(from, current, candidate Coordinate, g Geometry) bool {
	return Distance(from, candidate, g) < Distance(from, current, g)
}

// Neighbors returns the four adjacent coordinates.
func (c Coordinate) Neighbors(g Geometry) []Coordinate {
	out := make([]Coordinate, 0, 4)
	for _, d := range Directions {
		out = append(out, c.Shifted(d.Vector(), g))
	}
	return out
}

// NeighborsWithin returns every coordinate whose Manhattan distance from c is
// in [minDist, searchRange]. With minDist 0 the coordinate itself is included.
func (c Coordinate) NeighborsWithin(g Geometry, searchRange, minDist int) []Coordinate {
	var out []Coordinate
	for dx := -searchRange; dx <= searchRange; dx++ {
		rest := searchRange - abs(dx)
		for dy := -rest; dy <= rest; dy++ {
			if abs(dx)+abs(dy) < minDist {
				continue
			}
			out = append(out, c.Shifted(Coordinate{dx, dy}, g))
		}
	}
	return out
}

// Ring returns the coordinates at exactly the given Manhattan distance, the
// diamond-shaped border of a vision range.
func (c Coordinate) Ring(g Geometry, radius int) []Coordinate {
	if radius <= 0 {
		return []Coordinate{c}
	}
	out := make([]Coordinate, 0, 4*radius)
	for dx := -radius; dx <= radius; dx++ {
		dy := radius - abs(dx)
		out = append(out, c.Shifted(Coordinate{dx, dy}, g))
		if dy != 0 {
			out = append(out, c.Shifted(Coordinate{dx, -dy}, g))
		}
	}
	return out
}

// Surrounding returns the eight coordinates around c (edges and corners).
func (c Coordinate) Surrounding(g Geometry) []Coordinate {
	out := make([]Coordinate, 0, 8)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if dx == 0 && dy == 0 {
				continue
			}
			out = append(out, c.Shifted(Coordinate{dx, dy}, g))
		}
	}
	return out
}

// Rotated rotates a relative coordinate a quarter turn around the origin.
func (c Coordinate) Rotated(r Rotation) Coordinate {
	if r == Clockwise {
		return Coordinate{-c.Y, c.X}
	}
	return Coordinate{c.Y, -c.X}
}

// RotationTo returns the rotation sense that brings an adjacent relative
// coordinate onto the given direction's axis in one quarter turn.
func (c Coordinate) RotationTo(d Direction) Rotation {
	if c.Rotated(Clockwise) == d.Vector() {
		return Clockwise
	}
	return CounterClockwise
}

// Extend returns the point dist cells beyond "to" on the line from "from"
// through "to", truncated to the grid.
func Extend(from, to Coordinate, dist int, g Geometry) Coordinate {
	dx := float64(from.X - to.X)
	dy := float64(from.Y - to.Y)
	norm := math.Sqrt(dx*dx + dy*dy)
	if norm == 0 {
		return to
	}
	return Coordinate{
		X: to.X - int(float64(dist)*dx/norm),
		Y: to.Y - int(float64(dist)*dy/norm),
	}.Normalize(g)
}

// Negated returns the coordinate mirrored through the origin.
func (c Coordinate) Negated() Coordinate {
	return Coordinate{-c.X, -c.Y}
}

func mod(v, size int) int {
	m := v % size
	if m < 0 {
		m += size
	}
	return m
}

func abs[T constraints.Signed](v T) T {
	if v < 0 {
		return -v
	}
	return v
}
