package grid

// CellKind enumerates what a map cell can hold.
type CellKind uint8

const (
	Unknown CellKind = iota
	Empty
	Obstacle
	Agent
	Dispenser
	Block
	Marker
)

func (k CellKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Obstacle:
		return "obstacle"
	case Agent:
		return "agent"
	case Dispenser:
		return "dispenser"
	case Block:
		return "block"
	case Marker:
		return "marker"
	default:
		return "unknown"
	}
}

// Cell is one observed value at a coordinate. Detail carries the kind-specific
// payload: block type for blocks and dispensers, team name for agents, marker
// subtype for markers. Step is the simulation step of the observation; a newer
// step always supersedes an older one at the same coordinate.
type Cell struct {
	Kind   CellKind
	Detail string
	Step   int
}

// UnknownCell is the value reported for never-observed coordinates.
var UnknownCell = Cell{Kind: Unknown}

// Same reports whether two observations describe the same content. Agents are
// compared by kind only when either observation predates step 1, because team
// details of agents seen before the first full percept are unreliable.
func (c Cell) Same(o Cell) bool {
	if c.Kind != o.Kind {
		return false
	}
	if c.Kind == Agent && (c.Step == 0 || o.Step == 0) {
		return true
	}
	return c.Detail == o.Detail
}
