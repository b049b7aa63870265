// Package intent implements the behavior layer: small single-purpose
// intention machines that plan one action per step, plus the per-agent
// handler that keeps them in a priority queue. Each intention carries its
// own target coordinates, so merges and dimension discoveries re-base them
// through Shift and Normalize.
package intent

import (
	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/agent"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/percept"
	"github.com/talgya/blockswarm/internal/planner"
	"github.com/talgya/blockswarm/internal/roles"
	"github.com/talgya/blockswarm/internal/simstate"
	"github.com/talgya/blockswarm/internal/worldmap"
)

// Queue priorities, lower runs first. Task work outranks exploration but
// yields to hazard escapes and reconnect resets.
const (
	PriorityEscape  = 2.0
	PriorityReset   = 2.5
	PriorityTask    = 5.0
	PriorityExplore = 7.0
	PriorityMap     = 8.0
	PriorityIdle    = 10.0
)

// Intention is one behavior machine. Plan is called once per step while the
// intention is current; Finished is checked after the action result arrived.
type Intention interface {
	Plan(ctx *Context) action.Action
	Finished(ctx *Context) bool
	// Shift translates stored absolute coordinates after a map merge.
	Shift(offset grid.Coordinate, g grid.Geometry)
	// Normalize re-reduces stored coordinates after a dimension discovery.
	Normalize(g grid.Geometry)
	Explain() string
}

// Queued is an intention that lives in the handler's priority queue.
type Queued interface {
	Intention
	Priority() float64
}

// Params are the planning constants shared by all intentions.
type Params struct {
	PathMaxIterations  int
	MarkerPurgeSteps   int
	ClearConstantCost  float64
	ClearEnergyCost    float64
	EnergyMinPct       float64
	MaxBlockingSteps   int
	DefaultVision      int
	MaxEnergy          int
	UnknownSearchBound int
}

// Context is everything an intention may consult during one step.
type Context struct {
	Agent  *agent.Agent
	Map    *worldmap.Map
	Obs    percept.Observation
	State  *simstate.State
	Roles  *roles.Book
	Params Params

	// MapCount is how many separate maps the registry still tracks. While
	// it is above one, unidentified teammates are out there and exploration
	// must go on even when this map looks complete.
	MapCount int
}

// Position returns the agent's absolute coordinate in its map frame.
func (c *Context) Position() grid.Coordinate {
	return c.Map.AgentCoordinate(c.Agent.ID)
}

// Role returns the agent's worn role, zero-valued when unknown.
func (c *Context) Role() roles.Role {
	r, _ := c.Roles.Worn(c.Agent.ID)
	return r
}

// Vision returns the worn role's vision range.
func (c *Context) Vision() int {
	return c.Roles.Vision(c.Agent.ID, c.Params.DefaultVision)
}

// Speed returns the step distance given the current attachment count.
func (c *Context) Speed() int {
	s := c.Role().Speed(len(c.Agent.Attachments()))
	if s < 1 {
		return 1
	}
	return s
}

// LowEnergy reports whether the agent should avoid clearing for a while.
func (c *Context) LowEnergy() bool {
	return float64(c.Agent.Energy) < c.Params.EnergyMinPct*float64(c.Params.MaxEnergy)
}

// PlannerInput assembles the path search context for this step.
func (c *Context) PlannerInput() planner.Input {
	role := c.Role()
	chance := role.ClearChance
	if chance <= 0 {
		chance = 0.3
	}
	return planner.Input{
		Map:               c.Map,
		Start:             c.Position(),
		Speed:             c.Speed(),
		Energy:            c.Agent.Energy,
		MaxEnergy:         c.Params.MaxEnergy,
		ClearEnergyCost:   c.Params.ClearEnergyCost,
		ClearChance:       chance,
		ClearConstantCost: c.Params.ClearConstantCost,
		MaxIterations:     c.Params.PathMaxIterations,
		Vision:            c.Vision(),
		Attached:          c.Agent.Attachments(),
	}
}

// Travel plans the next primitive toward an absolute target.
func (c *Context) Travel(target grid.Coordinate, ignoreMarkers bool) action.Action {
	return planner.NextAction(c.PlannerInput(), target, ignoreMarkers)
}

// AbsAttached returns the agent's attachments as absolute coordinates.
func (c *Context) AbsAttached() []grid.Coordinate {
	at := c.Position()
	g := c.Map.Geometry()
	rels := c.Agent.Attachments()
	out := make([]grid.Coordinate, len(rels))
	for i, rel := range rels {
		out[i] = at.Shifted(rel, g)
	}
	return out
}

// InHazard reports whether the agent or an attachment stands on a marker.
func (c *Context) InHazard() bool {
	if c.Map.IsMarker(c.Position()) {
		return true
	}
	for _, a := range c.AbsAttached() {
		if c.Map.IsMarker(a) {
			return true
		}
	}
	return false
}
