package intent

import (
	"fmt"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/planner"
)

// Escape gets the agent off hazard markers before the clear event lands. It
// outranks everything else in the queue. Carried blocks go first: a dragged
// block slows the agent and widens the footprint that must leave the zone.
type Escape struct {
	shed   *DetachBlocks
	target *grid.Coordinate
}

// NewEscape creates an escape intention.
func NewEscape() *Escape { return &Escape{shed: NewDetachBlocks()} }

// Priority places escaping above all other work.
func (e *Escape) Priority() float64 { return PriorityEscape }

func (e *Escape) Plan(ctx *Context) action.Action {
	if !e.shed.Finished(ctx) {
		return e.shed.Plan(ctx)
	}
	if e.target == nil || ctx.Map.KindAt(*e.target) == grid.Marker {
		t := planner.ClosestFreeCoordinate(ctx.PlannerInput())
		e.target = &t
	}
	return ctx.Travel(*e.target, true)
}

func (e *Escape) Finished(ctx *Context) bool { return !ctx.InHazard() }

func (e *Escape) Shift(offset grid.Coordinate, g grid.Geometry) {
	if e.target != nil {
		t := e.target.Shifted(offset, g)
		e.target = &t
	}
}

func (e *Escape) Normalize(g grid.Geometry) {
	if e.target != nil {
		t := e.target.Normalize(g)
		e.target = &t
	}
}

func (e *Escape) Explain() string {
	if e.target == nil {
		return "escape: no target"
	}
	return fmt.Sprintf("escape: fleeing to %s", e.target)
}

// Reset restores a clean slate after a reconnect: whatever the server still
// reports as attached next to the agent gets detached, since the local
// bookkeeping that justified carrying it is gone.
type Reset struct{}

// NewReset creates a reset intention.
func NewReset() *Reset { return &Reset{} }

// Priority places the reset just below escaping.
func (r *Reset) Priority() float64 { return PriorityReset }

func (r *Reset) Plan(ctx *Context) action.Action {
	adjacent := ctx.Obs.DirectlyAttached()
	if len(adjacent) == 0 {
		return action.NewSkip()
	}
	return action.NewDetach(grid.Origin.DirectionTo(adjacent[0], grid.Geometry{}))
}

func (r *Reset) Finished(ctx *Context) bool {
	if len(ctx.Obs.DirectlyAttached()) > 0 {
		return false
	}
	ctx.Agent.DetachAll()
	return true
}

func (r *Reset) Shift(grid.Coordinate, grid.Geometry) {}

func (r *Reset) Normalize(grid.Geometry) {}

func (r *Reset) Explain() string { return "reset: shedding stale attachments" }
