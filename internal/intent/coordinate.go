package intent

import (
	"fmt"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/percept"
	"github.com/talgya/blockswarm/internal/simstate"
)

// Coordination runs the coordinator side of a cooperative task: claim a
// goal zone, keep it clear, take delivery of each provider's block by
// attach or connect, and submit once the shape is complete.
type Coordination struct {
	coop     *Coop
	goalZone grid.Coordinate

	adopt *AdoptRole
	shed  *DetachBlocks
	clear *ClearZone

	// Provider currently handing over, and the requirement it fills.
	active    string
	activeReq simstate.Requirement

	assembling    bool
	blockingSteps int
	dropping      bool
	submitted     bool
	done          bool
}

// NewCoordination creates the coordinator intention. The goal zone must
// already be reserved for the coordinator.
func NewCoordination(coop *Coop, goalZone grid.Coordinate, role string) *Coordination {
	return &Coordination{
		coop:     coop,
		goalZone: goalZone,
		adopt:    NewAdoptRole(role),
		shed:     NewDetachBlocks(),
		clear:    NewClearZone(goalZone),
	}
}

// Priority places task work above exploration.
func (c *Coordination) Priority() float64 { return PriorityTask }

// TaskName identifies the assignment.
func (c *Coordination) TaskName() string { return c.coop.Task().Name }

// Drop aborts the assembly: providers are released and the collected
// blocks are shed.
func (c *Coordination) Drop(*Context) {
	if !c.dropping {
		c.dropping = true
		c.coop.ReleaseAll()
		c.shed = NewDetachBlocks()
	}
}

// OnEscape aborts too: a coordinator chased off its zone cannot resume the
// half-built shape reliably.
func (c *Coordination) OnEscape(ctx *Context) { c.Drop(ctx) }

func (c *Coordination) Plan(ctx *Context) action.Action {
	c.coop.SetCoordinatorAt(ctx.Position())

	if c.dropping {
		if c.shed.Finished(ctx) {
			c.done = true
			return action.NewSkip()
		}
		return c.shed.Plan(ctx)
	}
	if c.shouldDrop(ctx) {
		c.Drop(ctx)
		return c.Plan(ctx)
	}

	if !c.assembling && !c.shed.Finished(ctx) {
		return c.shed.Plan(ctx)
	}
	if !c.adopt.Finished(ctx) {
		return c.adopt.Plan(ctx)
	}

	pos := ctx.Position()
	if pos != c.goalZone {
		if zone, ok := ctx.Map.TryReserveCloserGoalZone(ctx.Agent.ID, &c.goalZone, pos, c.shapeRels()); ok && zone != c.goalZone {
			c.goalZone = zone
			c.clear = NewClearZone(zone)
		}
		return ctx.Travel(c.goalZone, false)
	}

	c.trackBlockingAgents(ctx)

	if handled, act := c.assemble(ctx); handled {
		return act
	}
	if !c.clear.Finished(ctx) {
		return c.clear.Plan(ctx)
	}
	return action.NewSkip()
}

// assemble drives the handover pipeline. It returns the step's action and
// whether assembly had anything to do.
func (c *Coordination) assemble(ctx *Context) (bool, action.Action) {
	c.settleActive(ctx)

	if c.active == "" {
		c.pickNextProvider(ctx)
	}
	if c.active == "" {
		if act, ok := c.misattached(ctx); ok {
			return true, act
		}
		if c.complete(ctx) {
			return true, action.NewSubmit(c.coop.Task().Name)
		}
		return false, action.NewSkip()
	}

	rel := c.activeReq.Rel
	flat := grid.Geometry{}
	adjacent := grid.ManhattanDistance(grid.Origin, rel, flat) == 1

	if adjacent {
		// The provider drops the block on the cell, we pick it up.
		if !c.coop.Delivered(c.active) {
			return true, action.NewSkip()
		}
		return true, action.NewAttach(grid.Origin.DirectionTo(rel, flat))
	}

	// Outer cell: the handover is a mutual connect while the provider still
	// holds the block, then the provider detaches. Both offers must go out
	// in the same step, so connect as soon as the provider reports the block
	// in position, not after it delivered.
	if ctx.Agent.IsAttached(rel) {
		// Connected; waiting for the provider's detach to come through.
		return true, action.NewSkip()
	}
	if c.coop.InPosition(c.active) {
		if conn, ok := c.ownNeighborOf(ctx, rel); ok {
			return true, action.NewConnect(c.active, conn)
		}
		// No attached cell of ours borders the incoming block; the
		// assignment was premature. Send the provider back to waiting.
		c.coop.StopConnection(c.active)
		c.active = ""
	}
	return true, action.NewSkip()
}

// settleActive folds the previous step's attach or connect result into the
// attachment bookkeeping and releases the finished provider.
func (c *Coordination) settleActive(ctx *Context) {
	if c.active == "" {
		return
	}
	if ctx.Obs.LastAction == "connect" && ctx.Obs.LastActionResult == percept.ResultSuccess {
		ctx.Agent.Attach(c.activeReq.Rel)
	}
	if ctx.Agent.IsAttached(c.activeReq.Rel) && c.coop.Delivered(c.active) {
		c.coop.Release(c.active)
		c.active = ""
	}
}

// pickNextProvider matches a waiting provider to a requirement that can be
// reached now: its cell borders the agent or the already-secured blocks.
func (c *Coordination) pickNextProvider(ctx *Context) {
	flat := grid.Geometry{}
	for id, req := range c.coop.ReadyProviders() {
		if ctx.Agent.IsAttached(req.Rel) {
			continue
		}
		if !c.reachable(ctx, req.Rel, flat) {
			continue
		}
		c.coop.StartConnection(id, req.Rel)
		c.active, c.activeReq = id, req
		c.assembling = true
		return
	}
}

func (c *Coordination) reachable(ctx *Context, rel grid.Coordinate, flat grid.Geometry) bool {
	if grid.ManhattanDistance(grid.Origin, rel, flat) == 1 {
		return true
	}
	_, ok := c.ownNeighborOf(ctx, rel)
	return ok
}

// ownNeighborOf returns one of the agent's attached cells bordering rel,
// the cell a connect would be issued through. Uses relative coordinates.
func (c *Coordination) ownNeighborOf(ctx *Context, rel grid.Coordinate) (grid.Coordinate, bool) {
	flat := grid.Geometry{}
	for _, n := range rel.Neighbors(flat) {
		if n == grid.Origin {
			continue
		}
		if ctx.Agent.IsAttached(n) {
			return n, true
		}
	}
	return grid.Coordinate{}, false
}

// misattached cuts loose a connected block that is not part of the shape,
// the leftover of a withdrawn or duplicated handover. Adjacent cells detach;
// outer cells disconnect through the shape cell holding them.
func (c *Coordination) misattached(ctx *Context) (action.Action, bool) {
	shape := make(map[grid.Coordinate]struct{}, len(c.coop.Task().Requirements))
	for _, r := range c.coop.Task().Requirements {
		shape[r.Rel] = struct{}{}
	}
	flat := grid.Geometry{}
	for _, rel := range ctx.Agent.Attachments() {
		if _, wanted := shape[rel]; wanted {
			continue
		}
		if grid.ManhattanDistance(grid.Origin, rel, flat) == 1 {
			return action.NewDetach(grid.Origin.DirectionTo(rel, flat)), true
		}
		if n, ok := c.ownNeighborOf(ctx, rel); ok {
			return action.NewDisconnect(n, rel), true
		}
	}
	return action.Action{}, false
}

func (c *Coordination) complete(ctx *Context) bool {
	reqs := c.coop.Task().Requirements
	if len(ctx.Agent.Attachments()) != len(reqs) {
		return false
	}
	for _, r := range reqs {
		if !ctx.Agent.IsAttached(r.Rel) {
			return false
		}
	}
	return true
}

// trackBlockingAgents counts consecutive steps with a foreign agent parked
// on one of the shape cells; persistent squatters force a drop.
func (c *Coordination) trackBlockingAgents(ctx *Context) {
	g := ctx.Map.Geometry()
	pos := ctx.Position()
	blocked := false
	for _, r := range c.coop.Task().Requirements {
		cell := ctx.Map.AtIgnoringMarkers(pos.Shifted(r.Rel, g))
		if cell.Kind == grid.Agent {
			blocked = true
			break
		}
	}
	if blocked {
		c.blockingSteps++
	} else {
		c.blockingSteps = 0
	}
}

func (c *Coordination) shouldDrop(ctx *Context) bool {
	task := c.coop.Task()
	if ctx.State.Expired(task.Name) {
		return true
	}
	if c.blockingSteps >= ctx.Params.MaxBlockingSteps {
		return true
	}
	if limit, capped := ctx.State.MaxBlockRegulation(); capped && limit < len(task.Requirements) {
		return true
	}
	return c.goalZoneGone(ctx)
}

// goalZoneGone decides whether the claimed zone is lost. A submit rejected
// for a bad target settles it; mid-assembly the zone cannot be moved, so a
// disappearance means the task is lost; before assembly a replacement zone
// is tried first.
func (c *Coordination) goalZoneGone(ctx *Context) bool {
	if ctx.Obs.LastAction == "submit" &&
		(ctx.Obs.LastActionResult == percept.ResultFailedTarget || ctx.Obs.LastActionResult == percept.ResultFailed) {
		return true
	}
	if ctx.Map.IsGoalZone(c.goalZone) {
		return false
	}
	if c.assembling {
		return true
	}
	zone, ok := ctx.Map.TryReserveCloserGoalZone(ctx.Agent.ID, nil, ctx.Position(), c.shapeRels())
	if !ok {
		return true
	}
	c.goalZone = zone
	c.clear = NewClearZone(zone)
	return false
}

func (c *Coordination) shapeRels() []grid.Coordinate {
	reqs := c.coop.Task().Requirements
	out := make([]grid.Coordinate, len(reqs))
	for i, r := range reqs {
		out[i] = r.Rel
	}
	return out
}

func (c *Coordination) Finished(ctx *Context) bool {
	if c.done {
		return true
	}
	if ctx.Obs.LastAction == "submit" && ctx.Obs.LastActionResult == percept.ResultSuccess {
		c.submitted = true
		c.coop.ReleaseAll()
		c.done = true
	}
	return c.done
}

func (c *Coordination) Shift(offset grid.Coordinate, g grid.Geometry) {
	c.goalZone = c.goalZone.Shifted(offset, g)
	c.adopt.Shift(offset, g)
	c.clear.Shift(offset, g)
	c.coop.Shift(offset, g)
}

func (c *Coordination) Normalize(g grid.Geometry) {
	c.goalZone = c.goalZone.Normalize(g)
	c.adopt.Normalize(g)
	c.clear.Normalize(g)
	c.coop.Normalize(g)
}

func (c *Coordination) Explain() string {
	return fmt.Sprintf("coordinating %s at %s", c.coop.Task().Name, c.goalZone)
}
