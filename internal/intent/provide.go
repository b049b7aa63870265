package intent

import (
	"fmt"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/percept"
)

// BlockProviding runs the provider side of a cooperative task: fetch the
// assigned block, park within handover range of the coordinator, and when
// told to, maneuver the block onto its shape cell and hand it over.
type BlockProviding struct {
	coop *Coop

	adopt    *AdoptRole
	shed     *DetachBlocks
	collect  *BlockCollection
	delivery *DistantAgitatedTravel
	handover *connectHandover

	dropping bool
	done     bool
}

// NewBlockProviding creates the provider intention for one requirement of
// the shared assignment.
func NewBlockProviding(coop *Coop, agentID, role string) *BlockProviding {
	return &BlockProviding{
		coop:    coop,
		adopt:   NewAdoptRole(role),
		shed:    NewDetachBlocks(),
		collect: NewBlockCollection(coop.Requirement(agentID).BlockType),
	}
}

// Priority places task work above exploration.
func (p *BlockProviding) Priority() float64 { return PriorityTask }

// TaskName identifies the assignment.
func (p *BlockProviding) TaskName() string { return p.coop.Task().Name }

// Drop abandons the assignment, shedding the carried block.
func (p *BlockProviding) Drop(*Context) {
	if !p.dropping {
		p.dropping = true
		p.shed = NewDetachBlocks()
	}
}

// OnEscape tells the coordinator not to wait for us while the hazard detour
// runs.
func (p *BlockProviding) OnEscape(ctx *Context) {
	p.coop.SetEscaping(ctx.Agent.ID, true)
	p.coop.SetReady(ctx.Agent.ID, false)
}

func (p *BlockProviding) Plan(ctx *Context) action.Action {
	p.coop.SetEscaping(ctx.Agent.ID, false)

	if p.dropping {
		if p.shed.Finished(ctx) {
			p.done = true
			return action.NewSkip()
		}
		return p.shed.Plan(ctx)
	}
	if p.coop.Released(ctx.Agent.ID) {
		p.done = true
		return action.NewSkip()
	}
	if ctx.State.Expired(p.coop.Task().Name) {
		p.Drop(ctx)
		return p.Plan(ctx)
	}

	// Settle the collect state first: a block attached this very step must
	// count as collected before the shed gate looks at the attachments.
	collected := p.collect.Finished(ctx)
	if !collected && !p.shed.Finished(ctx) {
		return p.shed.Plan(ctx)
	}
	if !p.adopt.Finished(ctx) {
		return p.adopt.Plan(ctx)
	}
	if !collected {
		return p.collect.Plan(ctx)
	}

	if blockRel, ok := p.coop.Connection(ctx.Agent.ID); ok {
		if p.handover == nil || p.handover.blockRel != blockRel {
			p.handover = newConnectHandover(p.coop, blockRel)
		}
		return p.handover.Plan(ctx)
	}

	// Park just inside the coordinator's vision and report ready.
	coordAt := p.coop.CoordinatorAt()
	vision := ctx.Vision()
	if p.delivery == nil {
		p.delivery = NewDistantAgitatedTravel(ctx, coordAt, vision, vision-1)
	} else {
		p.delivery.Recenter(ctx, coordAt)
	}
	p.coop.SetReady(ctx.Agent.ID, p.delivery.Arrived(ctx))
	return p.delivery.Plan(ctx)
}

func (p *BlockProviding) Finished(ctx *Context) bool {
	if p.done {
		return true
	}
	if p.handover != nil && p.handover.Finished(ctx) {
		p.coop.SetDelivered(ctx.Agent.ID)
		if p.coop.Released(ctx.Agent.ID) {
			p.done = true
		}
	}
	return p.done
}

func (p *BlockProviding) Shift(offset grid.Coordinate, g grid.Geometry) {
	p.adopt.Shift(offset, g)
	p.collect.Shift(offset, g)
	if p.delivery != nil {
		p.delivery.Shift(offset, g)
	}
	if p.handover != nil {
		p.handover.Shift(offset, g)
	}
}

func (p *BlockProviding) Normalize(g grid.Geometry) {
	p.adopt.Normalize(g)
	p.collect.Normalize(g)
	if p.delivery != nil {
		p.delivery.Normalize(g)
	}
	if p.handover != nil {
		p.handover.Normalize(g)
	}
}

func (p *BlockProviding) Explain() string {
	return fmt.Sprintf("providing for %s", p.coop.Task().Name)
}

// connectHandover maneuvers the provider's block onto its assigned shape
// cell and transfers it: a detach suffices when the cell borders the
// coordinator (who attaches), otherwise a connect followed by a detach.
type connectHandover struct {
	coop     *Coop
	blockRel grid.Coordinate // relative to the coordinator

	connected bool
	delivered bool
}

func newConnectHandover(coop *Coop, blockRel grid.Coordinate) *connectHandover {
	return &connectHandover{coop: coop, blockRel: blockRel}
}

func (h *connectHandover) Plan(ctx *Context) action.Action {
	attached := ctx.Agent.Attachments()
	if len(attached) == 0 {
		return action.NewSkip()
	}
	rel := attached[0]

	g := ctx.Map.Geometry()
	pos := ctx.Position()
	coordAt := h.coop.CoordinatorAt()
	blockGoal := coordAt.Shifted(h.blockRel, g)
	blockAbs := pos.Shifted(rel, g)

	if blockAbs != blockGoal {
		h.coop.SetInPosition(ctx.Agent.ID, false)
		if grid.ManhattanDistance(pos, blockGoal, g) == 1 {
			required := pos.Relative(blockGoal, g)
			return alignAttachment(ctx, rel, required)
		}
		if stand, ok := h.standCell(ctx, blockGoal, coordAt); ok {
			return ctx.Travel(stand, false)
		}
		return action.NewSkip()
	}
	h.coop.SetInPosition(ctx.Agent.ID, true)

	flat := grid.Geometry{}
	if grid.ManhattanDistance(grid.Origin, h.blockRel, flat) == 1 || h.connected {
		return action.NewDetach(grid.Origin.DirectionTo(rel, flat))
	}
	// The connect only lands when the coordinator's matching offer arrives
	// in the same step, so keep offering until the success comes back.
	return action.NewConnect(h.coop.CoordinatorID(), rel)
}

// standCell picks the neighbor of the block's goal cell the provider should
// occupy, avoiding the coordinator and the shape cells.
func (h *connectHandover) standCell(ctx *Context, blockGoal, coordAt grid.Coordinate) (grid.Coordinate, bool) {
	g := ctx.Map.Geometry()
	pos := ctx.Position()
	shape := make(map[grid.Coordinate]struct{})
	for _, r := range h.coop.Task().Requirements {
		shape[coordAt.Shifted(r.Rel, g)] = struct{}{}
	}

	var best grid.Coordinate
	found := false
	for _, n := range blockGoal.Neighbors(g) {
		if n == coordAt {
			continue
		}
		if _, taken := shape[n]; taken {
			continue
		}
		switch ctx.Map.KindAt(n) {
		case grid.Empty, grid.Unknown, grid.Obstacle:
			if !found || grid.Closer(pos, best, n, g) {
				best, found = n, true
			}
		}
	}
	return best, found
}

func (h *connectHandover) Finished(ctx *Context) bool {
	if ctx.Obs.LastActionResult == percept.ResultSuccess {
		switch ctx.Obs.LastAction {
		case "connect":
			h.connected = true
		case "detach":
			h.delivered = true
		}
	}
	return h.delivered
}

func (h *connectHandover) Shift(grid.Coordinate, grid.Geometry) {}

func (h *connectHandover) Normalize(grid.Geometry) {}

func (h *connectHandover) Explain() string {
	return fmt.Sprintf("handing block over at %s", h.blockRel)
}
