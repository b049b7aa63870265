package intent

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/percept"
)

// DetachBlocks sheds the whole attachment tree one adjacent detach at a
// time. Sub-intention of the task machines when they carry the wrong blocks.
type DetachBlocks struct{}

// NewDetachBlocks creates the shedding sub-intention.
func NewDetachBlocks() *DetachBlocks { return &DetachBlocks{} }

func (d *DetachBlocks) Plan(ctx *Context) action.Action {
	flat := grid.Geometry{}
	for _, rel := range ctx.Agent.Attachments() {
		if grid.ManhattanDistance(grid.Origin, rel, flat) == 1 {
			return action.NewDetach(grid.Origin.DirectionTo(rel, flat))
		}
	}
	return action.NewSkip()
}

func (d *DetachBlocks) Finished(ctx *Context) bool { return !ctx.Agent.HasAttachments() }

func (d *DetachBlocks) Shift(grid.Coordinate, grid.Geometry) {}

func (d *DetachBlocks) Normalize(grid.Geometry) {}

func (d *DetachBlocks) Explain() string { return "detaching blocks" }

// ClearTarget removes one specific cell, walking into clear range first.
type ClearTarget struct {
	target grid.Coordinate
}

// NewClearTarget creates the sub-intention for one cell.
func NewClearTarget(target grid.Coordinate) *ClearTarget {
	return &ClearTarget{target: target}
}

func (c *ClearTarget) Plan(ctx *Context) action.Action {
	g := ctx.Map.Geometry()
	pos := ctx.Position()
	maxDist := ctx.Role().ClearMaxDistance
	if maxDist < 1 {
		maxDist = 1
	}
	if grid.ManhattanDistance(pos, c.target, g) <= maxDist {
		return action.NewClear(pos.Relative(c.target, g))
	}
	if spot, ok := c.closestFreeNeighbor(ctx); ok {
		return ctx.Travel(spot, false)
	}
	return action.NewSkip()
}

func (c *ClearTarget) closestFreeNeighbor(ctx *Context) (grid.Coordinate, bool) {
	g := ctx.Map.Geometry()
	pos := ctx.Position()
	var best grid.Coordinate
	bestDist := -1
	for _, n := range c.target.Neighbors(g) {
		switch ctx.Map.KindAt(n) {
		case grid.Empty, grid.Unknown:
			if d := grid.ManhattanDistance(pos, n, g); bestDist < 0 || d < bestDist {
				best, bestDist = n, d
			}
		}
	}
	return best, bestDist >= 0
}

func (c *ClearTarget) Finished(ctx *Context) bool {
	switch ctx.Map.KindAt(c.target) {
	case grid.Empty, grid.Dispenser:
		return true
	}
	_, reachable := c.closestFreeNeighbor(ctx)
	return !reachable
}

func (c *ClearTarget) Shift(offset grid.Coordinate, g grid.Geometry) {
	c.target = c.target.Shifted(offset, g)
}

func (c *ClearTarget) Normalize(g grid.Geometry) { c.target = c.target.Normalize(g) }

func (c *ClearTarget) Explain() string { return fmt.Sprintf("clearing %s", c.target) }

// ClearZone cleans the area around a base, usually a reserved goal zone,
// removing obstacles, stray blocks and fog so providers can approach. With a
// long-range clear role it occasionally takes a shot at a nearby enemy.
type ClearZone struct {
	base grid.Coordinate
}

// NewClearZone creates the sub-intention around a base cell.
func NewClearZone(base grid.Coordinate) *ClearZone { return &ClearZone{base: base} }

func (z *ClearZone) Plan(ctx *Context) action.Action {
	if ctx.LowEnergy() {
		// Below the energy floor the agent holds position and recharges
		// instead of spending on clears.
		return action.NewSkip()
	}

	g := ctx.Map.Geometry()
	pos := ctx.Position()
	role := ctx.Role()

	if role.ClearMaxDistance > 1 && rand.Intn(2) == 0 {
		if rel, ok := z.enemyInRange(ctx); ok {
			return action.NewClear(rel)
		}
	}

	target, ok := z.closestClearable(ctx)
	if !ok {
		return action.NewSkip()
	}
	maxDist := role.ClearMaxDistance
	if maxDist < 1 {
		maxDist = 1
	}
	dist := grid.ManhattanDistance(pos, target, g)
	if dist <= maxDist {
		// Clearing drains energy; back off while adjacent work can wait.
		if ctx.Params.ClearEnergyCost*2.4 > float64(ctx.Agent.Energy) && dist <= 1 {
			return action.NewSkip()
		}
		return action.NewClear(pos.Relative(target, g))
	}
	return ctx.Travel(target, false)
}

func (z *ClearZone) enemyInRange(ctx *Context) (grid.Coordinate, bool) {
	g := ctx.Map.Geometry()
	pos := ctx.Position()
	for _, c := range pos.NeighborsWithin(g, ctx.Role().ClearMaxDistance, 1) {
		cell := ctx.Map.AtIgnoringMarkers(c)
		if cell.Kind != grid.Agent || cell.Detail == ctx.Agent.Team {
			continue
		}
		if ctx.Map.IsGoalZone(c) {
			continue
		}
		return pos.Relative(c, g), true
	}
	return grid.Coordinate{}, false
}

func (z *ClearZone) closestClearable(ctx *Context) (grid.Coordinate, bool) {
	g := ctx.Map.Geometry()
	pos := ctx.Position()
	own := make(map[grid.Coordinate]struct{})
	for _, a := range ctx.AbsAttached() {
		own[a] = struct{}{}
	}
	var best grid.Coordinate
	bestDist := -1
	for _, c := range z.base.NeighborsWithin(g, ctx.Vision(), 0) {
		if _, mine := own[c]; mine {
			continue
		}
		switch ctx.Map.AtIgnoringMarkers(c).Kind {
		case grid.Unknown, grid.Obstacle, grid.Block:
			if d := grid.ManhattanDistance(pos, c, g); bestDist < 0 || d < bestDist {
				best, bestDist = c, d
			}
		}
	}
	return best, bestDist >= 0
}

func (z *ClearZone) Finished(ctx *Context) bool {
	_, any := z.closestClearable(ctx)
	return !any
}

func (z *ClearZone) Shift(offset grid.Coordinate, g grid.Geometry) {
	z.base = z.base.Shifted(offset, g)
}

func (z *ClearZone) Normalize(g grid.Geometry) { z.base = z.base.Normalize(g) }

func (z *ClearZone) Explain() string { return fmt.Sprintf("clearing zone around %s", z.base) }

// BlockCollection obtains one block of a given type: it heads for the
// closest dispenser (or a closer abandoned block of the right type),
// requests, and attaches. When several providers crowd the same dispenser
// the one with the smaller id goes first.
type BlockCollection struct {
	blockType string
	travel    *AgitatedTravel
	source    *grid.Coordinate
	attached  bool
}

// NewBlockCollection creates the sub-intention for one block type.
func NewBlockCollection(blockType string) *BlockCollection {
	return &BlockCollection{blockType: blockType}
}

func (b *BlockCollection) Plan(ctx *Context) action.Action {
	g := ctx.Map.Geometry()
	pos := ctx.Position()

	source, fromDispenser, ok := b.pickSource(ctx)
	if !ok {
		return action.NewSkip()
	}
	b.source = &source

	if grid.ManhattanDistance(pos, source, g) > 1 {
		if b.travel == nil {
			b.travel = NewAgitatedTravel(source.Neighbors(g))
		} else {
			b.travel.Retarget(source.Neighbors(g))
		}
		return b.travel.Plan(ctx)
	}

	if stuck, act := b.stuckTogether(ctx); stuck {
		return act
	}

	onSource := ctx.Map.AtIgnoringMarkers(source)
	dir := pos.DirectionTo(source, g)
	switch {
	case onSource.Kind == grid.Block && onSource.Detail == b.blockType:
		if b.shouldDefer(ctx, source) {
			return action.NewSkip()
		}
		return action.NewAttach(dir)
	case onSource.Kind == grid.Block:
		// Wrong type sitting on the dispenser, shoot it off.
		return action.NewClear(pos.Relative(source, g))
	case fromDispenser:
		return action.NewRequest(dir)
	default:
		return action.NewSkip()
	}
}

// pickSource prefers an abandoned block of the right type over a dispenser
// when it is strictly closer, skipping blocks that look attached or hemmed in.
func (b *BlockCollection) pickSource(ctx *Context) (grid.Coordinate, bool, bool) {
	g := ctx.Map.Geometry()
	pos := ctx.Position()

	dispenser, haveDispenser := ctx.Map.ClosestDispenser(b.blockType, pos)

	attachedRel := make(map[grid.Coordinate]struct{}, len(ctx.Obs.Attached))
	for _, rel := range ctx.Obs.Attached {
		attachedRel[rel] = struct{}{}
	}

	var bestBlock grid.Coordinate
	haveBlock := false
blocks:
	for _, rel := range sortedKeys(ctx.Obs.Things) {
		cell := ctx.Obs.Things[rel]
		if cell.Kind != grid.Block || cell.Detail != b.blockType {
			continue
		}
		if _, taken := attachedRel[rel]; taken {
			continue
		}
		abs := pos.Shifted(rel, g)
		// Blocks resting on a dispenser belong to whoever requested them.
		if ctx.Map.AtWithDispenser(abs).Kind == grid.Dispenser {
			continue
		}
		for _, n := range abs.Neighbors(g) {
			switch ctx.Map.KindAt(n) {
			case grid.Block, grid.Agent, grid.Marker:
				continue blocks
			}
		}
		if !haveBlock || grid.Closer(pos, bestBlock, abs, g) {
			bestBlock, haveBlock = abs, true
		}
	}

	switch {
	case haveBlock && (!haveDispenser || grid.Closer(pos, dispenser, bestBlock, g)):
		return bestBlock, false, true
	case haveDispenser:
		return dispenser, true, true
	default:
		return grid.Coordinate{}, false, false
	}
}

// shouldDefer yields the dispenser to another adjacent provider that is
// already carrying something or simply sorts first by id.
func (b *BlockCollection) shouldDefer(ctx *Context, source grid.Coordinate) bool {
	g := ctx.Map.Geometry()
	for otherID, at := range ctx.Map.AgentCoordinates() {
		if otherID == ctx.Agent.ID {
			continue
		}
		if grid.ManhattanDistance(at, source, g) != 1 {
			continue
		}
		if otherID < ctx.Agent.ID {
			return true
		}
	}
	return false
}

// stuckTogether detects two providers holding the same fresh block: both
// adjacent to the dispenser with another agent on one of our attachment
// cells' neighbors. Breaking the tie randomly avoids a detach loop.
func (b *BlockCollection) stuckTogether(ctx *Context) (bool, action.Action) {
	if len(ctx.Agent.Attachments()) < 2 {
		return false, action.Action{}
	}
	g := ctx.Map.Geometry()
	for _, abs := range ctx.AbsAttached() {
		for _, n := range abs.Neighbors(g) {
			if n == ctx.Position() {
				continue
			}
			if ctx.Map.AtIgnoringMarkers(n).Kind == grid.Agent {
				if rand.Intn(2) == 0 {
					flat := grid.Geometry{}
					rel := ctx.Position().Relative(abs, g)
					return true, action.NewDetach(grid.Origin.DirectionTo(rel, flat))
				}
				return true, action.NewSkip()
			}
		}
	}
	return false, action.Action{}
}

func (b *BlockCollection) Finished(ctx *Context) bool {
	if ctx.Obs.LastAction == "attach" && ctx.Obs.LastActionResult == percept.ResultSuccess {
		if stuck, _ := b.stuckTogether(ctx); !stuck {
			b.attached = true
		}
	}
	return b.attached
}

func (b *BlockCollection) Shift(offset grid.Coordinate, g grid.Geometry) {
	if b.source != nil {
		s := b.source.Shifted(offset, g)
		b.source = &s
	}
	if b.travel != nil {
		b.travel.Shift(offset, g)
	}
}

func (b *BlockCollection) Normalize(g grid.Geometry) {
	if b.source != nil {
		s := b.source.Normalize(g)
		b.source = &s
	}
	if b.travel != nil {
		b.travel.Normalize(g)
	}
}

func (b *BlockCollection) Explain() string {
	return fmt.Sprintf("collecting a %s block", b.blockType)
}

// sortedKeys gives map iteration a stable order where choice stability
// matters across steps.
func sortedKeys(m map[grid.Coordinate]grid.Cell) []grid.Coordinate {
	out := make([]grid.Coordinate, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sortCoords(out)
	return out
}

func sortCoords(coords []grid.Coordinate) {
	sort.Slice(coords, func(i, j int) bool {
		if coords[i].Y != coords[j].Y {
			return coords[i].Y < coords[j].Y
		}
		return coords[i].X < coords[j].X
	})
}
