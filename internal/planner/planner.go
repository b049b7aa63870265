// Package planner implements the cost-aware path search for an agent that
// may be dragging one attached block behind it. Moving straight is cheap,
// turning swings the block through adjacent cells and costs more, and cells
// that must be cleared first carry a surcharge scaled by clear chance and
// remaining energy. The search is pure: it reads the map and never mutates
// shared state, so it is safe to run concurrently for distinct agents.
package planner

import (
	"container/heap"
	"math"
	"math/rand"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/worldmap"
)

// Cost of clearing a cell holding a foreign block. Kept prohibitively high
// so such cells are only crossed when nothing else works.
const blockClearValue = 100.0

// Input bundles the per-call planning context.
type Input struct {
	Map               *worldmap.Map
	Start             grid.Coordinate
	Speed             int
	Energy            int
	MaxEnergy         int
	ClearEnergyCost   float64
	ClearChance       float64
	ClearConstantCost float64
	MaxIterations     int
	Vision            int
	Attached          []grid.Coordinate // relative coordinates of carried entities
}

type costs struct {
	travelTime       float64 // per straight step
	clearCost        float64 // energy-scarcity penalty per clear
	clearSuccessTime float64 // expected attempts until a clear succeeds
}

func (in Input) constants() costs {
	energyBudget := math.Max(float64(in.Energy)-in.ClearEnergyCost, 0.1) / float64(in.MaxEnergy)
	return costs{
		travelTime:       1 / float64(in.Speed),
		clearCost:        in.ClearConstantCost / energyBudget,
		clearSuccessTime: math.Ceil(1 / in.ClearChance),
	}
}

func (c costs) clear() float64 { return c.clearSuccessTime + c.clearCost }

// NextAction searches a path to goal and returns the first primitive needed
// to follow it: a clear if the next cell must be cleared, a rotate if the
// dragged block must swing first, otherwise a move batching as many straight
// steps as the agent's speed allows. With ignoreMarkers set, hazard markers
// are treated as passable (escape mode). Returns a skip when no node at all
// was expandable.
func NextAction(in Input, goal grid.Coordinate, ignoreMarkers bool) action.Action {
	cs := in.constants()
	result := search(in, goal, cs, ignoreMarkers)
	if result.end == nil {
		return action.NewSkip()
	}
	return synthesize(in, result)
}

// ClosestFreeCoordinate returns the reachable empty-or-unknown cell with the
// cheapest escape path, used when fleeing a hazard. Distance alone would
// ignore required clears and rotations.
func ClosestFreeCoordinate(in Input) grid.Coordinate {
	g := in.Map.Geometry()
	searchRange := 1
	var free []grid.Coordinate
	for len(free) == 0 {
		for _, c := range in.Start.Ring(g, searchRange) {
			switch in.Map.KindAt(c) {
			case grid.Empty, grid.Unknown:
				free = append(free, c)
			}
		}
		searchRange++
	}

	cs := in.constants()
	best := free[0]
	bestCost := math.Inf(1)
	for _, c := range free {
		if r := search(in, c, cs, true); r.end != nil && r.cost < bestCost {
			best, bestCost = c, r.cost
		}
	}
	return best
}

type searchResult struct {
	cost      float64
	cameFrom  map[grid.Coordinate]grid.Coordinate
	end       *grid.Coordinate
	rotations map[grid.Coordinate]grid.Direction
}

func search(in Input, goal grid.Coordinate, cs costs, ignoreMarkers bool) searchResult {
	g := in.Map.Geometry()
	res := searchResult{
		cameFrom:  make(map[grid.Coordinate]grid.Coordinate),
		rotations: make(map[grid.Coordinate]grid.Direction),
	}
	if in.Start == goal {
		return res
	}

	gScore := map[grid.Coordinate]float64{in.Start: 0}
	open := &openSet{}
	heap.Init(open)
	heap.Push(open, openNode{coord: in.Start, priority: grid.Distance(in.Start, goal, g)})

	// The dragged block's relative position depends on the rotations taken
	// along the way, so it is tracked per expanded node.
	attached := map[grid.Coordinate][]grid.Coordinate{in.Start: in.Attached}

	for iter := 0; iter <= in.MaxIterations && open.Len() > 0; iter++ {
		current := heap.Pop(open).(openNode).coord
		if current == goal {
			res.cost = gScore[current]
			res.end = &current
			return res
		}

		for _, step := range neighbors(in, current, ignoreMarkers, attached[current], g) {
			cost, rotDir := stepCost(in, current, step, cs, attached[current], g)
			tentative := gScore[current] + cost
			if prev, seen := gScore[step.coord]; seen && tentative >= prev {
				continue
			}
			res.cameFrom[step.coord] = current
			attached[step.coord] = step.attached
			gScore[step.coord] = tentative
			if rotDir != nil {
				res.rotations[step.coord] = *rotDir
			} else {
				delete(res.rotations, step.coord)
			}
			heap.Push(open, openNode{coord: step.coord, priority: tentative + grid.Distance(step.coord, goal, g)})
		}
	}

	// Iteration bound hit: degrade to the expanded node heuristically
	// closest to the goal instead of failing.
	if open.Len() > 0 {
		var closest *grid.Coordinate
		bestH := math.Inf(1)
		for coord := range res.cameFrom {
			if h := grid.Distance(coord, goal, g); h < bestH {
				c := coord
				closest, bestH = &c, h
			}
		}
		if closest != nil {
			res.cost = gScore[*closest]
			res.end = closest
		}
	}
	return res
}

type neighborStep struct {
	coord    grid.Coordinate
	attached []grid.Coordinate
	// For turns: which swing directions are geometrically available.
	swing map[grid.Direction]bool
}

func neighbors(in Input, current grid.Coordinate, ignoreMarkers bool, attached []grid.Coordinate, g grid.Geometry) []neighborStep {
	var out []neighborStep
	for _, d := range grid.Directions {
		next := current.Moved(g, d)
		step, ok := passable(in, current, next, ignoreMarkers, attached, g)
		if ok {
			out = append(out, step)
		}
	}
	// Shuffle so equal-cost paths differ between agents and steps.
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// passableCell applies the optimistic rule: markers and agents block only
// within the planning agent's current vision, beyond it they will likely
// have moved by arrival.
func passableCell(in Input, c grid.Coordinate, ignoreMarkers bool, g grid.Geometry) bool {
	kind := in.Map.KindAt(c)
	if ignoreMarkers && kind == grid.Marker {
		kind = in.Map.AtIgnoringMarkers(c).Kind
	}
	switch kind {
	case grid.Empty, grid.Obstacle, grid.Unknown, grid.Block:
		return true
	case grid.Marker, grid.Agent:
		return grid.ManhattanDistance(in.Start, c, g) > in.Vision
	}
	// Dispensers cannot be entered or cleared, so they block like the edge
	// of the known world.
	return false
}

func passable(in Input, current, next grid.Coordinate, ignoreMarkers bool, attached []grid.Coordinate, g grid.Geometry) (neighborStep, bool) {
	if !passableCell(in, next, ignoreMarkers, g) {
		return neighborStep{}, false
	}
	if len(attached) != 1 {
		return neighborStep{coord: next, attached: attached}, true
	}

	flat := grid.Geometry{}
	rel := attached[0]
	moveDir := current.DirectionTo(next, g)
	faceDir := rel.DirectionTo(grid.Origin, flat)

	switch {
	case moveDir.SameAs(faceDir):
		// Straight pull, the block follows into the agent's old cell.
		return neighborStep{coord: next, attached: attached}, true

	case moveDir.OppositeOf(faceDir):
		// Half turn: the block must swing through one of two lateral arcs,
		// each passing a side cell and the front cell.
		front := current.Moved(g, faceDir)
		left, right := moveDir.Adjacent()
		canLeft := passableCell(in, current.Moved(g, left), ignoreMarkers, g) && passableCell(in, front, ignoreMarkers, g)
		canRight := passableCell(in, current.Moved(g, right), ignoreMarkers, g) && passableCell(in, front, ignoreMarkers, g)
		if !canLeft && !canRight {
			return neighborStep{}, false
		}
		halfTurned := rel.Rotated(grid.Clockwise).Rotated(grid.Clockwise)
		return neighborStep{
			coord:    next,
			attached: []grid.Coordinate{halfTurned},
			swing:    map[grid.Direction]bool{left: canLeft, right: canRight},
		}, true

	default:
		// Quarter turn: the block swings into the cell opposite the move and
		// trails behind from there.
		trail := moveDir.Opposite()
		if !passableCell(in, current.Moved(g, trail), ignoreMarkers, g) {
			return neighborStep{}, false
		}
		turned := rel.Rotated(rel.RotationTo(trail))
		return neighborStep{
			coord:    next,
			attached: []grid.Coordinate{turned},
			swing:    map[grid.Direction]bool{trail: true},
		}, true
	}
}

// stepCost prices one edge. Returns the chosen swing direction when a
// rotation participates.
func stepCost(in Input, current grid.Coordinate, step neighborStep, cs costs, attached []grid.Coordinate, g grid.Geometry) (float64, *grid.Direction) {
	if len(attached) != 1 || step.swing == nil {
		return plainCost(in.Map.AtIgnoringMarkers(step.coord).Kind, cs), nil
	}

	flat := grid.Geometry{}
	rel := attached[0]
	moveDir := current.DirectionTo(step.coord, g)
	faceDir := rel.DirectionTo(grid.Origin, flat)

	switch {
	case moveDir.SameAs(faceDir):
		return plainCost(in.Map.AtIgnoringMarkers(step.coord).Kind, cs), nil

	case moveDir.OppositeOf(faceDir):
		return halfTurnCost(in, current, step, cs, g)

	default:
		cost := 3.0
		cost += clearSurcharge(in.Map.AtIgnoringMarkers(step.coord).Kind, cs)
		trail := moveDir.Opposite()
		swingKind := in.Map.AtIgnoringMarkers(current.Moved(g, trail)).Kind
		if swingKind == grid.Obstacle {
			cost += cs.clear()
		} else if swingKind == grid.Block && trail.Vector() != rel {
			cost += blockClearValue + cs.clear()
		}
		return cost, &trail
	}
}

func plainCost(kind grid.CellKind, cs costs) float64 {
	switch kind {
	case grid.Obstacle:
		return 1 + cs.clear()
	case grid.Block:
		return blockClearValue + cs.clear()
	default:
		return cs.travelTime
	}
}

func clearSurcharge(kind grid.CellKind, cs costs) float64 {
	switch kind {
	case grid.Obstacle:
		return cs.clear()
	case grid.Block:
		return blockClearValue + cs.clear()
	default:
		return 0
	}
}

func halfTurnCost(in Input, current grid.Coordinate, step neighborStep, cs costs, g grid.Geometry) (float64, *grid.Direction) {
	faceDir := step.coord.DirectionTo(current, g)
	front := current.Moved(g, faceDir)
	left, right := faceDir.Adjacent()

	arcCost := func(side grid.Direction) float64 {
		cost := 6.0
		for _, c := range []grid.Coordinate{current.Moved(g, side), front} {
			cost += clearSurcharge(in.Map.AtIgnoringMarkers(c).Kind, cs)
		}
		return cost
	}
	leftCost, rightCost := arcCost(left), arcCost(right)

	switch {
	case !step.swing[left]:
		return rightCost, &right
	case !step.swing[right]:
		return leftCost, &left
	case leftCost <= rightCost:
		return leftCost, &left
	default:
		return rightCost, &right
	}
}

type openNode struct {
	coord    grid.Coordinate
	priority float64
}

type openSet []openNode

func (s openSet) Len() int            { return len(s) }
func (s openSet) Less(i, j int) bool  { return s[i].priority < s[j].priority }
func (s openSet) Swap(i, j int)       { s[i], s[j] = s[j], s[i] }
func (s *openSet) Push(v any)         { *s = append(*s, v.(openNode)) }
func (s *openSet) Pop() any           { old := *s; n := len(old); v := old[n-1]; *s = old[:n-1]; return v }
