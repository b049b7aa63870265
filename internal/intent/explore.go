package intent

import (
	"fmt"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
)

// Explore pushes the frontier: it heads for the unknown region closest to
// the agent's starting position, overshooting past the frontier so the
// agent keeps covering new ground. It finishes once the whole team shares a
// single fully mapped torus, leaving SurveyMap to keep the knowledge fresh.
type Explore struct {
	target *grid.Coordinate
}

// NewExplore creates the base exploration intention.
func NewExplore() *Explore { return &Explore{} }

// Priority places exploration below all task work.
func (e *Explore) Priority() float64 { return PriorityExplore }

func (e *Explore) Plan(ctx *Context) action.Action {
	if e.target == nil || ctx.Map.KindAt(*e.target) != grid.Unknown {
		e.retarget(ctx)
	}
	if e.target == nil {
		return action.NewSkip()
	}
	return ctx.Travel(*e.target, false)
}

func (e *Explore) retarget(ctx *Context) {
	start := ctx.Map.StartingCoordinate(ctx.Agent.ID)
	if t, ok := ctx.Map.ClosestUnknown(start, ctx.Position(), ctx.Vision()); ok {
		e.target = &t
		return
	}
	// Nothing unknown in reach: drift far away so later sweeps diverge.
	t := ctx.Map.RandomFarCoordinate(ctx.Position(), ctx.Vision())
	e.target = &t
}

func (e *Explore) Finished(ctx *Context) bool {
	return ctx.MapCount == 1 && ctx.Map.Explored()
}

func (e *Explore) Shift(offset grid.Coordinate, g grid.Geometry) {
	if e.target != nil {
		t := e.target.Shifted(offset, g)
		e.target = &t
	}
}

func (e *Explore) Normalize(g grid.Geometry) {
	if e.target != nil {
		t := e.target.Normalize(g)
		e.target = &t
	}
}

func (e *Explore) Explain() string {
	if e.target == nil {
		return "explore: no target"
	}
	return fmt.Sprintf("explore: heading for %s", e.target)
}

// SurveyMap keeps old knowledge fresh once the grid is fully known: it
// walks toward the least recently observed region.
type SurveyMap struct {
	target *grid.Coordinate
}

// NewSurveyMap creates the base re-survey intention.
func NewSurveyMap() *SurveyMap { return &SurveyMap{} }

// Priority places re-surveying below exploration.
func (s *SurveyMap) Priority() float64 { return PriorityMap }

func (s *SurveyMap) Plan(ctx *Context) action.Action {
	pos := ctx.Position()
	if s.target == nil || grid.ManhattanDistance(pos, *s.target, ctx.Map.Geometry()) <= ctx.Vision() {
		t := ctx.Map.OldestCoordinate(pos, ctx.Vision())
		s.target = &t
	}
	return ctx.Travel(*s.target, false)
}

func (s *SurveyMap) Finished(*Context) bool { return false }

func (s *SurveyMap) Shift(offset grid.Coordinate, g grid.Geometry) {
	if s.target != nil {
		t := s.target.Shifted(offset, g)
		s.target = &t
	}
}

func (s *SurveyMap) Normalize(g grid.Geometry) {
	if s.target != nil {
		t := s.target.Normalize(g)
		s.target = &t
	}
}

func (s *SurveyMap) Explain() string {
	if s.target == nil {
		return "survey: no target"
	}
	return fmt.Sprintf("survey: refreshing %s", s.target)
}

// Idle is the queue's floor so selection never comes up empty.
type Idle struct{}

// NewIdle creates the base idle intention.
func NewIdle() *Idle { return &Idle{} }

// Priority places idling last.
func (i *Idle) Priority() float64 { return PriorityIdle }

func (i *Idle) Plan(*Context) action.Action { return action.NewSkip() }

func (i *Idle) Finished(*Context) bool { return false }

func (i *Idle) Shift(grid.Coordinate, grid.Geometry) {}

func (i *Idle) Normalize(grid.Geometry) {}

func (i *Idle) Explain() string { return "idle" }
