package intent

import (
	"fmt"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/percept"
	"github.com/talgya/blockswarm/internal/simstate"
)

// SoloTask works a one-block task alone: adopt the reserved role, collect
// the block, carry it to the reserved goal zone, align it with the task
// shape and submit.
type SoloTask struct {
	task     simstate.Task
	goalZone grid.Coordinate

	adopt   *AdoptRole
	collect *BlockCollection
	submit  *soloSubmission

	dropping bool
	detach   *DetachBlocks
	done     bool
}

// NewSoloTask creates the intention for a task with exactly one requirement.
// The goal zone must already be reserved for the agent.
func NewSoloTask(task simstate.Task, goalZone grid.Coordinate, role string) *SoloTask {
	return &SoloTask{
		task:     task,
		goalZone: goalZone,
		adopt:    NewAdoptRole(role),
		collect:  NewBlockCollection(task.Requirements[0].BlockType),
	}
}

// Priority places task work above exploration.
func (s *SoloTask) Priority() float64 { return PriorityTask }

// TaskName identifies the assignment for the allocator and the handler.
func (s *SoloTask) TaskName() string { return s.task.Name }

// Drop begins abandoning the task, shedding any carried block first.
func (s *SoloTask) Drop(*Context) {
	if !s.dropping {
		s.dropping = true
		s.detach = NewDetachBlocks()
	}
}

// OnEscape needs no special handling: the solo agent re-plans its approach
// after the detour.
func (s *SoloTask) OnEscape(*Context) {}

func (s *SoloTask) Plan(ctx *Context) action.Action {
	if s.dropping {
		if s.detach.Finished(ctx) {
			s.done = true
			return action.NewSkip()
		}
		return s.detach.Plan(ctx)
	}
	if s.shouldDrop(ctx) {
		s.Drop(ctx)
		return s.Plan(ctx)
	}

	if !s.adopt.Finished(ctx) {
		return s.adopt.Plan(ctx)
	}
	if !s.collect.Finished(ctx) {
		return s.collect.Plan(ctx)
	}
	if s.submit == nil {
		s.submit = newSoloSubmission(s.task, s.goalZone)
	}
	return s.submit.Plan(ctx)
}

// shouldDrop covers the board-level abort conditions: the task left the
// board, the reserved zone vanished, or a norm forbids carrying the block.
func (s *SoloTask) shouldDrop(ctx *Context) bool {
	if ctx.State.Expired(s.task.Name) {
		return true
	}
	if !ctx.Map.IsGoalZone(s.goalZone) {
		return true
	}
	if limit, capped := ctx.State.MaxBlockRegulation(); capped && limit < len(s.task.Requirements) {
		return true
	}
	return false
}

func (s *SoloTask) Finished(ctx *Context) bool {
	if s.done {
		return true
	}
	if s.submit != nil && s.submit.Finished(ctx) {
		s.done = true
	}
	return s.done
}

func (s *SoloTask) Shift(offset grid.Coordinate, g grid.Geometry) {
	s.goalZone = s.goalZone.Shifted(offset, g)
	s.adopt.Shift(offset, g)
	s.collect.Shift(offset, g)
	if s.submit != nil {
		s.submit.Shift(offset, g)
	}
}

func (s *SoloTask) Normalize(g grid.Geometry) {
	s.goalZone = s.goalZone.Normalize(g)
	s.adopt.Normalize(g)
	s.collect.Normalize(g)
	if s.submit != nil {
		s.submit.Normalize(g)
	}
}

func (s *SoloTask) Explain() string {
	return fmt.Sprintf("solo task %s at %s", s.task.Name, s.goalZone)
}

// soloSubmission carries the collected block into the goal zone, rotates it
// onto the required side and submits.
type soloSubmission struct {
	task      simstate.Task
	goalZone  grid.Coordinate
	submitted bool
}

func newSoloSubmission(task simstate.Task, goalZone grid.Coordinate) *soloSubmission {
	return &soloSubmission{task: task, goalZone: goalZone}
}

func (s *soloSubmission) Plan(ctx *Context) action.Action {
	pos := ctx.Position()
	if pos != s.goalZone {
		// A zone freed up closer by? Swap the reservation over mid-route.
		blockRel := []grid.Coordinate{s.task.Requirements[0].Rel}
		if zone, ok := ctx.Map.TryReserveCloserGoalZone(ctx.Agent.ID, &s.goalZone, pos, blockRel); ok {
			s.goalZone = zone
		}
		return ctx.Travel(s.goalZone, false)
	}

	attached := ctx.Agent.Attachments()
	if len(attached) == 0 {
		return action.NewSkip()
	}
	required := s.task.Requirements[0].Rel
	if attached[0] == required {
		return action.NewSubmit(s.task.Name)
	}
	return alignAttachment(ctx, attached[0], required)
}

func (s *soloSubmission) Finished(ctx *Context) bool {
	if ctx.Obs.LastAction == "submit" && ctx.Obs.LastActionResult == percept.ResultSuccess {
		s.submitted = true
	}
	if s.submitted {
		return true
	}
	return ctx.State.Expired(s.task.Name) || !ctx.Agent.HasAttachments() || !ctx.Map.IsGoalZone(s.goalZone)
}

func (s *soloSubmission) Shift(offset grid.Coordinate, g grid.Geometry) {
	s.goalZone = s.goalZone.Shifted(offset, g)
}

func (s *soloSubmission) Normalize(g grid.Geometry) { s.goalZone = s.goalZone.Normalize(g) }

func (s *soloSubmission) Explain() string {
	return fmt.Sprintf("submitting %s at %s", s.task.Name, s.goalZone)
}

// alignAttachment rotates a single attached block from rel toward the
// required side, clearing the landing cell first when something removable
// sits on it.
func alignAttachment(ctx *Context, rel, required grid.Coordinate) action.Action {
	g := ctx.Map.Geometry()
	pos := ctx.Position()

	tryRotation := func(r grid.Rotation) (action.Action, bool) {
		landingRel := rel.Rotated(r)
		landing := pos.Shifted(landingRel, g)
		switch ctx.Map.AtIgnoringMarkers(landing).Kind {
		case grid.Empty, grid.Unknown:
			return action.NewRotate(r), true
		case grid.Obstacle, grid.Block:
			return action.NewClear(landingRel), true
		}
		return action.Action{}, false
	}

	if rel.Rotated(grid.Clockwise) == required {
		if act, ok := tryRotation(grid.Clockwise); ok {
			return act
		}
		return action.NewSkip()
	}
	if rel.Rotated(grid.CounterClockwise) == required {
		if act, ok := tryRotation(grid.CounterClockwise); ok {
			return act
		}
		return action.NewSkip()
	}

	// Opposite side: either sense works, take the first with a free arc.
	if act, ok := tryRotation(grid.Clockwise); ok {
		return act
	}
	if act, ok := tryRotation(grid.CounterClockwise); ok {
		return act
	}
	return action.NewSkip()
}
