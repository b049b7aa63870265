// Package simstate holds the shared per-match state: the task board, the
// norm board and the match constants announced at simulation start. It is
// mutated only in the sequential phase of the step loop and read by the
// allocator and the intention machines.
package simstate

import (
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/roles"
)

// Requirement is one block of a task shape, relative to the submitting agent.
type Requirement struct {
	Rel       grid.Coordinate
	BlockType string
}

// Task is one entry of the task board.
type Task struct {
	Name         string
	Deadline     int
	Reward       int
	Requirements []Requirement
}

// EnoughTime reports whether the task can still realistically be finished:
// a flat lead time plus a few steps per block.
func (t Task) EnoughTime(step int) bool {
	return t.Deadline-step > 3+4*len(t.Requirements)
}

// NormRequirement is one clause of a norm: a cap on a role's head count or
// on the number of blocks an agent may carry.
type NormRequirement struct {
	Type     string // "role" or "block"
	Name     string
	Quantity int
}

// Norm is one entry of the norm board, active in [Start, Until].
type Norm struct {
	Name         string
	Start        int
	Until        int
	Punishment   int
	Requirements []NormRequirement
}

// State is the shared match state.
type State struct {
	Team       string
	TeamSize   int
	TotalSteps int

	step  int
	score int

	tasks map[string]Task
	norms map[string]Norm

	handledNorms map[string]struct{}
	ignoredNorms map[string]struct{}

	normHandleInterval int
}

// New creates the state from the simulation-start announcement.
func New(team string, teamSize, totalSteps, normHandleInterval int) *State {
	return &State{
		Team:               team,
		TeamSize:           teamSize,
		TotalSteps:         totalSteps,
		normHandleInterval: normHandleInterval,
		tasks:              make(map[string]Task),
		norms:              make(map[string]Norm),
		handledNorms:       make(map[string]struct{}),
		ignoredNorms:       make(map[string]struct{}),
	}
}

// SetStep records the current step number.
func (s *State) SetStep(step int) { s.step = step }

// Step returns the current step number.
func (s *State) Step() int { return s.step }

// SetScore records the team score reported in the percept.
func (s *State) SetScore(score int) { s.score = score }

// Score returns the last reported team score.
func (s *State) Score() int { return s.score }

// UpdateTasks replaces the task board with the active set. A task that stops
// appearing has expired or been completed by someone.
func (s *State) UpdateTasks(active []Task) {
	s.tasks = make(map[string]Task, len(active))
	for _, t := range active {
		s.tasks[t.Name] = t
	}
}

// Task looks up an active task by name. A missing task is an expired one.
func (s *State) Task(name string) (Task, bool) {
	t, ok := s.tasks[name]
	return t, ok
}

// Expired reports whether the named task has left the board.
func (s *State) Expired(name string) bool {
	_, ok := s.tasks[name]
	return !ok
}

// Tasks returns the active task board.
func (s *State) Tasks() []Task {
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t)
	}
	return out
}

// UpdateNorms merges newly announced norms into the board.
func (s *State) UpdateNorms(announced []Norm) {
	for _, n := range announced {
		s.norms[n.Name] = n
	}
}

// PendingNorms returns norms that take effect within the handling window and
// have not been handled yet. The window gives the allocator time to shed
// roles or blocks before the punishment starts.
func (s *State) PendingNorms() []Norm {
	var out []Norm
	for _, n := range s.norms {
		if _, done := s.handledNorms[n.Name]; done {
			continue
		}
		if n.Start-s.step <= s.normHandleInterval && n.Until >= s.step {
			out = append(out, n)
		}
	}
	return out
}

// MarkNormHandled records that the allocator reacted to the norm.
func (s *State) MarkNormHandled(name string) { s.handledNorms[name] = struct{}{} }

// MarkNormIgnored takes the norm's regulations out of the active set: the
// team has decided the punishment is cheaper than obeying.
func (s *State) MarkNormIgnored(name string) { s.ignoredNorms[name] = struct{}{} }

func (s *State) ignored(name string) bool {
	_, ok := s.ignoredNorms[name]
	return ok
}

// MaxBlockRegulation returns the tightest active or imminent cap on carried
// blocks. Caps of two or more never bind because no agent here carries more
// than one block at a time outside an assembly, so they are ignored.
func (s *State) MaxBlockRegulation() (int, bool) {
	limit, found := 0, false
	for _, n := range s.norms {
		if n.Until < s.step || n.Start-s.step > s.normHandleInterval || s.ignored(n.Name) {
			continue
		}
		for _, req := range n.Requirements {
			if req.Type != "block" || req.Quantity >= 2 {
				continue
			}
			if !found || req.Quantity < limit {
				limit, found = req.Quantity, true
			}
		}
	}
	return limit, found
}

// RoleRegulations returns the active or imminent role head-count caps. Caps
// on the default role are ignored since nobody keeps it past the opening.
func (s *State) RoleRegulations() []roles.Regulation {
	var out []roles.Regulation
	for _, n := range s.norms {
		if n.Until < s.step || n.Start-s.step > s.normHandleInterval || s.ignored(n.Name) {
			continue
		}
		for _, req := range n.Requirements {
			if req.Type != "role" || req.Name == "default" {
				continue
			}
			out = append(out, roles.Regulation{Role: req.Name, Quantity: req.Quantity})
		}
	}
	return out
}
