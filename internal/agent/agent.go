// Package agent keeps one agent's authoritative local state: its position in
// the map frame, its attachment tree and its vital signs. The server reports
// attached things for everything in vision, so attachments are tracked from
// our own action results instead of trusting the percept list.
package agent

import (
	"fmt"
	"strconv"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/percept"
	"github.com/talgya/blockswarm/internal/worldmap"
)

// Agent is one controlled agent.
type Agent struct {
	ID   string
	Team string

	Energy      int
	MaxEnergy   int
	Deactivated bool
	Role        string

	attachments map[grid.Coordinate]struct{}
}

// New creates an agent with no attachments.
func New(id, team string, maxEnergy int) *Agent {
	return &Agent{
		ID:          id,
		Team:        team,
		MaxEnergy:   maxEnergy,
		Energy:      maxEnergy,
		attachments: make(map[grid.Coordinate]struct{}),
	}
}

// Attachments returns the relative coordinates of everything attached.
func (a *Agent) Attachments() []grid.Coordinate {
	out := make([]grid.Coordinate, 0, len(a.attachments))
	for c := range a.attachments {
		out = append(out, c)
	}
	return out
}

// HasAttachments reports whether anything is attached.
func (a *Agent) HasAttachments() bool { return len(a.attachments) > 0 }

// IsAttached reports whether the relative coordinate is attached.
func (a *Agent) IsAttached(rel grid.Coordinate) bool {
	_, ok := a.attachments[rel]
	return ok
}

// Attach records a newly attached cell.
func (a *Agent) Attach(rel grid.Coordinate) { a.attachments[rel] = struct{}{} }

// Detach removes the attachment at rel together with everything that was
// only held through it. Attachments form a tree rooted at the agent, so the
// survivors are exactly the cells still reachable from the agent's four
// neighbors without stepping on rel.
func (a *Agent) Detach(rel grid.Coordinate) {
	delete(a.attachments, rel)
	flat := grid.Geometry{}

	reachable := make(map[grid.Coordinate]struct{})
	var walk func(c grid.Coordinate)
	walk = func(c grid.Coordinate) {
		if _, attached := a.attachments[c]; !attached {
			return
		}
		if _, seen := reachable[c]; seen {
			return
		}
		reachable[c] = struct{}{}
		for _, n := range c.Neighbors(flat) {
			walk(n)
		}
	}
	for _, n := range grid.Origin.Neighbors(flat) {
		walk(n)
	}
	a.attachments = reachable
}

// DetachAll drops the whole attachment tree, the submit aftermath.
func (a *Agent) DetachAll() { a.attachments = make(map[grid.Coordinate]struct{}) }

// rotate spins every attachment a quarter turn around the agent.
func (a *Agent) rotate(r grid.Rotation) {
	rotated := make(map[grid.Coordinate]struct{}, len(a.attachments))
	for c := range a.attachments {
		rotated[c.Rotated(r)] = struct{}{}
	}
	a.attachments = rotated
}

// ApplyObservation folds the reported result of the previous action into the
// agent's position and attachment bookkeeping, then refreshes the vitals.
// Position changes are written back to the agent's map.
func (a *Agent) ApplyObservation(obs percept.Observation, m *worldmap.Map) error {
	if err := a.applyLastAction(obs, m); err != nil {
		return err
	}
	a.Energy = obs.Energy
	a.Deactivated = obs.Deactivated
	a.Role = obs.Role
	return nil
}

func (a *Agent) applyLastAction(obs percept.Observation, m *worldmap.Map) error {
	ok := obs.LastActionResult == percept.ResultSuccess
	partial := obs.LastActionResult == percept.ResultPartialSuccess
	if !ok && !partial {
		return nil
	}

	g := m.Geometry()
	switch obs.LastAction {
	case "move":
		params := obs.LastActionParams
		if partial && len(params) > 1 {
			// Only the first step of a batched move landed.
			params = params[:1]
		}
		at := m.AgentCoordinate(a.ID)
		for _, p := range params {
			d, err := grid.ParseDirection(p)
			if err != nil {
				return fmt.Errorf("agent %s: %w", a.ID, err)
			}
			at = at.Moved(g, d)
		}
		m.SetAgentCoordinate(a.ID, at)

	case "rotate":
		if len(obs.LastActionParams) != 1 {
			return fmt.Errorf("agent %s: rotate result without direction", a.ID)
		}
		r := grid.Clockwise
		if obs.LastActionParams[0] == "ccw" {
			r = grid.CounterClockwise
		}
		a.rotate(r)

	case "attach", "request":
		// A successful request leaves the new block attached only after the
		// follow-up attach, so only attach mutates the tree.
		if obs.LastAction == "attach" && len(obs.LastActionParams) == 1 {
			if d, err := grid.ParseDirection(obs.LastActionParams[0]); err == nil {
				a.Attach(d.Vector())
			}
		}

	case "detach":
		if len(obs.LastActionParams) == 1 {
			if d, err := grid.ParseDirection(obs.LastActionParams[0]); err == nil {
				a.Detach(d.Vector())
			}
		}

	case "connect":
		// The gained cell lives in the partner's frame; the coordination
		// layer records it from the shared assignment instead.

	case "disconnect":
		// Params name the two attachments whose coupling was severed; the
		// second one and its subtree are no longer ours.
		if len(obs.LastActionParams) == 4 {
			x, errX := strconv.Atoi(obs.LastActionParams[2])
			y, errY := strconv.Atoi(obs.LastActionParams[3])
			if errX != nil || errY != nil {
				return fmt.Errorf("agent %s: disconnect result with bad coordinates", a.ID)
			}
			a.Detach(grid.Coordinate{X: x, Y: y})
		}

	case "submit":
		a.DetachAll()
	}
	return nil
}
