// Package percept converts wire percepts into the domain observation the
// intention machines and the map layer consume: relative cell snapshots with
// the unseen-but-in-range cells filled as empty, plus the task and norm
// boards and the agent's own bookkeeping fields.
package percept

import (
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/protocol"
	"github.com/talgya/blockswarm/internal/roles"
	"github.com/talgya/blockswarm/internal/simstate"
	"github.com/talgya/blockswarm/internal/worldmap"
)

// Action result values reported by the server.
const (
	ResultSuccess        = "success"
	ResultPartialSuccess = "partial_success"
	ResultFailed         = "failed"
	ResultFailedRandom   = "failed_random"
	ResultFailedTarget   = "failed_target"
	ResultFailedPath     = "failed_path"
)

// Observation is one agent's decoded view of a step. All coordinates are
// relative to the agent.
type Observation struct {
	Step        int
	Score       int
	Energy      int
	Deactivated bool
	Role        string

	LastAction       string
	LastActionResult string
	LastActionParams []string

	Attached []grid.Coordinate

	Things     map[grid.Coordinate]grid.Cell
	Markers    map[grid.Coordinate]grid.Cell
	Dispensers map[grid.Coordinate]grid.Cell
	GoalZones  []grid.Coordinate
	RoleZones  []grid.Coordinate

	Tasks []simstate.Task
	Norms []simstate.Norm
}

// Decode converts a wire percept. The agent itself is recorded at the origin
// so identity resolution can read its team from the snapshot, and every
// in-range cell with nothing reported becomes an empty observation.
func Decode(p protocol.Percept, step, vision int, team string) Observation {
	obs := Observation{
		Step:             step,
		Score:            p.Score,
		Energy:           p.Energy,
		Deactivated:      p.Deactivated,
		Role:             p.Role,
		LastAction:       p.LastAction,
		LastActionResult: p.LastActionResult,
		LastActionParams: p.LastActionParams,
		Things:           make(map[grid.Coordinate]grid.Cell),
		Markers:          make(map[grid.Coordinate]grid.Cell),
		Dispensers:       make(map[grid.Coordinate]grid.Cell),
	}

	for _, t := range p.Things {
		c := grid.Coordinate{X: t.X, Y: t.Y}
		cell := grid.Cell{Detail: t.Details, Step: step}
		switch t.Type {
		case "entity":
			cell.Kind = grid.Agent
			obs.Things[c] = cell
		case "block":
			cell.Kind = grid.Block
			obs.Things[c] = cell
		case "obstacle":
			cell.Kind = grid.Obstacle
			obs.Things[c] = cell
		case "dispenser":
			cell.Kind = grid.Dispenser
			obs.Dispensers[c] = cell
		case "marker":
			// Perimeter markers carry no hazard, only the clear area does.
			if t.Details != "cp" {
				cell.Kind = grid.Marker
				obs.Markers[c] = cell
			}
		}
	}

	// The server reports the agent's own cell only implicitly.
	obs.Things[grid.Origin] = grid.Cell{Kind: grid.Agent, Detail: team, Step: step}

	flat := grid.Geometry{}
	for _, c := range grid.Origin.NeighborsWithin(flat, vision, 0) {
		if _, seen := obs.Things[c]; seen {
			continue
		}
		if _, seen := obs.Dispensers[c]; seen {
			continue
		}
		obs.Things[c] = grid.Cell{Kind: grid.Empty, Step: step}
	}

	for _, pos := range p.Attached {
		obs.Attached = append(obs.Attached, grid.Coordinate{X: pos.X(), Y: pos.Y()})
	}
	for _, pos := range p.GoalZones {
		obs.GoalZones = append(obs.GoalZones, grid.Coordinate{X: pos.X(), Y: pos.Y()})
	}
	for _, pos := range p.RoleZones {
		obs.RoleZones = append(obs.RoleZones, grid.Coordinate{X: pos.X(), Y: pos.Y()})
	}

	for _, t := range p.Tasks {
		task := simstate.Task{Name: t.Name, Deadline: t.Deadline, Reward: t.Reward}
		for _, r := range t.Requirements {
			task.Requirements = append(task.Requirements, simstate.Requirement{
				Rel:       grid.Coordinate{X: r.X, Y: r.Y},
				BlockType: r.Type,
			})
		}
		obs.Tasks = append(obs.Tasks, task)
	}

	for _, n := range p.Norms {
		norm := simstate.Norm{Name: n.Name, Start: n.Start, Until: n.Until, Punishment: n.Punishment}
		for _, r := range n.Requirements {
			norm.Requirements = append(norm.Requirements, simstate.NormRequirement{
				Type: r.Type, Name: r.Name, Quantity: r.Quantity,
			})
		}
		obs.Norms = append(obs.Norms, norm)
	}
	return obs
}

// DirectlyAttached returns the attached coordinates adjacent to the agent,
// the ones a detach can reach.
func (o Observation) DirectlyAttached() []grid.Coordinate {
	var out []grid.Coordinate
	for _, c := range o.Attached {
		if grid.ManhattanDistance(grid.Origin, c, grid.Geometry{}) == 1 {
			out = append(out, c)
		}
	}
	return out
}

// ThingAt returns the observed cell at a relative coordinate, markers first.
func (o Observation) ThingAt(rel grid.Coordinate) grid.Cell {
	if cell, ok := o.Markers[rel]; ok {
		return cell
	}
	if cell, ok := o.Things[rel]; ok {
		return cell
	}
	if cell, ok := o.Dispensers[rel]; ok {
		return cell
	}
	return grid.UnknownCell
}

// OnMarker reports whether the agent or any of its attachments stands on a
// hazard marker.
func (o Observation) OnMarker() bool {
	if _, ok := o.Markers[grid.Origin]; ok {
		return true
	}
	for _, c := range o.Attached {
		if _, ok := o.Markers[c]; ok {
			return true
		}
	}
	return false
}

// MapUpdate repackages the observation for the map layer.
func (o Observation) MapUpdate() worldmap.Update {
	return worldmap.Update{
		Things:     o.Things,
		Markers:    o.Markers,
		Dispensers: o.Dispensers,
		GoalZones:  o.GoalZones,
		RoleZones:  o.RoleZones,
	}
}

// DecodeRoles converts the sim-start role catalogue.
func DecodeRoles(wire []protocol.WireRole) []roles.Role {
	out := make([]roles.Role, 0, len(wire))
	for _, w := range wire {
		r := roles.Role{
			Name:             w.Name,
			Vision:           w.Vision,
			Speeds:           w.Speed,
			ClearChance:      w.Clear.Chance,
			ClearMaxDistance: w.Clear.MaxDistance,
			Actions:          make(map[string]struct{}, len(w.Actions)),
		}
		for _, a := range w.Actions {
			r.Actions[a] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}
