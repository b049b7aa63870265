package arena

import (
	"sort"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/protocol"
)

// BuildPercept assembles one agent's view of the current state.
func (s *Sim) BuildPercept(agentID string) protocol.Percept {
	a := s.agents[agentID]
	g := s.world.Geometry()
	vision := s.visionOf(a)

	p := protocol.Percept{
		LastAction:       a.lastAction,
		LastActionResult: a.lastResult,
		LastActionParams: a.lastParams,
		Score:            s.score,
		Energy:           a.energy,
		Deactivated:      a.deactivated,
		Role:             a.role,
	}

	flat := grid.Geometry{}
	for _, rel := range grid.Origin.NeighborsWithin(flat, vision, 0) {
		abs := a.pos.Shifted(rel, g)

		if rel != grid.Origin {
			for _, other := range s.agents {
				if other != a && other.pos == abs {
					p.Things = append(p.Things, protocol.WireThing{
						X: rel.X, Y: rel.Y, Type: "entity", Details: other.team,
					})
				}
			}
		}
		if blockType, ok := s.world.BlockAt(abs); ok {
			p.Things = append(p.Things, protocol.WireThing{X: rel.X, Y: rel.Y, Type: "block", Details: blockType})
		}
		if s.world.IsObstacle(abs) {
			p.Things = append(p.Things, protocol.WireThing{X: rel.X, Y: rel.Y, Type: "obstacle"})
		}
		if blockType, ok := s.world.DispenserAt(abs); ok {
			p.Things = append(p.Things, protocol.WireThing{X: rel.X, Y: rel.Y, Type: "dispenser", Details: blockType})
		}
		if s.world.IsGoalZone(abs) {
			p.GoalZones = append(p.GoalZones, protocol.Position{rel.X, rel.Y})
		}
		if s.world.IsRoleZone(abs) {
			p.RoleZones = append(p.RoleZones, protocol.Position{rel.X, rel.Y})
		}

		// Attached things are blocks too, plus an entry in the attached list.
		for _, holder := range s.agents {
			for holderRel, blockType := range holder.attachments {
				if holder.pos.Shifted(holderRel, g) != abs {
					continue
				}
				p.Things = append(p.Things, protocol.WireThing{X: rel.X, Y: rel.Y, Type: "block", Details: blockType})
				p.Attached = append(p.Attached, protocol.Position{rel.X, rel.Y})
			}
		}
	}

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.Tasks = append(p.Tasks, s.tasks[name])
	}
	return p
}

func (s *Sim) visionOf(a *simAgent) int {
	for _, r := range s.Roles() {
		if r.Name == a.role {
			return r.Vision
		}
	}
	return 5
}
