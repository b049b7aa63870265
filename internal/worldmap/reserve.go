package worldmap

import (
	"sort"

	"github.com/talgya/blockswarm/internal/grid"
)

// IsReserved reports whether any agent has claimed the coordinate for an
// in-progress task assembly.
func (m *Map) IsReserved(c grid.Coordinate) bool {
	for _, coords := range m.reservations {
		if containsCoord(coords, c) {
			return true
		}
	}
	return false
}

// ReservedBy returns the agent's current claims.
func (m *Map) ReservedBy(agentID string) []grid.Coordinate { return m.reservations[agentID] }

// taskFootprint is the full claim for assembling a shape at a goal zone: the
// zone, every block cell, and all their surrounding cells so the providers
// can maneuver around the assembly.
func (m *Map) taskFootprint(goalZone grid.Coordinate, blockRel []grid.Coordinate) []grid.Coordinate {
	cells := []grid.Coordinate{goalZone}
	for _, rel := range blockRel {
		cells = append(cells, goalZone.Shifted(rel, m.geo))
	}
	var out []grid.Coordinate
	for _, c := range cells {
		out = append(out, c.Surrounding(m.geo)...)
	}
	return out
}

// Reserve claims the task footprint around the goal zone for the agent.
func (m *Map) Reserve(agentID string, goalZone grid.Coordinate, blockRel []grid.Coordinate) {
	m.reservations[agentID] = append(m.reservations[agentID], m.taskFootprint(goalZone, blockRel)...)
}

// Release frees every claim held by the agent.
func (m *Map) Release(agentID string) { m.reservations[agentID] = nil }

// HasFreeGoalZoneFor reports whether some goal zone can host the given shape
// without touching existing reservations or dispensers.
func (m *Map) HasFreeGoalZoneFor(blockRel []grid.Coordinate) bool {
	var open []grid.Coordinate
	for c := range m.goalZones {
		switch m.KindAt(c) {
		case grid.Dispenser, grid.Agent, grid.Block:
		default:
			open = append(open, c)
		}
	}
	_, ok := m.firstFreeGoalZone(open, blockRel)
	return ok
}

// ClosestFreeGoalZoneFor returns the nearest goal zone that can host the
// given shape.
func (m *Map) ClosestFreeGoalZoneFor(from grid.Coordinate, blockRel []grid.Coordinate) (grid.Coordinate, bool) {
	var open []grid.Coordinate
	for c := range m.goalZones {
		if c == from {
			open = append(open, c)
			continue
		}
		switch m.KindAt(c) {
		case grid.Dispenser, grid.Agent, grid.Block:
		default:
			open = append(open, c)
		}
	}
	sortByDistance(open, from, m.geo)
	return m.firstFreeGoalZone(open, blockRel)
}

func (m *Map) firstFreeGoalZone(goalZones []grid.Coordinate, blockRel []grid.Coordinate) (grid.Coordinate, bool) {
	reserved := make(map[grid.Coordinate]struct{})
	for _, coords := range m.reservations {
		for _, c := range coords {
			reserved[c] = struct{}{}
		}
	}
zones:
	for _, zone := range goalZones {
		for _, c := range m.taskFootprint(zone, blockRel) {
			if _, taken := reserved[c]; taken {
				continue zones
			}
			// A dispenser cell would keep attracting other agents into
			// the assembly area, so it disqualifies the zone.
			if m.at(c, false, true).Kind == grid.Dispenser {
				continue zones
			}
		}
		return zone, true
	}
	return grid.Coordinate{}, false
}

// TryReserveCloserGoalZone atomically searches for a goal zone strictly
// closer than the current one (or any zone when current is nil) that can
// host the shape, and on success swaps the agent's claims over to it. This
// search-and-claim is the one critical section shared between concurrently
// planning agents.
func (m *Map) TryReserveCloserGoalZone(agentID string, current *grid.Coordinate, from grid.Coordinate, blockRel []grid.Coordinate) (grid.Coordinate, bool) {
	m.reserveMu.Lock()
	defer m.reserveMu.Unlock()

	var candidates []grid.Coordinate
	for c := range m.goalZones {
		if c != from {
			switch m.KindAt(c) {
			case grid.Dispenser, grid.Agent, grid.Block, grid.Marker:
				continue
			}
			if current != nil && grid.Distance(from, c, m.geo) >= grid.Distance(from, *current, m.geo) {
				continue
			}
		}
		candidates = append(candidates, c)
	}
	sortByDistance(candidates, from, m.geo)

	zone, ok := m.firstFreeGoalZone(candidates, blockRel)
	if !ok {
		return grid.Coordinate{}, false
	}
	m.Release(agentID)
	m.Reserve(agentID, zone, blockRel)
	return zone, true
}

// ConflictingReservations returns, per agent, which other agents' claims
// overlap its own. Overlaps appear after merges and rebases; the allocator
// evicts agents until the graph is empty.
func (m *Map) ConflictingReservations() map[string][]string {
	conflicts := make(map[string][]string)
	for agentID, coords := range m.reservations {
		mine := make(map[grid.Coordinate]struct{}, len(coords))
		for _, c := range coords {
			mine[c] = struct{}{}
		}
		for otherID, otherCoords := range m.reservations {
			if otherID == agentID {
				continue
			}
			for _, c := range otherCoords {
				if _, ok := mine[c]; ok {
					conflicts[agentID] = append(conflicts[agentID], otherID)
					break
				}
			}
		}
	}
	return conflicts
}

func sortByDistance(coords []grid.Coordinate, from grid.Coordinate, g grid.Geometry) {
	sort.Slice(coords, func(i, j int) bool {
		return grid.Distance(from, coords[i], g) < grid.Distance(from, coords[j], g)
	})
}
