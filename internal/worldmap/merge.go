package worldmap

import "github.com/talgya/blockswarm/internal/grid"

// Merge folds the other map into this one. The two anchor coordinates name
// the same physical cell in each map's frame; their difference is the
// translation applied to everything absorbed. Returns the translation so the
// absorbed agents' intention state can be re-based.
func (m *Map) Merge(other *Map, anchorSelf, anchorOther grid.Coordinate) grid.Coordinate {
	offset := grid.Coordinate{
		X: anchorSelf.X - anchorOther.X,
		Y: anchorSelf.Y - anchorOther.Y,
	}

	for coord, cell := range other.store {
		shifted := coord.Shifted(offset, m.geo)
		if prev, ok := m.store[shifted]; !ok || prev.Step < cell.Step {
			m.store[shifted] = cell
		}
	}
	for coord, cell := range other.markers {
		shifted := coord.Shifted(offset, m.geo)
		if prev, ok := m.markers[shifted]; !ok || prev.Step < cell.Step {
			m.markers[shifted] = cell
		}
	}
	for agentID, c := range other.agentCoords {
		m.agentCoords[agentID] = c.Shifted(offset, m.geo)
	}
	for agentID, c := range other.agentStarts {
		m.agentStarts[agentID] = c.Shifted(offset, m.geo)
	}
	// Reservations can collide after a merge; the allocator resolves that.
	for agentID, coords := range other.reservations {
		shifted := make([]grid.Coordinate, len(coords))
		for i, c := range coords {
			shifted[i] = c.Shifted(offset, m.geo)
		}
		m.reservations[agentID] = shifted
	}
	for blockType, set := range other.dispensers {
		for c := range set {
			m.addDispenser(blockType, c.Shifted(offset, m.geo))
		}
	}
	for c := range other.roleZones {
		m.roleZones[c.Shifted(offset, m.geo)] = struct{}{}
	}
	for c := range other.goalZones {
		m.goalZones[c.Shifted(offset, m.geo)] = struct{}{}
	}
	return offset
}

// SetGeometry installs a newly discovered wrap state. The caller must follow
// up with Rebase once both dimensions participate.
func (m *Map) SetGeometry(g grid.Geometry) { m.geo = g }

// Rebase re-normalizes every stored coordinate after a dimension discovery.
// Before discovery the same physical cell may be recorded at several
// un-reduced coordinates, so reductions are merged newest-wins.
func (m *Map) Rebase() {
	newStore := make(map[grid.Coordinate]grid.Cell, len(m.store))
	for coord, cell := range m.store {
		n := coord.Normalize(m.geo)
		if prev, ok := newStore[n]; !ok || prev.Step < cell.Step {
			newStore[n] = cell
		}
	}
	m.store = newStore

	newMarkers := make(map[grid.Coordinate]grid.Cell, len(m.markers))
	for coord, cell := range m.markers {
		n := coord.Normalize(m.geo)
		if prev, ok := newMarkers[n]; !ok || prev.Step < cell.Step {
			newMarkers[n] = cell
		}
	}
	m.markers = newMarkers

	newDispensers := make(map[string]map[grid.Coordinate]struct{}, len(m.dispensers))
	for blockType, set := range m.dispensers {
		reduced := make(map[grid.Coordinate]struct{}, len(set))
		for c := range set {
			reduced[c.Normalize(m.geo)] = struct{}{}
		}
		newDispensers[blockType] = reduced
	}
	m.dispensers = newDispensers

	for agentID, c := range m.agentCoords {
		m.agentCoords[agentID] = c.Normalize(m.geo)
	}
	for agentID, c := range m.agentStarts {
		m.agentStarts[agentID] = c.Normalize(m.geo)
	}
	for agentID, coords := range m.reservations {
		for i, c := range coords {
			coords[i] = c.Normalize(m.geo)
		}
		m.reservations[agentID] = coords
	}

	newRoleZones := make(map[grid.Coordinate]struct{}, len(m.roleZones))
	for c := range m.roleZones {
		newRoleZones[c.Normalize(m.geo)] = struct{}{}
	}
	m.roleZones = newRoleZones

	newGoalZones := make(map[grid.Coordinate]struct{}, len(m.goalZones))
	for c := range m.goalZones {
		newGoalZones[c.Normalize(m.geo)] = struct{}{}
	}
	m.goalZones = newGoalZones
}
