// Package worldmap holds the per-group spatial knowledge base: cell contents,
// hazard markers, dispensers, zones, agent positions and task reservations.
// Every map starts out owned by a single agent and grows by observation; maps
// are merged when the registry proves two agents see the same region.
package worldmap

import (
	"math"
	"math/rand"
	"sync"

	"github.com/talgya/blockswarm/internal/grid"
)

// Update is one percept snapshot converted to absolute coordinates.
// Things excludes markers and dispensers, which travel separately.
type Update struct {
	Things     map[grid.Coordinate]grid.Cell
	Markers    map[grid.Coordinate]grid.Cell
	Dispensers map[grid.Coordinate]grid.Cell
	GoalZones  []grid.Coordinate
	RoleZones  []grid.Coordinate
}

// Map is one group's view of the world. In the beginning it is unbounded;
// once dimensions are discovered it is rebased onto the torus.
//
// Reservation search-and-claim is the only operation callable during
// concurrent planning and is guarded by reserveMu. Everything else is mutated
// only in the sequential phases of the step loop.
type Map struct {
	ID int

	geo                 grid.Geometry
	markerPurgeInterval int
	unknownSearchBound  int

	agentCoords  map[string]grid.Coordinate
	agentStarts  map[string]grid.Coordinate
	reservations map[string][]grid.Coordinate

	store      map[grid.Coordinate]grid.Cell
	markers    map[grid.Coordinate]grid.Cell
	dispensers map[string]map[grid.Coordinate]struct{}
	goalZones  map[grid.Coordinate]struct{}
	roleZones  map[grid.Coordinate]struct{}

	reserveMu sync.Mutex
}

// New creates a map rooted at the founding agent's position, which becomes
// the map's origin.
func New(id int, agentID string, markerPurgeInterval, unknownSearchBound int) *Map {
	m := &Map{
		ID:                  id,
		markerPurgeInterval: markerPurgeInterval,
		unknownSearchBound:  unknownSearchBound,
		agentCoords:         map[string]grid.Coordinate{agentID: grid.Origin},
		agentStarts:         map[string]grid.Coordinate{agentID: grid.Origin},
		reservations:        make(map[string][]grid.Coordinate),
		store:               make(map[grid.Coordinate]grid.Cell),
		markers:             make(map[grid.Coordinate]grid.Cell),
		dispensers:          make(map[string]map[grid.Coordinate]struct{}),
		goalZones:           make(map[grid.Coordinate]struct{}),
		roleZones:           make(map[grid.Coordinate]struct{}),
	}
	return m
}

// Geometry returns the map's current wrap state.
func (m *Map) Geometry() grid.Geometry { return m.geo }

// Observe folds a percept snapshot into the map. Newer steps win per cell.
// Goal zones inside the observed area that were not re-observed are dropped,
// and markers past the purge interval are expired.
func (m *Map) Observe(step int, upd Update) {
	var goneGoalZones []grid.Coordinate
	observedGoals := make(map[grid.Coordinate]struct{}, len(upd.GoalZones))
	for _, c := range upd.GoalZones {
		observedGoals[c] = struct{}{}
	}

	for coord, cell := range upd.Things {
		if prev, ok := m.store[coord]; !ok || cell.Step > prev.Step {
			m.store[coord] = cell
		}
		if _, wasMarker := m.markers[coord]; wasMarker {
			if _, still := upd.Markers[coord]; !still {
				delete(m.markers, coord)
			}
		}
		if _, wasGoal := m.goalZones[coord]; wasGoal {
			if _, still := observedGoals[coord]; !still {
				goneGoalZones = append(goneGoalZones, coord)
			}
		}
	}

	for coord, cell := range upd.Markers {
		m.markers[coord] = cell
	}
	for coord, cell := range m.markers {
		if step-cell.Step >= m.markerPurgeInterval {
			delete(m.markers, coord)
		}
	}

	for coord, cell := range upd.Dispensers {
		m.addDispenser(cell.Detail, coord)
	}
	for _, c := range upd.RoleZones {
		m.roleZones[c] = struct{}{}
	}
	for _, c := range goneGoalZones {
		delete(m.goalZones, c)
	}
	for _, c := range upd.GoalZones {
		m.goalZones[c] = struct{}{}
	}
}

func (m *Map) addDispenser(blockType string, c grid.Coordinate) {
	set, ok := m.dispensers[blockType]
	if !ok {
		set = make(map[grid.Coordinate]struct{})
		m.dispensers[blockType] = set
	}
	set[c] = struct{}{}
}

// at resolves a coordinate with the layered precedence used everywhere:
// marker (if wanted) > agent/block > dispenser > stored value > unknown.
// forceDispenser surfaces the dispenser even under an agent or block.
func (m *Map) at(c grid.Coordinate, wantMarker, forceDispenser bool) grid.Cell {
	if wantMarker {
		if cell, ok := m.markers[c]; ok {
			return cell
		}
	}
	cell, ok := m.store[c]
	if !ok {
		return grid.UnknownCell
	}
	if blockType, isDisp := m.dispenserAt(c); isDisp {
		if forceDispenser || (cell.Kind != grid.Agent && cell.Kind != grid.Block) {
			return grid.Cell{Kind: grid.Dispenser, Detail: blockType}
		}
	}
	return cell
}

func (m *Map) dispenserAt(c grid.Coordinate) (string, bool) {
	for blockType, set := range m.dispensers {
		if _, ok := set[c]; ok {
			return blockType, true
		}
	}
	return "", false
}

// At returns the cell at a coordinate, markers taking precedence.
func (m *Map) At(c grid.Coordinate) grid.Cell { return m.at(c, true, false) }

// AtIgnoringMarkers returns the cell beneath any marker.
func (m *Map) AtIgnoringMarkers(c grid.Coordinate) grid.Cell { return m.at(c, false, false) }

// AtWithDispenser surfaces a dispenser even when an agent or block sits on it.
func (m *Map) AtWithDispenser(c grid.Coordinate) grid.Cell { return m.at(c, false, true) }

// KindAt is shorthand for At(c).Kind.
func (m *Map) KindAt(c grid.Coordinate) grid.CellKind { return m.at(c, true, false).Kind }

// IsMarker reports whether a live hazard marker covers the coordinate.
func (m *Map) IsMarker(c grid.Coordinate) bool {
	_, ok := m.markers[c]
	return ok
}

// RegisterAgent adds an already-located agent to the map.
func (m *Map) RegisterAgent(agentID string, at grid.Coordinate) {
	m.agentCoords[agentID] = at
	m.agentStarts[agentID] = at
}

// AgentCoordinate returns an agent's current position on this map.
func (m *Map) AgentCoordinate(agentID string) grid.Coordinate { return m.agentCoords[agentID] }

// SetAgentCoordinate records an agent's new position.
func (m *Map) SetAgentCoordinate(agentID string, c grid.Coordinate) { m.agentCoords[agentID] = c }

// StartingCoordinate returns where an agent first joined this map.
func (m *Map) StartingCoordinate(agentID string) grid.Coordinate { return m.agentStarts[agentID] }

// AgentIDs returns the ids of every agent whose frame is unified into this map.
func (m *Map) AgentIDs() []string {
	out := make([]string, 0, len(m.agentCoords))
	for id := range m.agentCoords {
		out = append(out, id)
	}
	return out
}

// AgentCoordinates returns a copy of the live agent position table.
func (m *Map) AgentCoordinates() map[string]grid.Coordinate {
	out := make(map[string]grid.Coordinate, len(m.agentCoords))
	for id, c := range m.agentCoords {
		out[id] = c
	}
	return out
}

// HasDispenser reports whether any dispenser of the given type is known.
func (m *Map) HasDispenser(blockType string) bool { return len(m.dispensers[blockType]) > 0 }

// ClosestDispenser returns the nearest dispenser of the given block type,
// preferring ones that are not hemmed in by agents, blocks or markers.
func (m *Map) ClosestDispenser(blockType string, from grid.Coordinate) (grid.Coordinate, bool) {
	set := m.dispensers[blockType]
	if len(set) == 0 {
		return grid.Coordinate{}, false
	}
	var all, free []grid.Coordinate
	for c := range set {
		all = append(all, c)
		kind := m.KindAt(c)
		if kind == grid.Marker || kind == grid.Agent {
			continue
		}
		if containsCoord(from.Neighbors(m.geo), c) {
			free = append(free, c)
			continue
		}
		open := 0
		for _, n := range c.Neighbors(m.geo) {
			switch m.KindAt(n) {
			case grid.Agent, grid.Block, grid.Marker:
			default:
				open++
			}
		}
		if open >= 2 {
			free = append(free, c)
		}
	}
	candidates := free
	if len(candidates) == 0 {
		candidates = all
	}
	return closestTo(from, candidates, m.geo), true
}

// GoalZones returns the known goal zone coordinates.
func (m *Map) GoalZones() []grid.Coordinate { return setToSlice(m.goalZones) }

// IsGoalZone reports whether the coordinate is a known goal zone.
func (m *Map) IsGoalZone(c grid.Coordinate) bool {
	_, ok := m.goalZones[c]
	return ok
}

// IsRoleZone reports whether the coordinate is a known role zone.
func (m *Map) IsRoleZone(c grid.Coordinate) bool {
	_, ok := m.roleZones[c]
	return ok
}

// RoleZones returns the known role zone coordinates.
func (m *Map) RoleZones() []grid.Coordinate { return setToSlice(m.roleZones) }

// HasOpenGoalZone reports whether any goal zone is not covered by a
// dispenser, agent or block.
func (m *Map) HasOpenGoalZone() bool {
	for c := range m.goalZones {
		switch m.KindAt(c) {
		case grid.Dispenser, grid.Agent, grid.Block:
		default:
			return true
		}
	}
	return false
}

// HasRoleZone reports whether any role zone is free of agents and blocks.
func (m *Map) HasRoleZone() bool {
	for c := range m.roleZones {
		k := m.AtIgnoringMarkers(c).Kind
		if k != grid.Agent && k != grid.Block {
			return true
		}
	}
	return false
}

// ClosestRoleZone returns the nearest role zone, preferring unoccupied ones.
func (m *Map) ClosestRoleZone(from grid.Coordinate) (grid.Coordinate, bool) {
	if len(m.roleZones) == 0 {
		return grid.Coordinate{}, false
	}
	var open []grid.Coordinate
	for c := range m.roleZones {
		if c == from {
			open = append(open, c)
			continue
		}
		switch m.KindAt(c) {
		case grid.Agent, grid.Block, grid.Marker:
		default:
			open = append(open, c)
		}
	}
	if len(open) == 0 {
		open = setToSlice(m.roleZones)
	}
	return closestTo(from, open, m.geo), true
}

// ClosestUnknown searches outward from the agent's current position for an
// unexplored cell, widening the ring by three cells per round so the search
// stays cheap. Among the candidates nearest the agent's starting position the
// one nearest the agent wins; the returned target overshoots it along the
// approach line so the agent keeps momentum. Returns false once the bounded
// search is exhausted.
func (m *Map) ClosestUnknown(start, current grid.Coordinate, vision int) (grid.Coordinate, bool) {
	searchRange := vision
	var unknown []grid.Coordinate
	for iter := 0; ; iter++ {
		unknown = unknown[:0]
		for _, c := range current.Ring(m.geo, searchRange) {
			if m.at(c, false, false).Kind == grid.Unknown {
				unknown = append(unknown, c)
			}
		}
		if len(unknown) > 0 {
			break
		}
		if iter >= m.unknownSearchBound {
			return grid.Coordinate{}, false
		}
		searchRange += 3
	}

	// Shuffle so ties break differently per agent and per step, spreading
	// the team out instead of funneling everyone the same way.
	rand.Shuffle(len(unknown), func(i, j int) { unknown[i], unknown[j] = unknown[j], unknown[i] })

	minFromStart := math.Inf(1)
	for _, c := range unknown {
		if d := grid.Distance(start, c, m.geo); d < minFromStart {
			minFromStart = d
		}
	}
	best := grid.Coordinate{}
	bestDist := math.Inf(1)
	for _, c := range unknown {
		if grid.Distance(start, c, m.geo)-minFromStart >= 0.1 {
			continue
		}
		if d := grid.Distance(current, c, m.geo); d < bestDist {
			best, bestDist = c, d
		}
	}

	overshoot := grid.Extend(current, best, 2*vision, m.geo)
	if m.at(overshoot, false, false).Kind == grid.Unknown {
		return overshoot, true
	}
	return best, true
}

// RandomFarCoordinate returns a random passable cell four visions away.
func (m *Map) RandomFarCoordinate(current grid.Coordinate, vision int) grid.Coordinate {
	coords := m.passableRing(current, 4*vision)
	return coords[rand.Intn(len(coords))]
}

// OldestCoordinate returns the least recently observed passable cell four
// visions away, the re-survey target.
func (m *Map) OldestCoordinate(current grid.Coordinate, vision int) grid.Coordinate {
	coords := m.passableRing(current, 4*vision)
	best := coords[0]
	bestStep := m.at(best, false, false).Step
	for _, c := range coords[1:] {
		if s := m.at(c, false, false).Step; s < bestStep {
			best, bestStep = c, s
		}
	}
	return best
}

func (m *Map) passableRing(current grid.Coordinate, searchRange int) []grid.Coordinate {
	for {
		var out []grid.Coordinate
		for _, c := range current.Ring(m.geo, searchRange) {
			switch m.KindAt(c) {
			case grid.Agent, grid.Block, grid.Marker:
			default:
				out = append(out, c)
			}
		}
		if len(out) > 0 {
			return out
		}
		searchRange++
	}
}

// Explored reports whether the torus is fully mapped.
func (m *Map) Explored() bool {
	return m.geo.Toroidal() && len(m.store) == m.geo.Width*m.geo.Height
}

func setToSlice(set map[grid.Coordinate]struct{}) []grid.Coordinate {
	out := make([]grid.Coordinate, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func closestTo(from grid.Coordinate, coords []grid.Coordinate, g grid.Geometry) grid.Coordinate {
	best := coords[0]
	bestDist := grid.Distance(from, best, g)
	for _, c := range coords[1:] {
		if d := grid.Distance(from, c, g); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func containsCoord(coords []grid.Coordinate, c grid.Coordinate) bool {
	for _, o := range coords {
		if o == c {
			return true
		}
	}
	return false
}
