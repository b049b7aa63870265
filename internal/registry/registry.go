// Package registry owns every currently-distinct spatial map, resolves agent
// identities across maps, merges unified maps, and infers the grid dimensions
// from wrap-inconsistent mutual sightings.
package registry

import (
	"log/slog"
	"sync"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/worldmap"
)

// Registry is the per-team map repository. Merging is the only operation
// shared between agents and is serialized behind mu together with the alias
// table it rewrites.
type Registry struct {
	log *slog.Logger

	markerPurgeInterval int
	unknownSearchBound  int

	mu      sync.Mutex
	aliases map[string]int
	maps    map[int]*worldmap.Map
	nextID  int
	geo     grid.Geometry

	// Last raw (relative) percept cells per agent, the working set for
	// identity resolution.
	snapshots map[string]map[grid.Coordinate]grid.Cell
}

// New creates an empty registry.
func New(logger *slog.Logger, markerPurgeInterval, unknownSearchBound int) *Registry {
	return &Registry{
		log:                 logger.With("component", "registry"),
		markerPurgeInterval: markerPurgeInterval,
		unknownSearchBound:  unknownSearchBound,
		aliases:             make(map[string]int),
		maps:                make(map[int]*worldmap.Map),
		snapshots:           make(map[string]map[grid.Coordinate]grid.Cell),
	}
}

// Geometry returns the best known grid dimensions (zero axes are unknown).
func (r *Registry) Geometry() grid.Geometry { return r.geo }

// Register creates a fresh map rooted at the agent and seeds it with the
// agent's first percept.
func (r *Registry) Register(agentID string, step int, upd worldmap.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	m := worldmap.New(r.nextID, agentID, r.markerPurgeInterval, r.unknownSearchBound)
	m.SetGeometry(r.geo)
	r.aliases[agentID] = r.nextID
	r.maps[r.nextID] = m
	m.Observe(step, upd)
}

// MapOf returns the map the agent's frame currently belongs to.
func (r *Registry) MapOf(agentID string) *worldmap.Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maps[r.aliases[agentID]]
}

// Maps returns all currently-distinct maps.
func (r *Registry) Maps() []*worldmap.Map {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*worldmap.Map, 0, len(r.maps))
	for _, m := range r.maps {
		out = append(out, m)
	}
	return out
}

// MapCount returns how many distinct maps remain, between 1 and team size.
func (r *Registry) MapCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.maps)
}

// Update folds an agent's percept into its map, translating the relative
// snapshot into the map's absolute frame, and retains the raw snapshot for
// this step's identity resolution.
func (r *Registry) Update(agentID string, step int, upd worldmap.Update) {
	r.mu.Lock()
	m := r.maps[r.aliases[agentID]]
	r.snapshots[agentID] = upd.Things
	r.mu.Unlock()

	at := m.AgentCoordinate(agentID)
	g := m.Geometry()
	abs := worldmap.Update{
		Things:     make(map[grid.Coordinate]grid.Cell, len(upd.Things)),
		Markers:    make(map[grid.Coordinate]grid.Cell, len(upd.Markers)),
		Dispensers: make(map[grid.Coordinate]grid.Cell, len(upd.Dispensers)),
		GoalZones:  make([]grid.Coordinate, 0, len(upd.GoalZones)),
		RoleZones:  make([]grid.Coordinate, 0, len(upd.RoleZones)),
	}
	for rel, cell := range upd.Things {
		abs.Things[at.Shifted(rel, g)] = cell
	}
	for rel, cell := range upd.Markers {
		abs.Markers[at.Shifted(rel, g)] = cell
	}
	for rel, cell := range upd.Dispensers {
		abs.Dispensers[at.Shifted(rel, g)] = cell
	}
	for _, rel := range upd.GoalZones {
		abs.GoalZones = append(abs.GoalZones, at.Shifted(rel, g))
	}
	for _, rel := range upd.RoleZones {
		abs.RoleZones = append(abs.RoleZones, at.Shifted(rel, g))
	}
	m.Observe(step, abs)
}

// Result of one identification sweep: agents whose coordinate frames moved
// need their intention coordinates shifted by the offset; a dimension
// discovery means every coordinate must additionally be re-normalized.
type Result struct {
	Offsets        map[string]grid.Coordinate
	DimsDiscovered bool
}

// CheckIdentifications runs identity resolution over the latest snapshots.
//
// For every agent seeing an unidentified teammate at relative offset rel, it
// looks for the unique other agent that reports a teammate at exactly -rel
// and whose overlapping cells all agree. Ambiguity aborts the pair for this
// step. A unique match across two maps merges them; a unique match within
// one map whose recorded positions disagree reveals a wrap, shrinking the
// known width or height.
func (r *Registry) CheckIdentifications() Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := Result{Offsets: make(map[string]grid.Coordinate)}
	// Relative-frame math below never wraps.
	flat := grid.Geometry{}

	for agentID, percept := range r.snapshots {
		self, ok := percept[grid.Origin]
		if !ok {
			continue
		}
		team := self.Detail
		vision := perceptVision(percept)

		var candidates []candidate
		for rel, cell := range percept {
			if cell.Kind != grid.Agent || rel == grid.Origin || cell.Detail != team {
				continue
			}
			for otherID, otherPercept := range r.snapshots {
				if otherID == agentID {
					continue
				}
				mirror, seen := otherPercept[rel.Negated()]
				if !seen || mirror.Kind != grid.Agent || mirror.Detail != team {
					continue
				}
				if !consistentOverlap(percept, otherPercept, rel, flat) {
					continue
				}
				candidates = append(candidates, candidate{otherID, rel})
			}

			if len(candidates) != 1 {
				continue
			}
			cand := candidates[0]
			m := r.maps[r.aliases[agentID]]
			myCoord := m.AgentCoordinate(agentID)

			if r.aliases[agentID] != r.aliases[cand.id] {
				absorbed := r.maps[r.aliases[cand.id]]
				moved := absorbed.AgentIDs()
				offset := r.merge(agentID, cand.id, myCoord.Shifted(cand.rel, m.Geometry()))
				for _, id := range moved {
					res.Offsets[id] = offset
				}
			} else if m.AgentCoordinate(cand.id) != myCoord.Shifted(cand.rel, m.Geometry()) {
				if r.discoverDimensions(myCoord, m.AgentCoordinate(cand.id), cand.rel, vision) {
					res.DimsDiscovered = true
				}
			}
		}
	}

	if res.DimsDiscovered {
		for _, m := range r.maps {
			m.SetGeometry(r.geo)
			m.Rebase()
		}
	}
	return res
}

type candidate struct {
	id  string
	rel grid.Coordinate
}

// consistentOverlap verifies that every cell visible to both agents (under
// the hypothesis that other sits at rel from self) carries the same content.
func consistentOverlap(percept, otherPercept map[grid.Coordinate]grid.Cell, rel grid.Coordinate, flat grid.Geometry) bool {
	for otherRel, otherCell := range otherPercept {
		mine, shared := percept[rel.Shifted(otherRel, flat)]
		if shared && !mine.Same(otherCell) {
			return false
		}
	}
	return true
}

func perceptVision(percept map[grid.Coordinate]grid.Cell) int {
	vision := 0
	for rel := range percept {
		if rel.X > vision {
			vision = rel.X
		}
	}
	return vision
}

// merge folds the candidate's map into the agent's and re-points every
// absorbed agent's alias. Caller holds mu.
func (r *Registry) merge(agentID, otherID string, otherCoordInMyMap grid.Coordinate) grid.Coordinate {
	intoID := r.aliases[agentID]
	fromID := r.aliases[otherID]
	into := r.maps[intoID]
	from := r.maps[fromID]

	offset := into.Merge(from, otherCoordInMyMap, from.AgentCoordinate(otherID))
	for id, alias := range r.aliases {
		if alias == fromID {
			r.aliases[id] = intoID
		}
	}
	delete(r.maps, fromID)
	r.log.Info("maps merged", "into", intoID, "absorbed", fromID, "remaining", len(r.maps))
	return offset
}

// discoverDimensions derives a wrap-consistent width/height from a mutual
// sighting that disagrees with the recorded positions. An axis qualifies
// only when the recorded difference exceeds vision (rules out adjacency
// noise), and a discovered value is kept only when smaller than the current
// one: a lapped agent can produce a multiple of the true dimension, so the
// dimensions shrink toward truth and never grow. Caller holds mu.
func (r *Registry) discoverDimensions(a, b, rel grid.Coordinate, vision int) bool {
	changed := false

	xDiff := absInt(a.X - b.X)
	width := absInt(a.X - b.X + rel.X)
	if xDiff > vision && width > 0 && (r.geo.Width == 0 || width < r.geo.Width) {
		r.geo.Width = width
		r.log.Info("grid width discovered", "width", width)
		changed = true
	}

	yDiff := absInt(a.Y - b.Y)
	height := absInt(a.Y - b.Y + rel.Y)
	if yDiff > vision && height > 0 && (r.geo.Height == 0 || height < r.geo.Height) {
		r.geo.Height = height
		r.log.Info("grid height discovered", "height", height)
		changed = true
	}
	return changed
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
