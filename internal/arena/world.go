// Package arena is a self-contained match server: a generated toroidal
// world, a rule engine resolving agent actions, and transports that speak
// the same protocol as the real server, in-process for tests and over
// websockets for local matches.
package arena

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/blockswarm/internal/grid"
)

// GenConfig holds world generation parameters.
type GenConfig struct {
	Width       int
	Height      int
	Seed        int64   // 0 = random
	ObstacleLvl float64 // noise threshold above which a cell is an obstacle
	NoiseScale  float64
	BlockTypes  []string
	Dispensers  int // per block type
	GoalZones   int // zone clusters
	RoleZones   int
	ZoneRadius  int
}

// DefaultGenConfig returns a mid-sized world close to contest settings.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Width:       50,
		Height:      50,
		Seed:        0,
		ObstacleLvl: 0.62,
		NoiseScale:  0.12,
		BlockTypes:  []string{"b0", "b1", "b2"},
		Dispensers:  3,
		GoalZones:   2,
		RoleZones:   2,
		ZoneRadius:  2,
	}
}

// SmallTestConfig returns a tiny deterministic world for tests.
func SmallTestConfig() GenConfig {
	return GenConfig{
		Width:       20,
		Height:      20,
		Seed:        42,
		ObstacleLvl: 0.75,
		NoiseScale:  0.15,
		BlockTypes:  []string{"b0", "b1"},
		Dispensers:  2,
		GoalZones:   1,
		RoleZones:   1,
		ZoneRadius:  2,
	}
}

// World is the generated static terrain plus the mutable block layer.
type World struct {
	geo        grid.Geometry
	obstacles  map[grid.Coordinate]struct{}
	blocks     map[grid.Coordinate]string
	dispensers map[grid.Coordinate]string
	goalZones  map[grid.Coordinate]struct{}
	roleZones  map[grid.Coordinate]struct{}
	rng        *rand.Rand
}

// Generate creates a world from layered simplex noise: a single obstacle
// layer thresholded into walls, with zones and dispensers carved into the
// open cells afterwards.
func Generate(cfg GenConfig) *World {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	noise := opensimplex.NewNormalized(seed)
	rng := rand.New(rand.NewSource(seed + 1))

	w := &World{
		geo:        grid.Geometry{Width: cfg.Width, Height: cfg.Height},
		obstacles:  make(map[grid.Coordinate]struct{}),
		blocks:     make(map[grid.Coordinate]string),
		dispensers: make(map[grid.Coordinate]string),
		goalZones:  make(map[grid.Coordinate]struct{}),
		roleZones:  make(map[grid.Coordinate]struct{}),
		rng:        rng,
	}

	for x := 0; x < cfg.Width; x++ {
		for y := 0; y < cfg.Height; y++ {
			if noise.Eval2(float64(x)*cfg.NoiseScale, float64(y)*cfg.NoiseScale) > cfg.ObstacleLvl {
				w.obstacles[grid.Coordinate{X: x, Y: y}] = struct{}{}
			}
		}
	}

	for i := 0; i < cfg.GoalZones; i++ {
		w.carveZone(w.goalZones, cfg.ZoneRadius)
	}
	for i := 0; i < cfg.RoleZones; i++ {
		w.carveZone(w.roleZones, cfg.ZoneRadius)
	}
	for _, blockType := range cfg.BlockTypes {
		for i := 0; i < cfg.Dispensers; i++ {
			c := w.randomOpenCell()
			w.dispensers[c] = blockType
		}
	}
	return w
}

// carveZone clears a diamond of the given radius and marks it as a zone.
func (w *World) carveZone(zone map[grid.Coordinate]struct{}, radius int) {
	center := w.randomOpenCell()
	for _, c := range center.NeighborsWithin(w.geo, radius, 0) {
		delete(w.obstacles, c)
		zone[c] = struct{}{}
	}
}

func (w *World) randomOpenCell() grid.Coordinate {
	for {
		c := grid.Coordinate{X: w.rng.Intn(w.geo.Width), Y: w.rng.Intn(w.geo.Height)}
		if _, wall := w.obstacles[c]; wall {
			continue
		}
		if _, disp := w.dispensers[c]; disp {
			continue
		}
		return c
	}
}

// Geometry returns the torus dimensions.
func (w *World) Geometry() grid.Geometry { return w.geo }

// IsObstacle reports whether the cell is a wall.
func (w *World) IsObstacle(c grid.Coordinate) bool {
	_, ok := w.obstacles[c.Normalize(w.geo)]
	return ok
}

// BlockAt returns the loose block on the cell, if any.
func (w *World) BlockAt(c grid.Coordinate) (string, bool) {
	t, ok := w.blocks[c.Normalize(w.geo)]
	return t, ok
}

// DispenserAt returns the dispenser on the cell, if any.
func (w *World) DispenserAt(c grid.Coordinate) (string, bool) {
	t, ok := w.dispensers[c.Normalize(w.geo)]
	return t, ok
}

// IsGoalZone reports whether the cell belongs to a goal zone.
func (w *World) IsGoalZone(c grid.Coordinate) bool {
	_, ok := w.goalZones[c.Normalize(w.geo)]
	return ok
}

// IsRoleZone reports whether the cell belongs to a role zone.
func (w *World) IsRoleZone(c grid.Coordinate) bool {
	_, ok := w.roleZones[c.Normalize(w.geo)]
	return ok
}

// GoalZoneCells returns all goal zone cells.
func (w *World) GoalZoneCells() []grid.Coordinate {
	out := make([]grid.Coordinate, 0, len(w.goalZones))
	for c := range w.goalZones {
		out = append(out, c)
	}
	return out
}

func (w *World) setBlock(c grid.Coordinate, blockType string) {
	w.blocks[c.Normalize(w.geo)] = blockType
}

func (w *World) removeBlock(c grid.Coordinate) {
	delete(w.blocks, c.Normalize(w.geo))
}

func (w *World) clearObstacle(c grid.Coordinate) {
	delete(w.obstacles, c.Normalize(w.geo))
}
