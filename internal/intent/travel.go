package intent

import (
	"fmt"
	"math/rand"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
)

// Wait holds position. It is a sub-intention used while a partner catches
// up; the owner decides when it is over.
type Wait struct{}

// NewWait creates a wait sub-intention.
func NewWait() *Wait { return &Wait{} }

func (w *Wait) Plan(*Context) action.Action { return action.NewSkip() }

func (w *Wait) Finished(*Context) bool { return false }

func (w *Wait) Shift(grid.Coordinate, grid.Geometry) {}

func (w *Wait) Normalize(grid.Geometry) {}

func (w *Wait) Explain() string { return "waiting" }

// AgitatedTravel moves toward one of a set of acceptable targets, switching
// targets whenever the chosen one becomes occupied or reserved, and waits
// once it stands on one. The agitation keeps agents from deadlocking on a
// contested cell.
type AgitatedTravel struct {
	targets []grid.Coordinate
	chosen  *grid.Coordinate
}

// NewAgitatedTravel creates the sub-intention over candidate targets.
func NewAgitatedTravel(targets []grid.Coordinate) *AgitatedTravel {
	return &AgitatedTravel{targets: targets}
}

// Retarget replaces the candidate set.
func (t *AgitatedTravel) Retarget(targets []grid.Coordinate) {
	t.targets = targets
	t.chosen = nil
}

func (t *AgitatedTravel) Plan(ctx *Context) action.Action {
	if t.chosen == nil || !t.acceptable(ctx, *t.chosen) {
		t.choose(ctx)
	}
	if t.chosen == nil {
		return action.NewSkip()
	}
	if ctx.Position() == *t.chosen {
		return action.NewSkip()
	}
	return ctx.Travel(*t.chosen, false)
}

// Arrived reports whether the agent stands on one of the targets.
func (t *AgitatedTravel) Arrived(ctx *Context) bool {
	pos := ctx.Position()
	for _, c := range t.targets {
		if pos == c {
			return true
		}
	}
	return false
}

func (t *AgitatedTravel) acceptable(ctx *Context, c grid.Coordinate) bool {
	if c == ctx.Position() {
		return true
	}
	if ctx.Map.IsReserved(c) {
		return false
	}
	switch ctx.Map.KindAt(c) {
	case grid.Empty, grid.Obstacle, grid.Unknown:
		return true
	}
	return false
}

func (t *AgitatedTravel) choose(ctx *Context) {
	var free []grid.Coordinate
	for _, c := range t.targets {
		if t.acceptable(ctx, c) {
			free = append(free, c)
		}
	}
	if len(free) > 0 {
		c := free[rand.Intn(len(free))]
		t.chosen = &c
		return
	}
	if len(t.targets) == 0 {
		t.chosen = nil
		return
	}
	// All targets are taken: settle for a free cell near them and try
	// again from there next step.
	c := t.closestFreeNear(ctx, t.targets[rand.Intn(len(t.targets))])
	t.chosen = &c
}

func (t *AgitatedTravel) closestFreeNear(ctx *Context, around grid.Coordinate) grid.Coordinate {
	g := ctx.Map.Geometry()
	for radius := 1; ; radius++ {
		var free []grid.Coordinate
		for _, c := range around.Ring(g, radius) {
			switch ctx.Map.KindAt(c) {
			case grid.Empty, grid.Unknown:
				free = append(free, c)
			}
		}
		if len(free) > 0 {
			return free[rand.Intn(len(free))]
		}
	}
}

func (t *AgitatedTravel) Finished(*Context) bool { return false }

func (t *AgitatedTravel) Shift(offset grid.Coordinate, g grid.Geometry) {
	for i, c := range t.targets {
		t.targets[i] = c.Shifted(offset, g)
	}
	if t.chosen != nil {
		c := t.chosen.Shifted(offset, g)
		t.chosen = &c
	}
}

func (t *AgitatedTravel) Normalize(g grid.Geometry) {
	for i, c := range t.targets {
		t.targets[i] = c.Normalize(g)
	}
	if t.chosen != nil {
		c := t.chosen.Normalize(g)
		t.chosen = &c
	}
}

func (t *AgitatedTravel) Explain() string {
	if t.chosen == nil {
		return "agitated travel: choosing target"
	}
	return fmt.Sprintf("agitated travel: toward %s", t.chosen)
}

// DistantAgitatedTravel approaches a center until the agent is within the
// given range, aiming for the ring band between distant and the range so
// the agent parks close but not on top of the center.
type DistantAgitatedTravel struct {
	center  grid.Coordinate
	within  int
	distant int
	travel  *AgitatedTravel
}

// NewDistantAgitatedTravel creates the sub-intention around a center.
func NewDistantAgitatedTravel(ctx *Context, center grid.Coordinate, within, distant int) *DistantAgitatedTravel {
	d := &DistantAgitatedTravel{center: center, within: within, distant: distant}
	d.travel = NewAgitatedTravel(d.band(ctx))
	return d
}

func (d *DistantAgitatedTravel) band(ctx *Context) []grid.Coordinate {
	return d.center.NeighborsWithin(ctx.Map.Geometry(), d.within, d.distant)
}

// Recenter moves the approach band, tracking a moving center.
func (d *DistantAgitatedTravel) Recenter(ctx *Context, center grid.Coordinate) {
	if center == d.center {
		return
	}
	d.center = center
	d.travel.Retarget(d.band(ctx))
}

func (d *DistantAgitatedTravel) Plan(ctx *Context) action.Action {
	if d.Arrived(ctx) {
		return action.NewSkip()
	}
	return d.travel.Plan(ctx)
}

// Arrived reports whether the agent is within range of the center.
func (d *DistantAgitatedTravel) Arrived(ctx *Context) bool {
	return grid.ManhattanDistance(ctx.Position(), d.center, ctx.Map.Geometry()) <= d.within
}

func (d *DistantAgitatedTravel) Finished(ctx *Context) bool { return d.Arrived(ctx) }

func (d *DistantAgitatedTravel) Shift(offset grid.Coordinate, g grid.Geometry) {
	d.center = d.center.Shifted(offset, g)
	d.travel.Shift(offset, g)
}

func (d *DistantAgitatedTravel) Normalize(g grid.Geometry) {
	d.center = d.center.Normalize(g)
	d.travel.Normalize(g)
}

func (d *DistantAgitatedTravel) Explain() string {
	return fmt.Sprintf("distant travel: within %d of %s", d.within, d.center)
}
