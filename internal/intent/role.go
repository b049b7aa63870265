package intent

import (
	"fmt"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
)

// AdoptRole walks to the nearest role zone and adopts the given role,
// switching to a closer zone whenever one turns up on the way.
type AdoptRole struct {
	role   string
	travel *AgitatedTravel
	zone   *grid.Coordinate
}

// NewAdoptRole creates the sub-intention for one role.
func NewAdoptRole(role string) *AdoptRole { return &AdoptRole{role: role} }

// RoleName returns the role being adopted.
func (a *AdoptRole) RoleName() string { return a.role }

func (a *AdoptRole) Plan(ctx *Context) action.Action {
	if ctx.Agent.Role == a.role {
		return action.NewSkip()
	}
	pos := ctx.Position()
	if ctx.Map.IsRoleZone(pos) {
		return action.NewAdopt(a.role)
	}

	zone, ok := ctx.Map.ClosestRoleZone(pos)
	if !ok {
		return action.NewSkip()
	}
	if a.zone == nil || *a.zone != zone {
		a.zone = &zone
		if a.travel == nil {
			a.travel = NewAgitatedTravel([]grid.Coordinate{zone})
		} else {
			a.travel.Retarget([]grid.Coordinate{zone})
		}
	}
	return a.travel.Plan(ctx)
}

func (a *AdoptRole) Finished(ctx *Context) bool { return ctx.Agent.Role == a.role }

func (a *AdoptRole) Shift(offset grid.Coordinate, g grid.Geometry) {
	if a.zone != nil {
		z := a.zone.Shifted(offset, g)
		a.zone = &z
	}
	if a.travel != nil {
		a.travel.Shift(offset, g)
	}
}

func (a *AdoptRole) Normalize(g grid.Geometry) {
	if a.zone != nil {
		z := a.zone.Normalize(g)
		a.zone = &z
	}
	if a.travel != nil {
		a.travel.Normalize(g)
	}
}

func (a *AdoptRole) Explain() string { return fmt.Sprintf("adopting role %s", a.role) }
