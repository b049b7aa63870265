// Package team orchestrates the whole crew: the allocator turns the task
// board into assignments and keeps them legal under norms and reservation
// conflicts, and the scheduler runs the per-step pipeline from percept to
// action for every agent.
package team

import (
	"log/slog"
	"sort"

	"github.com/talgya/blockswarm/internal/agent"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/intent"
	"github.com/talgya/blockswarm/internal/registry"
	"github.com/talgya/blockswarm/internal/roles"
	"github.com/talgya/blockswarm/internal/simstate"
	"github.com/talgya/blockswarm/internal/worldmap"
)

// Allocator assigns tasks to free agents and unwinds assignments that norms
// or reservation conflicts have made untenable.
type Allocator struct {
	log    *slog.Logger
	state  *simstate.State
	reg    *registry.Registry
	roles  *roles.Book
	params intent.Params

	agents   map[string]*agent.Agent
	handlers map[string]*intent.Handler

	// Agents whose task must be dropped this step, consumed by the scheduler.
	drops map[string]struct{}
}

// NewAllocator wires the allocator over the shared state.
func NewAllocator(log *slog.Logger, state *simstate.State, reg *registry.Registry, book *roles.Book, agents map[string]*agent.Agent, handlers map[string]*intent.Handler, params intent.Params) *Allocator {
	return &Allocator{
		log:      log.With("component", "allocator"),
		state:    state,
		reg:      reg,
		roles:    book,
		params:   params,
		agents:   agents,
		handlers: handlers,
		drops:    make(map[string]struct{}),
	}
}

// TakeDrops returns and clears the set of agents whose task intention must
// begin its abandon sequence this step.
func (a *Allocator) TakeDrops() map[string]struct{} {
	d := a.drops
	a.drops = make(map[string]struct{})
	return d
}

// Run performs the sequential allocation phase of one step.
func (a *Allocator) Run() {
	a.releaseFinished()
	a.handleNorms()
	a.handleReservationConflicts()
	a.assign()
}

// releaseFinished frees the map and role reservations of agents whose task
// intention has left the queue.
func (a *Allocator) releaseFinished() {
	for id, h := range a.handlers {
		if h.BusyWithTask() {
			continue
		}
		if m := a.reg.MapOf(id); m != nil && len(m.ReservedBy(id)) > 0 {
			m.Release(id)
			a.roles.Release(id)
		}
	}
}

// handleNorms reacts once to each norm about to take effect. A norm whose
// punishment the team can absorb is ignored outright. Otherwise role caps
// evict enough wearers; block caps are left to the task machines, which
// consult the active regulation themselves.
func (a *Allocator) handleNorms() {
	for _, n := range a.state.PendingNorms() {
		if a.affordablePunishment(n) {
			a.state.MarkNormIgnored(n.Name)
			a.state.MarkNormHandled(n.Name)
			a.log.Info("norm ignored", "norm", n.Name, "punishment", n.Punishment)
			continue
		}
		for _, req := range n.Requirements {
			if req.Type != "role" || req.Name == "default" {
				continue
			}
			reg := roles.Regulation{Role: req.Name, Quantity: req.Quantity}
			for _, id := range a.roles.Violators(reg) {
				a.evict(id, "role norm "+n.Name)
				if r, ok := a.roles.InterTaskRole(); ok && r.Name != req.Name {
					a.roles.Release(id)
					a.roles.Reserve(id, r.Name)
					a.handlers[id].Add(&queuedAdopt{AdoptRole: intent.NewAdoptRole(r.Name)})
				}
			}
		}
		a.state.MarkNormHandled(n.Name)
	}
}

// affordablePunishment reports whether violating the norm every step keeps
// the team's average energy above the working floor. Below the floor the
// agents stop clearing and a per-step drain on top would stall them.
func (a *Allocator) affordablePunishment(n simstate.Norm) bool {
	if len(a.agents) == 0 {
		return false
	}
	total := 0
	for _, ag := range a.agents {
		total += ag.Energy
	}
	avg := float64(total) / float64(len(a.agents))
	floor := a.params.EnergyMinPct * float64(a.params.MaxEnergy)
	return avg-float64(n.Punishment) > floor
}

// handleReservationConflicts evicts agents until no two reservation
// footprints overlap. Merges bring previously independent claims into one
// frame, so overlaps appear suddenly. The agent conflicting with the most
// others goes first.
func (a *Allocator) handleReservationConflicts() {
	for _, m := range a.reg.Maps() {
		for {
			conflicts := m.ConflictingReservations()
			if len(conflicts) == 0 {
				break
			}
			worst, worstCount := "", 0
			for id, others := range conflicts {
				if len(others) > worstCount || (len(others) == worstCount && id > worst) {
					worst, worstCount = id, len(others)
				}
			}
			a.evict(worst, "reservation conflict")
			m.Release(worst)
		}
	}
}

func (a *Allocator) evict(agentID, reason string) {
	if h, ok := a.handlers[agentID]; ok && h.BusyWithTask() {
		a.drops[agentID] = struct{}{}
		a.log.Info("evicting agent from task", "agent", agentID, "reason", reason)
	}
}

// assign hands the most valuable startable tasks to free crews, map by map.
func (a *Allocator) assign() {
	for _, m := range a.reg.Maps() {
		free := a.freeAgents(m)
		if len(free) == 0 {
			continue
		}
		tasks := a.rankedTasks(m)
		for _, t := range tasks {
			if len(free) == 0 {
				break
			}
			if len(t.Requirements) == 1 {
				free = a.startSolo(m, t, free)
			} else {
				free = a.startCoop(m, t, free)
			}
		}
	}
}

// freeAgents returns this map's agents without a task, sorted for
// deterministic assignment.
func (a *Allocator) freeAgents(m *worldmap.Map) []string {
	var out []string
	for _, id := range m.AgentIDs() {
		h, ok := a.handlers[id]
		if !ok || h.BusyWithTask() {
			continue
		}
		if ag, ok := a.agents[id]; !ok || ag.Deactivated {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// rankedTasks orders the board by expected value for this map's crew.
func (a *Allocator) rankedTasks(m *worldmap.Map) []simstate.Task {
	busy := 0
	for _, id := range m.AgentIDs() {
		if h, ok := a.handlers[id]; ok && h.BusyWithTask() {
			busy++
		}
	}
	goalZones := len(m.GoalZones())
	if goalZones == 0 {
		return nil
	}

	var tasks []simstate.Task
	values := make(map[string]float64)
	for _, t := range a.state.Tasks() {
		if !t.EnoughTime(a.state.Step()) {
			continue
		}
		if !m.HasFreeGoalZoneFor(shapeRels(t)) {
			continue
		}
		if !a.startable(m, t) {
			continue
		}
		tasks = append(tasks, t)
		values[t.Name] = taskValue(t, a.state.Step(), busy, goalZones)
	}
	sort.Slice(tasks, func(i, j int) bool {
		if values[tasks[i].Name] != values[tasks[j].Name] {
			return values[tasks[i].Name] > values[tasks[j].Name]
		}
		return tasks[i].Name < tasks[j].Name
	})
	return tasks
}

// startable filters out tasks this map cannot begin: a block type without a
// known dispenser cannot be sourced, and a block-carry cap below the shape
// size would force the submitter to drop it mid-assembly.
func (a *Allocator) startable(m *worldmap.Map, t simstate.Task) bool {
	if limit, capped := a.state.MaxBlockRegulation(); capped && limit < len(t.Requirements) {
		return false
	}
	for _, r := range t.Requirements {
		if !m.HasDispenser(r.BlockType) {
			return false
		}
	}
	return true
}

// taskValue scores a task: the per-agent share of the reward, scaled by
// remaining time and diluted by how contested the map already is.
func taskValue(t simstate.Task, step, busyAgents, goalZones int) float64 {
	reqs := len(t.Requirements)
	value := float64(t.Reward)
	if reqs > 1 {
		value = float64(t.Reward) / float64(reqs+1)
	}
	value *= float64(t.Deadline-step) / 100

	crowd := float64(busyAgents) + 2*float64(reqs) - float64(goalZones)*3/4
	if crowd < 0 {
		crowd = 0
	}
	return value / (1 + crowd)
}

// Bids are closed-form travel estimates used to pick crews: straight-line
// legs summed over the route each role would actually walk. The planner
// refines the real path later; here only the relative order matters. Ties go
// to the lexicographically first agent since free lists are sorted.
const unreachableBid = 1 << 20

// roleDetour estimates the extra leg through a role zone when the agent
// would have to change roles first, and returns where the remaining legs
// start from.
func (a *Allocator) roleDetour(m *worldmap.Map, agentID, role string) (grid.Coordinate, int, bool) {
	pos := m.AgentCoordinate(agentID)
	if worn, ok := a.roles.Worn(agentID); ok && worn.Name == role {
		return pos, 0, true
	}
	zone, ok := m.ClosestRoleZone(pos)
	if !ok {
		return pos, 0, false
	}
	return zone, grid.ManhattanDistance(pos, zone, m.Geometry()), true
}

// goalZoneBid prices a coordinator's approach: the role detour plus the walk
// to the closest goal zone.
func (a *Allocator) goalZoneBid(m *worldmap.Map, agentID, role string) int {
	from, detour, ok := a.roleDetour(m, agentID, role)
	if !ok {
		return unreachableBid
	}
	best := unreachableBid
	for _, z := range m.GoalZones() {
		if d := grid.ManhattanDistance(from, z, m.Geometry()); d < best {
			best = d
		}
	}
	if best == unreachableBid {
		return unreachableBid
	}
	return detour + best
}

// dispenserBid prices a provider's approach to the closest source of its
// assigned block type.
func (a *Allocator) dispenserBid(m *worldmap.Map, agentID, role, blockType string) int {
	from, detour, ok := a.roleDetour(m, agentID, role)
	if !ok {
		return unreachableBid
	}
	disp, ok := m.ClosestDispenser(blockType, from)
	if !ok {
		return unreachableBid
	}
	return detour + grid.ManhattanDistance(from, disp, m.Geometry())
}

// soloBid prices the whole one-block round trip: role detour, the leg to the
// dispenser, and the carry from there to the nearest goal zone.
func (a *Allocator) soloBid(m *worldmap.Map, agentID, role string, t simstate.Task) int {
	from, detour, ok := a.roleDetour(m, agentID, role)
	if !ok {
		return unreachableBid
	}
	disp, ok := m.ClosestDispenser(t.Requirements[0].BlockType, from)
	if !ok {
		return unreachableBid
	}
	carry := unreachableBid
	for _, z := range m.GoalZones() {
		if d := grid.ManhattanDistance(disp, z, m.Geometry()); d < carry {
			carry = d
		}
	}
	if carry == unreachableBid {
		return unreachableBid
	}
	return detour + grid.ManhattanDistance(from, disp, m.Geometry()) + carry
}

func (a *Allocator) startSolo(m *worldmap.Map, t simstate.Task, free []string) []string {
	regs := a.state.RoleRegulations()
	bestIdx, bestBid, bestRole := -1, unreachableBid, ""
	for i, id := range free {
		role, ok := a.pickRole(id, a.roles.SoloRoles(), regs)
		if !ok {
			continue
		}
		if bid := a.soloBid(m, id, role, t); bid < bestBid {
			bestIdx, bestBid, bestRole = i, bid, role
		}
	}
	if bestIdx < 0 {
		return free
	}

	id := free[bestIdx]
	zone, reserved := m.TryReserveCloserGoalZone(id, nil, m.AgentCoordinate(id), shapeRels(t))
	if !reserved {
		return free
	}
	a.roles.Reserve(id, bestRole)
	a.handlers[id].Add(intent.NewSoloTask(t, zone, bestRole))
	a.log.Info("solo task assigned", "agent", id, "task", t.Name, "zone", zone, "bid", bestBid)
	return append(free[:bestIdx:bestIdx], free[bestIdx+1:]...)
}

func (a *Allocator) startCoop(m *worldmap.Map, t simstate.Task, free []string) []string {
	need := len(t.Requirements) + 1
	if len(free) < need {
		return free
	}
	regs := a.state.RoleRegulations()
	taken := make(map[string]bool, need)

	// Coordinator: the cheapest goal-zone approach wins.
	coordinator, coordRole, bestBid := "", "", unreachableBid
	for _, id := range free {
		role, ok := a.pickRole(id, a.roles.CoordinatorRoles(), regs)
		if !ok {
			continue
		}
		if bid := a.goalZoneBid(m, id, role); bid < bestBid {
			coordinator, coordRole, bestBid = id, role, bid
		}
	}
	if coordinator == "" {
		return free
	}
	taken[coordinator] = true

	// One provider per requirement: the cheapest dispenser approach among
	// the agents still free.
	providers := make([]string, len(t.Requirements))
	providerRoles := make([]string, len(t.Requirements))
	for i, req := range t.Requirements {
		bestBid = unreachableBid
		for _, id := range free {
			if taken[id] {
				continue
			}
			role, ok := a.pickRole(id, a.roles.ProviderRoles(), regs)
			if !ok {
				continue
			}
			if bid := a.dispenserBid(m, id, role, req.BlockType); bid < bestBid {
				providers[i], providerRoles[i], bestBid = id, role, bid
			}
		}
		if providers[i] == "" {
			return free
		}
		taken[providers[i]] = true
	}

	zone, reserved := m.TryReserveCloserGoalZone(coordinator, nil, m.AgentCoordinate(coordinator), shapeRels(t))
	if !reserved {
		return free
	}

	coop := intent.NewCoop(t, coordinator)
	coop.SetCoordinatorAt(m.AgentCoordinate(coordinator))
	a.roles.Reserve(coordinator, coordRole)
	a.handlers[coordinator].Add(intent.NewCoordination(coop, zone, coordRole))

	for i, req := range t.Requirements {
		coop.AddProvider(providers[i], req)
		a.roles.Reserve(providers[i], providerRoles[i])
		a.handlers[providers[i]].Add(intent.NewBlockProviding(coop, providers[i], providerRoles[i]))
	}
	a.log.Info("coop task assigned", "coordinator", coordinator, "task", t.Name,
		"providers", need-1, "zone", zone)

	remaining := make([]string, 0, len(free)-need)
	for _, id := range free {
		if !taken[id] {
			remaining = append(remaining, id)
		}
	}
	return remaining
}

// pickRole keeps the agent's current role when it qualifies, otherwise the
// first candidate still allowed under the regulations.
func (a *Allocator) pickRole(agentID string, candidates []roles.Role, regs []roles.Regulation) (string, bool) {
	names := make([]string, len(candidates))
	for i, r := range candidates {
		names[i] = r.Name
	}
	sort.Strings(names)

	if worn, ok := a.roles.Worn(agentID); ok {
		for _, n := range names {
			if n == worn.Name {
				return n, true
			}
		}
	}
	allowed := a.roles.Allowed(names, regs)
	if len(allowed) == 0 {
		return "", false
	}
	return allowed[0], true
}

func shapeRels(t simstate.Task) []grid.Coordinate {
	out := make([]grid.Coordinate, len(t.Requirements))
	for i, r := range t.Requirements {
		out[i] = r.Rel
	}
	return out
}

// queuedAdopt lifts the role-adoption sub-intention into the queue for norm
// evictions, where no task intention owns it.
type queuedAdopt struct {
	*intent.AdoptRole
}

func (q *queuedAdopt) Priority() float64 { return intent.PriorityTask }
