package team

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/agent"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/intent"
	"github.com/talgya/blockswarm/internal/registry"
	"github.com/talgya/blockswarm/internal/roles"
	"github.com/talgya/blockswarm/internal/simstate"
	"github.com/talgya/blockswarm/internal/worldmap"
)

func allocLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func allocParams() intent.Params {
	return intent.Params{
		PathMaxIterations:  500,
		MarkerPurgeSteps:   10,
		ClearConstantCost:  2.5,
		ClearEnergyCost:    3,
		EnergyMinPct:       0.2,
		MaxBlockingSteps:   10,
		DefaultVision:      5,
		MaxEnergy:          100,
		UnknownSearchBound: 60,
	}
}

func allocCatalogue() []roles.Role {
	return []roles.Role{
		{
			Name:   "default",
			Vision: 5,
			Actions: map[string]struct{}{
				"move": {}, "rotate": {}, "adopt": {},
			},
			Speeds: []int{0, 0},
		},
		{
			Name:   "worker",
			Vision: 5,
			Actions: map[string]struct{}{
				"move": {}, "rotate": {}, "adopt": {}, "attach": {}, "detach": {},
				"request": {}, "connect": {}, "submit": {}, "clear": {},
			},
			Speeds:           []int{1, 1},
			ClearChance:      0.3,
			ClearMaxDistance: 1,
		},
	}
}

// allocCrew builds an allocator over one hand-made map; every agent wears
// the worker role and starts at the origin.
func allocCrew(ids ...string) (*Allocator, *simstate.State, *worldmap.Map) {
	state := simstate.New("A", len(ids), 400, 20)
	book := roles.NewBook(allocCatalogue())
	agents := make(map[string]*agent.Agent, len(ids))
	handlers := make(map[string]*intent.Handler, len(ids))
	m := worldmap.New(1, ids[0], 10, 60)
	for i, id := range ids {
		if i > 0 {
			m.RegisterAgent(id, grid.Origin)
		}
		book.SetWorn(id, "worker")
		ag := agent.New(id, "A", 100)
		ag.Role = "worker"
		agents[id] = ag
		handlers[id] = intent.NewHandler()
	}
	reg := registry.New(allocLogger(), 10, 60)
	return NewAllocator(allocLogger(), state, reg, book, agents, handlers, allocParams()), state, m
}

func TestStartSolo_CheapestRoundTripWins(t *testing.T) {
	alloc, state, m := allocCrew("agent1", "agent2")
	m.SetAgentCoordinate("agent2", grid.Coordinate{X: 15, Y: 0})
	m.Observe(1, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{
			{X: 16, Y: 0}: {Kind: grid.Empty, Step: 1},
		},
		Dispensers: map[grid.Coordinate]grid.Cell{
			{X: 12, Y: 0}: {Kind: grid.Dispenser, Detail: "b0", Step: 1},
		},
		GoalZones: []grid.Coordinate{{X: 16, Y: 0}},
	})

	task := simstate.Task{
		Name:     "task1",
		Deadline: 400,
		Reward:   10,
		Requirements: []simstate.Requirement{
			{Rel: grid.Coordinate{X: 0, Y: 1}, BlockType: "b0"},
		},
	}
	state.UpdateTasks([]simstate.Task{task})

	// agent1 would walk 12 to the dispenser plus 4 to the zone; agent2 only
	// 3 plus 4. The lower bid takes the task.
	remaining := alloc.startSolo(m, task, []string{"agent1", "agent2"})
	assert.Equal(t, []string{"agent1"}, remaining)
	assert.True(t, alloc.handlers["agent2"].BusyWithTask())
	assert.False(t, alloc.handlers["agent1"].BusyWithTask())
	assert.NotEmpty(t, m.ReservedBy("agent2"))
}

func TestRankedTasks_SkipsUnstartable(t *testing.T) {
	alloc, state, m := allocCrew("agent1", "agent2")
	m.Observe(1, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{
			{X: 3, Y: 0}: {Kind: grid.Empty, Step: 1},
		},
		Dispensers: map[grid.Coordinate]grid.Cell{
			{X: 8, Y: 0}: {Kind: grid.Dispenser, Detail: "b0", Step: 1},
		},
		GoalZones: []grid.Coordinate{{X: 3, Y: 0}},
	})

	sourced := simstate.Task{
		Name: "sourced", Deadline: 400, Reward: 10,
		Requirements: []simstate.Requirement{
			{Rel: grid.Coordinate{X: 0, Y: 1}, BlockType: "b0"},
		},
	}
	unsourced := simstate.Task{
		Name: "unsourced", Deadline: 400, Reward: 50,
		Requirements: []simstate.Requirement{
			{Rel: grid.Coordinate{X: 0, Y: 1}, BlockType: "b9"},
		},
	}
	big := simstate.Task{
		Name: "big", Deadline: 400, Reward: 90,
		Requirements: []simstate.Requirement{
			{Rel: grid.Coordinate{X: 0, Y: 1}, BlockType: "b0"},
			{Rel: grid.Coordinate{X: 0, Y: 2}, BlockType: "b0"},
		},
	}
	state.UpdateTasks([]simstate.Task{sourced, unsourced, big})
	state.SetStep(5)
	state.UpdateNorms([]simstate.Norm{{
		Name: "n1", Start: 10, Until: 100, Punishment: 0,
		Requirements: []simstate.NormRequirement{{Type: "block", Quantity: 1}},
	}})

	// No dispenser sources b9, and the block cap forbids carrying the
	// two-block shape; only the sourced one-block task survives.
	tasks := alloc.rankedTasks(m)
	require.Len(t, tasks, 1)
	assert.Equal(t, "sourced", tasks[0].Name)
}

func TestHandleNorms_IgnoresAffordablePunishment(t *testing.T) {
	alloc, state, _ := allocCrew("agent1", "agent2")
	state.SetStep(5)
	state.UpdateNorms([]simstate.Norm{{
		Name: "n1", Start: 10, Until: 100, Punishment: 5,
		Requirements: []simstate.NormRequirement{{Type: "block", Quantity: 1}},
	}})
	_, capped := state.MaxBlockRegulation()
	require.True(t, capped)

	// Full batteries: paying five per step beats obeying the cap.
	alloc.handleNorms()
	_, capped = state.MaxBlockRegulation()
	assert.False(t, capped)
	assert.Empty(t, state.PendingNorms())
}

func TestHandleNorms_EnforcesUnaffordablePunishment(t *testing.T) {
	alloc, state, _ := allocCrew("agent1", "agent2")
	alloc.agents["agent1"].Energy = 22
	alloc.agents["agent2"].Energy = 22
	state.SetStep(5)
	state.UpdateNorms([]simstate.Norm{{
		Name: "n1", Start: 10, Until: 100, Punishment: 5,
		Requirements: []simstate.NormRequirement{{Type: "block", Quantity: 1}},
	}})

	// The drain would push the team under the working floor, so the cap
	// stands.
	alloc.handleNorms()
	limit, capped := state.MaxBlockRegulation()
	require.True(t, capped)
	assert.Equal(t, 1, limit)
	assert.Empty(t, state.PendingNorms())
}
