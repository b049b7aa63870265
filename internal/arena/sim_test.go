package arena

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/protocol"
)

// flatWorld is an all-open torus for scripting exact action sequences.
func flatWorld(width, height int) *World {
	return &World{
		geo:        grid.Geometry{Width: width, Height: height},
		obstacles:  make(map[grid.Coordinate]struct{}),
		blocks:     make(map[grid.Coordinate]string),
		dispensers: make(map[grid.Coordinate]string),
		goalZones:  make(map[grid.Coordinate]struct{}),
		roleZones:  make(map[grid.Coordinate]struct{}),
		rng:        rand.New(rand.NewSource(1)),
	}
}

func scriptedSim(w *World, ids ...string) *Sim {
	cfg := DefaultSimConfig()
	cfg.TaskEvery = 0 // no surprise tasks mid-script
	s := NewSim(w, cfg, "A", ids)
	for i, id := range ids {
		s.agents[id].pos = grid.Coordinate{X: i * 5, Y: 0}
	}
	return s
}

func act(kind string, params ...string) protocol.ActionMessage {
	return protocol.ActionMessage{Action: kind, Params: params}
}

func TestGenerate_SmallWorld(t *testing.T) {
	w := Generate(SmallTestConfig())

	require.Equal(t, grid.Geometry{Width: 20, Height: 20}, w.Geometry())

	// One zone cluster of radius 2 is a 13-cell diamond, carved open.
	cells := w.GoalZoneCells()
	assert.Len(t, cells, 13)
	for _, c := range cells {
		assert.False(t, w.IsObstacle(c))
	}

	// Two dispensers per block type, all on distinct open cells.
	assert.Len(t, w.dispensers, 4)
	for c := range w.dispensers {
		assert.False(t, w.IsObstacle(c))
	}
}

func TestSim_RequestAttachMoveSubmit(t *testing.T) {
	w := flatWorld(10, 10)
	w.dispensers[grid.Coordinate{X: 1, Y: 1}] = "b0"
	w.goalZones[grid.Coordinate{X: 3, Y: 0}] = struct{}{}

	s := scriptedSim(w, "agent1")
	s.agents["agent1"].pos = grid.Coordinate{X: 1, Y: 0}
	task := s.SpawnTask([]protocol.WireTaskRequirement{{X: 0, Y: 1, Type: "b0"}})
	assert.Equal(t, 10, task.Reward)

	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("request", "s")})
	require.Equal(t, "success", s.agents["agent1"].lastResult)
	_, loose := w.BlockAt(grid.Coordinate{X: 1, Y: 1})
	require.True(t, loose)

	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("attach", "s")})
	require.Equal(t, "success", s.agents["agent1"].lastResult)
	assert.Equal(t, "b0", s.agents["agent1"].attachments[grid.Coordinate{X: 0, Y: 1}])
	_, loose = w.BlockAt(grid.Coordinate{X: 1, Y: 1})
	assert.False(t, loose)

	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("move", "e", "e")})
	require.Equal(t, "success", s.agents["agent1"].lastResult)
	assert.Equal(t, grid.Coordinate{X: 3, Y: 0}, s.agents["agent1"].pos)

	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("submit", task.Name)})
	require.Equal(t, "success", s.agents["agent1"].lastResult)
	assert.Equal(t, task.Reward, s.Score())
	assert.Empty(t, s.agents["agent1"].attachments)
	_, stillThere := s.tasks[task.Name]
	assert.False(t, stillThere)
}

func TestSim_MoveBlocking(t *testing.T) {
	w := flatWorld(10, 10)
	w.obstacles[grid.Coordinate{X: 2, Y: 0}] = struct{}{}

	s := scriptedSim(w, "agent1")
	s.agents["agent1"].pos = grid.Coordinate{X: 0, Y: 0}

	// Two steps east: the second lands on the wall, so only one happens.
	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("move", "e", "e")})
	assert.Equal(t, "partial_success", s.agents["agent1"].lastResult)
	assert.Equal(t, grid.Coordinate{X: 1, Y: 0}, s.agents["agent1"].pos)

	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("move", "e")})
	assert.Equal(t, "failed_path", s.agents["agent1"].lastResult)
	assert.Equal(t, grid.Coordinate{X: 1, Y: 0}, s.agents["agent1"].pos)
}

func TestSim_ClearRemovesObstacleAndCostsEnergy(t *testing.T) {
	w := flatWorld(10, 10)
	w.obstacles[grid.Coordinate{X: 1, Y: 0}] = struct{}{}

	s := scriptedSim(w, "agent1")
	s.agents["agent1"].pos = grid.Coordinate{X: 0, Y: 0}

	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("clear", "1", "0")})
	assert.Equal(t, "success", s.agents["agent1"].lastResult)
	assert.False(t, w.IsObstacle(grid.Coordinate{X: 1, Y: 0}))

	// Clear cost minus the end-of-step regeneration.
	assert.Equal(t, s.cfg.MaxEnergy-s.cfg.ClearCost+1, s.agents["agent1"].energy)
}

func TestSim_AdoptNeedsRoleZone(t *testing.T) {
	w := flatWorld(10, 10)
	w.roleZones[grid.Coordinate{X: 0, Y: 0}] = struct{}{}

	s := scriptedSim(w, "agent1")
	s.agents["agent1"].pos = grid.Coordinate{X: 3, Y: 3}

	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("adopt", "worker")})
	assert.Equal(t, "failed_location", s.agents["agent1"].lastResult)
	assert.Equal(t, "default", s.agents["agent1"].role)

	s.agents["agent1"].pos = grid.Coordinate{X: 0, Y: 0}
	s.Resolve(map[string]protocol.ActionMessage{"agent1": act("adopt", "worker")})
	assert.Equal(t, "success", s.agents["agent1"].lastResult)
	assert.Equal(t, "worker", s.agents["agent1"].role)
}

func TestSim_ConnectPairsMutualOffers(t *testing.T) {
	w := flatWorld(10, 10)
	s := scriptedSim(w, "agent1", "agent2")

	a, b := s.agents["agent1"], s.agents["agent2"]
	a.pos = grid.Coordinate{X: 0, Y: 0}
	b.pos = grid.Coordinate{X: 0, Y: 3}
	a.attachments[grid.Coordinate{X: 0, Y: 1}] = "b0"
	b.attachments[grid.Coordinate{X: 0, Y: -1}] = "b1"

	s.Resolve(map[string]protocol.ActionMessage{
		"agent1": act("connect", "agent2", "0", "1"),
		"agent2": act("connect", "agent1", "0", "-1"),
	})
	assert.Equal(t, "success", a.lastResult)
	assert.Equal(t, "success", b.lastResult)
	assert.Equal(t, "b1", a.attachments[grid.Coordinate{X: 0, Y: 2}])
	assert.Equal(t, "b0", b.attachments[grid.Coordinate{X: 0, Y: -2}])
}

func TestSim_ConnectWithoutPartnerFails(t *testing.T) {
	w := flatWorld(10, 10)
	s := scriptedSim(w, "agent1", "agent2")
	s.agents["agent1"].attachments[grid.Coordinate{X: 0, Y: 1}] = "b0"

	s.Resolve(map[string]protocol.ActionMessage{
		"agent1": act("connect", "agent2", "0", "1"),
	})
	assert.Equal(t, "failed_partner", s.agents["agent1"].lastResult)
}

func TestSim_TasksExpire(t *testing.T) {
	w := flatWorld(10, 10)
	s := scriptedSim(w, "agent1")
	s.cfg.TaskTime = 2
	task := s.SpawnTask([]protocol.WireTaskRequirement{{X: 0, Y: 1, Type: "b0"}})

	// Expiry is checked against the step the actions were taken in, so the
	// deadline step itself still sees the task.
	s.Resolve(nil)
	s.Resolve(nil)
	_, alive := s.tasks[task.Name]
	require.True(t, alive)

	s.Resolve(nil)
	_, alive = s.tasks[task.Name]
	assert.False(t, alive)
}

func TestSim_BuildPercept(t *testing.T) {
	w := flatWorld(10, 10)
	w.dispensers[grid.Coordinate{X: 2, Y: 1}] = "b1"
	w.obstacles[grid.Coordinate{X: 9, Y: 0}] = struct{}{} // west of the agent across the wrap
	w.goalZones[grid.Coordinate{X: 0, Y: 3}] = struct{}{}

	s := scriptedSim(w, "agent1", "agent2")
	a, b := s.agents["agent1"], s.agents["agent2"]
	a.pos = grid.Coordinate{X: 0, Y: 0}
	a.attachments[grid.Coordinate{X: 0, Y: 1}] = "b0"
	b.pos = grid.Coordinate{X: 3, Y: 0}

	p := s.BuildPercept("agent1")

	find := func(typ string, x, y int) *protocol.WireThing {
		for i := range p.Things {
			th := &p.Things[i]
			if th.Type == typ && th.X == x && th.Y == y {
				return th
			}
		}
		return nil
	}

	require.NotNil(t, find("entity", 3, 0))
	assert.Equal(t, "A", find("entity", 3, 0).Details)
	require.NotNil(t, find("dispenser", 2, 1))
	assert.Equal(t, "b1", find("dispenser", 2, 1).Details)
	assert.NotNil(t, find("obstacle", -1, 0))

	// The carried block shows up as a block plus an attached entry.
	require.NotNil(t, find("block", 0, 1))
	assert.Contains(t, p.Attached, protocol.Position{0, 1})

	assert.Contains(t, p.GoalZones, protocol.Position{0, 3})
}
