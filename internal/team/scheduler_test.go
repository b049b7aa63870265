package team_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/intent"
	"github.com/talgya/blockswarm/internal/protocol"
	"github.com/talgya/blockswarm/internal/roles"
	"github.com/talgya/blockswarm/internal/simstate"
	"github.com/talgya/blockswarm/internal/team"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() intent.Params {
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

func testCatalogue() []roles.Role {
	return []roles.Role{{
		Name:   "default",
		Vision: 5,
		Actions: map[string]struct{}{
			"move": {}, "rotate": {}, "adopt": {}, "attach": {}, "detach": {}, "clear": {},
		},
		Speeds:           []int{1, 1},
		ClearChance:      0.3,
		ClearMaxDistance: 1,
	}}
}

func emptyPercept() protocol.Percept {
	return protocol.Percept{Energy: 100, Role: "default"}
}

func request(id, step int, p protocol.Percept) protocol.RequestAction {
	return protocol.RequestAction{ID: id, Step: step, Percept: p}
}

func newScheduler(ids ...string) (*team.Scheduler, *simstate.State) {
	state := simstate.New("A", len(ids), 400, 20)
	return team.NewScheduler(testLogger(), state, testCatalogue(), ids, testParams()), state
}

func TestScheduler_StepPlansEveryAgent(t *testing.T) {
	sched, state := newScheduler("agent1", "agent2")

	actions, err := sched.Step(map[string]protocol.RequestAction{
		"agent1": request(1, 0, emptyPercept()),
		"agent2": request(2, 0, emptyPercept()),
	})
	require.NoError(t, err)
	assert.Len(t, actions, 2)
	assert.Equal(t, 0, state.Step())

	// Until the agents sight each other, each keeps a private map.
	assert.Equal(t, 2, sched.Registry().MapCount())
}

func TestScheduler_EmptyStepFails(t *testing.T) {
	sched, _ := newScheduler("agent1")
	_, err := sched.Step(nil)
	assert.Error(t, err)
}

func TestScheduler_AppliesActionResults(t *testing.T) {
	sched, _ := newScheduler("agent1")

	_, err := sched.Step(map[string]protocol.RequestAction{
		"agent1": request(1, 0, emptyPercept()),
	})
	require.NoError(t, err)

	moved := emptyPercept()
	moved.LastAction = "move"
	moved.LastActionResult = "success"
	moved.LastActionParams = []string{"e"}
	_, err = sched.Step(map[string]protocol.RequestAction{
		"agent1": request(2, 1, moved),
	})
	require.NoError(t, err)

	m := sched.Registry().MapOf("agent1")
	assert.Equal(t, grid.Coordinate{X: 1, Y: 0}, m.AgentCoordinate("agent1"))
}

func TestScheduler_SharesBoardsFromAnyPercept(t *testing.T) {
	sched, state := newScheduler("agent1")

	p := emptyPercept()
	p.Score = 30
	p.Tasks = []protocol.WireTask{{
		Name: "task1", Deadline: 200, Reward: 10,
		Requirements: []protocol.WireTaskRequirement{{X: 0, Y: 1, Type: "b0"}},
	}}

	_, err := sched.Step(map[string]protocol.RequestAction{
		"agent1": request(1, 0, p),
	})
	require.NoError(t, err)

	assert.Equal(t, 30, state.Score())
	task, ok := state.Task("task1")
	require.True(t, ok)
	assert.Equal(t, 200, task.Deadline)
}

type captureRecorder struct {
	mu      sync.Mutex
	entries []string
	steps   []int
}

func (r *captureRecorder) RecordAction(step int, agentID string, act action.Action, explanation string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, agentID)
	r.steps = append(r.steps, step)
}

func TestScheduler_RecordsPlannedActions(t *testing.T) {
	sched, _ := newScheduler("agent1", "agent2")
	rec := &captureRecorder{}
	sched.SetRecorder(rec)

	_, err := sched.Step(map[string]protocol.RequestAction{
		"agent1": request(1, 0, emptyPercept()),
		"agent2": request(2, 0, emptyPercept()),
	})
	require.NoError(t, err)

	assert.Len(t, rec.entries, 2)
	assert.ElementsMatch(t, []string{"agent1", "agent2"}, rec.entries)
	assert.Equal(t, []int{0, 0}, rec.steps)
}
