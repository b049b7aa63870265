package agent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/agent"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/percept"
	"github.com/talgya/blockswarm/internal/worldmap"
)

func TestAgent_DetachDropsUnreachableSubtree(t *testing.T) {
	a := agent.New("agent1", "A", 100)

	// A chain hanging south: (0,1) -> (0,2) -> (1,2), plus one block east.
	a.Attach(grid.Coordinate{X: 0, Y: 1})
	a.Attach(grid.Coordinate{X: 0, Y: 2})
	a.Attach(grid.Coordinate{X: 1, Y: 2})
	a.Attach(grid.Coordinate{X: 1, Y: 0})

	a.Detach(grid.Coordinate{X: 0, Y: 1})
	assert.False(t, a.IsAttached(grid.Coordinate{X: 0, Y: 2}))
	assert.False(t, a.IsAttached(grid.Coordinate{X: 1, Y: 2}))
	assert.True(t, a.IsAttached(grid.Coordinate{X: 1, Y: 0}))

	a.DetachAll()
	assert.False(t, a.HasAttachments())
}

func observation(action, result string, params ...string) percept.Observation {
	return percept.Observation{
		LastAction:       action,
		LastActionResult: result,
		LastActionParams: params,
		Energy:           90,
		Role:             "worker",
	}
}

func TestAgent_ApplyMoveResults(t *testing.T) {
	a := agent.New("agent1", "A", 100)
	m := worldmap.New(1, "agent1", 10, 60)

	require.NoError(t, a.ApplyObservation(observation("move", percept.ResultSuccess, "e", "e"), m))
	assert.Equal(t, grid.Coordinate{X: 2, Y: 0}, m.AgentCoordinate("agent1"))
	assert.Equal(t, 90, a.Energy)
	assert.Equal(t, "worker", a.Role)

	// A partial batched move lands only the first step.
	require.NoError(t, a.ApplyObservation(observation("move", percept.ResultPartialSuccess, "s", "s"), m))
	assert.Equal(t, grid.Coordinate{X: 2, Y: 1}, m.AgentCoordinate("agent1"))

	// Failures leave the position untouched.
	require.NoError(t, a.ApplyObservation(observation("move", percept.ResultFailedPath, "n"), m))
	assert.Equal(t, grid.Coordinate{X: 2, Y: 1}, m.AgentCoordinate("agent1"))
}

func TestAgent_ApplyAttachmentResults(t *testing.T) {
	a := agent.New("agent1", "A", 100)
	m := worldmap.New(1, "agent1", 10, 60)

	// A successful request does not change the tree by itself.
	require.NoError(t, a.ApplyObservation(observation("request", percept.ResultSuccess, "s"), m))
	assert.False(t, a.HasAttachments())

	require.NoError(t, a.ApplyObservation(observation("attach", percept.ResultSuccess, "s"), m))
	assert.True(t, a.IsAttached(grid.Coordinate{X: 0, Y: 1}))

	require.NoError(t, a.ApplyObservation(observation("rotate", percept.ResultSuccess, "ccw"), m))
	assert.True(t, a.IsAttached(grid.Coordinate{X: 1, Y: 0}))
	assert.False(t, a.IsAttached(grid.Coordinate{X: 0, Y: 1}))

	require.NoError(t, a.ApplyObservation(observation("detach", percept.ResultSuccess, "e"), m))
	assert.False(t, a.HasAttachments())
}

func TestAgent_ApplyConnectAndDisconnectResults(t *testing.T) {
	a := agent.New("agent1", "A", 100)
	m := worldmap.New(1, "agent1", 10, 60)
	a.Attach(grid.Coordinate{X: 0, Y: 1})
	a.Attach(grid.Coordinate{X: 0, Y: 2})

	// A successful connect changes nothing here: the gained cell lives in
	// the partner's frame and is recorded by the coordination layer.
	require.NoError(t, a.ApplyObservation(observation("connect", percept.ResultSuccess, "agent2", "0", "2"), m))
	assert.Len(t, a.Attachments(), 2)

	// A successful disconnect drops the second named attachment.
	require.NoError(t, a.ApplyObservation(observation("disconnect", percept.ResultSuccess, "0", "1", "0", "2"), m))
	assert.False(t, a.IsAttached(grid.Coordinate{X: 0, Y: 2}))
	assert.True(t, a.IsAttached(grid.Coordinate{X: 0, Y: 1}))

	require.Error(t, a.ApplyObservation(observation("disconnect", percept.ResultSuccess, "0", "1", "x", "y"), m))
}

func TestAgent_SubmitDropsEverything(t *testing.T) {
	a := agent.New("agent1", "A", 100)
	m := worldmap.New(1, "agent1", 10, 60)
	a.Attach(grid.Coordinate{X: 0, Y: 1})
	a.Attach(grid.Coordinate{X: 0, Y: 2})

	require.NoError(t, a.ApplyObservation(observation("submit", percept.ResultSuccess, "task1"), m))
	assert.False(t, a.HasAttachments())
}
