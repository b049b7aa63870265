package percept_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/percept"
	"github.com/talgya/blockswarm/internal/protocol"
)

func wirePercept() protocol.Percept {
	return protocol.Percept{
		LastAction:       "move",
		LastActionResult: "success",
		LastActionParams: []string{"n"},
		Score:            12,
		Energy:           80,
		Role:             "worker",
		Things: []protocol.WireThing{
			{X: 1, Y: 0, Type: "entity", Details: "A"},
			{X: 0, Y: 2, Type: "block", Details: "b0"},
			{X: -1, Y: 0, Type: "obstacle"},
			{X: 2, Y: 1, Type: "dispenser", Details: "b1"},
			{X: 0, Y: -2, Type: "marker", Details: "clear"},
			{X: 1, Y: -2, Type: "marker", Details: "cp"},
		},
		Attached:  []protocol.Position{{0, 2}},
		GoalZones: []protocol.Position{{3, 0}},
		RoleZones: []protocol.Position{{0, 3}},
		Tasks: []protocol.WireTask{{
			Name: "task1", Deadline: 90, Reward: 10,
			Requirements: []protocol.WireTaskRequirement{{X: 0, Y: 1, Type: "b0"}},
		}},
		Norms: []protocol.WireNorm{{
			Name: "n1", Start: 20, Until: 60, Punishment: 5,
			Requirements: []protocol.WireNormRequirement{{Type: "block", Name: "any", Quantity: 1}},
		}},
	}
}

func TestDecode(t *testing.T) {
	obs := percept.Decode(wirePercept(), 7, 5, "A")

	// The agent itself sits at the origin carrying the team detail.
	self := obs.Things[grid.Origin]
	assert.Equal(t, grid.Agent, self.Kind)
	assert.Equal(t, "A", self.Detail)
	assert.Equal(t, 7, self.Step)

	assert.Equal(t, grid.Agent, obs.Things[grid.Coordinate{X: 1, Y: 0}].Kind)
	assert.Equal(t, grid.Block, obs.Things[grid.Coordinate{X: 0, Y: 2}].Kind)
	assert.Equal(t, grid.Obstacle, obs.Things[grid.Coordinate{X: -1, Y: 0}].Kind)
	assert.Equal(t, grid.Dispenser, obs.Dispensers[grid.Coordinate{X: 2, Y: 1}].Kind)

	// Perimeter markers are harmless and dropped; clear markers are hazards.
	assert.Contains(t, obs.Markers, grid.Coordinate{X: 0, Y: -2})
	assert.NotContains(t, obs.Markers, grid.Coordinate{X: 1, Y: -2})

	// Every unreported in-range cell reads as empty.
	assert.Equal(t, grid.Empty, obs.Things[grid.Coordinate{X: 2, Y: 2}].Kind)
	assert.NotContains(t, obs.Things, grid.Coordinate{X: 6, Y: 0})

	assert.Equal(t, []grid.Coordinate{{X: 3, Y: 0}}, obs.GoalZones)
	assert.Equal(t, []grid.Coordinate{{X: 0, Y: 3}}, obs.RoleZones)

	require.Len(t, obs.Tasks, 1)
	assert.Equal(t, "task1", obs.Tasks[0].Name)
	require.Len(t, obs.Tasks[0].Requirements, 1)
	assert.Equal(t, "b0", obs.Tasks[0].Requirements[0].BlockType)

	require.Len(t, obs.Norms, 1)
	assert.Equal(t, "n1", obs.Norms[0].Name)
}

func TestObservation_Helpers(t *testing.T) {
	obs := percept.Decode(wirePercept(), 7, 5, "A")

	// The attached block two cells away is not directly detachable.
	assert.Empty(t, obs.DirectlyAttached())

	assert.Equal(t, grid.Marker, obs.ThingAt(grid.Coordinate{X: 0, Y: -2}).Kind)
	assert.Equal(t, grid.Unknown, obs.ThingAt(grid.Coordinate{X: 9, Y: 9}).Kind)
	assert.False(t, obs.OnMarker())

	p := wirePercept()
	p.Things = append(p.Things, protocol.WireThing{X: 0, Y: 0, Type: "marker", Details: "clear"})
	hazard := percept.Decode(p, 8, 5, "A")
	assert.True(t, hazard.OnMarker())
}

func TestDecodeRoles(t *testing.T) {
	worker := protocol.WireRole{
		Name:    "worker",
		Vision:  5,
		Actions: []string{"move", "attach", "submit"},
		Speed:   []int{2, 1},
	}
	worker.Clear.Chance = 0.3
	worker.Clear.MaxDistance = 2

	decoded := percept.DecodeRoles([]protocol.WireRole{worker})
	require.Len(t, decoded, 1)
	r := decoded[0]
	assert.Equal(t, "worker", r.Name)
	assert.True(t, r.Can("attach"))
	assert.False(t, r.Can("connect"))
	assert.Equal(t, 2, r.Speed(0))
	assert.Equal(t, 0.3, r.ClearChance)
	assert.Equal(t, 2, r.ClearMaxDistance)
}
