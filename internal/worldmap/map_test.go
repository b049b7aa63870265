package worldmap_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/worldmap"
)

func newTestMap(t *testing.T) *worldmap.Map {
	t.Helper()
	return worldmap.New(1, "agent1", 10, 60)
}

func cellAt(kind grid.CellKind, detail string, step int) grid.Cell {
	return grid.Cell{Kind: kind, Detail: detail, Step: step}
}

func TestMap_ObservePrecedence(t *testing.T) {
	m := newTestMap(t)
	c := grid.Coordinate{X: 2, Y: 0}

	m.Observe(1, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{c: cellAt(grid.Obstacle, "", 1)},
	})
	assert.Equal(t, grid.Obstacle, m.KindAt(c))

	// Older observations never overwrite newer ones.
	m.Observe(2, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{c: cellAt(grid.Empty, "", 2)},
	})
	m.Observe(2, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{c: cellAt(grid.Obstacle, "", 1)},
	})
	assert.Equal(t, grid.Empty, m.KindAt(c))

	assert.Equal(t, grid.Unknown, m.KindAt(grid.Coordinate{X: 9, Y: 9}))
}

func TestMap_MarkerPurge(t *testing.T) {
	m := newTestMap(t)
	c := grid.Coordinate{X: 1, Y: 1}

	m.Observe(5, worldmap.Update{
		Things:  map[grid.Coordinate]grid.Cell{c: cellAt(grid.Empty, "", 5)},
		Markers: map[grid.Coordinate]grid.Cell{c: cellAt(grid.Marker, "clear", 5)},
	})
	assert.True(t, m.IsMarker(c))
	assert.Equal(t, grid.Marker, m.At(c).Kind)
	assert.Equal(t, grid.Empty, m.AtIgnoringMarkers(c).Kind)

	// Unconfirmed markers expire after the purge interval.
	m.Observe(15, worldmap.Update{})
	assert.False(t, m.IsMarker(c))
	assert.Equal(t, grid.Empty, m.At(c).Kind)
}

func TestMap_MarkerClearedByReobservation(t *testing.T) {
	m := newTestMap(t)
	c := grid.Coordinate{X: 1, Y: 1}

	m.Observe(5, worldmap.Update{
		Things:  map[grid.Coordinate]grid.Cell{c: cellAt(grid.Empty, "", 5)},
		Markers: map[grid.Coordinate]grid.Cell{c: cellAt(grid.Marker, "clear", 5)},
	})
	m.Observe(6, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{c: cellAt(grid.Empty, "", 6)},
	})
	assert.False(t, m.IsMarker(c))
}

func TestMap_DispenserLayering(t *testing.T) {
	m := newTestMap(t)
	c := grid.Coordinate{X: 3, Y: 0}

	m.Observe(1, worldmap.Update{
		Things:     map[grid.Coordinate]grid.Cell{c: cellAt(grid.Empty, "", 1)},
		Dispensers: map[grid.Coordinate]grid.Cell{c: cellAt(grid.Dispenser, "b0", 1)},
	})
	assert.Equal(t, grid.Dispenser, m.At(c).Kind)
	assert.True(t, m.HasDispenser("b0"))
	assert.False(t, m.HasDispenser("b1"))

	// An agent standing on the dispenser hides it unless forced.
	m.Observe(2, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{c: cellAt(grid.Agent, "A", 2)},
	})
	assert.Equal(t, grid.Agent, m.At(c).Kind)
	assert.Equal(t, grid.Dispenser, m.AtWithDispenser(c).Kind)

	got, ok := m.ClosestDispenser("b0", grid.Origin)
	require.True(t, ok)
	assert.Equal(t, c, got)
}

func TestMap_GoalZoneRetraction(t *testing.T) {
	m := newTestMap(t)
	zone := grid.Coordinate{X: 2, Y: 2}

	m.Observe(1, worldmap.Update{
		Things:    map[grid.Coordinate]grid.Cell{zone: cellAt(grid.Empty, "", 1)},
		GoalZones: []grid.Coordinate{zone},
	})
	assert.True(t, m.IsGoalZone(zone))
	assert.True(t, m.HasOpenGoalZone())

	// Re-observing the cell without its zone flag drops the zone.
	m.Observe(2, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{zone: cellAt(grid.Empty, "", 2)},
	})
	assert.False(t, m.IsGoalZone(zone))
	assert.False(t, m.HasOpenGoalZone())
}

func TestMap_Reservations(t *testing.T) {
	m := newTestMap(t)
	zoneA := grid.Coordinate{X: 5, Y: 5}
	zoneB := grid.Coordinate{X: 20, Y: 20}
	shape := []grid.Coordinate{{X: 0, Y: 1}}

	m.Observe(1, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{
			zoneA: cellAt(grid.Empty, "", 1),
			zoneB: cellAt(grid.Empty, "", 1),
		},
		GoalZones: []grid.Coordinate{zoneA, zoneB},
	})

	got, ok := m.TryReserveCloserGoalZone("agent1", nil, grid.Origin, shape)
	require.True(t, ok)
	assert.Equal(t, zoneA, got)
	assert.True(t, m.IsReserved(zoneA))
	assert.NotEmpty(t, m.ReservedBy("agent1"))

	// The footprint of zoneA is taken, so a second agent lands on zoneB.
	got2, ok := m.TryReserveCloserGoalZone("agent2", nil, grid.Origin, shape)
	require.True(t, ok)
	assert.Equal(t, zoneB, got2)

	// No zone is strictly closer than agent1's current claim.
	_, ok = m.TryReserveCloserGoalZone("agent1", &zoneA, grid.Origin, shape)
	assert.False(t, ok)

	assert.False(t, m.HasFreeGoalZoneFor(shape))
	m.Release("agent2")
	assert.True(t, m.HasFreeGoalZoneFor(shape))
	assert.False(t, m.IsReserved(zoneB))
}

func TestMap_ConflictingReservations(t *testing.T) {
	m := newTestMap(t)
	zone := grid.Coordinate{X: 5, Y: 5}
	shape := []grid.Coordinate{{X: 0, Y: 1}}

	m.Reserve("agent1", zone, shape)
	m.Reserve("agent2", zone, shape)
	m.Reserve("agent3", grid.Coordinate{X: 30, Y: 30}, shape)

	conflicts := m.ConflictingReservations()
	assert.ElementsMatch(t, []string{"agent2"}, conflicts["agent1"])
	assert.ElementsMatch(t, []string{"agent1"}, conflicts["agent2"])
	assert.Empty(t, conflicts["agent3"])
}

func TestMap_MergeTranslatesEverything(t *testing.T) {
	a := worldmap.New(1, "agent1", 10, 60)
	b := worldmap.New(2, "agent2", 10, 60)

	b.Observe(3, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{
			{X: 1, Y: 0}: cellAt(grid.Obstacle, "", 3),
		},
		Dispensers: map[grid.Coordinate]grid.Cell{
			{X: 2, Y: 0}: cellAt(grid.Dispenser, "b1", 3),
		},
		GoalZones: []grid.Coordinate{{X: 0, Y: 2}},
	})

	// agent2's origin is the cell agent1 knows as (10, 4).
	offset := a.Merge(b, grid.Coordinate{X: 10, Y: 4}, grid.Origin)
	assert.Equal(t, grid.Coordinate{X: 10, Y: 4}, offset)

	assert.Equal(t, grid.Obstacle, a.KindAt(grid.Coordinate{X: 11, Y: 4}))
	assert.Equal(t, grid.Dispenser, a.At(grid.Coordinate{X: 12, Y: 4}).Kind)
	assert.True(t, a.IsGoalZone(grid.Coordinate{X: 10, Y: 6}))
	assert.Equal(t, grid.Coordinate{X: 10, Y: 4}, a.AgentCoordinate("agent2"))
	assert.Contains(t, a.AgentIDs(), "agent2")
}

func TestMap_Rebase(t *testing.T) {
	m := newTestMap(t)

	// The same physical cell recorded twice before wrap discovery.
	m.Observe(1, worldmap.Update{
		Things: map[grid.Coordinate]grid.Cell{
			{X: -1, Y: 0}: cellAt(grid.Obstacle, "", 1),
			{X: 9, Y: 0}:  cellAt(grid.Empty, "", 4),
		},
	})
	m.SetGeometry(grid.Geometry{Width: 10, Height: 10})
	m.Rebase()

	// Newest wins when reductions collide, and the unreduced key is gone.
	assert.Equal(t, grid.Empty, m.KindAt(grid.Coordinate{X: 9, Y: 0}))
	assert.Equal(t, grid.Unknown, m.KindAt(grid.Coordinate{X: -1, Y: 0}))
}

func TestMap_ClosestUnknown(t *testing.T) {
	m := newTestMap(t)

	// Fully observed vision diamond; the nearest unknown lies beyond it.
	things := make(map[grid.Coordinate]grid.Cell)
	for _, c := range grid.Origin.NeighborsWithin(grid.Geometry{}, 5, 0) {
		things[c] = cellAt(grid.Empty, "", 1)
	}
	m.Observe(1, worldmap.Update{Things: things})

	target, ok := m.ClosestUnknown(grid.Origin, grid.Origin, 5)
	require.True(t, ok)
	assert.Equal(t, grid.Unknown, m.AtIgnoringMarkers(target).Kind)

	// A fully known torus has no unknowns left.
	small := worldmap.New(3, "agent1", 10, 60)
	small.SetGeometry(grid.Geometry{Width: 3, Height: 3})
	all := make(map[grid.Coordinate]grid.Cell)
	for x := 0; x < 3; x++ {
		for y := 0; y < 3; y++ {
			all[grid.Coordinate{X: x, Y: y}] = cellAt(grid.Empty, "", 1)
		}
	}
	small.Observe(1, worldmap.Update{Things: all})
	assert.True(t, small.Explored())
	_, ok = small.ClosestUnknown(grid.Origin, grid.Origin, 1)
	assert.False(t, ok)
}
