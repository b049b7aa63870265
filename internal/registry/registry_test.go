package registry_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/registry"
	"github.com/talgya/blockswarm/internal/worldmap"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func agentCell(team string, step int) grid.Cell {
	return grid.Cell{Kind: grid.Agent, Detail: team, Step: step}
}

func emptyCell(step int) grid.Cell {
	return grid.Cell{Kind: grid.Empty, Step: step}
}

// mutualSighting builds two percepts where each agent sees the other at the
// given offset from the first.
func mutualSighting(rel grid.Coordinate, step int) (worldmap.Update, worldmap.Update) {
	first := worldmap.Update{Things: map[grid.Coordinate]grid.Cell{
		grid.Origin: agentCell("A", step),
		rel:         agentCell("A", step),
	}}
	second := worldmap.Update{Things: map[grid.Coordinate]grid.Cell{
		grid.Origin:   agentCell("A", step),
		rel.Negated(): agentCell("A", step),
	}}
	return first, second
}

func TestRegistry_RegisterStartsDistinctMaps(t *testing.T) {
	r := registry.New(testLogger(), 10, 60)
	r.Register("agent1", 1, worldmap.Update{})
	r.Register("agent2", 1, worldmap.Update{})

	assert.Equal(t, 2, r.MapCount())
	assert.NotSame(t, r.MapOf("agent1"), r.MapOf("agent2"))
	assert.Equal(t, grid.Origin, r.MapOf("agent1").AgentCoordinate("agent1"))
}

func TestRegistry_MutualSightingMergesMaps(t *testing.T) {
	r := registry.New(testLogger(), 10, 60)
	rel := grid.Coordinate{X: 2, Y: 0}
	upd1, upd2 := mutualSighting(rel, 1)

	r.Register("agent1", 1, upd1)
	r.Register("agent2", 1, upd2)
	r.Update("agent1", 2, upd1)
	r.Update("agent2", 2, upd2)

	res := r.CheckIdentifications()
	require.Equal(t, 1, r.MapCount())
	assert.False(t, res.DimsDiscovered)
	assert.Len(t, res.Offsets, 1)

	m := r.MapOf("agent1")
	require.Same(t, m, r.MapOf("agent2"))
	d := grid.ManhattanDistance(m.AgentCoordinate("agent1"), m.AgentCoordinate("agent2"), m.Geometry())
	assert.Equal(t, 2, d)
}

func TestRegistry_InconsistentOverlapBlocksMerge(t *testing.T) {
	r := registry.New(testLogger(), 10, 60)
	rel := grid.Coordinate{X: 2, Y: 0}
	upd1, upd2 := mutualSighting(rel, 1)

	// The cell between them disagrees, so the sighting is someone else.
	upd1.Things[grid.Coordinate{X: 1, Y: 0}] = emptyCell(1)
	upd2.Things[grid.Coordinate{X: -1, Y: 0}] = grid.Cell{Kind: grid.Obstacle, Step: 1}

	r.Register("agent1", 1, upd1)
	r.Register("agent2", 1, upd2)
	r.Update("agent1", 2, upd1)
	r.Update("agent2", 2, upd2)

	r.CheckIdentifications()
	assert.Equal(t, 2, r.MapCount())
}

func TestRegistry_AmbiguousSightingAborts(t *testing.T) {
	r := registry.New(testLogger(), 10, 60)
	rel := grid.Coordinate{X: 2, Y: 0}
	east, west := mutualSighting(rel, 1)

	// Two identical pairs of sightings: every mirror has two candidates, so
	// no pairing is unique and nothing may merge this step.
	for id, upd := range map[string]worldmap.Update{
		"agent1": east, "agent2": east, "agent3": west, "agent4": west,
	} {
		r.Register(id, 1, upd)
		r.Update(id, 2, upd)
	}

	r.CheckIdentifications()
	assert.Equal(t, 4, r.MapCount())
}

func TestRegistry_WrapSightingDiscoversWidth(t *testing.T) {
	r := registry.New(testLogger(), 10, 60)
	rel := grid.Coordinate{X: 2, Y: 0}
	upd1, upd2 := mutualSighting(rel, 1)

	r.Register("agent1", 1, upd1)
	r.Register("agent2", 1, upd2)
	r.Update("agent1", 2, upd1)
	r.Update("agent2", 2, upd2)
	r.CheckIdentifications()
	require.Equal(t, 1, r.MapCount())

	// agent2 has since walked a full lap: its recorded position disagrees
	// with a fresh mutual sighting, revealing the wrap.
	m := r.MapOf("agent1")
	m.SetAgentCoordinate("agent1", grid.Origin)
	m.SetAgentCoordinate("agent2", grid.Coordinate{X: 20, Y: 0})
	r.Update("agent1", 3, upd1)
	r.Update("agent2", 3, upd2)

	res := r.CheckIdentifications()
	assert.True(t, res.DimsDiscovered)
	assert.Equal(t, 18, r.Geometry().Width)
	assert.Equal(t, 0, r.Geometry().Height)
	assert.Equal(t, grid.Geometry{Width: 18}, m.Geometry())
}
