package intent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/intent"
)

func TestEscape_ShedsBlocksBeforeFleeing(t *testing.T) {
	ctx := testContext()
	ctx.Map.Observe(5, markerAt(grid.Origin, 5))
	ctx.Agent.Attach(grid.Coordinate{X: 0, Y: 1})
	require.True(t, ctx.InHazard())

	e := intent.NewEscape()
	require.False(t, e.Finished(ctx))

	// The dragged block goes first.
	act := e.Plan(ctx)
	require.Equal(t, action.Detach, act.Kind)
	assert.Equal(t, grid.South, act.Direction)

	// Once unburdened the flight leg starts.
	ctx.Agent.Detach(grid.Coordinate{X: 0, Y: 1})
	act = e.Plan(ctx)
	assert.Equal(t, action.Move, act.Kind)
}
