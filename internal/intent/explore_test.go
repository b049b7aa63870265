package intent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/talgya/blockswarm/internal/grid"
	"github.com/talgya/blockswarm/internal/intent"
	"github.com/talgya/blockswarm/internal/worldmap"
)

func TestExplore_FinishesOnlyOnSingleFullyMappedTorus(t *testing.T) {
	ctx := testContext()
	ctx.MapCount = 1
	e := intent.NewExplore()

	// An unbounded map can never be done.
	assert.False(t, e.Finished(ctx))

	ctx.Map.SetGeometry(grid.Geometry{Width: 4, Height: 4})
	things := make(map[grid.Coordinate]grid.Cell)
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			things[grid.Coordinate{X: x, Y: y}] = grid.Cell{Kind: grid.Empty, Step: 1}
		}
	}
	ctx.Map.Observe(1, worldmap.Update{Things: things})

	// Fully mapped, but teammates on other maps may know cells we do not.
	ctx.MapCount = 2
	assert.False(t, e.Finished(ctx))

	ctx.MapCount = 1
	assert.True(t, e.Finished(ctx))
}
