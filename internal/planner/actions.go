package planner

import (
	"github.com/talgya/blockswarm/internal/action"
	"github.com/talgya/blockswarm/internal/grid"
)

// synthesize turns a finished search into the first primitive on the path:
// a clear when the next cell needs one, a rotation (or the clear enabling it)
// when a dragged block must swing before the agent can move, otherwise a move
// batching consecutive straight steps up to the agent's speed.
func synthesize(in Input, res searchResult) action.Action {
	g := in.Map.Geometry()
	path := reconstruct(in.Start, *res.end, res.cameFrom)
	if len(path) == 0 {
		return action.NewSkip()
	}

	if rel, ok := needsClear(in, path[0], g); ok {
		return action.NewClear(rel)
	}

	dirs := batchMoves(in, path, g)
	if len(in.Attached) != 1 {
		return action.NewMove(dirs...)
	}

	rel := in.Attached[0]
	moveDir := dirs[0]
	faceDir := rel.DirectionTo(grid.Origin, grid.Geometry{})

	if moveDir.SameAs(faceDir) {
		// Straight pull. A second step can join only if it keeps pulling
		// straight, otherwise the turn needs its own deliberation next step.
		if len(dirs) > 1 && dirs[1] == moveDir {
			return action.NewMove(moveDir, moveDir)
		}
		return action.NewMove(moveDir)
	}
	return rotateOrPush(in, res, moveDir, rel, g)
}

// rotateOrPush handles the first step of a turning move. When the cell the
// block would be shoved into is free the move itself resolves the turn;
// otherwise the block rotates toward the planned swing direction, clearing
// its landing cell first when something removable occupies it.
func rotateOrPush(in Input, res searchResult, moveDir grid.Direction, rel grid.Coordinate, g grid.Geometry) action.Action {
	next := in.Start.Moved(g, moveDir)
	blockDest := next.Shifted(rel, g)
	switch in.Map.AtIgnoringMarkers(blockDest).Kind {
	case grid.Empty, grid.Unknown:
		return action.NewMove(moveDir)
	}

	swingDir, ok := res.rotations[next]
	if !ok {
		return action.NewSkip()
	}
	landing := in.Start.Moved(g, swingDir)
	switch in.Map.AtIgnoringMarkers(landing).Kind {
	case grid.Obstacle, grid.Block:
		return action.NewClear(in.Start.Relative(landing, g))
	}
	return action.NewRotate(rel.RotationTo(swingDir))
}

// reconstruct walks the parent links back from end and returns the path as
// coordinates ordered from the first step to end, start excluded.
func reconstruct(start, end grid.Coordinate, cameFrom map[grid.Coordinate]grid.Coordinate) []grid.Coordinate {
	var reversed []grid.Coordinate
	for at := end; at != start; {
		reversed = append(reversed, at)
		prev, ok := cameFrom[at]
		if !ok {
			return nil
		}
		at = prev
	}
	path := make([]grid.Coordinate, len(reversed))
	for i, c := range reversed {
		path[len(path)-1-i] = c
	}
	return path
}

// needsClear reports whether the cell must be shot clear before it can be
// entered, returning its offset from the agent. Own attachments are never
// cleared.
func needsClear(in Input, c grid.Coordinate, g grid.Geometry) (grid.Coordinate, bool) {
	rel := in.Start.Relative(c, g)
	switch in.Map.AtIgnoringMarkers(c).Kind {
	case grid.Obstacle:
		return rel, true
	case grid.Block:
		for _, a := range in.Attached {
			if a == rel {
				return grid.Coordinate{}, false
			}
		}
		return rel, true
	}
	return grid.Coordinate{}, false
}

// batchMoves collects the leading run of move steps, stopping at the speed
// cap or at the first cell that needs clearing.
func batchMoves(in Input, path []grid.Coordinate, g grid.Geometry) []grid.Direction {
	dirs := make([]grid.Direction, 0, in.Speed)
	prev := in.Start
	for _, c := range path {
		if len(dirs) == in.Speed {
			break
		}
		if _, clear := needsClear(in, c, g); clear {
			break
		}
		dirs = append(dirs, prev.DirectionTo(c, g))
		prev = c
	}
	return dirs
}
