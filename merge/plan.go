// Package merge implements the per-stroke receipt lifecycle: plan_merge,
// submit, poll_completion_notices, ack_result, finalize, and the retention
// window that keeps a successfully merged stroke's buffer tiles allocated
// for "edit previous stroke" operations.
package merge

import (
	"fmt"

	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

// BaseImageLookup resolves the pre-stroke tile key (if any) occupying a
// destination coordinate in the target layer's current TileImage.
type BaseImageLookup func(coord model.TileCoord) (protocol.TileKey, bool)

// StrokeBufferLookup resolves the stroke buffer's tile key supplying new
// content for a destination coordinate.
type StrokeBufferLookup func(coord model.TileCoord) (protocol.TileKey, bool)

// OutputKeyMinter allocates a fresh tile key to hold one destination
// coordinate's merged output, typically backed by an atlas.Store.Allocate.
type OutputKeyMinter func() (protocol.TileKey, error)

// PlanMerge computes, per destination tile coordinate, the triple
// (base key, stroke buffer key, output key) and returns the resulting
// MergePlan. It enforces the planning invariants: every output coordinate
// appears at most once, every stroke buffer tile key appears at exactly
// one coordinate, and the dirty/mapping/output coordinate sets are equal.
func PlanMerge(
	strokeSessionID uint64,
	layerID uint64,
	blend protocol.BlendMode,
	dirtyTiles []model.TileCoord,
	base BaseImageLookup,
	strokeBuffer StrokeBufferLookup,
	mintOutput OutputKeyMinter,
) (protocol.MergePlan, error) {
	plan := protocol.MergePlan{
		StrokeSessionID: strokeSessionID,
		LayerID:         layerID,
		BlendMode:       blend,
		Mappings:        make([]protocol.TileMergeMapping, 0, len(dirtyTiles)),
	}

	seen := make(map[model.TileCoord]struct{}, len(dirtyTiles))
	seenStroke := make(map[protocol.TileKey]struct{}, len(dirtyTiles))
	for _, coord := range dirtyTiles {
		if _, dup := seen[coord]; dup {
			return protocol.MergePlan{}, &protocol.TileMergeError{
				Kind:  protocol.TileMergeDuplicateOutput,
				Coord: coordString(coord),
			}
		}
		seen[coord] = struct{}{}

		strokeKey, ok := strokeBuffer(coord)
		if !ok {
			// No stroke content at this dirty coordinate is a planning
			// contract violation by the caller, but it is not one of the
			// documented error kinds for plan_merge; treat it the same as
			// a duplicate-output failure since both indicate the dirty
			// set and mapping set have diverged.
			return protocol.MergePlan{}, &protocol.TileMergeError{
				Kind:  protocol.TileMergeDuplicateOutput,
				Coord: coordString(coord),
			}
		}
		if _, dup := seenStroke[strokeKey]; dup {
			return protocol.MergePlan{}, &protocol.TileMergeError{
				Kind:  protocol.TileMergeDuplicateOutput,
				Coord: coordString(coord),
			}
		}
		seenStroke[strokeKey] = struct{}{}

		baseKey, _ := base(coord)

		outputKey, err := mintOutput()
		if err != nil {
			return protocol.MergePlan{}, err
		}

		plan.Mappings = append(plan.Mappings, protocol.TileMergeMapping{
			Coord:         coord,
			BaseTileKey:   baseKey,
			StrokeTileKey: strokeKey,
			OutputTileKey: outputKey,
		})
	}

	return plan, nil
}

func coordString(c model.TileCoord) string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}
