package protocol

import "github.com/SunastanS/glaphica/model"

// StrokePhase marks where a pointer sample falls within a stroke.
type StrokePhase uint8

const (
	PhaseBegin StrokePhase = iota
	PhaseMove
	PhaseEnd
)

func (p StrokePhase) String() string {
	switch p {
	case PhaseBegin:
		return "Begin"
	case PhaseMove:
		return "Move"
	case PhaseEnd:
		return "End"
	default:
		return "Unknown"
	}
}

// PointerSample is one canvas-space input sample. The driver collaborator
// (out of scope) is responsible for applying screen_to_canvas before
// samples reach this shape -- by the time a PointerSample exists, X and Y
// are already canvas coordinates.
type PointerSample struct {
	StrokeSessionID uint64
	Phase           StrokePhase
	CanvasX         float64
	CanvasY         float64
	Pressure        float32
}

// Dab is one shaped brush mark derived from a run of pointer samples,
// ready to be rasterized by the compute pipeline into a float tile.
type Dab struct {
	CanvasX  float64
	CanvasY  float64
	Radius   float64
	Pressure float32
}

// BrushCommand is the unit of work handed from the brush execution
// pipeline into the runtime fabric's command stream. A single command may
// carry a batch of dabs destined for one or more tiles of one stroke's
// buffer.
type BrushCommand struct {
	StrokeSessionID uint64
	TargetTile      model.TileCoord
	// TargetTileKey is the stroke buffer tile the dabs rasterize into,
	// resolved at flush time so the executor never reads the registry.
	TargetTileKey TileKey
	Dabs          []Dab
}

// MergePlanRequest is the input to the merge engine's plan_merge operation,
// as carried across the fabric inside an EnqueuePlannedMerge command.
type MergePlanRequest struct {
	StrokeSessionID uint64
	LayerID         uint64
	BlendMode       BlendMode
	DirtyTiles      []model.TileCoord
	// StrokeTiles names the stroke buffer tile supplying content for each
	// dirty coordinate. Carried by value so no registry reference crosses
	// the channel.
	StrokeTiles []StrokeTileRef
}

// StrokeTileRef pairs one dirty coordinate with its stroke buffer tile.
type StrokeTileRef struct {
	Coord model.TileCoord
	Key   TileKey
}

// TileMergeMapping is one row of a MergePlan: the destination tile
// coordinate, the base (pre-stroke) tile key if one exists, the stroke
// buffer's tile key supplying new content, and the tile key that will hold
// the merged output once committed.
type TileMergeMapping struct {
	Coord          model.TileCoord
	BaseTileKey    TileKey // zero if the destination had no prior content
	StrokeTileKey  TileKey
	OutputTileKey  TileKey
}

// MergePlan is the output of plan_merge: a row per destination tile
// coordinate. Coord values are unique across Mappings.
type MergePlan struct {
	StrokeSessionID uint64
	LayerID         uint64
	BlendMode       BlendMode
	Mappings        []TileMergeMapping
}
