package brush

import (
	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

// DabShape turns a resampled point plus its stroke's fixed brush radius
// into a Dab. Pressure attenuates radius linearly between a minimum and
// the configured maximum; smoothing curves belong to brush script
// tuning, not here.
type DabShape struct {
	MaxRadius float64
	MinRadius float64
}

// DefaultDabShape returns a reasonable default brush radius range.
func DefaultDabShape() DabShape {
	return DabShape{MaxRadius: 24, MinRadius: 2}
}

func (s DabShape) radiusFor(pressure float32) float64 {
	p := float64(pressure)
	if p < 0 {
		p = 0
	}
	if p > 1 {
		p = 1
	}
	return s.MinRadius + (s.MaxRadius-s.MinRadius)*p
}

// Pipeline is the brush execution pipeline: it resamples one stroke
// session's raw pointer input into a dab stream, groups dabs by the
// buffer tile they land in, allocates those buffer tiles from an R32Float
// atlas store on first touch, and emits one BrushCommand per
// (session, tile) group touched since the last Flush.
type Pipeline struct {
	store    *atlas.Store
	registry *Registry
	shape    DabShape

	resamplers map[uint64]*Resampler
	pending    map[uint64]map[model.TileCoord][]protocol.Dab
	order      map[uint64][]model.TileCoord
}

// NewPipeline constructs a brush execution pipeline allocating scratch
// tiles from store and tracking them in registry.
func NewPipeline(store *atlas.Store, registry *Registry, shape DabShape) *Pipeline {
	return &Pipeline{
		store:      store,
		registry:   registry,
		shape:      shape,
		resamplers: make(map[uint64]*Resampler),
		pending:    make(map[uint64]map[model.TileCoord][]protocol.Dab),
		order:      make(map[uint64][]model.TileCoord),
	}
}

// BeginStroke resets resampling state for a new stroke session and
// registers it with the buffer tile registry.
func (p *Pipeline) BeginStroke(sessionID uint64, resampleCfg ResampleConfig) {
	p.resamplers[sessionID] = NewResampler(resampleCfg)
	p.pending[sessionID] = make(map[model.TileCoord][]protocol.Dab)
	p.order[sessionID] = nil
	p.registry.BeginSession(sessionID)
}

// PushSample feeds one canvas-space pointer sample into the stroke's
// resampler, shapes each resulting point into a Dab, and accumulates it
// under its target buffer tile. It does not allocate atlas tiles or emit
// commands yet -- that happens at Flush, so a burst of samples destined
// for the same tile coalesces into a single BrushCommand.
func (p *Pipeline) PushSample(sample protocol.PointerSample) {
	r, ok := p.resamplers[sample.StrokeSessionID]
	if !ok {
		return
	}
	points := r.Feed(sample)
	tiles := p.pending[sample.StrokeSessionID]
	if tiles == nil {
		return
	}

	for _, pt := range points {
		dab := protocol.Dab{
			CanvasX:  pt.CanvasX,
			CanvasY:  pt.CanvasY,
			Radius:   p.shape.radiusFor(pt.Pressure),
			Pressure: pt.Pressure,
		}
		coord := model.CanvasToTileCoord(int(pt.CanvasX), int(pt.CanvasY))
		if _, seen := tiles[coord]; !seen {
			p.order[sample.StrokeSessionID] = append(p.order[sample.StrokeSessionID], coord)
		}
		tiles[coord] = append(tiles[coord], dab)
	}
}

// Flush allocates (or reuses) a buffer tile for every coordinate touched
// since the last Flush and returns one BrushCommand per coordinate, in
// first-touched order. Allocation failure for one tile does not prevent
// emitting commands for the others; the caller's atlas-full recovery
// (evict, then retry) applies per tile.
func (p *Pipeline) Flush(sessionID uint64) ([]protocol.BrushCommand, error) {
	tiles := p.pending[sessionID]
	order := p.order[sessionID]
	if len(tiles) == 0 {
		return nil, nil
	}

	var out []protocol.BrushCommand
	var firstErr error
	for _, coord := range order {
		dabs := tiles[coord]
		if len(dabs) == 0 {
			continue
		}
		key, err := p.registry.TileFor(p.store, sessionID, coord)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out = append(out, protocol.BrushCommand{StrokeSessionID: sessionID, TargetTile: coord, TargetTileKey: key, Dabs: dabs})
	}

	p.pending[sessionID] = make(map[model.TileCoord][]protocol.Dab)
	p.order[sessionID] = nil
	return out, firstErr
}

// EndStroke discards the pipeline's resampling state for sessionID; the
// buffer tile registry entry survives independently until the merge
// engine or an eviction releases it.
func (p *Pipeline) EndStroke(sessionID uint64) {
	delete(p.resamplers, sessionID)
	delete(p.pending, sessionID)
	delete(p.order, sessionID)
}

// DirtyTileCoords returns the buffer tile coordinates currently allocated
// for sessionID, the shape plan_merge needs as its DirtyTiles input.
func (p *Pipeline) DirtyTileCoords(sessionID uint64) []model.TileCoord {
	tiles := p.registry.Tiles(sessionID)
	coords := make([]model.TileCoord, 0, len(tiles))
	for c := range tiles {
		coords = append(coords, c)
	}
	return coords
}
