package brush

import (
	"math"

	"github.com/SunastanS/glaphica/protocol"
)

// ResampleConfig bounds the uniform spacing a Resampler enforces between
// successive points of its output dab stream. The exact spacing constant
// belongs to brush script tuning and is left as a configurable value
// rather than a fixed constant, since it varies per brush.
type ResampleConfig struct {
	SpacingCanvasUnits float64
}

// DefaultResampleConfig matches a visually dense stroke at typical zoom.
func DefaultResampleConfig() ResampleConfig {
	return ResampleConfig{SpacingCanvasUnits: 2.0}
}

// ResampledPoint is one uniformly-spaced output of the resampler, tagged
// with diagnostics about the raw input that produced it.
type ResampledPoint struct {
	CanvasX, CanvasY float64
	Pressure         float32

	// DiscontinuityBefore reports whether this point follows a gap in the
	// input stream (a Move sample arrived with no preceding Begin, or a
	// new stroke session started mid-resample).
	DiscontinuityBefore bool

	// DroppedChunkCountBefore is the resampler's running count of input
	// chunks it discarded due to a discontinuity, as of this point.
	DroppedChunkCountBefore uint32
}

// Resampler reshapes a raw, irregularly-timed PointerSample stream into a
// uniformly-spaced ResampledPoint stream, tracking unconsumed travel
// distance ("carry") between calls to Feed so spacing stays exact across
// sample boundaries rather than snapping to each raw sample's position.
type Resampler struct {
	cfg ResampleConfig

	haveLast     bool
	lastX, lastY float64
	lastP        float32

	carry         float64
	droppedChunks uint32
}

// NewResampler constructs a resampler with the given spacing config.
func NewResampler(cfg ResampleConfig) *Resampler {
	if cfg.SpacingCanvasUnits <= 0 {
		cfg = DefaultResampleConfig()
	}
	return &Resampler{cfg: cfg}
}

// Feed ingests one raw pointer sample and returns zero or more uniformly
// spaced points along the segment from the resampler's last known
// position to sample's position.
func (r *Resampler) Feed(sample protocol.PointerSample) []ResampledPoint {
	switch sample.Phase {
	case protocol.PhaseBegin:
		return r.begin(sample)
	case protocol.PhaseEnd:
		return r.end(sample)
	default:
		return r.move(sample)
	}
}

func (r *Resampler) begin(sample protocol.PointerSample) []ResampledPoint {
	discontinuity := r.haveLast
	if discontinuity {
		r.droppedChunks++
	}
	r.haveLast = true
	r.lastX, r.lastY, r.lastP = sample.CanvasX, sample.CanvasY, sample.Pressure
	r.carry = 0

	return []ResampledPoint{{
		CanvasX: sample.CanvasX, CanvasY: sample.CanvasY, Pressure: sample.Pressure,
		DiscontinuityBefore:     discontinuity,
		DroppedChunkCountBefore: r.droppedChunks,
	}}
}

func (r *Resampler) move(sample protocol.PointerSample) []ResampledPoint {
	if !r.haveLast {
		// A Move with no preceding Begin is itself a discontinuity: treat
		// it as a fresh begin rather than silently interpolating from the
		// origin.
		r.droppedChunks++
		r.haveLast = true
		r.lastX, r.lastY, r.lastP = sample.CanvasX, sample.CanvasY, sample.Pressure
		r.carry = 0
		return []ResampledPoint{{
			CanvasX: sample.CanvasX, CanvasY: sample.CanvasY, Pressure: sample.Pressure,
			DiscontinuityBefore:     true,
			DroppedChunkCountBefore: r.droppedChunks,
		}}
	}

	dx, dy := sample.CanvasX-r.lastX, sample.CanvasY-r.lastY
	segLen := math.Hypot(dx, dy)
	var points []ResampledPoint

	if segLen > 0 {
		spacing := r.cfg.SpacingCanvasUnits
		dist := -r.carry
		for dist+spacing <= segLen {
			dist += spacing
			t := dist / segLen
			points = append(points, ResampledPoint{
				CanvasX:  r.lastX + dx*t,
				CanvasY:  r.lastY + dy*t,
				Pressure: lerpPressure(r.lastP, sample.Pressure, float32(t)),
			})
		}
		r.carry = segLen - dist
	}

	r.lastX, r.lastY, r.lastP = sample.CanvasX, sample.CanvasY, sample.Pressure
	return points
}

func (r *Resampler) end(sample protocol.PointerSample) []ResampledPoint {
	points := r.move(sample)
	points = append(points, ResampledPoint{CanvasX: sample.CanvasX, CanvasY: sample.CanvasY, Pressure: sample.Pressure})
	r.haveLast = false
	r.carry = 0
	return points
}

func lerpPressure(a, b float32, t float32) float32 {
	return a + (b-a)*t
}
