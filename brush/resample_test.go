package brush

import (
	"testing"

	"github.com/SunastanS/glaphica/protocol"
)

func TestResamplerBeginEmitsOnePoint(t *testing.T) {
	r := NewResampler(DefaultResampleConfig())
	pts := r.Feed(protocol.PointerSample{Phase: protocol.PhaseBegin, CanvasX: 10, CanvasY: 10, Pressure: 0.5})
	if len(pts) != 1 {
		t.Fatalf("begin emitted %d points, want 1", len(pts))
	}
	if pts[0].DiscontinuityBefore {
		t.Fatal("first begin should not report a discontinuity")
	}
}

func TestResamplerMoveEmitsUniformSpacing(t *testing.T) {
	cfg := ResampleConfig{SpacingCanvasUnits: 2.0}
	r := NewResampler(cfg)
	r.Feed(protocol.PointerSample{Phase: protocol.PhaseBegin, CanvasX: 0, CanvasY: 0})

	pts := r.Feed(protocol.PointerSample{Phase: protocol.PhaseMove, CanvasX: 10, CanvasY: 0})
	if len(pts) != 5 {
		t.Fatalf("move over 10 units at spacing 2 emitted %d points, want 5", len(pts))
	}
	for i, p := range pts {
		want := float64(i+1) * 2.0
		if p.CanvasX != want {
			t.Errorf("pts[%d].CanvasX = %v, want %v", i, p.CanvasX, want)
		}
	}
}

func TestResamplerCarryPersistsAcrossFeeds(t *testing.T) {
	cfg := ResampleConfig{SpacingCanvasUnits: 3.0}
	r := NewResampler(cfg)
	r.Feed(protocol.PointerSample{Phase: protocol.PhaseBegin, CanvasX: 0, CanvasY: 0})

	first := r.Feed(protocol.PointerSample{Phase: protocol.PhaseMove, CanvasX: 2, CanvasY: 0})
	if len(first) != 0 {
		t.Fatalf("first short move emitted %d points, want 0 (carry should accumulate)", len(first))
	}

	second := r.Feed(protocol.PointerSample{Phase: protocol.PhaseMove, CanvasX: 4, CanvasY: 0})
	if len(second) != 1 {
		t.Fatalf("second move emitted %d points, want 1 (carry should have crossed spacing)", len(second))
	}
}

func TestResamplerMoveWithoutBeginIsDiscontinuity(t *testing.T) {
	r := NewResampler(DefaultResampleConfig())
	pts := r.Feed(protocol.PointerSample{Phase: protocol.PhaseMove, CanvasX: 5, CanvasY: 5})
	if len(pts) != 1 || !pts[0].DiscontinuityBefore {
		t.Fatalf("move without begin = %+v, want one discontinuous point", pts)
	}
	if pts[0].DroppedChunkCountBefore != 1 {
		t.Fatalf("DroppedChunkCountBefore = %d, want 1", pts[0].DroppedChunkCountBefore)
	}
}

func TestResamplerBeginAfterBeginIsDiscontinuity(t *testing.T) {
	r := NewResampler(DefaultResampleConfig())
	r.Feed(protocol.PointerSample{Phase: protocol.PhaseBegin, CanvasX: 0, CanvasY: 0})
	pts := r.Feed(protocol.PointerSample{Phase: protocol.PhaseBegin, CanvasX: 100, CanvasY: 100})
	if len(pts) != 1 || !pts[0].DiscontinuityBefore {
		t.Fatalf("second begin = %+v, want one discontinuous point", pts)
	}
}

func TestResamplerEndAlwaysEmitsFinalPoint(t *testing.T) {
	r := NewResampler(DefaultResampleConfig())
	r.Feed(protocol.PointerSample{Phase: protocol.PhaseBegin, CanvasX: 0, CanvasY: 0})
	pts := r.Feed(protocol.PointerSample{Phase: protocol.PhaseEnd, CanvasX: 1, CanvasY: 0})

	last := pts[len(pts)-1]
	if last.CanvasX != 1 || last.CanvasY != 0 {
		t.Fatalf("end's last point = %+v, want (1,0)", last)
	}

	pts2 := r.Feed(protocol.PointerSample{Phase: protocol.PhaseMove, CanvasX: 2, CanvasY: 0})
	if len(pts2) != 1 || !pts2[0].DiscontinuityBefore {
		t.Fatalf("move after end = %+v, want a fresh discontinuity", pts2)
	}
}
