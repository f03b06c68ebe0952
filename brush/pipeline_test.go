package brush

import (
	"testing"

	"github.com/SunastanS/glaphica/protocol"
)

func TestPipelineFlushEmitsOneCommandPerTouchedTile(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry()
	p := NewPipeline(store, reg, DefaultDabShape())

	p.BeginStroke(1, ResampleConfig{SpacingCanvasUnits: 4})
	p.PushSample(protocol.PointerSample{StrokeSessionID: 1, Phase: protocol.PhaseBegin, CanvasX: 0, CanvasY: 0, Pressure: 1})
	p.PushSample(protocol.PointerSample{StrokeSessionID: 1, Phase: protocol.PhaseMove, CanvasX: 20, CanvasY: 0, Pressure: 1})

	cmds, err := p.Flush(1)
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(cmds) == 0 {
		t.Fatal("expected at least one brush command")
	}
	for _, c := range cmds {
		if c.StrokeSessionID != 1 {
			t.Errorf("StrokeSessionID = %d, want 1", c.StrokeSessionID)
		}
		if len(c.Dabs) == 0 {
			t.Error("command carries no dabs")
		}
	}
}

func TestPipelineFlushIsEmptyWithoutSamples(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry()
	p := NewPipeline(store, reg, DefaultDabShape())
	p.BeginStroke(1, DefaultResampleConfig())

	cmds, err := p.Flush(1)
	if err != nil || cmds != nil {
		t.Fatalf("Flush with no samples = %v, %v, want nil, nil", cmds, err)
	}
}

func TestPipelineFlushResetsPendingState(t *testing.T) {
	store := newFakeStore()
	reg := NewRegistry()
	p := NewPipeline(store, reg, DefaultDabShape())
	p.BeginStroke(1, ResampleConfig{SpacingCanvasUnits: 4})
	p.PushSample(protocol.PointerSample{StrokeSessionID: 1, Phase: protocol.PhaseBegin, CanvasX: 0, CanvasY: 0})
	p.PushSample(protocol.PointerSample{StrokeSessionID: 1, Phase: protocol.PhaseMove, CanvasX: 20, CanvasY: 0})

	first, _ := p.Flush(1)
	if len(first) == 0 {
		t.Fatal("expected commands from the first flush")
	}
	second, _ := p.Flush(1)
	if len(second) != 0 {
		t.Fatalf("second consecutive flush with no new samples = %v, want empty", second)
	}
}

func TestDabShapeRadiusClampsPressure(t *testing.T) {
	shape := DabShape{MinRadius: 2, MaxRadius: 10}
	if r := shape.radiusFor(-1); r != 2 {
		t.Errorf("radiusFor(-1) = %v, want 2", r)
	}
	if r := shape.radiusFor(2); r != 10 {
		t.Errorf("radiusFor(2) = %v, want 10", r)
	}
	if r := shape.radiusFor(0.5); r != 6 {
		t.Errorf("radiusFor(0.5) = %v, want 6", r)
	}
}
