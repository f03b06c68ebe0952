package replay

import (
	"bytes"
	"testing"
)

func TestRecorderWritesMonotonicEventIDs(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf, "  Scenario A  ")
	defer rec.Close()

	if err := rec.Record(1, PhaseEnqueueBeforeGPU, KindRenderCommand, OutputPayload{
		RenderCommand: &RenderCommandOutput{StrokeSessionID: 9, CommandKind: CommandBeginStroke},
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := rec.Record(2, PhaseEnqueueBeforeGPU, KindRenderCommand, OutputPayload{
		RenderCommand: &RenderCommandOutput{StrokeSessionID: 9, CommandKind: CommandEndStroke},
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events, err := ReadJSONLEvents(&buf)
	if err != nil {
		t.Fatalf("ReadJSONLEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("recorded %d events, want 2", len(events))
	}
	if events[0].Envelope.EventID != 1 || events[1].Envelope.EventID != 2 {
		t.Fatalf("event ids = %d, %d, want 1, 2", events[0].Envelope.EventID, events[1].Envelope.EventID)
	}
	if events[0].Envelope.ScenarioID != "Scenario A" {
		t.Fatalf("ScenarioID = %q, want trimmed %q", events[0].Envelope.ScenarioID, "Scenario A")
	}
	if events[0].Envelope.RunID == "" || events[0].Envelope.RunID != events[1].Envelope.RunID {
		t.Fatalf("expected a shared non-empty run id across events in one recorder")
	}
}

func TestRecorderNextMergeRequestIDIsUniqueAndIncreasing(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(&buf, "scenario")
	defer rec.Close()

	a := rec.NextMergeRequestID()
	b := rec.NextMergeRequestID()
	if b <= a {
		t.Fatalf("merge request ids = %d, %d, want strictly increasing", a, b)
	}
}
