package replay

import (
	"bytes"
	"testing"
)

func renderEvent(eventID, tick, stroke uint64, kind BrushCommandKind) OutputEvent {
	return OutputEvent{
		Envelope: EventEnvelope{
			SchemaVersion: 1,
			ScenarioID:    "scenario-a",
			RunID:         "run-a",
			EventID:       eventID,
			Tick:          tick,
			Phase:         PhaseEnqueueBeforeGPU,
			Kind:          KindRenderCommand,
		},
		Payload: OutputPayload{RenderCommand: &RenderCommandOutput{
			StrokeSessionID: stroke,
			CommandKind:     kind,
			TileCount:       1,
			TileKeysDigest:  "digest:tile",
			BlendMode:       "Normal",
		}},
	}
}

func TestJSONLRoundTripPreservesSemantics(t *testing.T) {
	event := renderEvent(1, 1, 9, CommandBeginStroke)

	var buf bytes.Buffer
	if err := WriteJSONLEvent(&buf, event); err != nil {
		t.Fatalf("WriteJSONLEvent: %v", err)
	}

	parsed, err := ReadJSONLEvents(&buf)
	if err != nil {
		t.Fatalf("ReadJSONLEvents: %v", err)
	}
	if len(parsed) != 1 {
		t.Fatalf("parsed %d events, want 1", len(parsed))
	}
	if err := CompareSemanticEvents([]OutputEvent{event}, parsed); err != nil {
		t.Fatalf("round-tripped event differs: %v", err)
	}
}

func TestReadJSONLEventsSkipsBlankLines(t *testing.T) {
	event := renderEvent(1, 1, 9, CommandBeginStroke)
	var buf bytes.Buffer
	_ = WriteJSONLEvent(&buf, event)
	buf.WriteString("\n\n")
	_ = WriteJSONLEvent(&buf, renderEvent(2, 1, 9, CommandEndStroke))

	parsed, err := ReadJSONLEvents(&buf)
	if err != nil {
		t.Fatalf("ReadJSONLEvents: %v", err)
	}
	if len(parsed) != 2 {
		t.Fatalf("parsed %d events, want 2", len(parsed))
	}
}

func TestNormalizeScenarioIDTrimsAndNormalizes(t *testing.T) {
	got := NormalizeScenarioID("  scenario-a  ")
	if got != "scenario-a" {
		t.Fatalf("NormalizeScenarioID = %q, want %q", got, "scenario-a")
	}
}

func TestOutputPhaseJSONRoundTrip(t *testing.T) {
	for _, p := range []OutputPhase{PhaseEnqueueBeforeGPU, PhaseFlushQuiescent, PhaseFinalize} {
		data, err := p.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON(%v): %v", p, err)
		}
		var got OutputPhase
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", data, err)
		}
		if got != p {
			t.Fatalf("round-tripped phase = %v, want %v", got, p)
		}
	}
}
