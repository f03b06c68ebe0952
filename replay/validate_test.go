package replay

import "testing"

func mergeEvent(eventID, tick, stroke, mergeRequestID uint64, ack MergeAckKind) OutputEvent {
	return OutputEvent{
		Envelope: EventEnvelope{
			SchemaVersion: 1, ScenarioID: "scenario-a", RunID: "run-a",
			EventID: eventID, Tick: tick, Phase: PhaseEnqueueBeforeGPU, Kind: KindMergeLifecycle,
		},
		Payload: OutputPayload{MergeLifecycle: &MergeLifecycleOutput{
			StrokeSessionID: stroke, MergeRequestID: mergeRequestID, SubmitSequence: 1,
			AckKind: ack, ReceiptTerminalState: "ok",
		}},
	}
}

func stateDigestEvent(eventID, tick, docRevision uint64) OutputEvent {
	return OutputEvent{
		Envelope: EventEnvelope{
			SchemaVersion: 1, ScenarioID: "scenario-a", RunID: "run-a",
			EventID: eventID, Tick: tick, Phase: PhaseFinalize, Kind: KindStateDigest,
		},
		Payload: OutputPayload{StateDigest: &StateDigestOutput{
			DocumentRevision: docRevision, RenderTreeRevision: docRevision,
			RenderTreeSemanticHash: "digest:tree", DirtyTileSetDigest: "digest:none",
		}},
	}
}

func TestValidateEventStreamAcceptsMonotonicValidSequence(t *testing.T) {
	events := []OutputEvent{
		renderEvent(1, 1, 9, CommandBeginStroke),
		renderEvent(2, 1, 9, CommandPushDabChunk),
		renderEvent(3, 2, 9, CommandEndStroke),
		renderEvent(4, 3, 9, CommandMergeBuffer),
		mergeEvent(5, 3, 9, 42, AckSubmitted),
		mergeEvent(6, 4, 9, 43, AckTerminalSuccess),
		stateDigestEvent(7, 4, 100),
	}

	if err := ValidateEventStream(events); err != nil {
		t.Fatalf("ValidateEventStream: %v", err)
	}
}

func TestValidateEventStreamRejectsNonMonotonicEventID(t *testing.T) {
	events := []OutputEvent{
		renderEvent(2, 1, 9, CommandBeginStroke),
		renderEvent(2, 1, 9, CommandEndStroke),
	}
	err := ValidateEventStream(events)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Reason != "event_id_not_increasing" {
		t.Fatalf("err = %v, want event_id_not_increasing", err)
	}
}

func TestValidateEventStreamRejectsEmptyScenario(t *testing.T) {
	err := ValidateEventStream(nil)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Reason != "empty_scenario" {
		t.Fatalf("err = %v, want empty_scenario", err)
	}
}

func TestValidateEventStreamRejectsStrokeCommandBeforeBegin(t *testing.T) {
	events := []OutputEvent{renderEvent(1, 1, 9, CommandPushDabChunk)}
	err := ValidateEventStream(events)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Reason != "stroke_command_before_begin" {
		t.Fatalf("err = %v, want stroke_command_before_begin", err)
	}
}

func TestValidateEventStreamRejectsDuplicateMergeRequest(t *testing.T) {
	events := []OutputEvent{
		renderEvent(1, 1, 9, CommandBeginStroke),
		renderEvent(2, 1, 9, CommandEndStroke),
		mergeEvent(3, 1, 9, 42, AckSubmitted),
		mergeEvent(4, 1, 9, 42, AckTerminalSuccess),
	}
	err := ValidateEventStream(events)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Reason != "duplicate_merge_request" {
		t.Fatalf("err = %v, want duplicate_merge_request", err)
	}
}

func TestValidateEventStreamRejectsMergeAfterTerminal(t *testing.T) {
	events := []OutputEvent{
		renderEvent(1, 1, 9, CommandBeginStroke),
		renderEvent(2, 1, 9, CommandEndStroke),
		mergeEvent(3, 1, 9, 42, AckTerminalSuccess),
		mergeEvent(4, 1, 9, 43, AckTerminalSuccess),
	}
	err := ValidateEventStream(events)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Reason != "merge_after_terminal" {
		t.Fatalf("err = %v, want merge_after_terminal", err)
	}
}

func TestValidateEventStreamRejectsDocumentRevisionDecreased(t *testing.T) {
	events := []OutputEvent{
		stateDigestEvent(1, 1, 100),
		stateDigestEvent(2, 2, 50),
	}
	err := ValidateEventStream(events)
	ve, ok := err.(*ValidationError)
	if !ok || ve.Reason != "document_revision_decreased" {
		t.Fatalf("err = %v, want document_revision_decreased", err)
	}
}
