package replay

import "fmt"

// strokeState tracks a stroke session's lifecycle across a trace for
// validate_event_stream's ordering checks.
type strokeState int

const (
	strokeBegun strokeState = iota
	strokeEnded
	strokeMerged
)

// ValidationError reports why a recorded trace violates one of the
// engine's cross-event ordering invariants.
type ValidationError struct {
	Reason          string
	StrokeSessionID uint64
	MergeRequestID  uint64
	CommandKind     BrushCommandKind
	Previous        uint64
	Current         uint64
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case "empty_scenario":
		return "replay: trace has no events"
	case "event_id_not_increasing":
		return fmt.Sprintf("replay: event_id did not strictly increase: %d then %d", e.Previous, e.Current)
	case "tick_decreased":
		return fmt.Sprintf("replay: tick decreased: %d then %d", e.Previous, e.Current)
	case "duplicate_merge_request":
		return fmt.Sprintf("replay: merge_request_id %d appears more than once", e.MergeRequestID)
	case "begin_stroke_while_active":
		return fmt.Sprintf("replay: stroke %d began while already active", e.StrokeSessionID)
	case "stroke_command_before_begin":
		return fmt.Sprintf("replay: stroke %d saw %v before begin_stroke", e.StrokeSessionID, e.CommandKind)
	case "end_stroke_without_begin":
		return fmt.Sprintf("replay: stroke %d ended without a begin_stroke", e.StrokeSessionID)
	case "merge_before_end":
		return fmt.Sprintf("replay: stroke %d merged before ending", e.StrokeSessionID)
	case "merge_terminal_without_stroke":
		return fmt.Sprintf("replay: stroke %d acked a merge terminal state with no recorded stroke", e.StrokeSessionID)
	case "merge_after_terminal":
		return fmt.Sprintf("replay: stroke %d acked a merge terminal state twice", e.StrokeSessionID)
	case "document_revision_decreased":
		return fmt.Sprintf("replay: document_revision decreased: %d then %d", e.Previous, e.Current)
	default:
		return fmt.Sprintf("replay: validation failed: %s", e.Reason)
	}
}

// ValidateEventStream checks events for the ordering invariants a
// recorded trace must satisfy: strictly increasing event ids,
// non-decreasing ticks, no duplicate merge requests, and a well-formed
// begin/end/merge state machine per stroke session.
func ValidateEventStream(events []OutputEvent) error {
	if len(events) == 0 {
		return &ValidationError{Reason: "empty_scenario"}
	}

	var previousEventID, previousTick, previousDocRevision uint64
	haveEventID, haveTick, haveDocRevision := false, false, false
	mergeRequestIDs := make(map[uint64]bool)
	strokeStates := make(map[uint64]strokeState)

	for _, event := range events {
		env := event.Envelope

		if haveEventID && env.EventID <= previousEventID {
			return &ValidationError{Reason: "event_id_not_increasing", Previous: previousEventID, Current: env.EventID}
		}
		previousEventID, haveEventID = env.EventID, true

		if haveTick && env.Tick < previousTick {
			return &ValidationError{Reason: "tick_decreased", Previous: previousTick, Current: env.Tick}
		}
		previousTick, haveTick = env.Tick, true

		switch {
		case event.Payload.RenderCommand != nil:
			if err := validateStrokeCommand(strokeStates, event.Payload.RenderCommand); err != nil {
				return err
			}
		case event.Payload.MergeLifecycle != nil:
			merge := event.Payload.MergeLifecycle
			if mergeRequestIDs[merge.MergeRequestID] {
				return &ValidationError{Reason: "duplicate_merge_request", MergeRequestID: merge.MergeRequestID}
			}
			mergeRequestIDs[merge.MergeRequestID] = true
			if err := validateMergeLifecycle(strokeStates, merge); err != nil {
				return err
			}
		case event.Payload.StateDigest != nil:
			digest := event.Payload.StateDigest
			if haveDocRevision && digest.DocumentRevision < previousDocRevision {
				return &ValidationError{Reason: "document_revision_decreased", Previous: previousDocRevision, Current: digest.DocumentRevision}
			}
			previousDocRevision, haveDocRevision = digest.DocumentRevision, true
		}
	}

	return nil
}

func validateStrokeCommand(states map[uint64]strokeState, cmd *RenderCommandOutput) error {
	current, known := states[cmd.StrokeSessionID]
	switch cmd.CommandKind {
	case CommandBeginStroke:
		if known && (current == strokeBegun || current == strokeEnded) {
			return &ValidationError{Reason: "begin_stroke_while_active", StrokeSessionID: cmd.StrokeSessionID}
		}
		states[cmd.StrokeSessionID] = strokeBegun
	case CommandAllocateBufferTiles, CommandPushDabChunk:
		if !known || current != strokeBegun {
			return &ValidationError{Reason: "stroke_command_before_begin", StrokeSessionID: cmd.StrokeSessionID, CommandKind: cmd.CommandKind}
		}
	case CommandEndStroke:
		if !known || current != strokeBegun {
			return &ValidationError{Reason: "end_stroke_without_begin", StrokeSessionID: cmd.StrokeSessionID}
		}
		states[cmd.StrokeSessionID] = strokeEnded
	case CommandMergeBuffer:
		if !known || (current != strokeEnded && current != strokeMerged) {
			return &ValidationError{Reason: "merge_before_end", StrokeSessionID: cmd.StrokeSessionID}
		}
	}
	return nil
}

func validateMergeLifecycle(states map[uint64]strokeState, merge *MergeLifecycleOutput) error {
	current, known := states[merge.StrokeSessionID]
	switch merge.AckKind {
	case AckSubmitted:
		if !known || (current != strokeEnded && current != strokeMerged) {
			return &ValidationError{Reason: "merge_before_end", StrokeSessionID: merge.StrokeSessionID}
		}
	case AckTerminalSuccess, AckTerminalFailure:
		if !known {
			return &ValidationError{Reason: "merge_terminal_without_stroke", StrokeSessionID: merge.StrokeSessionID}
		}
		if current == strokeMerged {
			return &ValidationError{Reason: "merge_after_terminal", StrokeSessionID: merge.StrokeSessionID}
		}
		states[merge.StrokeSessionID] = strokeMerged
	}
	return nil
}
