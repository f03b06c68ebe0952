// Package replay defines the line-delimited JSON trace schema the engine
// and its tests use to record and re-validate a run's externally visible
// event ordering without a live GPU: pointer-driver output, brush
// execution, render-tree submission, merge lifecycle acks, and periodic
// state digests.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// OutputPhase marks which pipeline stage produced an event; every trace
// line is tagged with one for synchronization.
type OutputPhase int

const (
	PhaseEnqueueBeforeGPU OutputPhase = iota
	PhaseFlushQuiescent
	PhaseFinalize
)

func (p OutputPhase) String() string {
	switch p {
	case PhaseEnqueueBeforeGPU:
		return "enqueue_before_gpu"
	case PhaseFlushQuiescent:
		return "flush_quiescent"
	case PhaseFinalize:
		return "finalize"
	default:
		return fmt.Sprintf("OutputPhase(%d)", int(p))
	}
}

func (p OutputPhase) MarshalJSON() ([]byte, error) { return json.Marshal(p.String()) }

func (p *OutputPhase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "enqueue_before_gpu":
		*p = PhaseEnqueueBeforeGPU
	case "flush_quiescent":
		*p = PhaseFlushQuiescent
	case "finalize":
		*p = PhaseFinalize
	default:
		return fmt.Errorf("replay: unknown OutputPhase %q", s)
	}
	return nil
}

// OutputKind names which payload variant an event carries.
type OutputKind int

const (
	KindDriver OutputKind = iota
	KindBrushExecution
	KindRenderCommand
	KindMergeLifecycle
	KindStateDigest
)

func (k OutputKind) String() string {
	switch k {
	case KindDriver:
		return "driver"
	case KindBrushExecution:
		return "brush_execution"
	case KindRenderCommand:
		return "render_command"
	case KindMergeLifecycle:
		return "merge_lifecycle"
	case KindStateDigest:
		return "state_digest"
	default:
		return fmt.Sprintf("OutputKind(%d)", int(k))
	}
}

func (k OutputKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *OutputKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "driver":
		*k = KindDriver
	case "brush_execution":
		*k = KindBrushExecution
	case "render_command":
		*k = KindRenderCommand
	case "merge_lifecycle":
		*k = KindMergeLifecycle
	case "state_digest":
		*k = KindStateDigest
	default:
		return fmt.Errorf("replay: unknown OutputKind %q", s)
	}
	return nil
}

// BrushCommandKind names the brush/render pipeline operation a
// RenderCommandOutput or BrushExecutionOutput event records.
type BrushCommandKind int

const (
	CommandBeginStroke BrushCommandKind = iota
	CommandAllocateBufferTiles
	CommandPushDabChunk
	CommandEndStroke
	CommandMergeBuffer
)

func (k BrushCommandKind) String() string {
	switch k {
	case CommandBeginStroke:
		return "begin_stroke"
	case CommandAllocateBufferTiles:
		return "allocate_buffer_tiles"
	case CommandPushDabChunk:
		return "push_dab_chunk"
	case CommandEndStroke:
		return "end_stroke"
	case CommandMergeBuffer:
		return "merge_buffer"
	default:
		return fmt.Sprintf("BrushCommandKind(%d)", int(k))
	}
}

func (k BrushCommandKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *BrushCommandKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "begin_stroke":
		*k = CommandBeginStroke
	case "allocate_buffer_tiles":
		*k = CommandAllocateBufferTiles
	case "push_dab_chunk":
		*k = CommandPushDabChunk
	case "end_stroke":
		*k = CommandEndStroke
	case "merge_buffer":
		*k = CommandMergeBuffer
	default:
		return fmt.Errorf("replay: unknown BrushCommandKind %q", s)
	}
	return nil
}

// MergeAckKind names which merge lifecycle transition a
// MergeLifecycleOutput event records.
type MergeAckKind int

const (
	AckSubmitted MergeAckKind = iota
	AckTerminalSuccess
	AckTerminalFailure
)

func (k MergeAckKind) String() string {
	switch k {
	case AckSubmitted:
		return "submitted"
	case AckTerminalSuccess:
		return "terminal_success"
	case AckTerminalFailure:
		return "terminal_failure"
	default:
		return fmt.Sprintf("MergeAckKind(%d)", int(k))
	}
}

func (k MergeAckKind) MarshalJSON() ([]byte, error) { return json.Marshal(k.String()) }

func (k *MergeAckKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	switch s {
	case "submitted":
		*k = AckSubmitted
	case "terminal_success":
		*k = AckTerminalSuccess
	case "terminal_failure":
		*k = AckTerminalFailure
	default:
		return fmt.Errorf("replay: unknown MergeAckKind %q", s)
	}
	return nil
}

// EventEnvelope carries the fields every trace line shares regardless of
// payload. event_id must strictly increase within one run; tick must be
// monotonically non-decreasing.
type EventEnvelope struct {
	SchemaVersion uint16      `json:"schema_version"`
	ScenarioID    string      `json:"scenario_id"`
	RunID         string      `json:"run_id"`
	EventID       uint64      `json:"event_id"`
	Tick          uint64      `json:"tick"`
	Phase         OutputPhase `json:"phase"`
	Kind          OutputKind  `json:"kind"`
}

// DriverOutput records one resampled dab-driver output chunk, per
// brush.Resampler's diagnostics.
type DriverOutput struct {
	StrokeSessionID          uint64 `json:"stroke_session_id"`
	ChunkIndex               uint32 `json:"chunk_index"`
	SampleCount              uint32 `json:"sample_count"`
	StartsStroke             bool   `json:"starts_stroke"`
	EndsStroke               bool   `json:"ends_stroke"`
	DiscontinuityBefore      bool   `json:"discontinuity_before"`
	DroppedChunkCountBefore  uint32 `json:"dropped_chunk_count_before"`
	BoundsDigest             string `json:"bounds_digest"`
}

// BrushExecutionOutput records one brush buffer-tile lifecycle step.
type BrushExecutionOutput struct {
	StrokeSessionID uint64           `json:"stroke_session_id"`
	CommandKind     BrushCommandKind `json:"command_kind"`
	TargetLayerID   uint64           `json:"target_layer_id"`
	ReferenceSetID  uint64           `json:"reference_set_id"`
	PayloadDigest   string           `json:"payload_digest"`
}

// RenderCommandOutput records one fabric.Command as dispatched to the
// GPU executor.
type RenderCommandOutput struct {
	StrokeSessionID uint64           `json:"stroke_session_id"`
	CommandKind     BrushCommandKind `json:"command_kind"`
	TileCount       uint32           `json:"tile_count"`
	TileKeysDigest  string           `json:"tile_keys_digest"`
	BlendMode       string           `json:"blend_mode"`
}

// MergeLifecycleOutput records one merge.Engine receipt transition.
type MergeLifecycleOutput struct {
	StrokeSessionID     uint64       `json:"stroke_session_id"`
	MergeRequestID      uint64       `json:"merge_request_id"`
	SubmitSequence      uint64       `json:"submit_sequence"`
	AckKind             MergeAckKind `json:"ack_kind"`
	ReceiptTerminalState string      `json:"receipt_terminal_state"`
}

// StateDigestOutput records a periodic snapshot of document and render
// tree revision counters, used to assert forward progress across a run
// without comparing full tile contents.
type StateDigestOutput struct {
	DocumentRevision          uint64 `json:"document_revision"`
	RenderTreeRevision        uint64 `json:"render_tree_revision"`
	RenderTreeSemanticHash    string `json:"render_tree_semantic_hash"`
	PendingBrushCommandCount  uint32 `json:"pending_brush_command_count"`
	ActiveStrokeCount         uint32 `json:"active_stroke_count"`
	DirtyTileSetDigest        string `json:"dirty_tile_set_digest"`
}

// OutputPayload is exactly one of the Output* structs above, discriminated
// by EventEnvelope.Kind. Go has no sum type, so OutputEvent carries one
// pointer field per variant and exactly one is non-nil; Payload returns
// whichever is set.
type OutputPayload struct {
	Driver         *DriverOutput
	BrushExecution *BrushExecutionOutput
	RenderCommand  *RenderCommandOutput
	MergeLifecycle *MergeLifecycleOutput
	StateDigest    *StateDigestOutput
}

// Payload returns the set variant as an untyped value, for callers that
// only need to inspect or log it generically.
func (p OutputPayload) Payload() any {
	switch {
	case p.Driver != nil:
		return p.Driver
	case p.BrushExecution != nil:
		return p.BrushExecution
	case p.RenderCommand != nil:
		return p.RenderCommand
	case p.MergeLifecycle != nil:
		return p.MergeLifecycle
	case p.StateDigest != nil:
		return p.StateDigest
	default:
		return nil
	}
}

// OutputEvent is one line of a recorded trace.
type OutputEvent struct {
	Envelope          EventEnvelope `json:"envelope"`
	Payload           OutputPayload `json:"payload"`
	DebugWallTimeMicros *uint64     `json:"debug_wall_time_micros,omitempty"`
}

// wireEvent is OutputEvent's on-disk shape: payload is an object with a
// single key naming the set variant ("Driver", "BrushExecution", ...),
// the way serde's externally-tagged enum encoded it in the original Rust
// trace format, so traces produced by either side of a port stay
// line-compatible.
type wireEvent struct {
	Envelope            EventEnvelope   `json:"envelope"`
	Payload             json.RawMessage `json:"payload"`
	DebugWallTimeMicros *uint64         `json:"debug_wall_time_micros,omitempty"`
}

type wirePayload struct {
	Driver         *DriverOutput         `json:"Driver,omitempty"`
	BrushExecution *BrushExecutionOutput `json:"BrushExecution,omitempty"`
	RenderCommand  *RenderCommandOutput  `json:"RenderCommand,omitempty"`
	MergeLifecycle *MergeLifecycleOutput `json:"MergeLifecycle,omitempty"`
	StateDigest    *StateDigestOutput    `json:"StateDigest,omitempty"`
}

// MarshalJSON externally tags Payload: its set variant is keyed by name.
func (e OutputEvent) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(wirePayload{
		Driver:         e.Payload.Driver,
		BrushExecution: e.Payload.BrushExecution,
		RenderCommand:  e.Payload.RenderCommand,
		MergeLifecycle: e.Payload.MergeLifecycle,
		StateDigest:    e.Payload.StateDigest,
	})
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{
		Envelope:            e.Envelope,
		Payload:             payload,
		DebugWallTimeMicros: e.DebugWallTimeMicros,
	})
}

func (e *OutputEvent) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var wp wirePayload
	if err := json.Unmarshal(w.Payload, &wp); err != nil {
		return fmt.Errorf("replay: parse payload: %w", err)
	}
	e.Envelope = w.Envelope
	e.DebugWallTimeMicros = w.DebugWallTimeMicros
	e.Payload = OutputPayload{
		Driver:         wp.Driver,
		BrushExecution: wp.BrushExecution,
		RenderCommand:  wp.RenderCommand,
		MergeLifecycle: wp.MergeLifecycle,
		StateDigest:    wp.StateDigest,
	}
	return nil
}

// NormalizeScenarioID applies Unicode NFC normalization to a
// caller-supplied scenario identifier so two equivalent but differently
// composed strings (e.g. from different OS input methods) compare equal
// once recorded in a trace.
func NormalizeScenarioID(id string) string {
	return norm.NFC.String(strings.TrimSpace(id))
}

// WriteJSONLEvent appends event to w as one JSON object followed by a
// newline.
func WriteJSONLEvent(w io.Writer, event OutputEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("replay: marshal event: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err = w.Write([]byte("\n"))
	return err
}

// ReadJSONLEvents reads every non-blank line from r as one OutputEvent.
func ReadJSONLEvents(r io.Reader) ([]OutputEvent, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var events []OutputEvent
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var event OutputEvent
		if err := json.Unmarshal([]byte(line), &event); err != nil {
			return nil, fmt.Errorf("replay: parse line %d: %w", lineNumber, err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay: read trace: %w", err)
	}
	return events, nil
}
