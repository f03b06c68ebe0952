// Package fabric is the runtime command/feedback fabric: bounded SPSC
// channels carrying owned commands from the engine thread to the main/GPU
// thread, and mailbox-merged feedback frames back, with no shared mutable
// state between the two sides.
package fabric

import (
	"github.com/SunastanS/glaphica/protocol"
)

// CommandKind identifies the concrete type of a Command riding the
// gpu_command channel.
type CommandKind uint8

const (
	CmdInit CommandKind = iota
	CmdShutdown
	CmdResize
	CmdPresentFrame
	CmdBindRenderTree
	CmdEnqueueBrushCommands
	CmdEnqueueBrushCommand
	CmdPollMergeNotices
	CmdProcessMergeCompletions
	CmdAckMergeResults
	CmdEnqueuePlannedMerge
)

func (k CommandKind) String() string {
	names := [...]string{
		"Init", "Shutdown", "Resize", "PresentFrame", "BindRenderTree",
		"EnqueueBrushCommands", "EnqueueBrushCommand", "PollMergeNotices",
		"ProcessMergeCompletions", "AckMergeResults", "EnqueuePlannedMerge",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// Command is the interface implemented by every command riding the
// gpu_command channel. Payloads are always owned values; no borrowed data
// crosses the channel.
type Command interface {
	Kind() CommandKind
}

// AckEndpoint is a one-shot reply channel carried by a synchronous
// handshake command (Init, Resize). The initiator blocks on Recv with a
// bounded timeout; the receiver sends exactly once.
type AckEndpoint[T any] struct {
	ch chan T
}

// NewAckEndpoint creates a one-shot ack endpoint.
func NewAckEndpoint[T any]() AckEndpoint[T] {
	return AckEndpoint[T]{ch: make(chan T, 1)}
}

// Send delivers the single reply. The endpoint buffers one value, so a
// second Send blocks until the first reply has been received.
func (a AckEndpoint[T]) Send(v T) {
	a.ch <- v
}

// Recv blocks for v, or reports ok=false if the channel closes first.
func (a AckEndpoint[T]) Recv() (T, bool) {
	v, ok := <-a.ch
	return v, ok
}

// Chan exposes the underlying channel for select-based waiting with a
// timeout.
func (a AckEndpoint[T]) Chan() <-chan T {
	return a.ch
}

// Valid reports whether the endpoint was constructed with NewAckEndpoint.
// A zero-value endpoint has no reply channel; the receiver must not Send
// on it.
func (a AckEndpoint[T]) Valid() bool {
	return a.ch != nil
}

// InitCommand requests device/surface initialization. Ack must arrive
// within the Init handshake timeout (5s).
type InitCommand struct {
	Ack AckEndpoint[InitReceipt]
}

func (InitCommand) Kind() CommandKind { return CmdInit }

// ShutdownCommand requests an orderly wind-down.
type ShutdownCommand struct {
	Reason string
}

func (ShutdownCommand) Kind() CommandKind { return CmdShutdown }

// ResizeCommand reconfigures surface dimensions and the view uniform.
// Ack must arrive within the Resize handshake timeout (1s).
type ResizeCommand struct {
	Width, Height uint32
	ViewTransform [6]float64 // row-major 2x3 affine matrix (A,B,C,D,E,F)
	Ack           AckEndpoint[ResizeReceipt]
}

func (ResizeCommand) Kind() CommandKind { return CmdResize }

// PresentFrameCommand requests a composite + present of the current
// render tree.
type PresentFrameCommand struct {
	FrameID uint64
}

func (PresentFrameCommand) Kind() CommandKind { return CmdPresentFrame }

// BindRenderTreeCommand replaces the executor's bound snapshot.
type BindRenderTreeCommand struct {
	Snapshot protocol.RenderTreeSnapshot
}

func (BindRenderTreeCommand) Kind() CommandKind { return CmdBindRenderTree }

// EnqueueBrushCommandsCommand appends a batch of brush commands to the
// executor's internal queue without executing them.
type EnqueueBrushCommandsCommand struct {
	Batch []protocol.BrushCommand
}

func (EnqueueBrushCommandsCommand) Kind() CommandKind { return CmdEnqueueBrushCommands }

// EnqueueBrushCommandCommand appends a single brush command.
type EnqueueBrushCommandCommand struct {
	One protocol.BrushCommand
}

func (EnqueueBrushCommandCommand) Kind() CommandKind { return CmdEnqueueBrushCommand }

// PollMergeNoticesCommand requests a drain of GPU-complete notices.
type PollMergeNoticesCommand struct {
	FrameID uint64
}

func (PollMergeNoticesCommand) Kind() CommandKind { return CmdPollMergeNotices }

// ProcessMergeCompletionsCommand asks the executor to fold any
// newly-available completion notices into its bookkeeping for frameID.
type ProcessMergeCompletionsCommand struct {
	FrameID uint64
}

func (ProcessMergeCompletionsCommand) Kind() CommandKind { return CmdProcessMergeCompletions }

// AckMergeResultsCommand forwards notices into the merge engine's
// ack_result single-entry path.
type AckMergeResultsCommand struct {
	Notices []protocol.CompletionNotice
}

func (AckMergeResultsCommand) Kind() CommandKind { return CmdAckMergeResults }

// EnqueuePlannedMergeCommand registers a receipt in the merge engine and
// encodes its compute/render pass.
type EnqueuePlannedMergeCommand struct {
	Request protocol.MergePlanRequest
}

func (EnqueuePlannedMergeCommand) Kind() CommandKind { return CmdEnqueuePlannedMerge }

// InitReceipt is the Init handshake's ack payload.
type InitReceipt struct {
	Err error
}

// ResizeReceipt is the Resize handshake's ack payload.
type ResizeReceipt struct {
	Err error
}
