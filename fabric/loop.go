package fabric

import (
	"context"
	"time"

	"github.com/SunastanS/glaphica/protocol"
)

const (
	// InitHandshakeTimeout bounds how long the engine blocks waiting for
	// an InitReceipt.
	InitHandshakeTimeout = 5 * time.Second
	// ResizeHandshakeTimeout bounds how long the engine blocks waiting for
	// a ResizeReceipt.
	ResizeHandshakeTimeout = time.Second

	// MainLoopIdleSleep is how long the main loop sleeps when the command
	// channel is empty.
	MainLoopIdleSleep = time.Millisecond
	// MainLoopBatchBudget bounds how many commands one main-loop tick pops.
	MainLoopBatchBudget = 256

	// FeedbackPushTimeout bounds a release-build retry of a full feedback
	// queue before the main loop gives up and emits FeedbackQueueTimeout.
	FeedbackPushTimeout = 5 * time.Millisecond
)

// Dispatcher executes one Command against the GPU executor and returns
// its receipt, or an error if the command failed. Implemented by the
// executor package; defined here so fabric does not import executor
// (executor imports fabric's command/receipt types instead).
type Dispatcher interface {
	Dispatch(cmd Command) (Receipt, error)
}

// BatchTokenSink is optionally implemented by a Dispatcher that records
// submission tokens on the GPU work it issues (the executor does, so a
// merge submitted mid-batch carries the batch's token for waterline-gated
// release). The main loop announces the upcoming batch's token before
// popping any command.
type BatchTokenSink interface {
	BeginBatch(token protocol.SubmissionToken)
}

// CompletionSource is optionally implemented by a Dispatcher that tracks
// GPU fence completion. The main loop samples it after each batch to
// advance the complete waterline it reports in feedback frames.
type CompletionSource interface {
	CompleteWaterline() protocol.Waterline
}

// MainLoopState carries the main thread's waterlines across ticks.
type MainLoopState struct {
	SubmitWaterline        protocol.Waterline
	ExecutedBatchWaterline protocol.Waterline
	CompleteWaterline      protocol.Waterline
	PresentFrameID         uint64

	strictAssertions bool
}

// NewMainLoopState returns a zeroed waterline state. strictAssertions, when
// true, panics on a detected waterline regression (the documented debug
// build behavior); when false it silently clamps (the release behavior).
func NewMainLoopState(strictAssertions bool) *MainLoopState {
	return &MainLoopState{strictAssertions: strictAssertions}
}

// MainLoopTickResult summarizes one tick's outcome for logging/tests.
type MainLoopTickResult struct {
	Executed int
	Frame    *protocol.GpuFeedbackFrame
	Fatal    error
}

// RunMainLoopTick implements the main loop's per-tick algorithm: pop up to
// a budget of commands, dispatch each, accumulate receipts/errors,
// advance waterlines, and push exactly one feedback frame. A tick that
// pops no command sleeps for MainLoopIdleSleep and pushes no frame.
func RunMainLoopTick(ctx context.Context, endpoint MainEndpoint, dispatcher Dispatcher, state *MainLoopState) MainLoopTickResult {
	var receipts []protocol.CompletionNotice
	var errs []protocol.FeedbackError

	if sink, ok := dispatcher.(BatchTokenSink); ok {
		sink.BeginBatch(protocol.SubmissionToken(state.SubmitWaterline) + 1)
	}

	executed := 0
	for executed < MainLoopBatchBudget {
		cmd, ok := endpoint.GpuCommand.TryPop()
		if !ok {
			break
		}
		executed++

		receipt, err := dispatcher.Dispatch(cmd)
		if err != nil {
			errs = append(errs, protocol.FeedbackError{
				Kind:     protocol.ErrorRecoverable,
				Detail:   err.Error(),
				DedupKey: uint64(executed),
			})
			continue
		}
		if notices, ok := receiptToNotices(receipt); ok {
			receipts = append(receipts, notices...)
		}
	}

	if executed == 0 {
		time.Sleep(MainLoopIdleSleep)
		return MainLoopTickResult{}
	}

	state.SubmitWaterline = state.SubmitWaterline.Max(state.SubmitWaterline + 1)
	state.ExecutedBatchWaterline = state.ExecutedBatchWaterline.Max(state.SubmitWaterline)
	state.PresentFrameID++

	if src, ok := dispatcher.(CompletionSource); ok {
		next := src.CompleteWaterline()
		if state.strictAssertions && next < state.CompleteWaterline {
			panic("fabric: complete waterline regression")
		}
		state.CompleteWaterline = state.CompleteWaterline.Max(next)
	}

	frame := &protocol.GpuFeedbackFrame{
		PresentFrameID:         state.PresentFrameID,
		SubmitWaterline:        state.SubmitWaterline,
		ExecutedBatchWaterline: state.ExecutedBatchWaterline,
		CompleteWaterline:      state.CompleteWaterline,
		Receipts:               receipts,
		Errors:                 errs,
	}

	if err := pushFeedback(ctx, endpoint.GpuFeedback, frame, state.strictAssertions); err != nil {
		return MainLoopTickResult{Executed: executed, Frame: frame, Fatal: err}
	}
	return MainLoopTickResult{Executed: executed, Frame: frame}
}

func pushFeedback(ctx context.Context, ch *ReliableChannel[*protocol.GpuFeedbackFrame], frame *protocol.GpuFeedbackFrame, strict bool) error {
	select {
	case ch.ch <- frame:
		return nil
	default:
	}

	if strict {
		panic("fabric: gpu_feedback queue full (protocol violation)")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, FeedbackPushTimeout)
	defer cancel()
	select {
	case ch.ch <- frame:
		return nil
	case <-timeoutCtx.Done():
		return &protocol.FabricError{Kind: protocol.FabricFeedbackQueueTimeout}
	}
}

// receiptToNotices extracts CompletionNotice values from a MergeNotices
// receipt so the main loop's accumulation step stays uniform across
// receipt kinds; every other receipt kind contributes no notices here
// (the executor separately tracks non-merge receipt delivery via the
// batch's own accounting, out of this function's concern).
func receiptToNotices(r Receipt) ([]protocol.CompletionNotice, bool) {
	mn, ok := r.(MergeNoticesReceipt)
	if !ok {
		return nil, false
	}
	return mn.List, true
}

// RunEngineLoopTick implements the engine loop's per-tick algorithm: drain
// the feedback channel fully, absorptively merge it into mailbox, and
// invoke apply once with the merged frame.
func RunEngineLoopTick(endpoint EngineEndpoint, mailbox *MailboxState, apply func(protocol.GpuFeedbackFrame)) {
	drained := false
	for {
		frame, ok := endpoint.GpuFeedback.TryPop()
		if !ok {
			break
		}
		mailbox.Absorb(*frame)
		drained = true
	}
	if !drained {
		return
	}
	apply(mailbox.Merged())
	mailbox.Reset()
}

// InitiateShutdown runs the engine-initiated shutdown handshake: it pushes
// Shutdown{reason} and returns nil on the first feedback frame received
// afterwards, or ctx's error if none arrives before ctx is done. The
// frame's contents are not inspected: it is not checked for a shutdown
// acknowledgement and may report work from earlier commands.
func InitiateShutdown(ctx context.Context, endpoint EngineEndpoint, reason string) error {
	if err := endpoint.GpuCommand.Push(ctx, ShutdownCommand{Reason: reason}); err != nil {
		return err
	}
	for {
		select {
		case frame, ok := <-endpoint.GpuFeedback.ch:
			if !ok {
				return &protocol.FabricError{Kind: protocol.FabricChannelClosed}
			}
			for _, r := range frame.Receipts {
				_ = r // ShutdownAck carries no completion notice; presence of any frame after the command suffices as liveness.
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
