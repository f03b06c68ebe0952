// Package driver is the engine-side input driver: it applies the view's
// screen_to_canvas inverse to raw pointer events (the engine only ever
// sees canvas space), shapes the resulting sample stream through the
// brush execution pipeline, plans merges when strokes end, and applies
// mailbox-merged feedback frames to the merge lifecycle and the retention
// window.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/brush"
	"github.com/SunastanS/glaphica/document"
	"github.com/SunastanS/glaphica/fabric"
	"github.com/SunastanS/glaphica/merge"
	"github.com/SunastanS/glaphica/protocol"
	"github.com/SunastanS/glaphica/replay"
	"github.com/SunastanS/glaphica/scheduler"
	"github.com/SunastanS/glaphica/view"
)

// Config bundles the driver's per-stroke tunables.
type Config struct {
	Resample brush.ResampleConfig
	Shape    brush.DabShape
	Blend    protocol.BlendMode
	// Strict panics on a waterline regression observed in feedback
	// instead of clamping, matching the fabric's debug-build behavior.
	Strict bool
}

// DefaultConfig returns the driver defaults.
func DefaultConfig() Config {
	return Config{
		Resample: brush.DefaultResampleConfig(),
		Shape:    brush.DefaultDabShape(),
		Blend:    protocol.BlendNormal,
	}
}

// releaseGate queues one stroke's buffer-tile release until the complete
// waterline covers the submission token that referenced those tiles.
type releaseGate struct {
	sessionID uint64
	token     protocol.SubmissionToken
}

// endedStroke defers a finished stroke's merge by one tick: its final dab
// chunk must reach the GPU (via the present that executes the brush
// queue) before the merge pass that reads the buffer tiles is submitted.
type endedStroke struct {
	sessionID uint64
	readyTick uint64
}

// Driver owns the engine thread's per-tick business logic. It is not safe
// for concurrent use except for HandlePointerEvent and PushControl, which
// touch only the input channels and the mutex-guarded view transform and
// are intended to be called from the window/input thread.
type Driver struct {
	endpoint fabric.EngineEndpoint
	merge    *merge.Engine
	sched    *scheduler.Scheduler
	registry *brush.Registry
	pipeline *brush.Pipeline
	store    *atlas.Store

	// viewMu guards viewTransform: the window thread reads it in
	// HandlePointerEvent while the engine thread applies gesture control
	// messages. Taken only to copy or swap the value, never held across
	// a channel operation.
	viewMu        sync.Mutex
	viewTransform view.ViewTransform

	cfg     Config
	rec     *replay.Recorder
	onFrame func(protocol.GpuFeedbackFrame)

	activeLayer uint64

	doc           *document.Document
	boundRevision uint64

	submit   protocol.Waterline
	executed protocol.Waterline
	complete protocol.Waterline

	open        bool
	openSession uint64
	endedQueue  []endedStroke

	// sessionToken maps a merged stroke session to the submission token
	// its merge rode in on, gating buffer release on the complete
	// waterline.
	sessionToken  map[uint64]protocol.SubmissionToken
	releaseQueue  []releaseGate
	pendingNotice []protocol.CompletionNotice

	tick    uint64
	frameID uint64

	closeRequested bool
}

// New constructs a driver feeding endpoint, planning merges against
// mergeEngine, and allocating stroke buffer tiles from brushStore.
func New(endpoint fabric.EngineEndpoint, mergeEngine *merge.Engine, brushStore *atlas.Store, sched *scheduler.Scheduler, cfg Config) *Driver {
	registry := brush.NewRegistry()
	return &Driver{
		endpoint:      endpoint,
		merge:         mergeEngine,
		sched:         sched,
		registry:      registry,
		pipeline:      brush.NewPipeline(brushStore, registry, cfg.Shape),
		store:         brushStore,
		viewTransform: view.NewViewTransform(),
		cfg:           cfg,
		sessionToken:  make(map[uint64]protocol.SubmissionToken),
	}
}

// SetRecorder attaches a replay trace recorder. Nil disables recording.
func (d *Driver) SetRecorder(r *replay.Recorder) { d.rec = r }

// SetFeedbackObserver registers f to run once per mailbox-merged feedback
// frame, after the driver has applied it. Used by hosts that mirror
// waterline progress into their own bookkeeping.
func (d *Driver) SetFeedbackObserver(f func(protocol.GpuFeedbackFrame)) { d.onFrame = f }

// SetActiveLayer names the document layer new strokes target.
func (d *Driver) SetActiveLayer(layerID uint64) { d.activeLayer = layerID }

// SetDocument attaches the document whose snapshots the driver binds to
// the render tree whenever the revision moves.
func (d *Driver) SetDocument(doc *document.Document) { d.doc = doc }

// View returns the current view transform by value for host-side reads.
func (d *Driver) View() view.ViewTransform {
	d.viewMu.Lock()
	defer d.viewMu.Unlock()
	return d.viewTransform
}

// UpdateView replaces the view transform wholesale. Gestures should ride
// control messages instead; this is for hosts restoring a saved view.
func (d *Driver) UpdateView(t view.ViewTransform) {
	d.viewMu.Lock()
	d.viewTransform = t
	d.viewMu.Unlock()
}

// Waterlines returns the driver's last-observed waterline triple.
func (d *Driver) Waterlines() (submit, executed, complete protocol.Waterline) {
	return d.submit, d.executed, d.complete
}

// HandlePointerEvent converts one screen-space pointer event to canvas
// space and pushes it onto the lossy input ring. The coordinate contract
// holds here and nowhere else: everything downstream sees canvas space
// only.
func (d *Driver) HandlePointerEvent(screenX, screenY float64, pressure float32, phase protocol.StrokePhase, sessionID uint64) error {
	canvasX, canvasY, err := d.View().ScreenToCanvas(screenX, screenY)
	if err != nil {
		return fmt.Errorf("driver: pointer event: %w", err)
	}
	d.endpoint.InputRing.Push(protocol.PointerSample{
		StrokeSessionID: sessionID,
		Phase:           phase,
		CanvasX:         canvasX,
		CanvasY:         canvasY,
		Pressure:        pressure,
	})
	return nil
}

// PushControl enqueues a reliable control message (view gesture or close
// request) from the window thread. Blocks with ctx's deadline when the
// control channel is full; a full channel is backpressure, never a drop.
func (d *Driver) PushControl(ctx context.Context, msg fabric.EngineControlMessage) error {
	return d.endpoint.InputControl.Push(ctx, msg)
}

// CloseRequested reports whether a ControlCloseRequest has been consumed.
// The owner of the engine loop reacts by initiating shutdown.
func (d *Driver) CloseRequested() bool { return d.closeRequested }

// drainControl applies every queued control message to the view
// transform. View errors (non-finite input, zoom out of range) drop the
// gesture; the transform never enters an invalid state.
func (d *Driver) drainControl() {
	for {
		msg, ok := d.endpoint.InputControl.TryPop()
		if !ok {
			return
		}
		if msg.Kind == fabric.ControlCloseRequest {
			d.closeRequested = true
			continue
		}
		d.viewMu.Lock()
		switch msg.Kind {
		case fabric.ControlViewPan:
			_ = d.viewTransform.PanBy(msg.X, msg.Y)
		case fabric.ControlViewZoom:
			_ = d.viewTransform.ZoomAboutPoint(msg.Amount, msg.X, msg.Y)
		case fabric.ControlViewRotate:
			_ = d.viewTransform.RotateBy(msg.Amount)
		case fabric.ControlViewMirror:
			_ = d.viewTransform.FlipAlongScreenYAxis()
		}
		d.viewMu.Unlock()
	}
}

// Init runs the Init handshake: push the command, block on the one-shot
// ack with the documented bounded timeout.
func (d *Driver) Init(ctx context.Context) error {
	ack := fabric.NewAckEndpoint[fabric.InitReceipt]()
	if err := d.endpoint.GpuCommand.Push(ctx, fabric.InitCommand{Ack: ack}); err != nil {
		return fmt.Errorf("driver: init push: %w", err)
	}
	select {
	case r := <-ack.Chan():
		return r.Err
	case <-time.After(fabric.InitHandshakeTimeout):
		return &protocol.FabricError{Kind: protocol.FabricTimeout, Detail: "init handshake"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resize runs the Resize handshake, carrying the current view transform
// as a row-major 2x3 affine.
func (d *Driver) Resize(ctx context.Context, width, height uint32) error {
	m := d.View().ToMatrix()
	ack := fabric.NewAckEndpoint[fabric.ResizeReceipt]()
	cmd := fabric.ResizeCommand{
		Width:         width,
		Height:        height,
		ViewTransform: [6]float64{m.A, m.B, m.C, m.D, m.E, m.F},
		Ack:           ack,
	}
	if err := d.endpoint.GpuCommand.Push(ctx, cmd); err != nil {
		return fmt.Errorf("driver: resize push: %w", err)
	}
	select {
	case r := <-ack.Chan():
		return r.Err
	case <-time.After(fabric.ResizeHandshakeTimeout):
		return &protocol.FabricError{Kind: protocol.FabricTimeout, Detail: "resize handshake"}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Tick runs one engine-loop iteration: drain input under the scheduler's
// budget, flush brush commands, plan merges for ended strokes, push a
// present request when active, then drain and apply feedback. It reports
// whether any feedback frame arrived, so the caller can idle-sleep on
// quiet ticks.
func (d *Driver) Tick(ctx context.Context, mailbox *fabric.MailboxState) (bool, error) {
	d.tick++
	d.drainControl()

	decision := d.sched.ScheduleFrame(scheduler.Input{
		FrameSequenceID:      d.tick,
		BrushHotPathActive:   d.open || d.endpoint.InputRing.Len() > 0,
		PendingBrushCommands: uint32(d.endpoint.InputRing.Len()),
	})

	budget := int(decision.BrushCommandsToRender)
	if !decision.SchedulerActive {
		budget = 0
	}
	if err := d.drainInput(budget); err != nil {
		return false, err
	}

	if err := d.flushBrushCommands(ctx); err != nil {
		return false, err
	}
	if err := d.planEndedStrokes(); err != nil {
		return false, err
	}

	if len(d.pendingNotice) > 0 {
		if d.endpoint.GpuCommand.TryPush(fabric.AckMergeResultsCommand{Notices: d.pendingNotice}) {
			d.pendingNotice = nil
		}
	}

	// A revision bump (layer edits, merge commits) invalidates the bound
	// render tree; rebinding also requests one redraw even when the brush
	// hot path is idle.
	rebound := false
	if d.doc != nil {
		if rev := d.doc.Revision(); rev != d.boundRevision {
			if d.endpoint.GpuCommand.TryPush(fabric.BindRenderTreeCommand{Snapshot: d.doc.Snapshot()}) {
				d.boundRevision = rev
				rebound = true
			}
		}
	}

	if decision.SchedulerActive || decision.HasBrushCommandsToRender || rebound {
		d.frameID++
		d.endpoint.GpuCommand.TryPush(fabric.PollMergeNoticesCommand{FrameID: d.frameID})
		d.endpoint.GpuCommand.TryPush(fabric.PresentFrameCommand{FrameID: d.frameID})
	}

	drained := false
	fabric.RunEngineLoopTick(d.endpoint, mailbox, func(frame protocol.GpuFeedbackFrame) {
		drained = true
		d.applyFeedback(frame)
		if d.onFrame != nil {
			d.onFrame(frame)
		}
	})

	d.applyGatedReleases()
	return drained, nil
}

// drainInput consumes up to budget samples from the input ring, driving
// stroke begin/move/end transitions. A zero budget still drains stroke
// boundary samples promptly on the next active tick; quiet ticks simply
// leave the ring alone.
func (d *Driver) drainInput(budget int) error {
	for consumed := 0; consumed < budget; consumed++ {
		sample, ok := d.endpoint.InputRing.TryPop()
		if !ok {
			return nil
		}
		switch sample.Phase {
		case protocol.PhaseBegin:
			if err := d.merge.BeginStroke(sample.StrokeSessionID, d.activeLayer); err != nil {
				// An earlier session has not merged yet; the sample is
				// dropped rather than queued, matching the ordering
				// invariant that rejects overlapping sessions.
				continue
			}
			d.pipeline.BeginStroke(sample.StrokeSessionID, d.cfg.Resample)
			d.pipeline.PushSample(sample)
			d.open = true
			d.openSession = sample.StrokeSessionID
		case protocol.PhaseMove:
			d.pipeline.PushSample(sample)
		case protocol.PhaseEnd:
			d.pipeline.PushSample(sample)
			if d.open && sample.StrokeSessionID == d.openSession {
				d.merge.EndStroke(sample.StrokeSessionID)
				d.open = false
				d.endedQueue = append(d.endedQueue, endedStroke{sessionID: sample.StrokeSessionID, readyTick: d.tick + 1})
			}
		}
	}
	return nil
}

// flushBrushCommands emits the accumulated dab groups for the open stroke
// (and any just-ended stroke whose dabs have not been flushed yet) as
// EnqueueBrushCommands batches. Push-full stops the flush for this tick;
// unsent commands stay pending in the pipeline.
func (d *Driver) flushBrushCommands(ctx context.Context) error {
	sessions := make([]uint64, 0, 1+len(d.endedQueue))
	if d.open {
		sessions = append(sessions, d.openSession)
	}
	for _, ended := range d.endedQueue {
		sessions = append(sessions, ended.sessionID)
	}

	for _, session := range sessions {
		cmds, err := d.pipeline.Flush(session)
		if err != nil {
			// Atlas full is recoverable: release the oldest retained
			// stroke and let the next tick retry the flush.
			d.relieveAtlasPressure()
		}
		if len(cmds) == 0 {
			continue
		}
		if d.rec != nil {
			_ = d.rec.Record(d.tick, replay.PhaseEnqueueBeforeGPU, replay.KindBrushExecution, replay.OutputPayload{
				BrushExecution: &replay.BrushExecutionOutput{
					StrokeSessionID: session,
					CommandKind:     replay.CommandPushDabChunk,
					TargetLayerID:   d.activeLayer,
				},
			})
		}
		if !d.endpoint.GpuCommand.TryPush(fabric.EnqueueBrushCommandsCommand{Batch: cmds}) {
			// Command channel is saturated; stop producing this tick.
			return nil
		}
	}
	return nil
}

// planEndedStrokes turns each fully flushed, ended stroke into an
// EnqueuePlannedMerge command carrying the dirty coordinate set and the
// stroke buffer tile for each coordinate.
func (d *Driver) planEndedStrokes() error {
	remaining := d.endedQueue[:0]
	for _, ended := range d.endedQueue {
		if ended.readyTick > d.tick {
			remaining = append(remaining, ended)
			continue
		}
		session := ended.sessionID
		dirty := d.pipeline.DirtyTileCoords(session)
		tiles := d.registry.Tiles(session)

		refs := make([]protocol.StrokeTileRef, 0, len(tiles))
		for coord, key := range tiles {
			refs = append(refs, protocol.StrokeTileRef{Coord: coord, Key: key})
		}

		req := protocol.MergePlanRequest{
			StrokeSessionID: session,
			LayerID:         d.activeLayer,
			BlendMode:       d.cfg.Blend,
			DirtyTiles:      dirty,
			StrokeTiles:     refs,
		}
		if !d.endpoint.GpuCommand.TryPush(fabric.EnqueuePlannedMergeCommand{Request: req}) {
			remaining = append(remaining, ended)
			continue
		}
		d.pipeline.EndStroke(session)
		d.registry.SetState(session, brush.PendingMerge)
		if d.rec != nil {
			_ = d.rec.Record(d.tick, replay.PhaseEnqueueBeforeGPU, replay.KindMergeLifecycle, replay.OutputPayload{
				MergeLifecycle: &replay.MergeLifecycleOutput{
					StrokeSessionID: session,
					MergeRequestID:  d.rec.NextMergeRequestID(),
				},
			})
		}
	}
	d.endedQueue = remaining
	return nil
}

// applyFeedback folds one mailbox-merged feedback frame into the driver's
// state: waterlines advance monotonically, completion notices queue for
// acknowledgement, and succeeded strokes move into the retention window.
func (d *Driver) applyFeedback(frame protocol.GpuFeedbackFrame) {
	if d.cfg.Strict {
		if frame.SubmitWaterline < d.submit || frame.ExecutedBatchWaterline < d.executed || frame.CompleteWaterline < d.complete {
			panic("driver: waterline regression in feedback frame")
		}
	}
	d.submit = d.submit.Max(frame.SubmitWaterline)
	d.executed = d.executed.Max(frame.ExecutedBatchWaterline)
	d.complete = d.complete.Max(frame.CompleteWaterline)

	for _, notice := range frame.Receipts {
		d.pendingNotice = append(d.pendingNotice, notice)
		if plan, ok := d.merge.Plan(notice.ReceiptID); ok {
			if token, ok := d.merge.TokenOf(notice.ReceiptID); ok {
				d.sessionToken[plan.StrokeSessionID] = token
			}
			if notice.Succeeded {
				d.registry.SetState(plan.StrokeSessionID, brush.Retained)
			} else {
				// Failed merge: the buffer tiles are useless; queue an
				// immediate gated release.
				d.RequestStrokeRelease(plan.StrokeSessionID)
			}
		}
	}
}

// RequestStrokeRelease queues a stroke's buffer tiles for release. The
// release is applied only once every submission token that referenced the
// tiles is at or below the complete waterline.
func (d *Driver) RequestStrokeRelease(sessionID uint64) {
	d.releaseQueue = append(d.releaseQueue, releaseGate{
		sessionID: sessionID,
		token:     d.sessionToken[sessionID],
	})
}

// applyGatedReleases releases every queued stroke whose gating token has
// been covered by the complete waterline.
func (d *Driver) applyGatedReleases() {
	remaining := d.releaseQueue[:0]
	for _, gate := range d.releaseQueue {
		if protocol.Waterline(gate.token) > d.complete {
			remaining = append(remaining, gate)
			continue
		}
		d.merge.ReleaseStroke(gate.sessionID)
		for _, key := range d.registry.Release(gate.sessionID) {
			d.store.Release(key)
		}
		delete(d.sessionToken, gate.sessionID)
	}
	d.releaseQueue = remaining
}

// relieveAtlasPressure releases the oldest retained stroke's buffer tiles
// in response to an AtlasFull allocation failure, recording the eviction
// as a capability downgrade through the merge engine's eviction hook.
func (d *Driver) relieveAtlasPressure() {
	// Gated like any other release; if no retained stroke is eligible the
	// pressure persists and the next allocation fails again, which is the
	// documented recoverable outcome.
	oldest, found := uint64(0), false
	var oldestToken protocol.SubmissionToken
	for session, token := range d.sessionToken {
		if state, ok := d.registry.State(session); ok && state == brush.Retained {
			if !found || token < oldestToken || (token == oldestToken && session < oldest) {
				oldest, oldestToken, found = session, token, true
			}
		}
	}
	if found {
		d.merge.HandleAtlasEviction(oldest)
		d.RequestStrokeRelease(oldest)
	}
}

// Shutdown runs the engine-initiated shutdown handshake.
func (d *Driver) Shutdown(ctx context.Context, reason string) error {
	return fabric.InitiateShutdown(ctx, d.endpoint, reason)
}
