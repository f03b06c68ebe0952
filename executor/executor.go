package executor

import (
	"fmt"
	"math"

	"github.com/gogpu/wgpu/hal"

	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/document"
	"github.com/SunastanS/glaphica/fabric"
	"github.com/SunastanS/glaphica/merge"
	"github.com/SunastanS/glaphica/metrics"
	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
)

// Stores groups the atlas stores the executor drains and resolves against,
// one per backend kind the runtime actually uses: committed layer color
// tiles and transient brush-buffer float tiles.
type Stores struct {
	Color *atlas.Store // BackendRGBA8
	Brush *atlas.Store // BackendR32Float
}

// documentResolver adapts a *document.Document to the Resolver interface
// the frame planner needs, translating a layer id into the TileImage it
// owns.
type documentResolver struct {
	doc *document.Document
}

func (r documentResolver) DirtySince(layerID uint64, previousVersion uint64) ([]model.TileCoord, uint64) {
	layer := r.doc.FindByID(layerID)
	if layer == nil || layer.Image == nil {
		return nil, previousVersion
	}
	return layer.Image.DirtySince(previousVersion)
}

// Config bundles the executor's dependencies, constructed once at startup
// by the top-level app wiring.
type Config struct {
	Device  Device
	Queue   Queue
	Surface Surface
	Stores  Stores
	Doc     *document.Document
	Merge   *merge.Engine
	Metrics *metrics.Recorder
	Strict  bool // debug-build strict assertions for arena aliasing hazards

	// Hal is the full hal.Device the Init command builds compute pipelines
	// on. Nil in headless tests; pipeline encoding is then skipped and
	// merge submissions complete through fence bookkeeping alone.
	Hal hal.Device
}

// Executor is the GPU executor: it receives dispatched fabric.Command
// values, drives atlas uploads/drains, runs the frame planner over the
// currently bound render tree, and reports outcomes as fabric.Receipt
// values. It implements fabric.Dispatcher.
type Executor struct {
	device  Device
	queue   Queue
	surface Surface
	stores  Stores
	doc     *document.Document
	merge   *merge.Engine
	metrics *metrics.Recorder

	planner *FramePlanner
	arena   *Arena

	bound      protocol.RenderTreeSnapshot
	haveBound  bool
	brushQueue []protocol.BrushCommand

	hal       hal.Device
	pipelines *PipelineBundle

	batchToken    protocol.SubmissionToken
	completeToken protocol.SubmissionToken
	fenceValue    uint64
	inflight      []pendingSubmission
}

// pendingSubmission tracks one GPU submission awaiting its fence, so the
// executor can mint completion notices and advance the complete waterline
// strictly after the enclosing fence has passed.
type pendingSubmission struct {
	token    protocol.SubmissionToken
	fence    hal.Fence
	value    uint64
	receipts []protocol.ReceiptId
	// buffers stay alive until the fence passes; freeing a submitted
	// command buffer the GPU is still reading corrupts the submission.
	buffers []hal.CommandBuffer
}

// New constructs an Executor from cfg.
func New(cfg Config) *Executor {
	cache := NewPlannerCache()
	resolver := documentResolver{doc: cfg.Doc}
	return &Executor{
		device:  cfg.Device,
		queue:   cfg.Queue,
		surface: cfg.Surface,
		stores:  cfg.Stores,
		doc:     cfg.Doc,
		merge:   cfg.Merge,
		metrics: cfg.Metrics,
		planner: NewFramePlanner(cache, resolver),
		arena:   NewArena(cfg.Strict),
		hal:     cfg.Hal,
	}
}

// BeginBatch records the submission token covering every command the main
// loop is about to dispatch this tick, implementing fabric.BatchTokenSink.
func (e *Executor) BeginBatch(token protocol.SubmissionToken) {
	e.batchToken = token
}

// CompleteWaterline reports the highest submission token whose GPU fence
// has been observed signalled, implementing fabric.CompletionSource.
func (e *Executor) CompleteWaterline() protocol.Waterline {
	return protocol.Waterline(e.completeToken)
}

// Dispatch executes one Command and returns its receipt, implementing
// fabric.Dispatcher.
func (e *Executor) Dispatch(cmd fabric.Command) (fabric.Receipt, error) {
	switch c := cmd.(type) {
	case fabric.InitCommand:
		return e.dispatchInit(c)
	case fabric.ResizeCommand:
		return e.dispatchResize(c)
	case fabric.PollMergeNoticesCommand:
		return e.dispatchPollMergeNotices(c)
	case fabric.PresentFrameCommand:
		return e.dispatchPresentFrame(c)
	case fabric.BindRenderTreeCommand:
		return e.dispatchBindRenderTree(c)
	case fabric.EnqueueBrushCommandsCommand:
		return e.dispatchEnqueueBrushCommands(c)
	case fabric.EnqueueBrushCommandCommand:
		return e.dispatchEnqueueBrushCommands(fabric.EnqueueBrushCommandsCommand{Batch: []protocol.BrushCommand{c.One}})
	case fabric.ProcessMergeCompletionsCommand:
		return e.dispatchProcessMergeCompletions(c)
	case fabric.AckMergeResultsCommand:
		return e.dispatchAckMergeResults(c)
	case fabric.EnqueuePlannedMergeCommand:
		return e.dispatchEnqueuePlannedMerge(c)
	case fabric.ShutdownCommand:
		return e.dispatchShutdown()
	default:
		return nil, &protocol.FabricError{Kind: protocol.FabricInvalidCommand}
	}
}

// dispatchInit builds the compute pipelines when a full hal device was
// configured and answers the handshake's one-shot ack endpoint.
func (e *Executor) dispatchInit(c fabric.InitCommand) (fabric.Receipt, error) {
	var err error
	if e.hal != nil && e.pipelines == nil {
		e.pipelines, err = BuildPipelines(e.hal)
	}
	if c.Ack.Valid() {
		c.Ack.Send(fabric.InitReceipt{Err: err})
	}
	if err != nil {
		return nil, fmt.Errorf("executor: init: %w", err)
	}
	return fabric.InitCompleteReceipt{}, nil
}

// dispatchShutdown tears down the executor's GPU objects: outstanding
// fences and command buffers first, then the pipeline bundle.
func (e *Executor) dispatchShutdown() (fabric.Receipt, error) {
	for _, sub := range e.inflight {
		if sub.fence != nil {
			e.device.DestroyFence(sub.fence)
		}
		for _, buf := range sub.buffers {
			e.device.FreeCommandBuffer(buf)
		}
	}
	e.inflight = nil
	if e.pipelines != nil && e.hal != nil {
		e.pipelines.Destroy(e.hal)
		e.pipelines = nil
	}
	return fabric.ShutdownAckReceipt{}, nil
}

func (e *Executor) dispatchResize(c fabric.ResizeCommand) (fabric.Receipt, error) {
	err := e.surface.Configure(c.Width, c.Height)
	if c.Ack.Valid() {
		c.Ack.Send(fabric.ResizeReceipt{Err: err})
	}
	if err != nil {
		return nil, fmt.Errorf("executor: resize: %w", err)
	}
	return fabric.ResizedReceipt{Width: c.Width, Height: c.Height}, nil
}

func (e *Executor) dispatchBindRenderTree(c fabric.BindRenderTreeCommand) (fabric.Receipt, error) {
	e.bound = c.Snapshot
	e.haveBound = true
	return fabric.RenderTreeBoundReceipt{Revision: c.Snapshot.Revision}, nil
}

func (e *Executor) dispatchEnqueueBrushCommands(c fabric.EnqueueBrushCommandsCommand) (fabric.Receipt, error) {
	e.brushQueue = append(e.brushQueue, c.Batch...)
	return fabric.BrushCommandsEnqueuedReceipt{Count: len(c.Batch)}, nil
}

// dispatchPresentFrame runs the planner over the bound render tree,
// drains any staged atlas uploads produced since the last frame, and
// presents. With no bound tree only the planning step is skipped: the
// brush queue, the atlas drains and the present still run, and the frame
// succeeds rather than treating an empty document as an error.
func (e *Executor) dispatchPresentFrame(c fabric.PresentFrameCommand) (fabric.Receipt, error) {
	e.arena.Reset()

	if err := e.executeBrushQueue(); err != nil {
		return nil, err
	}

	if e.haveBound {
		plans := e.planner.Plan(e.bound)
		e.buildDrawInstances(plans)
	}

	if e.stores.Brush != nil {
		if _, err := e.stores.Brush.DrainAndExecute(e.queue); err != nil {
			return nil, fmt.Errorf("executor: present_frame: drain brush atlas: %w", err)
		}
	}
	if e.stores.Color != nil {
		if _, err := e.stores.Color.DrainAndExecute(e.queue); err != nil {
			return nil, fmt.Errorf("executor: present_frame: drain color atlas: %w", err)
		}
	}

	if _, err := e.surface.AcquireNextTexture(); err != nil {
		return nil, fmt.Errorf("executor: present_frame: acquire: %w", err)
	}
	if err := e.surface.Present(); err != nil {
		return nil, fmt.Errorf("executor: present_frame: present: %w", err)
	}

	if e.metrics != nil && e.stores.Color != nil {
		e.metrics.AtlasPagesAllocated.Set(float64(e.stores.Color.PageCount()))
		e.metrics.AtlasSlotsOccupied.Set(float64(e.stores.Color.SlotsOccupied()))
	}

	return fabric.FramePresentedReceipt{FrameID: c.FrameID}, nil
}

// executeBrushQueue rasterizes every queued brush command into its stroke
// buffer tile: one compute pass per command, per-pass dab data appended
// to the arena at a distinct offset. Commands whose target tile no longer
// resolves (the stroke was released or evicted since enqueue) are
// dropped, the same skip rule the atlas drain applies to stale ops. The
// whole batch rides one fence so the complete waterline covers it.
func (e *Executor) executeBrushQueue() error {
	if len(e.brushQueue) == 0 {
		return nil
	}
	cmds := e.brushQueue
	e.brushQueue = nil

	var buffers []hal.CommandBuffer
	encoded := 0

	if e.pipelines != nil {
		encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "brush_dabs"})
		if err != nil {
			return fmt.Errorf("executor: present_frame: create brush encoder: %w", err)
		}
		if encoder != nil {
			if err := encoder.BeginEncoding("brush_dabs"); err != nil {
				return fmt.Errorf("executor: present_frame: begin brush encoding: %w", err)
			}
			for _, cmd := range cmds {
				if _, err := e.stores.Brush.Resolve(cmd.TargetTileKey); err != nil {
					continue
				}
				e.arena.Append(dabBytes(cmd))

				pass, err := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "brush_dab_pass"})
				if err != nil {
					return fmt.Errorf("executor: present_frame: begin brush pass: %w", err)
				}
				if pass != nil {
					pass.SetPipeline(e.pipelines.BrushDab)
					pass.Dispatch(model.TileStride/16, model.TileStride/16, 1)
					pass.End()
				}
				encoded++
			}
			buf, err := encoder.EndEncoding()
			if err != nil {
				return fmt.Errorf("executor: present_frame: end brush encoding: %w", err)
			}
			if buf != nil && encoded > 0 {
				buffers = append(buffers, buf)
			}
		}
	}

	fence, err := e.device.CreateFence()
	if err != nil {
		return fmt.Errorf("executor: present_frame: create brush fence: %w", err)
	}
	e.fenceValue++
	if err := e.queue.Submit(buffers, fence, e.fenceValue); err != nil {
		return fmt.Errorf("executor: present_frame: submit brush passes: %w", err)
	}
	e.inflight = append(e.inflight, pendingSubmission{
		token:   e.batchToken,
		fence:   fence,
		value:   e.fenceValue,
		buffers: buffers,
	})
	return nil
}

// dabBytes packs one brush command's per-pass block: the target slot and
// dab count followed by each dab's center/radius/pressure as 32-bit
// little-endian words, matching the dab shader's input layout.
func dabBytes(cmd protocol.BrushCommand) []byte {
	words := make([]uint32, 0, 2+len(cmd.Dabs)*4)
	words = append(words, cmd.TargetTileKey.Slot(), uint32(len(cmd.Dabs)))
	for _, d := range cmd.Dabs {
		words = append(words,
			math.Float32bits(float32(d.CanvasX)),
			math.Float32bits(float32(d.CanvasY)),
			math.Float32bits(float32(d.Radius)),
			math.Float32bits(d.Pressure),
		)
	}
	out := make([]byte, len(words)*4)
	for i, w := range words {
		out[i*4] = byte(w)
		out[i*4+1] = byte(w >> 8)
		out[i*4+2] = byte(w >> 16)
		out[i*4+3] = byte(w >> 24)
	}
	return out
}

// buildDrawInstances packs one instance record per visible dirty tile
// into the arena: document-space origin plus the owning layer and blend
// mode. The composite draw samples these quad-by-quad; which shader does
// so is the surface backend's concern, the packing discipline (distinct
// arena offsets, never rewritten within a submission) is enforced here.
func (e *Executor) buildDrawInstances(plans []CompositeNodePlan) int {
	count := 0
	for _, p := range plans {
		if p.Mode == PlanSkip {
			continue
		}
		for _, inst := range p.Instances {
			for _, coord := range inst.DirtySet {
				x, y := model.TileOrigin(coord)
				words := [4]uint32{uint32(int32(x)), uint32(int32(y)), uint32(inst.LayerID), uint32(inst.Blend)}
				buf := make([]byte, 16)
				for i, w := range words {
					buf[i*4] = byte(w)
					buf[i*4+1] = byte(w >> 8)
					buf[i*4+2] = byte(w >> 16)
					buf[i*4+3] = byte(w >> 24)
				}
				e.arena.Append(buf)
				count++
			}
		}
	}
	return count
}

// dispatchProcessMergeCompletions drains the merge engine's queued
// completion notices for frameID and returns them wrapped in a
// MergeNoticesReceipt, the shape fabric.receiptToNotices expects to fold
// into the outgoing feedback frame.
func (e *Executor) dispatchProcessMergeCompletions(c fabric.ProcessMergeCompletionsCommand) (fabric.Receipt, error) {
	if err := e.checkCompletions(c.FrameID); err != nil {
		return nil, err
	}
	notices := e.merge.PollCompletionNotices(c.FrameID)
	return fabric.MergeNoticesReceipt{FrameID: c.FrameID, List: notices}, nil
}

// dispatchPollMergeNotices drains GPU-complete notices. A notice is
// produced only once the fence enclosing the receipt's submission has
// been observed signalled; until then the receipt stays Pending and the
// returned list simply omits it.
func (e *Executor) dispatchPollMergeNotices(c fabric.PollMergeNoticesCommand) (fabric.Receipt, error) {
	if err := e.checkCompletions(c.FrameID); err != nil {
		return nil, err
	}
	notices := e.merge.PollCompletionNotices(c.FrameID)
	return fabric.MergeNoticesReceipt{FrameID: c.FrameID, List: notices}, nil
}

// checkCompletions polls every in-flight submission's fence without
// blocking. Passed submissions mint one completion notice per enclosed
// receipt (tagged with frameID for the subsequent poll) and advance the
// complete-waterline token.
func (e *Executor) checkCompletions(frameID uint64) error {
	remaining := e.inflight[:0]
	prefixDone := true
	for _, sub := range e.inflight {
		done := true
		if sub.fence != nil {
			var err error
			done, err = e.device.Wait(sub.fence, sub.value, 0)
			if err != nil {
				return fmt.Errorf("executor: poll fence for token %d: %w", sub.token, err)
			}
		}
		if !done {
			prefixDone = false
			remaining = append(remaining, sub)
			continue
		}
		if sub.fence != nil {
			e.device.DestroyFence(sub.fence)
		}
		for _, buf := range sub.buffers {
			e.device.FreeCommandBuffer(buf)
		}
		for _, id := range sub.receipts {
			e.merge.PushCompletionNotice(frameID, protocol.CompletionNotice{ReceiptID: id, Succeeded: true})
		}
		// The waterline may only cover a contiguous completed prefix:
		// a fence passing out of order mints notices but cannot vouch
		// for earlier submissions.
		if prefixDone && sub.token > e.completeToken {
			e.completeToken = sub.token
		}
	}
	e.inflight = remaining
	return nil
}

func (e *Executor) dispatchAckMergeResults(c fabric.AckMergeResultsCommand) (fabric.Receipt, error) {
	acked := 0
	for _, n := range c.Notices {
		outcome, err := e.merge.AckResult(n)
		if err != nil {
			continue
		}
		if outcome.State == protocol.ReceiptSucceeded {
			if err := e.finalizeCommit(outcome.ReceiptID); err != nil {
				return nil, err
			}
		} else {
			_ = e.merge.Finalize(outcome.ReceiptID, false, nil)
		}
		acked++
	}
	return fabric.MergeResultsAcknowledgedReceipt{Count: acked}, nil
}

func (e *Executor) finalizeCommit(id protocol.ReceiptId) error {
	return e.merge.Finalize(id, true, func(plan protocol.MergePlan) {
		if len(plan.Mappings) == 0 {
			// Aborting a stroke submits an empty plan; it completes the
			// lifecycle without touching the document.
			return
		}
		updates := make(map[model.TileCoord]protocol.TileKey, len(plan.Mappings))
		for _, m := range plan.Mappings {
			updates[m.Coord] = m.OutputTileKey
		}
		e.doc.CommitMerge(plan.LayerID, updates)
	})
}

// dispatchEnqueuePlannedMerge builds the merge plan for req (minting an
// output tile per destination coordinate from the color atlas), registers
// it with the merge engine as a Pending receipt under the current batch
// token, and submits its compute passes behind a fresh fence.
func (e *Executor) dispatchEnqueuePlannedMerge(c fabric.EnqueuePlannedMergeCommand) (fabric.Receipt, error) {
	req := c.Request
	layer := e.doc.FindByID(req.LayerID)

	strokeTiles := make(map[model.TileCoord]protocol.TileKey, len(req.StrokeTiles))
	for _, ref := range req.StrokeTiles {
		strokeTiles[ref.Coord] = ref.Key
	}

	plan, err := merge.PlanMerge(
		req.StrokeSessionID, req.LayerID, req.BlendMode, req.DirtyTiles,
		func(coord model.TileCoord) (protocol.TileKey, bool) {
			if layer == nil || layer.Image == nil {
				return 0, false
			}
			return layer.Image.Get(coord)
		},
		func(coord model.TileCoord) (protocol.TileKey, bool) {
			k, ok := strokeTiles[coord]
			return k, ok
		},
		e.stores.Color.Allocate,
	)
	if err != nil {
		return nil, fmt.Errorf("executor: enqueue_planned_merge: plan: %w", err)
	}

	id, err := e.merge.Submit(plan, e.batchToken)
	if err != nil {
		return nil, fmt.Errorf("executor: enqueue_planned_merge: submit: %w", err)
	}

	if err := e.submitMergePasses(plan, id); err != nil {
		return nil, err
	}
	return fabric.PlannedMergeEnqueuedReceipt{ReceiptID: id}, nil
}

// submitMergePasses encodes one tile-merge compute pass per mapping in a
// single submission guarded by a fresh fence. Per-pass uniform data is
// appended to the arena at distinct offsets; nothing ever rewrites a byte
// range already encoded against, which the arena asserts under Strict.
func (e *Executor) submitMergePasses(plan protocol.MergePlan, id protocol.ReceiptId) error {
	var buffers []hal.CommandBuffer

	if e.pipelines != nil {
		encoder, err := e.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "tile_merge"})
		if err != nil {
			return fmt.Errorf("executor: enqueue_planned_merge: create encoder: %w", err)
		}
		if encoder != nil {
			if err := encoder.BeginEncoding("tile_merge"); err != nil {
				return fmt.Errorf("executor: enqueue_planned_merge: begin encoding: %w", err)
			}
			for _, m := range plan.Mappings {
				params := mergeParamBytes(m, plan.BlendMode)
				e.arena.Append(params)

				pass, err := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "tile_merge_pass"})
				if err != nil {
					return fmt.Errorf("executor: enqueue_planned_merge: begin pass: %w", err)
				}
				if pass != nil {
					pass.SetPipeline(e.pipelines.TileMerge)
					pass.Dispatch(model.TileStride/16, model.TileStride/16, 1)
					pass.End()
				}
			}
			buf, err := encoder.EndEncoding()
			if err != nil {
				return fmt.Errorf("executor: enqueue_planned_merge: end encoding: %w", err)
			}
			if buf != nil {
				buffers = append(buffers, buf)
			}
		}
	}

	fence, err := e.device.CreateFence()
	if err != nil {
		return fmt.Errorf("executor: enqueue_planned_merge: create fence: %w", err)
	}
	e.fenceValue++
	if err := e.queue.Submit(buffers, fence, e.fenceValue); err != nil {
		return fmt.Errorf("executor: enqueue_planned_merge: submit: %w", err)
	}

	e.inflight = append(e.inflight, pendingSubmission{
		token:    e.batchToken,
		fence:    fence,
		value:    e.fenceValue,
		receipts: []protocol.ReceiptId{id},
		buffers:  buffers,
	})
	return nil
}

// mergeParamBytes packs one mapping's per-pass uniform block: base,
// buffer, and output slot indices plus the blend mode, each as a 32-bit
// little-endian word matching the shader's MergeParams layout.
func mergeParamBytes(m protocol.TileMergeMapping, blend protocol.BlendMode) []byte {
	words := [4]uint32{
		m.BaseTileKey.Slot(),
		m.StrokeTileKey.Slot(),
		m.OutputTileKey.Slot(),
		uint32(blend),
	}
	out := make([]byte, 16)
	for i, w := range words {
		out[i*4] = byte(w)
		out[i*4+1] = byte(w >> 8)
		out[i*4+2] = byte(w >> 16)
		out[i*4+3] = byte(w >> 24)
	}
	return out
}
