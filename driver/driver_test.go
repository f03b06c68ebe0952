package driver

import (
	"context"
	"testing"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/brush"
	"github.com/SunastanS/glaphica/document"
	"github.com/SunastanS/glaphica/executor"
	"github.com/SunastanS/glaphica/fabric"
	"github.com/SunastanS/glaphica/merge"
	"github.com/SunastanS/glaphica/model"
	"github.com/SunastanS/glaphica/protocol"
	"github.com/SunastanS/glaphica/scheduler"
)

type fakeLayer struct{}

func (fakeLayer) UploadTile(atlas.GPUQueue, uint32, []byte) error { return nil }
func (fakeLayer) ClearTile(atlas.GPUQueue, uint32) error          { return nil }

type fakeDevice struct{}

func (fakeDevice) CreateCommandEncoder(*hal.CommandEncoderDescriptor) (executor.CommandEncoder, error) {
	return nil, nil
}
func (fakeDevice) CreateFence() (hal.Fence, error)                     { return nil, nil }
func (fakeDevice) DestroyFence(hal.Fence)                              {}
func (fakeDevice) FreeCommandBuffer(hal.CommandBuffer)                 {}
func (fakeDevice) Wait(hal.Fence, uint64, time.Duration) (bool, error) { return true, nil }

type fakeQueue struct{}

func (fakeQueue) Submit([]hal.CommandBuffer, hal.Fence, uint64) error { return nil }
func (fakeQueue) ReadBuffer(hal.Buffer, uint64, []byte) error         { return nil }
func (fakeQueue) WriteTexture(*hal.ImageCopyTexture, []byte, *hal.ImageDataLayout, *hal.Extent3D) {
}

type fakeSurface struct{}

func (fakeSurface) Configure(uint32, uint32) error          { return nil }
func (fakeSurface) AcquireNextTexture() (hal.Texture, error) { return nil, nil }
func (fakeSurface) Present() error                           { return nil }

type harness struct {
	drv       *Driver
	ex        *executor.Executor
	doc       *document.Document
	merge     *merge.Engine
	brush     *atlas.Store
	mainEnd   fabric.MainEndpoint
	mailbox   *fabric.MailboxState
	mainState *fabric.MainLoopState
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	doc := document.NewDocument()
	me := merge.NewEngine(0)

	colorStore := atlas.NewStore(protocol.BackendRGBA8, 8, func(uint32) (atlas.GPUTextureArrayLayer, error) {
		return fakeLayer{}, nil
	})
	brushStore := atlas.NewStore(protocol.BackendR32Float, 8, func(uint32) (atlas.GPUTextureArrayLayer, error) {
		return fakeLayer{}, nil
	})

	ex := executor.New(executor.Config{
		Device:  fakeDevice{},
		Queue:   fakeQueue{},
		Surface: fakeSurface{},
		Stores:  executor.Stores{Color: colorStore, Brush: brushStore},
		Doc:     doc,
		Merge:   me,
	})

	bridge := fabric.NewBridge(fabric.DefaultCapacities())
	engineEnd, mainEnd := bridge.Endpoints()

	drv := New(engineEnd, me, brushStore, scheduler.New(scheduler.DefaultConfig()), DefaultConfig())
	drv.SetDocument(doc)

	return &harness{
		drv:       drv,
		ex:        ex,
		doc:       doc,
		merge:     me,
		brush:     brushStore,
		mainEnd:   mainEnd,
		mailbox:   fabric.NewMailboxState(),
		mainState: fabric.NewMainLoopState(false),
	}
}

// step runs one engine tick followed by one main-loop tick.
func (h *harness) step(t *testing.T, ctx context.Context) {
	t.Helper()
	if _, err := h.drv.Tick(ctx, h.mailbox); err != nil {
		t.Fatalf("driver tick: %v", err)
	}
	result := fabric.RunMainLoopTick(ctx, h.mainEnd, h.ex, h.mainState)
	if result.Fatal != nil {
		t.Fatalf("main loop tick: %v", result.Fatal)
	}
}

func TestSingleStrokeHappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	layer := h.doc.AddLeaf(h.doc.Root(), protocol.BlendNormal)
	h.drv.SetActiveLayer(layer.ID)

	revBefore := h.doc.Revision()

	const session = 1
	if err := h.drv.HandlePointerEvent(100, 100, 0.7, protocol.PhaseBegin, session); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for x := 200.0; x <= 700; x += 100 {
		if err := h.drv.HandlePointerEvent(x, 100, 0.7, protocol.PhaseMove, session); err != nil {
			t.Fatalf("move: %v", err)
		}
	}
	if err := h.drv.HandlePointerEvent(800, 100, 0.7, protocol.PhaseEnd, session); err != nil {
		t.Fatalf("end: %v", err)
	}

	for i := 0; i < 20; i++ {
		h.step(t, ctx)
	}

	if got := h.doc.Revision(); got != revBefore+1 {
		t.Fatalf("document revision = %d, want %d (exactly one commit)", got, revBefore+1)
	}
	if state, ok := h.drv.registry.State(session); !ok || state != brush.Retained {
		t.Fatalf("registry state = %v ok=%v, want Retained", state, ok)
	}

	// The committed output keys must resolve in the layer's tile image.
	dirty, _ := layer.Image.DirtySince(0)
	if len(dirty) == 0 {
		t.Fatal("expected committed tiles in the layer image")
	}

	submit, executed, complete := h.drv.Waterlines()
	if complete > executed || executed > submit {
		t.Fatalf("waterline ordering violated: complete=%d executed=%d submit=%d", complete, executed, submit)
	}
	if complete == 0 {
		t.Fatal("complete waterline never advanced past the stroke's token")
	}
}

func TestStrokeReleaseGatedOnCompleteWaterline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	layer := h.doc.AddLeaf(h.doc.Root(), protocol.BlendNormal)
	h.drv.SetActiveLayer(layer.ID)

	const session = 1
	_ = h.drv.HandlePointerEvent(100, 100, 0.7, protocol.PhaseBegin, session)
	_ = h.drv.HandlePointerEvent(300, 100, 0.7, protocol.PhaseEnd, session)

	for i := 0; i < 20; i++ {
		h.step(t, ctx)
	}

	occupiedBefore := h.brush.SlotsOccupied()
	if occupiedBefore == 0 {
		t.Fatal("expected retained buffer tiles to still occupy the brush atlas")
	}

	h.drv.RequestStrokeRelease(session)
	for i := 0; i < 4; i++ {
		h.step(t, ctx)
	}

	if got := h.brush.SlotsOccupied(); got != 0 {
		t.Fatalf("brush atlas still holds %d slots after gated release", got)
	}
	if _, ok := h.merge.RetainStroke(session); ok {
		t.Fatal("stroke must leave the retention window after release")
	}
}

func TestZoomedPointerEventsLandOnCanvasTiles(t *testing.T) {
	h := newHarness(t)

	v := h.drv.View()
	if err := v.SetZoom(2.0); err != nil {
		t.Fatalf("SetZoom: %v", err)
	}
	h.drv.UpdateView(v)

	// A diagonal in screen space: with zoom=2 and no pan/rotation the
	// canvas coordinates are exactly half the screen coordinates, so the
	// affected tile set must follow the halved coordinates.
	screens := [][2]float64{{256, 256}, {512, 512}, {768, 768}}
	for i, s := range screens {
		phase := protocol.PhaseMove
		if i == 0 {
			phase = protocol.PhaseBegin
		}
		if err := h.drv.HandlePointerEvent(s[0], s[1], 0.5, phase, 1); err != nil {
			t.Fatalf("pointer event: %v", err)
		}
	}

	for _, want := range screens {
		sample, ok := h.drv.endpoint.InputRing.TryPop()
		if !ok {
			t.Fatal("expected a sample on the input ring")
		}
		if sample.CanvasX != want[0]/2 || sample.CanvasY != want[1]/2 {
			t.Fatalf("canvas coords = (%v,%v), want (%v,%v)", sample.CanvasX, sample.CanvasY, want[0]/2, want[1]/2)
		}
		gotTile := model.CanvasToTileCoord(int(sample.CanvasX), int(sample.CanvasY))
		wantTile := model.CanvasToTileCoord(int(want[0]/2), int(want[1]/2))
		if gotTile != wantTile {
			t.Fatalf("tile coord = %v, want %v", gotTile, wantTile)
		}
	}
}

func TestControlMessagesDriveViewGestures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.drv.PushControl(ctx, fabric.EngineControlMessage{Kind: fabric.ControlViewZoom, Amount: 2}); err != nil {
		t.Fatalf("PushControl(zoom): %v", err)
	}
	if err := h.drv.PushControl(ctx, fabric.EngineControlMessage{Kind: fabric.ControlViewPan, X: 10, Y: 5}); err != nil {
		t.Fatalf("PushControl(pan): %v", err)
	}

	h.step(t, ctx)

	v := h.drv.View()
	if v.Zoom() != 2 {
		t.Fatalf("zoom = %v, want 2", v.Zoom())
	}
	if v.OffsetX() != 10 || v.OffsetY() != 5 {
		t.Fatalf("offset = (%v,%v), want (10,5)", v.OffsetX(), v.OffsetY())
	}
}

func TestCloseRequestSurfacesToOwner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if h.drv.CloseRequested() {
		t.Fatal("close must not be requested before any control message")
	}
	if err := h.drv.PushControl(ctx, fabric.EngineControlMessage{Kind: fabric.ControlCloseRequest}); err != nil {
		t.Fatalf("PushControl(close): %v", err)
	}
	h.step(t, ctx)
	if !h.drv.CloseRequested() {
		t.Fatal("close request must surface after the tick that consumed it")
	}
}

func TestOverlappingStrokeSessionsRejected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	layer := h.doc.AddLeaf(h.doc.Root(), protocol.BlendNormal)
	h.drv.SetActiveLayer(layer.ID)

	_ = h.drv.HandlePointerEvent(100, 100, 0.7, protocol.PhaseBegin, 1)
	// Session 2 begins while session 1 is still open and unmerged: the
	// sample must be dropped without disturbing session 1.
	_ = h.drv.HandlePointerEvent(400, 400, 0.7, protocol.PhaseBegin, 2)

	h.step(t, ctx)

	if !h.drv.open || h.drv.openSession != 1 {
		t.Fatalf("open=%v session=%d, want session 1 still open", h.drv.open, h.drv.openSession)
	}
	if _, ok := h.drv.registry.State(2); ok {
		t.Fatal("session 2 must not have registered buffer tiles")
	}
}
