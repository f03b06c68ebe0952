package glaphica

import (
	"context"
	"testing"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/executor"
	"github.com/SunastanS/glaphica/protocol"
)

type nullLayer struct{}

func (nullLayer) UploadTile(atlas.GPUQueue, uint32, []byte) error { return nil }
func (nullLayer) ClearTile(atlas.GPUQueue, uint32) error          { return nil }

type nullDevice struct{}

func (nullDevice) CreateCommandEncoder(*hal.CommandEncoderDescriptor) (executor.CommandEncoder, error) {
	return nil, nil
}
func (nullDevice) CreateFence() (hal.Fence, error)                     { return nil, nil }
func (nullDevice) DestroyFence(hal.Fence)                              {}
func (nullDevice) FreeCommandBuffer(hal.CommandBuffer)                 {}
func (nullDevice) Wait(hal.Fence, uint64, time.Duration) (bool, error) { return true, nil }

type nullQueue struct{}

func (nullQueue) Submit([]hal.CommandBuffer, hal.Fence, uint64) error { return nil }
func (nullQueue) ReadBuffer(hal.Buffer, uint64, []byte) error         { return nil }
func (nullQueue) WriteTexture(*hal.ImageCopyTexture, []byte, *hal.ImageDataLayout, *hal.Extent3D) {
}

type nullSurface struct{}

func (nullSurface) Configure(uint32, uint32) error           { return nil }
func (nullSurface) AcquireNextTexture() (hal.Texture, error) { return nil, nil }
func (nullSurface) Present() error                           { return nil }

func newTestApp() *App {
	cfg := DefaultAppConfig()
	cfg.Device = nullDevice{}
	cfg.Queue = nullQueue{}
	cfg.Surface = nullSurface{}
	cfg.ColorPageFactory = func(uint32) (atlas.GPUTextureArrayLayer, error) { return nullLayer{}, nil }
	cfg.BrushPageFactory = func(uint32) (atlas.GPUTextureArrayLayer, error) { return nullLayer{}, nil }
	cfg.InitialWidth = 640
	cfg.InitialHeight = 480
	return New(cfg)
}

// TestRunUntilExitStrokeCommitAndCleanJoin runs the full two-goroutine
// runtime against null GPU handles: a scripted stroke must commit exactly
// one document revision, and cancelling the context must join both loops
// without error.
func TestRunUntilExitStrokeCommitAndCleanJoin(t *testing.T) {
	app := newTestApp()

	layer := app.Document().AddLeaf(app.Document().Root(), protocol.BlendNormal)
	app.Driver().SetActiveLayer(layer.ID)

	revBefore := app.Document().Revision()

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		defer cancel()
		time.Sleep(20 * time.Millisecond)
		drv := app.Driver()
		_ = drv.HandlePointerEvent(100, 100, 0.7, protocol.PhaseBegin, 1)
		for x := 200.0; x <= 700; x += 100 {
			_ = drv.HandlePointerEvent(x, 100, 0.7, protocol.PhaseMove, 1)
		}
		_ = drv.HandlePointerEvent(800, 100, 0.7, protocol.PhaseEnd, 1)

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if app.Document().Revision() > revBefore {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	done := make(chan error, 1)
	go func() { done <- app.RunUntilExit(ctx, nil) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RunUntilExit: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunUntilExit did not join after cancellation")
	}

	if got := app.Document().Revision(); got != revBefore+1 {
		t.Fatalf("document revision = %d, want %d", got, revBefore+1)
	}
}
