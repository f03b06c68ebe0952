package main

import (
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/SunastanS/glaphica/atlas"
	"github.com/SunastanS/glaphica/executor"
)

// nullDevice, nullQueue and nullSurface are headless stand-ins for the
// gpucontext-backed device/queue/surface a host application would
// construct from its own windowing setup. A real host passes its own
// hal.Device/hal.Queue/presentable surface into glaphica.AppConfig
// instead of these.
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

func (nullSurface) Configure(width, height uint32) error    { return nil }
func (nullSurface) AcquireNextTexture() (hal.Texture, error) { return nil, nil }
func (nullSurface) Present() error                           { return nil }

type nullLayer struct{}

func (nullLayer) UploadTile(gpu atlas.GPUQueue, slot uint32, data []byte) error { return nil }
func (nullLayer) ClearTile(gpu atlas.GPUQueue, slot uint32) error               { return nil }
